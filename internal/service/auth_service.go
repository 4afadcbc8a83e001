package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/yourusername/fasalrakshak-api/internal/domain/entity"
	"github.com/yourusername/fasalrakshak-api/internal/domain/repository"
	apperrors "github.com/yourusername/fasalrakshak-api/internal/pkg/errors"
	"github.com/yourusername/fasalrakshak-api/pkg/auth"
)

// AuthService orchestrates the signup and verification flow: account
// creation, OTP issuance and dispatch, verification, resend, login, and
// logout. Per-origin rate limits are enforced by middleware in front of the
// signup and resend routes.
type AuthService struct {
	userRepo    repository.UserRepository
	otpService  *OTPService
	dispatcher  *EmailDispatcher
	jwtService  *auth.JWTService
	frontendURL string
}

// NewAuthService creates the flow controller and returns an error on
// missing dependencies.
func NewAuthService(
	userRepo repository.UserRepository,
	otpService *OTPService,
	dispatcher *EmailDispatcher,
	jwtService *auth.JWTService,
	frontendURL string,
) (*AuthService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for AuthService")
	}
	if otpService == nil {
		return nil, fmt.Errorf("OTPService is required for AuthService")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("EmailDispatcher is required for AuthService")
	}
	if jwtService == nil {
		return nil, fmt.Errorf("JWTService is required for AuthService")
	}
	if frontendURL == "" {
		frontendURL = "http://localhost:5173"
	}

	return &AuthService{
		userRepo:    userRepo,
		otpService:  otpService,
		dispatcher:  dispatcher,
		jwtService:  jwtService,
		frontendURL: frontendURL,
	}, nil
}

// SignupInput contains the data for a signup request.
type SignupInput struct {
	Name     string
	Email    string
	Password string
}

// SignupResult carries the identifier for subsequent verification calls.
type SignupResult struct {
	UserID uint `json:"userId"`
}

// AuthResponse contains a session token and a redacted account summary.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *entity.User `json:"user"`
}

// Signup creates an unverified account, issues an OTP challenge, and
// dispatches it. If dispatch fails the account stays pending so the user can
// recover via resend; the delivery error is recorded for diagnostics.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*SignupResult, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)

	if input.Name == "" || input.Email == "" || input.Password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", apperrors.ErrValidation)
	}

	_, err := s.userRepo.GetByEmail(input.Email)
	if err == nil {
		return nil, fmt.Errorf("%w: email already in use", ErrEmailAlreadyRegistered)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}

	user := &entity.User{
		Name:       input.Name,
		Email:      input.Email,
		Password:   input.Password,
		IsVerified: false,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	code, err := s.otpService.Issue(user)
	if err != nil {
		return nil, err
	}

	msg := BuildVerificationEmail(user.Email, code, s.frontendURL, s.otpService.TTL(), false)
	if res := s.dispatcher.Send(ctx, msg); !res.OK {
		s.recordDeliveryError(user.ID, res)
		return nil, fmt.Errorf("%w: %v", ErrEmailDeliveryFailed, res.Err)
	}

	log.Printf("[AuthService] Signup OTP dispatched for user ID=%d (%s)", user.ID, user.Email)
	return &SignupResult{UserID: user.ID}, nil
}

// VerifyOTP validates a supplied code for the account resolved by ID or
// email. On success the account transitions to verified, challenge state is
// cleared, and a session token is issued.
func (s *AuthService) VerifyOTP(ctx context.Context, userID uint, email, code string) (*AuthResponse, error) {
	user, err := s.resolveAccount(userID, email)
	if err != nil {
		return nil, err
	}
	if user.IsVerified {
		return nil, ErrAlreadyVerified
	}

	if err := s.otpService.Validate(user, code); err != nil {
		return nil, err
	}

	// Validate cleared the challenge fields; persist them with the
	// verified flag in one write.
	user.IsVerified = true
	if err := s.userRepo.Update(user); err != nil {
		return nil, fmt.Errorf("failed to mark user verified: %w", err)
	}

	token, err := s.jwtService.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	log.Printf("[AuthService] User ID=%d (%s) verified", user.ID, user.Email)
	return &AuthResponse{Token: token, User: user}, nil
}

// ResendOTP replaces the account's challenge with a new code and dispatches
// it, bounded by the per-account resend limit. A dispatch failure does not
// revert the new challenge; the user may retry within the resend budget.
func (s *AuthService) ResendOTP(ctx context.Context, userID uint, email string) error {
	user, err := s.resolveAccount(userID, email)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}

	code, err := s.otpService.Reissue(user)
	if err != nil {
		return err
	}

	msg := BuildVerificationEmail(user.Email, code, s.frontendURL, s.otpService.TTL(), true)
	if res := s.dispatcher.Send(ctx, msg); !res.OK {
		s.recordDeliveryError(user.ID, res)
		return fmt.Errorf("%w: %v", ErrEmailDeliveryFailed, res.Err)
	}

	log.Printf("[AuthService] OTP re-dispatched for user ID=%d (%s), resend %d", user.ID, user.Email, user.OTPResendCount)
	return nil
}

// Login authenticates a verified account and issues a session token. Absent
// account and password mismatch return the same error so the responses do
// not leak account existence.
func (s *AuthService) Login(email, password string) (*AuthResponse, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", apperrors.ErrValidation)
	}

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return nil, ErrEmailNotVerified
	}

	token, err := s.jwtService.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	log.Printf("[AuthService] User ID=%d (%s) logged in", user.ID, user.Email)
	return &AuthResponse{Token: token, User: user}, nil
}

// Logout revokes the supplied token. Idempotent: an empty, malformed, or
// already-revoked token is a no-op.
func (s *AuthService) Logout(token string) {
	if token == "" {
		return
	}
	if err := s.jwtService.RevokeToken(token); err != nil {
		log.Printf("[AuthService] Token revocation failed: %v", err)
	}
}

// GetUserByID returns the account for an authenticated request.
func (s *AuthService) GetUserByID(id uint) (*entity.User, error) {
	return s.userRepo.GetByID(id)
}

func (s *AuthService) resolveAccount(userID uint, email string) (*entity.User, error) {
	if userID != 0 {
		return s.userRepo.GetByID(userID)
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: userId or email is required", apperrors.ErrValidation)
	}
	return s.userRepo.GetByEmail(email)
}

func (s *AuthService) recordDeliveryError(userID uint, res SendResult) {
	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}
	if len(errMsg) > 255 {
		errMsg = errMsg[:255]
	}
	if err := s.userRepo.UpdateFields(userID, map[string]interface{}{
		"last_delivery_error": errMsg,
	}); err != nil {
		log.Printf("[AuthService] Failed to record delivery error for user ID=%d: %v", userID, err)
	}
	log.Printf("[AuthService] [%s] Email delivery failed for user ID=%d: %s", res.RequestID, userID, errMsg)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
