package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/yourusername/fasalrakshak-api/internal/domain/entity"
	"github.com/yourusername/fasalrakshak-api/internal/domain/repository"
)

// OTPService generates, validates, and re-issues one-time codes for email
// verification. Codes are stored only as salted+peppered SHA-256 hashes on
// the user record; the plaintext exists in memory just long enough to be
// handed to the dispatcher.
type OTPService struct {
	userRepo    repository.UserRepository
	ttl         time.Duration
	maxAttempts int
	maxResends  int
	codePepper  string
}

// NewOTPService creates the OTP challenge engine.
func NewOTPService(
	userRepo repository.UserRepository,
	ttl time.Duration,
	maxAttempts int,
	maxResends int,
	codePepper string,
) (*OTPService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if maxResends <= 0 {
		maxResends = 3
	}

	return &OTPService{
		userRepo:    userRepo,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		maxResends:  maxResends,
		codePepper:  codePepper,
	}, nil
}

// Issue attaches a fresh challenge to the account and returns the plaintext
// code for dispatch. Any prior challenge is overwritten and the attempt
// counter resets.
func (s *OTPService) Issue(user *entity.User) (string, error) {
	code, err := s.attachChallenge(user)
	if err != nil {
		return "", err
	}
	if err := s.userRepo.Update(user); err != nil {
		return "", fmt.Errorf("failed to persist OTP challenge: %w", err)
	}
	return code, nil
}

// attachChallenge mutates the challenge fields in memory without persisting.
func (s *OTPService) attachChallenge(user *entity.User) (string, error) {
	code, err := generateOTPCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP code: %w", err)
	}
	salt, err := generateOTPSalt()
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP salt: %w", err)
	}

	expiresAt := time.Now().Add(s.ttl)
	user.OTPHash = hashOTPCode(code, salt, s.codePepper)
	user.OTPSalt = salt
	user.OTPExpiresAt = &expiresAt
	user.OTPAttempts = 0
	return code, nil
}

// Validate checks a supplied code against the account's current challenge.
// On mismatch the attempt counter is incremented and persisted; on expiry the
// challenge state is cleared so the account reads as needing a fresh
// issuance. On success the challenge fields are cleared in memory and the
// caller persists them together with the verified flag.
func (s *OTPService) Validate(user *entity.User, suppliedCode string) error {
	if !user.HasChallenge() {
		return ErrNoChallenge
	}
	if user.OTPAttempts >= s.maxAttempts {
		return ErrTooManyAttempts
	}

	now := time.Now()
	if user.ChallengeExpired(now) {
		user.ClearChallenge()
		if err := s.userRepo.Update(user); err != nil {
			return fmt.Errorf("failed to clear expired OTP challenge: %w", err)
		}
		return ErrOTPExpired
	}

	expectedHash := hashOTPCode(strings.TrimSpace(suppliedCode), user.OTPSalt, s.codePepper)
	if subtle.ConstantTimeCompare([]byte(expectedHash), []byte(user.OTPHash)) != 1 {
		user.OTPAttempts++
		if err := s.userRepo.Update(user); err != nil {
			return fmt.Errorf("failed to record OTP attempt: %w", err)
		}
		attemptsLeft := s.maxAttempts - user.OTPAttempts
		if attemptsLeft < 0 {
			attemptsLeft = 0
		}
		return &InvalidOTPError{AttemptsLeft: attemptsLeft}
	}

	user.ClearChallenge()
	return nil
}

// Reissue replaces the current challenge with a new code, resetting the
// attempt counter and incrementing the resend counter. Fails once the
// account has exhausted its resends.
func (s *OTPService) Reissue(user *entity.User) (string, error) {
	if user.OTPResendCount >= s.maxResends {
		return "", ErrResendLimitExceeded
	}

	code, err := s.attachChallenge(user)
	if err != nil {
		return "", err
	}
	user.OTPResendCount++

	if err := s.userRepo.Update(user); err != nil {
		return "", fmt.Errorf("failed to persist OTP challenge: %w", err)
	}
	return code, nil
}

// MaxAttempts returns the configured validation attempt limit.
func (s *OTPService) MaxAttempts() int {
	return s.maxAttempts
}

// TTL returns the configured challenge lifetime.
func (s *OTPService) TTL() time.Duration {
	return s.ttl
}

// generateOTPCode draws a uniformly random 6-digit code in [100000, 999999].
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}

func generateOTPSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashOTPCode(code, salt, pepper string) string {
	sum := sha256.Sum256([]byte(pepper + ":" + salt + ":" + code))
	return hex.EncodeToString(sum[:])
}
