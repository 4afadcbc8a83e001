package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/fasalrakshak-api/internal/middleware"
	apperrors "github.com/yourusername/fasalrakshak-api/internal/pkg/errors"
	"github.com/yourusername/fasalrakshak-api/internal/service"
)

// AuthHandler exposes the signup/verification flow over HTTP.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// SignupRequest is the payload for account creation.
type SignupRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// VerifyOTPRequest resolves the account by userId or email.
type VerifyOTPRequest struct {
	UserID uint   `json:"userId" binding:"omitempty"`
	Email  string `json:"email" binding:"omitempty,email"`
	OTP    string `json:"otp" binding:"required"`
}

// ResendOTPRequest resolves the account by userId or email.
type ResendOTPRequest struct {
	UserID uint   `json:"userId" binding:"omitempty"`
	Email  string `json:"email" binding:"omitempty,email"`
}

// LoginRequest is the payload for password login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing fields", "error_type": "missing_fields", "details": err.Error()})
		return
	}

	result, err := h.authService.Signup(c.Request.Context(), service.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "OTP sent to email",
		"userId":  result.UserID,
	})
}

// VerifyOTP handles POST /api/auth/verify-otp.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing fields", "error_type": "missing_fields", "details": err.Error()})
		return
	}
	if req.UserID == 0 && req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing fields", "error_type": "missing_fields"})
		return
	}

	resp, err := h.authService.VerifyOTP(c.Request.Context(), req.UserID, req.Email, req.OTP)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": resp.Token,
		"user":  resp.User,
	})
}

// ResendOTP handles POST /api/auth/resend-otp.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req ResendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing fields", "error_type": "missing_fields", "details": err.Error()})
		return
	}
	if req.UserID == 0 && req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing fields", "error_type": "missing_fields"})
		return
	}

	if err := h.authService.ResendOTP(c.Request.Context(), req.UserID, req.Email); err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "OTP resent"})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing fields", "error_type": "missing_fields", "details": err.Error()})
		return
	}

	resp, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": resp.Token,
		"user":  resp.User,
	})
}

// Logout handles POST /api/auth/logout. Idempotent: always 200, even with no
// token attached.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.authService.Logout(middleware.BearerToken(c.Request))
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me handles GET /api/auth/me for an authenticated session.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "unauthorized"})
		return
	}

	user, err := h.authService.GetUserByID(userID.(uint))
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// handleAuthError maps flow failure kinds to HTTP statuses and stable
// error_type strings.
func (h *AuthHandler) handleAuthError(c *gin.Context, err error) {
	var invalidOTP *service.InvalidOTPError
	if errors.As(err, &invalidOTP) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":        "Invalid OTP",
			"error_type":   "invalid_code",
			"attemptsLeft": invalidOTP.AttemptsLeft,
		})
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing fields", "error_type": "missing_fields"})
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already in use", "error_type": "duplicate_email"})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "error_type": "not_found"})
	case errors.Is(err, service.ErrAlreadyVerified):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already verified", "error_type": "already_verified"})
	case errors.Is(err, service.ErrNoChallenge):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No OTP requested", "error_type": "no_challenge"})
	case errors.Is(err, service.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many OTP attempts", "error_type": "too_many_attempts"})
	case errors.Is(err, service.ErrOTPExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "OTP expired", "error_type": "otp_expired"})
	case errors.Is(err, service.ErrResendLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Resend limit reached", "error_type": "resend_limit_exceeded"})
	case errors.Is(err, service.ErrEmailDeliveryFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send OTP email", "error_type": "email_delivery_failed"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid credentials", "error_type": "invalid_credentials"})
	case errors.Is(err, service.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "Email not verified", "error_type": "email_not_verified"})
	case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrExpiredToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "unauthorized"})
	default:
		log.Printf("[AuthHandler] Unexpected error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_server_error"})
	}
}
