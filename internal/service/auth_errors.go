package service

import (
	"errors"
	"fmt"
)

// Auth flow specific errors used by handlers for stable error_type mapping.
var (
	ErrEmailAlreadyRegistered = errors.New("email_already_registered")
	ErrEmailNotVerified       = errors.New("email_not_verified")
	ErrAlreadyVerified        = errors.New("email_already_verified")
	ErrInvalidCredentials     = errors.New("invalid_credentials")
	ErrNoChallenge            = errors.New("no_otp_requested")
	ErrOTPExpired             = errors.New("otp_expired")
	ErrTooManyAttempts        = errors.New("too_many_otp_attempts")
	ErrResendLimitExceeded    = errors.New("otp_resend_limit_exceeded")
	ErrEmailDeliveryFailed    = errors.New("email_delivery_failed")
)

// InvalidOTPError reports a code mismatch along with the number of validation
// attempts the caller has left before the challenge locks.
type InvalidOTPError struct {
	AttemptsLeft int
}

func (e *InvalidOTPError) Error() string {
	return fmt.Sprintf("invalid OTP, %d attempts left", e.AttemptsLeft)
}
