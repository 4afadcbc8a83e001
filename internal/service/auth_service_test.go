package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yourusername/fasalrakshak-api/internal/pkg/errors"
	"github.com/yourusername/fasalrakshak-api/pkg/auth"
)

type flowFixture struct {
	authService *AuthService
	otpService  *OTPService
	repo        *memUserRepo
	transport   *fakeTransport
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()

	repo := newMemUserRepo()
	otpService, err := NewOTPService(repo, 10*time.Minute, 5, 3, "test-pepper")
	require.NoError(t, err)

	transport := &fakeTransport{}
	dispatcher, err := NewEmailDispatcher(transport)
	require.NoError(t, err)
	dispatcher.retryDelay = time.Millisecond

	jwtService, err := auth.NewJWTService("test-secret", 7, newMemCache())
	require.NoError(t, err)

	authService, err := NewAuthService(repo, otpService, dispatcher, jwtService, "http://localhost:5173")
	require.NoError(t, err)

	return &flowFixture{
		authService: authService,
		otpService:  otpService,
		repo:        repo,
		transport:   transport,
	}
}

func (f *flowFixture) signup(t *testing.T) *SignupResult {
	t.Helper()
	result, err := f.authService.Signup(context.Background(), SignupInput{
		Name:     "Alice",
		Email:    "alice@x.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	return result
}

func TestAuthService_Signup_Success(t *testing.T) {
	f := newFlowFixture(t)

	result := f.signup(t)
	assert.NotZero(t, result.UserID)

	user, err := f.repo.GetByID(result.UserID)
	require.NoError(t, err)
	assert.False(t, user.IsVerified)
	assert.True(t, user.HasChallenge())
	assert.NotEqual(t, "secret1", user.Password, "password must be hashed at rest")

	require.Equal(t, 1, f.transport.callCount())
	msg := f.transport.sent[0]
	assert.Equal(t, "alice@x.com", msg.To)
	assert.Equal(t, "Your Fasal Rakshak OTP", msg.Subject)
	assert.Contains(t, msg.HTML, "verify-otp?email=alice%40x.com")
	assert.Len(t, f.transport.lastCode(), 6)
}

func TestAuthService_Signup_MissingFields(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.authService.Signup(context.Background(), SignupInput{Name: "Alice", Email: "alice@x.com"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Zero(t, f.transport.callCount())
}

func TestAuthService_Signup_DuplicateEmail(t *testing.T) {
	f := newFlowFixture(t)
	f.signup(t)

	_, err := f.authService.Signup(context.Background(), SignupInput{
		Name:     "Another Alice",
		Email:    "ALICE@X.COM", // duplicate check is case-insensitive
		Password: "password2",
	})
	assert.ErrorIs(t, err, ErrEmailAlreadyRegistered)
}

func TestAuthService_Signup_DispatchFailureLeavesPending(t *testing.T) {
	f := newFlowFixture(t)
	f.transport.errs = []error{errors.New("permanent transport failure"), errors.New("permanent transport failure")}

	_, err := f.authService.Signup(context.Background(), SignupInput{
		Name:     "Alice",
		Email:    "alice@x.com",
		Password: "secret1",
	})
	require.ErrorIs(t, err, ErrEmailDeliveryFailed)

	// Account stays pending with the challenge intact and delivery error
	// recorded; the user recovers via resend.
	user, userErr := f.repo.GetByEmail("alice@x.com")
	require.NoError(t, userErr)
	assert.False(t, user.IsVerified)
	assert.True(t, user.HasChallenge())
	assert.Contains(t, user.LastDeliveryError, "permanent transport failure")
}

func TestAuthService_VerifyOTP_Success(t *testing.T) {
	f := newFlowFixture(t)
	result := f.signup(t)
	code := f.transport.lastCode()

	resp, err := f.authService.VerifyOTP(context.Background(), result.UserID, "", code)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice@x.com", resp.User.Email)
	assert.Equal(t, "Alice", resp.User.Name)

	user, err := f.repo.GetByID(result.UserID)
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
	assert.False(t, user.HasChallenge(), "verified account must not carry challenge state")

	// A second verification attempt is rejected at the flow level.
	_, err = f.authService.VerifyOTP(context.Background(), result.UserID, "", code)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestAuthService_VerifyOTP_ByEmail(t *testing.T) {
	f := newFlowFixture(t)
	f.signup(t)
	code := f.transport.lastCode()

	resp, err := f.authService.VerifyOTP(context.Background(), 0, "Alice@X.com", code)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
}

func TestAuthService_VerifyOTP_NotFound(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.authService.VerifyOTP(context.Background(), 42, "", "123456")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAuthService_VerifyOTP_WrongCodeScenario(t *testing.T) {
	f := newFlowFixture(t)
	result := f.signup(t)
	code := f.transport.lastCode()

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for _, wantLeft := range []int{4, 3, 2, 1, 0} {
		_, err := f.authService.VerifyOTP(context.Background(), result.UserID, "", wrong)
		var invalidErr *InvalidOTPError
		require.ErrorAs(t, err, &invalidErr)
		assert.Equal(t, wantLeft, invalidErr.AttemptsLeft)
	}

	_, err := f.authService.VerifyOTP(context.Background(), result.UserID, "", code)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestAuthService_VerifyOTP_Expired(t *testing.T) {
	f := newFlowFixture(t)
	result := f.signup(t)
	code := f.transport.lastCode()

	// Age the challenge past its expiry directly in the store.
	past := time.Now().Add(-1 * time.Minute)
	f.repo.users[result.UserID].OTPExpiresAt = &past

	_, err := f.authService.VerifyOTP(context.Background(), result.UserID, "", code)
	assert.ErrorIs(t, err, ErrOTPExpired)

	// The challenge is gone; further attempts report no challenge.
	_, err = f.authService.VerifyOTP(context.Background(), result.UserID, "", code)
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestAuthService_ResendOTP(t *testing.T) {
	f := newFlowFixture(t)
	result := f.signup(t)
	oldCode := f.transport.lastCode()

	require.NoError(t, f.authService.ResendOTP(context.Background(), result.UserID, ""))
	newCode := f.transport.lastCode()

	require.Equal(t, 2, f.transport.callCount())
	assert.Equal(t, "Your Fasal Rakshak OTP (resend)", f.transport.sent[1].Subject)

	// The old code is invalidated by the resend.
	if oldCode != newCode {
		_, err := f.authService.VerifyOTP(context.Background(), result.UserID, "", oldCode)
		var invalidErr *InvalidOTPError
		require.ErrorAs(t, err, &invalidErr)
	}

	resp, err := f.authService.VerifyOTP(context.Background(), result.UserID, "", newCode)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
}

func TestAuthService_ResendOTP_LimitExceeded(t *testing.T) {
	f := newFlowFixture(t)
	result := f.signup(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.authService.ResendOTP(context.Background(), result.UserID, ""), "resend %d", i+1)
	}

	err := f.authService.ResendOTP(context.Background(), result.UserID, "")
	assert.ErrorIs(t, err, ErrResendLimitExceeded)
}

func TestAuthService_ResendOTP_AlreadyVerified(t *testing.T) {
	f := newFlowFixture(t)
	result := f.signup(t)
	code := f.transport.lastCode()

	_, err := f.authService.VerifyOTP(context.Background(), result.UserID, "", code)
	require.NoError(t, err)

	err = f.authService.ResendOTP(context.Background(), result.UserID, "")
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestAuthService_ResendOTP_DispatchFailureKeepsChallenge(t *testing.T) {
	f := newFlowFixture(t)
	result := f.signup(t)

	// First send succeeded; make the resend dispatch fail terminally.
	f.transport.errs = []error{nil, errors.New("mailbox unavailable"), errors.New("mailbox unavailable")}

	err := f.authService.ResendOTP(context.Background(), result.UserID, "")
	require.ErrorIs(t, err, ErrEmailDeliveryFailed)

	// The new challenge is not reverted; the resend budget was spent.
	user, userErr := f.repo.GetByID(result.UserID)
	require.NoError(t, userErr)
	assert.True(t, user.HasChallenge())
	assert.Equal(t, 1, user.OTPResendCount)

	// The re-issued code (captured by the failing transport) still verifies.
	newCode := f.transport.lastCode()
	resp, verifyErr := f.authService.VerifyOTP(context.Background(), result.UserID, "", newCode)
	require.NoError(t, verifyErr)
	assert.NotEmpty(t, resp.Token)
}

func TestAuthService_Login(t *testing.T) {
	f := newFlowFixture(t)
	result := f.signup(t)

	// Before verification: correct password still cannot log in.
	_, err := f.authService.Login("alice@x.com", "secret1")
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	code := f.transport.lastCode()
	_, err = f.authService.VerifyOTP(context.Background(), result.UserID, "", code)
	require.NoError(t, err)

	resp, err := f.authService.Login("alice@x.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	// Wrong password and unknown account are indistinguishable.
	_, err = f.authService.Login("alice@x.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.authService.Login("nobody@x.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_Logout_Idempotent(t *testing.T) {
	f := newFlowFixture(t)
	result := f.signup(t)
	code := f.transport.lastCode()

	resp, err := f.authService.VerifyOTP(context.Background(), result.UserID, "", code)
	require.NoError(t, err)

	// Revoking twice, or revoking nothing, never fails.
	f.authService.Logout(resp.Token)
	f.authService.Logout(resp.Token)
	f.authService.Logout("")
	f.authService.Logout("not-a-token")
}
