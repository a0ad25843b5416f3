package authcore

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/internal/flows"
)

var (
	// ErrInvalidCredentials is returned for any failed first-step sign-in:
	// unknown email, wrong password, disabled account or active lockout.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTwoFactorFailed is returned when the second factor does not verify.
	ErrTwoFactorFailed = errors.New("two-factor verification failed")
	// ErrTwoFactorExpired is returned when the pending sign-in is gone.
	ErrTwoFactorExpired = errors.New("two-factor challenge expired")
	// ErrTwoFactorRateLimited is returned while the per-user attempt window is exhausted.
	ErrTwoFactorRateLimited = errors.New("two-factor attempts rate limited")
	// ErrRefreshInvalid is returned for unknown, revoked or replayed refresh tokens.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshExpired is returned when the refresh chain reached its expiry.
	ErrRefreshExpired = errors.New("refresh token expired")

	ErrResetTokenNotFound = errors.New("password reset token not found")
	ErrResetTokenExpired  = errors.New("password reset token expired")
	ErrResetTokenMismatch = errors.New("password reset token mismatch")

	// ErrPasswordPolicy is returned when a new password is outside the accepted length range.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrUserNotFound is what a UserProvider returns for unknown accounts.
	// The engine never surfaces it.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound is returned by RevokeSession for unknown ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidAccessToken is returned by ValidateAccessToken for bad
	// signatures, expired tokens and tokens whose session is no longer active.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrBackendUnavailable wraps storage and provider failures.
	ErrBackendUnavailable = errors.New("authentication backend unavailable")
	// ErrEngineNotReady is returned by an Engine that was not built by a Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)

var (
	// ErrAccountLockedOut is what SignIn returns while the lock flag is set.
	// It matches ErrInvalidCredentials under errors.Is, so a caller checking
	// only the public sentinel cannot tell a lock from a bad password.
	ErrAccountLockedOut error = &maskedError{reason: "account locked out", public: ErrInvalidCredentials}
	// ErrRefreshTheftDetected is returned when a superseded refresh token is
	// replayed outside the grace window. It matches ErrRefreshInvalid.
	ErrRefreshTheftDetected error = &maskedError{reason: "refresh token theft detected", public: ErrRefreshInvalid}
)

// maskedError presents the public sentinel's message while remaining a
// distinct value for internal matching.
type maskedError struct {
	reason string
	public error
}

func (e *maskedError) Error() string { return e.public.Error() }

func (e *maskedError) Unwrap() error { return e.public }

// Reason is the unmasked description, for logs only.
func (e *maskedError) Reason() string { return e.reason }

var failureErrors = map[flows.Failure]error{
	flows.FailureNotReady:             ErrEngineNotReady,
	flows.FailureInvalidCredentials:   ErrInvalidCredentials,
	flows.FailureLocked:               ErrAccountLockedOut,
	flows.FailureTwoFactorInvalid:     ErrTwoFactorFailed,
	flows.FailureTwoFactorExpired:     ErrTwoFactorExpired,
	flows.FailureTwoFactorRateLimited: ErrTwoFactorRateLimited,
	flows.FailureRefreshInvalid:       ErrRefreshInvalid,
	flows.FailureRefreshExpired:       ErrRefreshExpired,
	flows.FailureRefreshTheft:         ErrRefreshTheftDetected,
	flows.FailureResetNotFound:        ErrResetTokenNotFound,
	flows.FailureResetExpired:         ErrResetTokenExpired,
	flows.FailureResetMismatch:        ErrResetTokenMismatch,
	flows.FailurePasswordPolicy:       ErrPasswordPolicy,
	flows.FailureSessionNotFound:      ErrSessionNotFound,
	flows.FailureAccessInvalid:        ErrInvalidAccessToken,
}

// publicError maps a flow error onto the sentinel callers match against.
// Only backend failures carry their cause, and only in the message.
func publicError(err error) error {
	if err == nil {
		return nil
	}
	if public, ok := failureErrors[flows.KindOf(err)]; ok {
		return public
	}
	cause := err
	var fe *flows.Error
	if errors.As(err, &fe) && fe.Err != nil {
		cause = fe.Err
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, cause)
}
