package flows

import (
	"errors"
	"fmt"
)

// Failure classifies why a flow refused a request.
type Failure uint8

const (
	FailureNone Failure = iota
	FailureNotReady
	FailureInvalidCredentials
	FailureLocked
	FailureTwoFactorInvalid
	FailureTwoFactorExpired
	FailureTwoFactorRateLimited
	FailureRefreshInvalid
	FailureRefreshExpired
	FailureRefreshTheft
	FailureResetNotFound
	FailureResetExpired
	FailureResetMismatch
	FailurePasswordPolicy
	FailureSessionNotFound
	FailureAccessInvalid
	FailureBackend
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureNotReady:
		return "not_ready"
	case FailureInvalidCredentials:
		return "invalid_credentials"
	case FailureLocked:
		return "locked"
	case FailureTwoFactorInvalid:
		return "two_factor_invalid"
	case FailureTwoFactorExpired:
		return "two_factor_expired"
	case FailureTwoFactorRateLimited:
		return "two_factor_rate_limited"
	case FailureRefreshInvalid:
		return "refresh_invalid"
	case FailureRefreshExpired:
		return "refresh_expired"
	case FailureRefreshTheft:
		return "refresh_theft"
	case FailureResetNotFound:
		return "reset_not_found"
	case FailureResetExpired:
		return "reset_expired"
	case FailureResetMismatch:
		return "reset_mismatch"
	case FailurePasswordPolicy:
		return "password_policy"
	case FailureSessionNotFound:
		return "session_not_found"
	case FailureAccessInvalid:
		return "access_invalid"
	case FailureBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Error is the only error type flows return. Err, when set, is the
// underlying cause and is never shown to end users.
type Error struct {
	Kind Failure
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(kind Failure, err error) error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the Failure from err. Errors that did not come from a
// flow classify as FailureBackend.
func KindOf(err error) Failure {
	if err == nil {
		return FailureNone
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FailureBackend
}
