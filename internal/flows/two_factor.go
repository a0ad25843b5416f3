package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/internal/stores"
)

var (
	errTOTPMismatch        = errors.New("totp code does not match")
	errTOTPReplay          = errors.New("totp code already used")
	errTOTPNotEnrolled     = errors.New("totp not enrolled")
	errRecoveryCodeSpent   = errors.New("recovery code already used")
	errRecoveryCodeUnknown = errors.New("recovery code does not match")
	errTwoFactorCodeEmpty  = errors.New("no second factor supplied")
)

// TwoFactorInput completes a pending sign-in. Exactly one of Code and
// RecoveryCode is expected; Code wins when both are set.
type TwoFactorInput struct {
	PendingSessionID string
	Code             string
	RecoveryCode     string
}

// TwoFactorDeps captures the second-step dependencies.
type TwoFactorDeps struct {
	Observer

	// MaxPendingAttempts deletes the pending record after that many
	// failures. Zero leaves it alive until it expires.
	MaxPendingAttempts int

	GetPending           func(ctx context.Context, id string, now time.Time) (*stores.PendingTwoFactor, error)
	DeletePending        func(ctx context.Context, id string) (bool, error)
	RestorePending       func(ctx context.Context, p *stores.PendingTwoFactor) error
	RecordPendingFailure func(ctx context.Context, id string, maxAttempts int, now time.Time) (bool, error)

	FindUserByID func(context.Context, string) (User, bool, error)

	GetTOTP           func(context.Context, string) (TOTPRecord, error)
	VerifyTOTP        func(secret []byte, code string, now time.Time) (bool, int64, error)
	UpdateTOTPCounter func(ctx context.Context, userID string, counter int64) error

	ListRecoveryCodes     func(context.Context, string) ([]*stores.RecoveryCode, error)
	MarkRecoveryCodeUsed  func(ctx context.Context, userID, codeID string, now time.Time) (bool, error)
	RemainingRecoveryCode func(context.Context, string) (int, error)

	// Optional per-user throttle across pending records.
	CheckThrottle  func(context.Context, string) error
	RecordThrottle func(context.Context, string) error
	ResetThrottle  func(context.Context, string) error

	Issuer *Issuer
}

// RunCompleteTwoFactor verifies the second factor for a pending sign-in and
// issues the session. A wrong code leaves the pending record usable.
func RunCompleteTwoFactor(ctx context.Context, in TwoFactorInput, deps TwoFactorDeps) (*SignInResult, error) {
	deps.defaults()
	if deps.GetPending == nil ||
		deps.DeletePending == nil ||
		deps.FindUserByID == nil ||
		!deps.Issuer.ready() {
		return nil, fail(FailureNotReady, nil)
	}

	now := deps.Now()

	pending, err := deps.GetPending(ctx, in.PendingSessionID, now)
	switch {
	case errors.Is(err, stores.ErrPendingNotFound), errors.Is(err, stores.ErrPendingExpired):
		deps.Inc(metrics.TwoFactorExpired)
		return nil, fail(FailureTwoFactorExpired, err)
	case err != nil:
		return nil, fail(FailureBackend, err)
	}

	if deps.CheckThrottle != nil {
		if err := deps.CheckThrottle(ctx, pending.UserID); err != nil {
			if !errors.Is(err, limiters.ErrTwoFactorRateLimited) {
				return nil, fail(FailureBackend, err)
			}
			deps.Inc(metrics.TwoFactorRateLimited)
			return nil, fail(FailureTwoFactorRateLimited, err)
		}
	}

	user, found, err := deps.FindUserByID(ctx, pending.UserID)
	if err != nil {
		return nil, fail(FailureBackend, err)
	}
	if !found || user.Disabled {
		_, _ = deps.DeletePending(ctx, pending.ID)
		return nil, fail(FailureInvalidCredentials, nil)
	}

	method := audit.MethodTOTP
	if in.Code == "" && in.RecoveryCode != "" {
		method = audit.MethodRecovery
	}

	var (
		counter      int64
		recoveryCode *stores.RecoveryCode
	)
	switch {
	case in.Code != "":
		counter, err = checkTOTP(ctx, &deps, user.ID, in.Code, now)
	case in.RecoveryCode != "":
		recoveryCode, err = matchRecoveryCode(ctx, &deps, user.ID, in.RecoveryCode)
	default:
		err = errTwoFactorCodeEmpty
	}
	if err != nil {
		var fe *Error
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, rejectSecondFactor(ctx, &deps, pending, method, err, now)
	}

	// Claim the pending record before spending anything else so a
	// concurrent completion cannot issue a second session from it.
	claimed, err := deps.DeletePending(ctx, pending.ID)
	if err != nil {
		return nil, fail(FailureBackend, err)
	}
	if !claimed {
		deps.Inc(metrics.TwoFactorExpired)
		return nil, fail(FailureTwoFactorExpired, stores.ErrPendingNotFound)
	}

	if recoveryCode != nil {
		won, err := deps.MarkRecoveryCodeUsed(ctx, user.ID, recoveryCode.ID, now)
		if err != nil {
			return nil, fail(FailureBackend, err)
		}
		if !won {
			// Another sign-in spent the code after this one claimed the
			// pending record; hand the record back so it stays retryable.
			if deps.RestorePending != nil {
				if err := deps.RestorePending(ctx, pending); err != nil {
					deps.Warn("authcore: restoring pending sign-in failed", "pending_id", pending.ID, "error", err)
				}
			}
			deps.Inc(metrics.TwoFactorFailure)
			deps.Emit(ctx, audit.TwoFactorFailedEvent{
				At:               now,
				UserID:           user.ID,
				PendingSessionID: pending.ID,
				Method:           audit.MethodRecovery,
				Reason:           errRecoveryCodeSpent.Error(),
			})
			return nil, fail(FailureTwoFactorInvalid, errRecoveryCodeSpent)
		}

		remaining := -1
		if deps.RemainingRecoveryCode != nil {
			if n, err := deps.RemainingRecoveryCode(ctx, user.ID); err == nil {
				remaining = n
			} else {
				deps.Warn("authcore: counting recovery codes failed", "user_id", user.ID, "error", err)
			}
		}
		deps.Inc(metrics.RecoveryCodeUsed)
		deps.Emit(ctx, audit.RecoveryCodeUsedEvent{At: now, UserID: user.ID, Remaining: remaining})
	} else if deps.UpdateTOTPCounter != nil {
		if err := deps.UpdateTOTPCounter(ctx, user.ID, counter); err != nil {
			deps.Warn("authcore: storing totp counter failed", "user_id", user.ID, "error", err)
		}
	}

	if deps.ResetThrottle != nil {
		if err := deps.ResetThrottle(ctx, user.ID); err != nil {
			deps.Warn("authcore: resetting two-factor throttle failed", "user_id", user.ID, "error", err)
		}
	}

	issued, err := deps.Issuer.Issue(ctx, IssueRequest{
		User:       user,
		RememberMe: pending.RememberMe,
		IPAddress:  pending.IPAddress,
		UserAgent:  pending.UserAgent,
		Now:        now,
	})
	if err != nil {
		return nil, fail(FailureBackend, err)
	}

	deps.Inc(metrics.TwoFactorSuccess)
	deps.Inc(metrics.SignInSuccess)
	deps.Inc(metrics.SessionCreated)
	deps.Emit(ctx, audit.UserSignedInEvent{
		At:            now,
		UserID:        user.ID,
		SessionID:     issued.SessionID,
		IPAddress:     pending.IPAddress,
		UserAgent:     pending.UserAgent,
		TwoFactorUsed: true,
	})
	return &SignInResult{UserID: user.ID, Issued: issued}, nil
}

// checkTOTP returns the accepted time step. Steps at or below the last
// accepted one are replays.
func checkTOTP(ctx context.Context, deps *TwoFactorDeps, userID, code string, now time.Time) (int64, error) {
	if deps.GetTOTP == nil || deps.VerifyTOTP == nil {
		return 0, fail(FailureNotReady, nil)
	}
	record, err := deps.GetTOTP(ctx, userID)
	if err != nil {
		return 0, fail(FailureBackend, err)
	}
	if !record.Enabled || len(record.Secret) == 0 {
		return 0, errTOTPNotEnrolled
	}

	ok, counter, err := deps.VerifyTOTP(record.Secret, code, now)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errTOTPMismatch
	}
	if counter <= record.LastUsedCounter {
		deps.Inc(metrics.TOTPReplay)
		return 0, errTOTPReplay
	}
	return counter, nil
}

// matchRecoveryCode compares against every stored code so timing does not
// reveal which one matched. A match on a spent code is rejected.
func matchRecoveryCode(ctx context.Context, deps *TwoFactorDeps, userID, plain string) (*stores.RecoveryCode, error) {
	if deps.ListRecoveryCodes == nil || deps.MarkRecoveryCodeUsed == nil {
		return nil, fail(FailureNotReady, nil)
	}
	codes, err := deps.ListRecoveryCodes(ctx, userID)
	if err != nil {
		return nil, fail(FailureBackend, err)
	}

	var matched *stores.RecoveryCode
	for _, c := range codes {
		if c.MatchesCode(plain) && matched == nil {
			matched = c
		}
	}
	switch {
	case matched == nil:
		return nil, errRecoveryCodeUnknown
	case matched.IsUsed():
		return nil, errRecoveryCodeSpent
	default:
		return matched, nil
	}
}

func rejectSecondFactor(
	ctx context.Context,
	deps *TwoFactorDeps,
	pending *stores.PendingTwoFactor,
	method string,
	cause error,
	now time.Time,
) error {
	if deps.RecordPendingFailure != nil {
		if _, err := deps.RecordPendingFailure(ctx, pending.ID, deps.MaxPendingAttempts, now); err != nil &&
			!errors.Is(err, stores.ErrPendingNotFound) &&
			!errors.Is(err, stores.ErrPendingExpired) {
			deps.Warn("authcore: recording pending failure failed", "pending_id", pending.ID, "error", err)
		}
	}
	if deps.RecordThrottle != nil {
		if err := deps.RecordThrottle(ctx, pending.UserID); err != nil &&
			!errors.Is(err, limiters.ErrTwoFactorRateLimited) {
			deps.Warn("authcore: recording two-factor throttle failed", "user_id", pending.UserID, "error", err)
		}
	}

	deps.Inc(metrics.TwoFactorFailure)
	deps.Emit(ctx, audit.TwoFactorFailedEvent{
		At:               now,
		UserID:           pending.UserID,
		PendingSessionID: pending.ID,
		Method:           method,
		Reason:           cause.Error(),
	})
	return fail(FailureTwoFactorInvalid, cause)
}
