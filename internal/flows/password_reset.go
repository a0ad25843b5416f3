package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/password"
)

// ResetRequestDeps captures reset issuance dependencies.
type ResetRequestDeps struct {
	Observer

	TTL time.Duration

	Allow           func(context.Context, string) error
	FindUserByEmail func(context.Context, string) (User, bool, error)
	NewID           func() (string, error)
	Issue           func(context.Context, *stores.PasswordResetToken) error
	Send            func(ctx context.Context, email, token string, expiresAt time.Time) error
}

// RunRequestPasswordReset issues a reset token when email belongs to an
// account. Unknown and throttled addresses return nil, the same as a
// successful request; only backend failures produce an error.
func RunRequestPasswordReset(ctx context.Context, email string, deps ResetRequestDeps) error {
	deps.defaults()
	if deps.FindUserByEmail == nil || deps.NewID == nil || deps.Issue == nil || deps.Send == nil {
		return fail(FailureNotReady, nil)
	}

	email = NormalizeEmail(email)
	now := deps.Now()

	if deps.Allow != nil {
		if err := deps.Allow(ctx, email); err != nil {
			if errors.Is(err, limiters.ErrResetRateLimited) {
				deps.Inc(metrics.PasswordResetThrottled)
				return nil
			}
			return fail(FailureBackend, err)
		}
	}

	user, found, err := deps.FindUserByEmail(ctx, email)
	if err != nil {
		return fail(FailureBackend, err)
	}
	deps.Inc(metrics.PasswordResetRequest)
	if !found || user.Disabled {
		return nil
	}

	id, err := deps.NewID()
	if err != nil {
		return fail(FailureBackend, err)
	}
	plain, secret, err := internal.NewOpaqueToken(id)
	if err != nil {
		return fail(FailureBackend, err)
	}
	record := &stores.PasswordResetToken{
		ID:         id,
		UserID:     user.ID,
		SecretHash: internal.HashSecret(secret),
		CreatedAt:  now,
		ExpiresAt:  now.Add(deps.TTL),
	}
	if err := deps.Issue(ctx, record); err != nil {
		return fail(FailureBackend, err)
	}
	if err := deps.Send(ctx, user.Email, plain, record.ExpiresAt); err != nil {
		return fail(FailureBackend, err)
	}

	deps.Emit(ctx, audit.PasswordResetRequestedEvent{At: now, UserID: user.ID})
	return nil
}

// ResetConfirmDeps captures reset redemption dependencies.
type ResetConfirmDeps struct {
	Observer

	MaxAttempts int

	Consume            func(ctx context.Context, id string, secretHash [32]byte, now time.Time, maxAttempts int) (*stores.PasswordResetToken, error)
	HashPassword       func(string) (string, error)
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error
	FindUserByID       func(context.Context, string) (User, bool, error)
	ClearFailures      func(context.Context, string) error

	RevokeAll RevokeAllDeps
}

// RunConfirmPasswordReset spends token, stores the new password and revokes
// every session of the account. The password is checked against policy
// before the token is spent.
func RunConfirmPasswordReset(ctx context.Context, token, newPassword string, deps ResetConfirmDeps) error {
	deps.defaults()
	if deps.Consume == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return fail(FailureNotReady, nil)
	}

	id, secret, err := internal.DecodeOpaqueToken(token)
	if err != nil {
		deps.Inc(metrics.PasswordResetConfirmFailure)
		return fail(FailureResetNotFound, err)
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return fail(FailurePasswordPolicy, err)
		}
		return fail(FailureBackend, err)
	}

	now := deps.Now()
	record, err := deps.Consume(ctx, id, internal.HashSecret(secret), now, deps.MaxAttempts)
	if err != nil {
		kind := FailureBackend
		switch {
		case errors.Is(err, stores.ErrResetNotFound):
			kind = FailureResetNotFound
		case errors.Is(err, stores.ErrResetExpired):
			kind = FailureResetExpired
		case errors.Is(err, stores.ErrResetMismatch):
			kind = FailureResetMismatch
		}
		if kind != FailureBackend {
			deps.Inc(metrics.PasswordResetConfirmFailure)
		}
		return fail(kind, err)
	}

	if err := deps.UpdatePasswordHash(ctx, record.UserID, hash); err != nil {
		return fail(FailureBackend, err)
	}

	deps.RevokeAll.Observer = deps.Observer
	if _, err := RunRevokeAll(ctx, record.UserID, "", RevokeReasonPasswordReset, deps.RevokeAll); err != nil {
		return err
	}

	if deps.FindUserByID != nil && deps.ClearFailures != nil {
		if user, found, err := deps.FindUserByID(ctx, record.UserID); err == nil && found {
			if err := deps.ClearFailures(ctx, NormalizeEmail(user.Email)); err != nil {
				deps.Warn("authcore: clearing lockout after reset failed", "user_id", record.UserID, "error", err)
			}
		}
	}

	deps.Inc(metrics.PasswordResetConfirmSuccess)
	deps.Emit(ctx, audit.PasswordResetCompletedEvent{At: now, UserID: record.UserID})
	return nil
}
