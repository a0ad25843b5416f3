package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/flows"
)

// RequestPasswordReset mails a single-use reset token when email belongs
// to an active account. It returns nil for unknown, disabled and throttled
// addresses alike, so the response reveals nothing about the account. A
// newer token replaces any earlier one.
//
// Backend failures are logged and also reported as nil.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	err := flows.RunRequestPasswordReset(ctx, email, e.deps.ResetRequest)
	if err == nil {
		return nil
	}
	if flows.KindOf(err) == flows.FailureNotReady {
		return ErrEngineNotReady
	}
	e.warn("authcore: password reset request failed", "error", err)
	return nil
}

// ConfirmPasswordReset spends token and sets newPassword. Every session of
// the account is revoked and its lockout cleared. A password outside the
// accepted length returns ErrPasswordPolicy and leaves the token usable.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return publicError(flows.RunConfirmPasswordReset(ctx, token, newPassword, e.deps.ResetConfirm))
}
