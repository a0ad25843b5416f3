package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/flows"
)

// ChangePassword replaces the password of userID after checking
// oldPassword. Every other session of the user is revoked;
// currentSessionID survives.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentSessionID, oldPassword, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return publicError(flows.RunChangePassword(ctx, userID, currentSessionID, oldPassword, newPassword, e.deps.Account))
}

// ChangeEmail stores newEmail through the UserProvider and revokes every
// other session of the user.
func (e *Engine) ChangeEmail(ctx context.Context, userID, currentSessionID, newEmail string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return publicError(flows.RunChangeEmail(ctx, userID, currentSessionID, newEmail, e.deps.Account))
}

// GenerateRecoveryCodes replaces the user's recovery codes. The returned
// plaintext codes cannot be retrieved again.
func (e *Engine) GenerateRecoveryCodes(ctx context.Context, userID string) ([]string, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	codes, err := flows.RunGenerateRecoveryCodes(ctx, userID, e.deps.Account)
	if err != nil {
		return nil, publicError(err)
	}
	return codes, nil
}

func (e *Engine) RemainingRecoveryCodes(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	n, err := e.codes.Remaining(ctx, userID)
	if err != nil {
		return 0, publicError(err)
	}
	return n, nil
}
