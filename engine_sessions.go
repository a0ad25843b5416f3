package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/session"
)

// RevokeSession ends one session and its refresh chain. Revoking an
// already revoked session succeeds; unknown ids return ErrSessionNotFound.
func (e *Engine) RevokeSession(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return publicError(flows.RunRevokeSession(ctx, sessionID, e.deps.RevokeSession))
}

// RevokeAllSessions ends every session of userID. reason is recorded on
// the emitted AllSessionsRevokedEvent.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID, reason string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	_, err := flows.RunRevokeAll(ctx, userID, "", reason, e.deps.RevokeAll)
	return publicError(err)
}

// ListSessions returns the user's active sessions, oldest first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	all, err := e.sessions.FindByUserID(ctx, userID)
	if err != nil {
		return nil, publicError(err)
	}
	now := e.now()
	active := all[:0]
	for _, s := range all {
		if s.IsActive(now) {
			active = append(active, s)
		}
	}
	return active, nil
}
