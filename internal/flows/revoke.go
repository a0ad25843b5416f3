package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
)

// Reasons recorded on AllSessionsRevokedEvent by the engine's own callers.
const (
	RevokeReasonPasswordChanged = "password_changed"
	RevokeReasonEmailChanged    = "email_changed"
	RevokeReasonPasswordReset   = "password_reset"
)

type RevokeAllDeps struct {
	Observer

	Sessions session.Repository
	Ledger   refresh.Ledger
}

// RunRevokeAll revokes every session of userID except exceptID, together
// with each revoked session's refresh chain. It returns the revoked ids.
func RunRevokeAll(ctx context.Context, userID, exceptID, reason string, deps RevokeAllDeps) ([]string, error) {
	deps.defaults()
	if deps.Sessions == nil || deps.Ledger == nil {
		return nil, fail(FailureNotReady, nil)
	}

	now := deps.Now()
	revoked, err := deps.Sessions.RevokeAllForUser(ctx, userID, exceptID, now)
	// Chains of sessions revoked before a partial failure still go.
	for _, id := range revoked {
		if rerr := deps.Ledger.RevokeSession(ctx, id, now); rerr != nil {
			if err == nil {
				err = rerr
			}
			deps.Warn("authcore: revoking refresh chain failed", "session_id", id, "error", rerr)
		}
	}
	if err != nil {
		return revoked, fail(FailureBackend, err)
	}

	deps.Inc(metrics.SessionRevokeAll)
	deps.Emit(ctx, audit.AllSessionsRevokedEvent{
		At:              now,
		UserID:          userID,
		Reason:          reason,
		ExceptSessionID: exceptID,
		Count:           len(revoked),
	})
	return revoked, nil
}

type RevokeSessionDeps struct {
	Observer

	Sessions session.Repository
	Ledger   refresh.Ledger
}

// RunRevokeSession revokes one session and its refresh chain. Revoking an
// already revoked session succeeds without a second event.
func RunRevokeSession(ctx context.Context, sessionID string, deps RevokeSessionDeps) error {
	deps.defaults()
	if deps.Sessions == nil || deps.Ledger == nil {
		return fail(FailureNotReady, nil)
	}

	now := deps.Now()
	sess, err := deps.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return fail(FailureSessionNotFound, err)
		}
		return fail(FailureBackend, err)
	}

	changed, err := deps.Sessions.Revoke(ctx, sessionID, now)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return fail(FailureSessionNotFound, err)
		}
		return fail(FailureBackend, err)
	}
	if err := deps.Ledger.RevokeSession(ctx, sessionID, now); err != nil {
		return fail(FailureBackend, err)
	}

	if changed {
		deps.Inc(metrics.SessionRevoked)
		deps.Emit(ctx, audit.SessionRevokedEvent{At: now, UserID: sess.UserID, SessionID: sessionID})
	}
	return nil
}
