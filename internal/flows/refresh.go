package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
)

var errSessionInactive = errors.New("session revoked or expired")

// TokenPair is a freshly minted access token with its rotated refresh token.
type TokenPair struct {
	UserID          string
	SessionID       string
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
}

// RefreshDeps captures refresh rotation dependencies.
type RefreshDeps struct {
	Observer

	Grace     time.Duration
	AccessTTL time.Duration

	Ledger       refresh.Ledger
	Sessions     session.Repository
	FindUserByID func(context.Context, string) (User, bool, error)
	CreateAccess func(userID, sessionID string, roles []string) (string, error)
}

// RunRefresh redeems plain and returns its successor. Theft revokes every
// refresh chain and session of the owner before the failure is reported.
func RunRefresh(ctx context.Context, plain string, deps RefreshDeps) (*TokenPair, error) {
	deps.defaults()
	if deps.Ledger == nil || deps.Sessions == nil || deps.FindUserByID == nil || deps.CreateAccess == nil {
		return nil, fail(FailureNotReady, nil)
	}

	id, err := refresh.ParseTokenID(plain)
	if err != nil {
		deps.Inc(metrics.RefreshFailure)
		return nil, fail(FailureRefreshInvalid, err)
	}
	next, err := refresh.NewPlainToken(id)
	if err != nil {
		return nil, fail(FailureBackend, err)
	}

	now := deps.Now()
	outcome, tok, err := deps.Ledger.Redeem(ctx, id, refresh.HashToken(plain), refresh.HashToken(next), now, deps.Grace)
	if err != nil {
		if errors.Is(err, refresh.ErrTokenNotFound) {
			deps.Inc(metrics.RefreshFailure)
			return nil, fail(FailureRefreshInvalid, err)
		}
		return nil, fail(FailureBackend, err)
	}

	switch outcome {
	case refresh.OutcomeRotate, refresh.OutcomeGraceReissue:
	case refresh.OutcomeTheft:
		return nil, handleTheft(ctx, &deps, tok, now)
	case refresh.OutcomeExpired:
		deps.Inc(metrics.RefreshFailure)
		return nil, fail(FailureRefreshExpired, nil)
	default:
		deps.Inc(metrics.RefreshFailure)
		return nil, fail(FailureRefreshInvalid, errors.New(outcome.String()))
	}

	sess, err := deps.Sessions.FindByID(ctx, tok.SessionID)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return nil, fail(FailureBackend, err)
	}
	if sess == nil || !sess.IsActive(now) {
		if err := deps.Ledger.RevokeSession(ctx, tok.SessionID, now); err != nil {
			deps.Warn("authcore: revoking orphaned refresh chain failed", "session_id", tok.SessionID, "error", err)
		}
		deps.Inc(metrics.RefreshFailure)
		return nil, fail(FailureRefreshInvalid, errSessionInactive)
	}

	user, found, err := deps.FindUserByID(ctx, tok.UserID)
	if err != nil {
		return nil, fail(FailureBackend, err)
	}
	if !found || user.Disabled {
		closeSession(ctx, &deps, tok.SessionID, now)
		deps.Inc(metrics.RefreshFailure)
		return nil, fail(FailureRefreshInvalid, nil)
	}

	access, err := deps.CreateAccess(user.ID, tok.SessionID, user.Roles)
	if err != nil {
		return nil, fail(FailureBackend, err)
	}

	grace := outcome == refresh.OutcomeGraceReissue
	if grace {
		deps.Inc(metrics.RefreshGraceReissue)
	}
	deps.Inc(metrics.RefreshSuccess)
	deps.Emit(ctx, audit.RefreshTokenRotatedEvent{
		At:        now,
		UserID:    user.ID,
		SessionID: tok.SessionID,
		Grace:     grace,
	})

	return &TokenPair{
		UserID:          user.ID,
		SessionID:       tok.SessionID,
		AccessToken:     access,
		AccessExpiresAt: now.Add(deps.AccessTTL),
		RefreshToken:    next,
	}, nil
}

// handleTheft widens the response to every chain and session of the owner.
// Cleanup failures are logged; the caller sees theft regardless.
func handleTheft(ctx context.Context, deps *RefreshDeps, tok *refresh.Token, now time.Time) error {
	if _, err := deps.Ledger.RevokeUser(ctx, tok.UserID, now); err != nil {
		deps.Warn("authcore: revoking refresh chains after theft failed", "user_id", tok.UserID, "error", err)
	}
	revoked, err := deps.Sessions.RevokeAllForUser(ctx, tok.UserID, "", now)
	if err != nil {
		deps.Warn("authcore: revoking sessions after theft failed", "user_id", tok.UserID, "error", err)
	}

	deps.Inc(metrics.RefreshTheftDetected)
	deps.Inc(metrics.SessionRevokeAll)
	deps.Emit(ctx, audit.RefreshTokenTheftDetectedEvent{
		At:              now,
		UserID:          tok.UserID,
		SessionID:       tok.SessionID,
		TokenID:         tok.ID,
		RevokedSessions: len(revoked),
	})
	return fail(FailureRefreshTheft, nil)
}

func closeSession(ctx context.Context, deps *RefreshDeps, sessionID string, now time.Time) {
	if _, err := deps.Sessions.Revoke(ctx, sessionID, now); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		deps.Warn("authcore: revoking session failed", "session_id", sessionID, "error", err)
	}
	if err := deps.Ledger.RevokeSession(ctx, sessionID, now); err != nil {
		deps.Warn("authcore: revoking refresh chain failed", "session_id", sessionID, "error", err)
	}
}
