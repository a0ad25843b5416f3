package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
)

// RefreshToken spends a refresh token and returns a new access token with
// its rotated successor.
//
// A token that was already rotated is honoured once more within the grace
// period, so a client that lost the response can retry. Any later replay is
// treated as theft: every session and refresh chain of the owner is revoked
// and ErrRefreshTheftDetected (which matches ErrRefreshInvalid) is returned.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricRefreshLatency, start)

	pair, err := flows.RunRefresh(ctx, refreshToken, e.deps.Refresh)
	if err != nil {
		return nil, publicError(err)
	}
	return &TokenPair{
		UserID:          pair.UserID,
		SessionID:       pair.SessionID,
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt,
		RefreshToken:    pair.RefreshToken,
	}, nil
}

// ValidateAccessToken checks the token signature and expiry and, unless
// Session.SkipValidationLookup is set, that its session is still active.
func (e *Engine) ValidateAccessToken(ctx context.Context, token string) (*AccessIdentity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricValidateLatency, start)

	res, err := flows.RunValidateAccess(ctx, token, e.deps.Validate)
	if err != nil {
		return nil, publicError(err)
	}
	return &AccessIdentity{
		UserID:    res.UserID,
		SessionID: res.SessionID,
		Roles:     res.Roles,
		ExpiresAt: res.ExpiresAt,
	}, nil
}
