package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// ValidateResult is the identity behind an accepted access token.
type ValidateResult struct {
	UserID    string
	SessionID string
	Roles     []string
	ExpiresAt time.Time
}

// ValidateDeps captures access token validation dependencies.
type ValidateDeps struct {
	Observer

	// SkipSessionCheck accepts any well-signed, unexpired token without
	// consulting the session repository.
	SkipSessionCheck bool

	ParseAccess func(string) (*jwt.AccessClaims, error)
	Sessions    session.Repository
}

// RunValidateAccess verifies the token signature and, unless disabled, that
// the session it names is still active.
func RunValidateAccess(ctx context.Context, token string, deps ValidateDeps) (*ValidateResult, error) {
	deps.defaults()
	if deps.ParseAccess == nil || (!deps.SkipSessionCheck && deps.Sessions == nil) {
		return nil, fail(FailureNotReady, nil)
	}

	claims, err := deps.ParseAccess(token)
	if err != nil {
		deps.Inc(metrics.ValidateFailure)
		return nil, fail(FailureAccessInvalid, err)
	}

	if !deps.SkipSessionCheck {
		sess, err := deps.Sessions.FindByID(ctx, claims.SID)
		if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			return nil, fail(FailureBackend, err)
		}
		if sess == nil || sess.UserID != claims.Subject || !sess.IsActive(deps.Now()) {
			deps.Inc(metrics.ValidateFailure)
			return nil, fail(FailureAccessInvalid, errSessionInactive)
		}
	}

	result := &ValidateResult{
		UserID:    claims.Subject,
		SessionID: claims.SID,
		Roles:     claims.Roles,
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	deps.Inc(metrics.ValidateSuccess)
	return result, nil
}
