package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
)

var errIssuerNotReady = errors.New("session issuer not configured")

// Issuer creates the session, its refresh chain and the first access token.
type Issuer struct {
	SessionTTL   time.Duration
	RememberTTL  time.Duration
	AccessTTL    time.Duration
	NewID        func() (string, error)
	Sessions     session.Repository
	Ledger       refresh.Ledger
	CreateAccess func(userID, sessionID string, roles []string) (string, error)
}

type IssueRequest struct {
	User       User
	RememberMe bool
	IPAddress  string
	UserAgent  string
	Now        time.Time
}

// Issued holds the plaintext credentials handed back to the caller.
type Issued struct {
	SessionID        string
	SessionExpiresAt time.Time
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
}

func (i *Issuer) ready() bool {
	return i != nil && i.NewID != nil && i.Sessions != nil && i.Ledger != nil && i.CreateAccess != nil
}

// Issue persists a new session bound to req.User. The refresh chain expires
// with the session.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	if !i.ready() {
		return nil, errIssuerNotReady
	}

	ttl := i.SessionTTL
	if req.RememberMe && i.RememberTTL > 0 {
		ttl = i.RememberTTL
	}

	sessionID, err := i.NewID()
	if err != nil {
		return nil, err
	}
	sess := &session.Session{
		ID:         sessionID,
		UserID:     req.User.ID,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		CreatedAt:  req.Now,
		ExpiresAt:  req.Now.Add(ttl),
		RememberMe: req.RememberMe,
	}
	if err := i.Sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	tokenID, err := i.NewID()
	if err != nil {
		return nil, err
	}
	plain, err := refresh.NewPlainToken(tokenID)
	if err != nil {
		return nil, err
	}
	if err := i.Ledger.Issue(ctx, refresh.NewToken(tokenID, sessionID, req.User.ID, plain, sess.ExpiresAt)); err != nil {
		// A session without a refresh chain is unusable; close it.
		_, _ = i.Sessions.Revoke(ctx, sessionID, req.Now)
		return nil, err
	}

	access, err := i.CreateAccess(req.User.ID, sessionID, req.User.Roles)
	if err != nil {
		return nil, err
	}

	return &Issued{
		SessionID:        sessionID,
		SessionExpiresAt: sess.ExpiresAt,
		AccessToken:      access,
		AccessExpiresAt:  req.Now.Add(i.AccessTTL),
		RefreshToken:     plain,
	}, nil
}
