package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrRedisUnavailable = errors.New("redis unavailable")
	ErrSessionCorrupt   = errors.New("session record corrupt")
	ErrStoreContention  = errors.New("session store contention")
)

// Repository is the session registry contract used by the Engine.
type Repository interface {
	Save(ctx context.Context, s *Session) error
	FindByID(ctx context.Context, id string) (*Session, error)
	FindByUserID(ctx context.Context, userID string) ([]*Session, error)
	// Revoke is idempotent; the boolean reports whether this call changed state.
	Revoke(ctx context.Context, id string, now time.Time) (bool, error)
	// RevokeAllForUser revokes every session of userID except exceptID and
	// returns the ids this call revoked.
	RevokeAllForUser(ctx context.Context, userID, exceptID string, now time.Time) ([]string, error)
}

var _ Repository = (*Store)(nil)
