package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTokenNotFound     = errors.New("refresh token not found")
	ErrMalformedToken    = errors.New("malformed refresh token")
	ErrLedgerContention  = errors.New("refresh ledger contention")
	ErrLedgerUnavailable = errors.New("refresh ledger unavailable")
	ErrCorruptRecord     = errors.New("refresh token record corrupt")
)

// Ledger persists refresh token records. Redeem must run Decide and Apply
// atomically with respect to other Redeem calls for the same id.
type Ledger interface {
	Issue(ctx context.Context, t *Token) error
	Redeem(ctx context.Context, id string, presented, next [32]byte, now time.Time, grace time.Duration) (Outcome, *Token, error)
	FindByID(ctx context.Context, id string) (*Token, error)
	FindBySession(ctx context.Context, sessionID string) (*Token, error)
	RevokeSession(ctx context.Context, sessionID string, now time.Time) error
	RevokeUser(ctx context.Context, userID string, now time.Time) (int, error)
}

var _ Ledger = (*RedisLedger)(nil)
