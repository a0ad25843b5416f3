package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/redis/go-redis/v9"
)

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// ResetRequestLimiter throttles password-reset requests per normalized email.
type ResetRequestLimiter struct {
	window *rate.Window
}

func NewResetRequestLimiter(client redis.UniversalClient, maxRequests int, period time.Duration) *ResetRequestLimiter {
	return &ResetRequestLimiter{window: rate.NewWindow(client, "aprq", maxRequests, period)}
}

func (l *ResetRequestLimiter) Allow(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	return mapRateErr(l.window.Hit(ctx, EmailDigest(email)), ErrResetRateLimited, ErrResetRedisUnavailable)
}
