package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/redis/go-redis/v9"
)

var (
	ErrTwoFactorRateLimited = errors.New("two-factor rate limited")
	ErrTwoFactorUnavailable = errors.New("two-factor limiter unavailable")
)

// TwoFactorLimiter caps failed second-factor attempts per user across all
// pending sign-ins. MaxAttempts 0 disables it.
type TwoFactorLimiter struct {
	window *rate.Window
}

func NewTwoFactorLimiter(client redis.UniversalClient, maxAttempts int, period time.Duration) *TwoFactorLimiter {
	return &TwoFactorLimiter{window: rate.NewWindow(client, "a2fr", maxAttempts, period)}
}

func (l *TwoFactorLimiter) Check(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return mapRateErr(l.window.Check(ctx, userID), ErrTwoFactorRateLimited, ErrTwoFactorUnavailable)
}

func (l *TwoFactorLimiter) RecordFailure(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return mapRateErr(l.window.Hit(ctx, userID), ErrTwoFactorRateLimited, ErrTwoFactorUnavailable)
}

func (l *TwoFactorLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return mapRateErr(l.window.Reset(ctx, userID), ErrTwoFactorRateLimited, ErrTwoFactorUnavailable)
}

func mapRateErr(err, limited, unavailable error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return limited
	default:
		return fmt.Errorf("%w: %v", unavailable, err)
	}
}
