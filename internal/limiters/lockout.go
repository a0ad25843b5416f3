package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds the failure policy. A non-positive Threshold disables
// the guard entirely.
type LockoutConfig struct {
	Threshold    int
	Window       time.Duration
	LockDuration time.Duration
}

var ErrLockoutUnavailable = errors.New("lockout backend unavailable")

// recordFailureScript increments the counter, slides its expiry and sets the
// lock flag when the new count is an exact multiple of the threshold.
var recordFailureScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[1])
if count % tonumber(ARGV[2]) == 0 then
	redis.call('SET', KEYS[2], '1', 'EX', ARGV[3])
	return {count, 1}
end
return {count, 0}
`)

// LockoutGuard counts failed credential checks per normalized email.
type LockoutGuard struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

func NewLockoutGuard(client redis.UniversalClient, cfg LockoutConfig) *LockoutGuard {
	return &LockoutGuard{redis: client, config: cfg}
}

func (g *LockoutGuard) enabled() bool {
	return g != nil && g.config.Threshold > 0
}

func (g *LockoutGuard) counterKey(email string) string {
	return "alf:" + EmailDigest(email)
}

func (g *LockoutGuard) flagKey(email string) string {
	return "all:" + EmailDigest(email)
}

func (g *LockoutGuard) IsLocked(ctx context.Context, email string) (bool, error) {
	if !g.enabled() {
		return false, nil
	}

	n, err := g.redis.Exists(ctx, g.flagKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return n > 0, nil
}

// RecordFailure counts one failure and returns the new count. locked is true
// only for the call whose increment crossed the threshold.
func (g *LockoutGuard) RecordFailure(ctx context.Context, email string) (count int, locked bool, err error) {
	if !g.enabled() {
		return 0, false, nil
	}

	out, err := recordFailureScript.Run(
		ctx,
		g.redis,
		[]string{g.counterKey(email), g.flagKey(email)},
		int64(g.config.Window/time.Second),
		g.config.Threshold,
		int64(g.config.LockDuration/time.Second),
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if len(out) != 2 {
		return 0, false, fmt.Errorf("%w: unexpected script reply", ErrLockoutUnavailable)
	}
	return int(out[0]), out[1] == 1, nil
}

// ClearFailures removes both the counter and any active lock.
func (g *LockoutGuard) ClearFailures(ctx context.Context, email string) error {
	if !g.enabled() {
		return nil
	}
	if err := g.redis.Del(ctx, g.counterKey(email), g.flagKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func (g *LockoutGuard) FailureCount(ctx context.Context, email string) (int, error) {
	if !g.enabled() {
		return 0, nil
	}

	count, err := g.redis.Get(ctx, g.counterKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}

// LockDuration is how long a freshly raised lock lasts.
func (g *LockoutGuard) LockDuration() time.Duration {
	if g == nil {
		return 0
	}
	return g.config.LockDuration
}
