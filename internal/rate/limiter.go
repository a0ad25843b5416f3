package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript runs INCR and PEXPIRE atomically. Only the first hit arms the expiry.
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// Window allows Limit hits per Period for each identifier. A nil Window or
// a non-positive Limit never limits.
type Window struct {
	redis  redis.UniversalClient
	prefix string
	limit  int64
	period time.Duration
}

func NewWindow(client redis.UniversalClient, prefix string, limit int, period time.Duration) *Window {
	return &Window{redis: client, prefix: prefix, limit: int64(limit), period: period}
}

func (w *Window) enabled() bool {
	return w != nil && w.limit > 0 && w.period > 0
}

func (w *Window) key(id string) string {
	return w.prefix + ":" + id
}

// Hit counts one event and returns ErrRateLimited once the window holds
// more than Limit hits.
func (w *Window) Hit(ctx context.Context, id string) error {
	if !w.enabled() {
		return nil
	}

	count, err := hitScript.Run(ctx, w.redis, []string{w.key(id)}, w.period.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count > w.limit {
		return ErrRateLimited
	}
	return nil
}

// Check reports ErrRateLimited when the window is already full, without counting.
func (w *Window) Check(ctx context.Context, id string) error {
	if !w.enabled() {
		return nil
	}

	count, err := w.redis.Get(ctx, w.key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= w.limit {
		return ErrRateLimited
	}
	return nil
}

func (w *Window) Reset(ctx context.Context, id string) error {
	if !w.enabled() {
		return nil
	}
	if err := w.redis.Del(ctx, w.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
