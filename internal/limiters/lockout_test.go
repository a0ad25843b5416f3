package limiters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (redis.UniversalClient, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func defaultLockout() LockoutConfig {
	return LockoutConfig{Threshold: 20, Window: time.Hour, LockDuration: 15 * time.Minute}
}

func TestLockoutLocksExactlyAtThreshold(t *testing.T) {
	rdb, _ := newRedis(t)
	g := NewLockoutGuard(rdb, defaultLockout())
	ctx := context.Background()

	for i := 1; i <= 19; i++ {
		count, locked, err := g.RecordFailure(ctx, "a@example.com")
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if locked || count != i {
			t.Fatalf("failure %d: count=%d locked=%v", i, count, locked)
		}
	}
	if locked, _ := g.IsLocked(ctx, "a@example.com"); locked {
		t.Fatal("must not be locked before threshold")
	}

	count, locked, err := g.RecordFailure(ctx, "a@example.com")
	if err != nil || !locked || count != 20 {
		t.Fatalf("20th failure: count=%d locked=%v err=%v", count, locked, err)
	}
	if locked, _ := g.IsLocked(ctx, "a@example.com"); !locked {
		t.Fatal("expected lock flag after threshold")
	}

	_, locked, _ = g.RecordFailure(ctx, "a@example.com")
	if locked {
		t.Fatal("21st failure must not report a new crossing")
	}
}

func TestLockoutTTLs(t *testing.T) {
	rdb, mr := newRedis(t)
	g := NewLockoutGuard(rdb, defaultLockout())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if _, _, err := g.RecordFailure(ctx, "b@example.com"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	digest := EmailDigest("b@example.com")
	if ttl := mr.TTL("alf:" + digest); ttl != time.Hour {
		t.Fatalf("counter ttl = %v, want 1h", ttl)
	}
	if ttl := mr.TTL("all:" + digest); ttl != 15*time.Minute {
		t.Fatalf("flag ttl = %v, want 15m", ttl)
	}

	mr.FastForward(15*time.Minute + time.Second)
	if locked, _ := g.IsLocked(ctx, "b@example.com"); locked {
		t.Fatal("lock must lapse after its duration")
	}
	if count, _ := g.FailureCount(ctx, "b@example.com"); count != 20 {
		t.Fatalf("counter must outlive the lock, got %d", count)
	}
}

func TestLockoutConcurrentFailuresCrossOnce(t *testing.T) {
	rdb, _ := newRedis(t)
	g := NewLockoutGuard(rdb, defaultLockout())
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		crossed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, locked, err := g.RecordFailure(ctx, "c@example.com")
			if err != nil {
				t.Errorf("record: %v", err)
				return
			}
			if locked {
				mu.Lock()
				crossed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if crossed != 1 {
		t.Fatalf("expected exactly one crossing, got %d", crossed)
	}
	if count, _ := g.FailureCount(ctx, "c@example.com"); count != 20 {
		t.Fatalf("expected no lost updates, got %d", count)
	}
}

func TestLockoutClearFailures(t *testing.T) {
	rdb, _ := newRedis(t)
	g := NewLockoutGuard(rdb, LockoutConfig{Threshold: 2, Window: time.Hour, LockDuration: time.Minute})
	ctx := context.Background()

	_, _, _ = g.RecordFailure(ctx, "d@example.com")
	_, _, _ = g.RecordFailure(ctx, "d@example.com")
	if err := g.ClearFailures(ctx, "d@example.com"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if locked, _ := g.IsLocked(ctx, "d@example.com"); locked {
		t.Fatal("clear must lift the lock")
	}
	if count, _ := g.FailureCount(ctx, "d@example.com"); count != 0 {
		t.Fatalf("clear must reset counter, got %d", count)
	}
}

func TestResetRequestLimiter(t *testing.T) {
	rdb, _ := newRedis(t)
	l := NewResetRequestLimiter(rdb, 2, time.Minute)
	ctx := context.Background()

	if err := l.Allow(ctx, "e@example.com"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := l.Allow(ctx, "e@example.com"); err != nil {
		t.Fatalf("second: %v", err)
	}
	if err := l.Allow(ctx, "e@example.com"); err != ErrResetRateLimited {
		t.Fatalf("expected ErrResetRateLimited, got %v", err)
	}
}
