package stores

import (
	"context"
	"crypto/sha256"
	"errors"
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

func TestPendingTwoFactorLifecycle(t *testing.T) {
	rdb, mr := newRedis(t)
	s := NewPendingTwoFactorStore(rdb, "")
	ctx := context.Background()
	now := time.Now()

	err := s.Create(ctx, &PendingTwoFactor{
		ID:         "p1",
		UserID:     "u1",
		CreatedAt:  now,
		ExpiresAt:  now.Add(5 * time.Minute),
		RememberMe: true,
		IPAddress:  "198.51.100.1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ttl := mr.TTL("a2f:p1"); ttl != 5*time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	p, err := s.Get(ctx, "p1", now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.UserID != "u1" || !p.RememberMe || p.IPAddress != "198.51.100.1" {
		t.Fatalf("unexpected record: %+v", p)
	}

	if _, err := s.Get(ctx, "p1", now.Add(5*time.Minute+time.Millisecond)); !errors.Is(err, ErrPendingExpired) {
		t.Fatalf("expected ErrPendingExpired, got %v", err)
	}
	if _, err := s.Get(ctx, "p1", now); !errors.Is(err, ErrPendingNotFound) {
		t.Fatalf("expired record must be removed, got %v", err)
	}
}

func TestPendingTwoFactorDeleteOnce(t *testing.T) {
	rdb, _ := newRedis(t)
	s := NewPendingTwoFactorStore(rdb, "")
	ctx := context.Background()
	now := time.Now()
	_ = s.Create(ctx, &PendingTwoFactor{ID: "p1", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Minute)})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Delete(ctx, "p1")
			if err != nil {
				t.Errorf("delete: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one consumer, got %d", wins)
	}
}

func TestPendingTwoFactorRecordFailure(t *testing.T) {
	rdb, _ := newRedis(t)
	s := NewPendingTwoFactorStore(rdb, "")
	ctx := context.Background()
	now := time.Now()
	_ = s.Create(ctx, &PendingTwoFactor{ID: "p1", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Minute)})

	for i := 0; i < 2; i++ {
		exceeded, err := s.RecordFailure(ctx, "p1", 3, now)
		if err != nil || exceeded {
			t.Fatalf("failure %d: exceeded=%v err=%v", i, exceeded, err)
		}
	}
	exceeded, err := s.RecordFailure(ctx, "p1", 3, now)
	if err != nil || !exceeded {
		t.Fatalf("third failure: exceeded=%v err=%v", exceeded, err)
	}
	if _, err := s.Get(ctx, "p1", now); !errors.Is(err, ErrPendingNotFound) {
		t.Fatalf("exhausted record must be gone, got %v", err)
	}
}

func TestPendingTwoFactorUnlimitedAttempts(t *testing.T) {
	rdb, _ := newRedis(t)
	s := NewPendingTwoFactorStore(rdb, "")
	ctx := context.Background()
	now := time.Now()
	_ = s.Create(ctx, &PendingTwoFactor{ID: "p1", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Minute)})

	for i := 0; i < 10; i++ {
		if exceeded, err := s.RecordFailure(ctx, "p1", 0, now); err != nil || exceeded {
			t.Fatalf("failure %d: exceeded=%v err=%v", i, exceeded, err)
		}
	}
	p, err := s.Get(ctx, "p1", now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Attempts != 10 {
		t.Fatalf("attempts = %d", p.Attempts)
	}
}

func issueReset(t *testing.T, s *PasswordResetStore, id, userID string, secret string, now time.Time, ttl time.Duration) [32]byte {
	t.Helper()
	h := sha256.Sum256([]byte(secret))
	err := s.Issue(context.Background(), &PasswordResetToken{
		ID:         id,
		UserID:     userID,
		SecretHash: h,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	})
	if err != nil {
		t.Fatalf("issue %s: %v", id, err)
	}
	return h
}

func TestPasswordResetSingleUse(t *testing.T) {
	rdb, _ := newRedis(t)
	s := NewPasswordResetStore(rdb, "", time.Hour)
	ctx := context.Background()
	now := time.Now()
	h := issueReset(t, s, "r1", "u1", "secret-1", now, time.Hour)

	tok, err := s.Consume(ctx, "r1", h, now, 5)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if tok.UserID != "u1" || !tok.Used {
		t.Fatalf("unexpected token: %+v", tok)
	}
	if _, err := s.Consume(ctx, "r1", h, now, 5); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("second consume must fail with ErrResetNotFound, got %v", err)
	}
	if _, err := s.FindByUser(ctx, "u1"); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("pointer must be cleared after use, got %v", err)
	}
}

func TestPasswordResetSecondIssueInvalidatesFirst(t *testing.T) {
	rdb, _ := newRedis(t)
	s := NewPasswordResetStore(rdb, "", time.Hour)
	ctx := context.Background()
	now := time.Now()
	first := issueReset(t, s, "r1", "u1", "secret-1", now, time.Hour)
	second := issueReset(t, s, "r2", "u1", "secret-2", now, time.Hour)

	if _, err := s.Consume(ctx, "r1", first, now, 5); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("first token must be dead, got %v", err)
	}
	current, err := s.FindByUser(ctx, "u1")
	if err != nil || current.ID != "r2" {
		t.Fatalf("expected r2 as current, got %+v err=%v", current, err)
	}
	if _, err := s.Consume(ctx, "r2", second, now, 5); err != nil {
		t.Fatalf("second token must work: %v", err)
	}
}

func TestPasswordResetExpiryBoundary(t *testing.T) {
	rdb, _ := newRedis(t)
	s := NewPasswordResetStore(rdb, "", time.Hour)
	ctx := context.Background()
	now := time.Now()
	h := issueReset(t, s, "r1", "u1", "secret-1", now, time.Second)

	tok, _ := s.FindByID(ctx, "r1")
	if tok.IsExpired(now.Add(500 * time.Millisecond)) {
		t.Fatal("token must be valid before expiry")
	}
	if !tok.IsExpired(now.Add(2 * time.Second)) {
		t.Fatal("token must be expired after expiry")
	}

	if _, err := s.Consume(ctx, "r1", h, now.Add(2*time.Second), 5); !errors.Is(err, ErrResetExpired) {
		t.Fatalf("expected ErrResetExpired, got %v", err)
	}
}

func TestPasswordResetMismatchBurnsAttempts(t *testing.T) {
	rdb, _ := newRedis(t)
	s := NewPasswordResetStore(rdb, "", time.Hour)
	ctx := context.Background()
	now := time.Now()
	h := issueReset(t, s, "r1", "u1", "secret-1", now, time.Hour)
	wrong := sha256.Sum256([]byte("nope"))

	for i := 0; i < 2; i++ {
		if _, err := s.Consume(ctx, "r1", wrong, now, 2); !errors.Is(err, ErrResetMismatch) {
			t.Fatalf("attempt %d: expected ErrResetMismatch, got %v", i, err)
		}
	}
	if _, err := s.Consume(ctx, "r1", h, now, 2); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("record must be deleted after max attempts, got %v", err)
	}
}

func TestRecoveryCodeConsumedOnce(t *testing.T) {
	rdb, _ := newRedis(t)
	s := NewRecoveryCodeStore(rdb, "")
	ctx := context.Background()

	code, err := GenerateRecoveryCode(10)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	err = s.Replace(ctx, "u1", []*RecoveryCode{{ID: "c1", UserID: "u1", CodeHash: HashRecoveryCode("u1", code)}})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	codes, err := s.List(ctx, "u1")
	if err != nil || len(codes) != 1 {
		t.Fatalf("list: %v %v", codes, err)
	}
	if !codes[0].MatchesCode(code) {
		t.Fatal("expected code to match")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkUsed(ctx, "u1", "c1", time.Now())
			if err != nil {
				t.Errorf("mark used: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}

	remaining, err := s.Remaining(ctx, "u1")
	if err != nil || remaining != 0 {
		t.Fatalf("remaining = %d err=%v", remaining, err)
	}
	if _, err := s.MarkUsed(ctx, "u1", "missing", time.Now()); !errors.Is(err, ErrRecoveryCodeNotFound) {
		t.Fatalf("expected ErrRecoveryCodeNotFound, got %v", err)
	}
}

func TestRecoveryCodeCanonicalForm(t *testing.T) {
	c := &RecoveryCode{UserID: "u1", CodeHash: HashRecoveryCode("u1", "ABCDE-FGH23")}
	if !c.MatchesCode("abcde fgh23") {
		t.Fatal("expected case and separator insensitive match")
	}
	if c.MatchesCode("ABCDE-FGH24") {
		t.Fatal("different code must not match")
	}

	other := &RecoveryCode{UserID: "u2", CodeHash: HashRecoveryCode("u2", "ABCDE-FGH23")}
	if other.CodeHash == c.CodeHash {
		t.Fatal("same code for different users must hash differently")
	}
}
