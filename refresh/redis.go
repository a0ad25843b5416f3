package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxRedeemRetries = 4

// indexAddScript adds a member to a user index set and raises the set's
// expiry to at least ARGV[2] milliseconds. It never shortens it.
var indexAddScript = redis.NewScript(`
redis.call('SADD', KEYS[1], ARGV[1])
local ttl = tonumber(ARGV[2])
if redis.call('PTTL', KEYS[1]) < ttl then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// RedisLedger stores refresh records as versioned binary blobs. Redeem and
// revocation run under WATCH/MULTI so concurrent callers serialize per record.
type RedisLedger struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisLedger returns a ledger namespaced under prefix ("art" when empty).
// Records outlive their expiry by retention so late replays are still
// classified instead of looking unknown.
func NewRedisLedger(client redis.UniversalClient, prefix string, retention time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = "art"
	}
	if retention < 0 {
		retention = 0
	}
	return &RedisLedger{redis: client, prefix: prefix, retention: retention}
}

func (l *RedisLedger) key(id string) string {
	return l.prefix + ":" + id
}

func (l *RedisLedger) sessionKey(sessionID string) string {
	return l.prefix + ":s:" + sessionID
}

func (l *RedisLedger) userKey(userID string) string {
	return l.prefix + ":u:" + userID
}

func (l *RedisLedger) ttl(t *Token, now time.Time) time.Duration {
	ttl := t.ExpiresAt.Sub(now) + l.retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// Issue stores a new record together with its session pointer and user index.
func (l *RedisLedger) Issue(ctx context.Context, t *Token) error {
	data, err := encodeToken(t)
	if err != nil {
		return err
	}

	ttl := l.ttl(t, time.Now())
	_, err = l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, l.key(t.ID), data, ttl)
		pipe.Set(ctx, l.sessionKey(t.SessionID), t.ID, ttl)
		indexAddScript.Eval(ctx, pipe, []string{l.userKey(t.UserID)}, t.ID, ttl.Milliseconds())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// Redeem classifies presented against the stored record and applies the
// resulting transition. A record mutated by a concurrent Redeem causes a
// retry, so the loser observes the winner's rotation.
func (l *RedisLedger) Redeem(
	ctx context.Context,
	id string,
	presented, next [32]byte,
	now time.Time,
	grace time.Duration,
) (Outcome, *Token, error) {
	key := l.key(id)

	for i := 0; i < maxRedeemRetries; i++ {
		var (
			outcome Outcome
			record  *Token
		)

		err := l.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			t, err := decodeToken(data)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
			}

			outcome = Decide(t, presented, now, grace)
			record = t
			if !Apply(t, outcome, next, now) {
				return nil
			}

			encoded, err := encodeToken(t)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, redis.KeepTTL)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return OutcomeUnknown, nil, ErrTokenNotFound
			case errors.Is(err, ErrCorruptRecord):
				return OutcomeUnknown, nil, err
			default:
				return OutcomeUnknown, nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
			}
		}

		return outcome, record, nil
	}

	return OutcomeUnknown, nil, ErrLedgerContention
}

func (l *RedisLedger) FindByID(ctx context.Context, id string) (*Token, error) {
	data, err := l.redis.Get(ctx, l.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	t, err := decodeToken(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return t, nil
}

func (l *RedisLedger) FindBySession(ctx context.Context, sessionID string) (*Token, error) {
	id, err := l.redis.Get(ctx, l.sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return l.FindByID(ctx, id)
}

// RevokeSession revokes the chain bound to sessionID. Missing chains are not an error.
func (l *RedisLedger) RevokeSession(ctx context.Context, sessionID string, now time.Time) error {
	id, err := l.redis.Get(ctx, l.sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	if _, err := l.revoke(ctx, id, now); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return err
	}
	return nil
}

// RevokeUser revokes every chain indexed for userID and returns how many
// records changed state. Index entries whose record is gone are pruned.
func (l *RedisLedger) RevokeUser(ctx context.Context, userID string, now time.Time) (int, error) {
	userKey := l.userKey(userID)
	ids, err := l.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	revoked := 0
	stale := make([]interface{}, 0)
	for _, id := range ids {
		changed, err := l.revoke(ctx, id, now)
		if errors.Is(err, ErrTokenNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return revoked, err
		}
		if changed {
			revoked++
		}
	}

	if len(stale) > 0 {
		if err := l.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
	}

	return revoked, nil
}

func (l *RedisLedger) revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	key := l.key(id)

	for i := 0; i < maxRedeemRetries; i++ {
		var changed bool

		err := l.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			t, err := decodeToken(data)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
			}
			if !t.Revoke(now) {
				return nil
			}

			encoded, err := encodeToken(t)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, redis.KeepTTL)
				return nil
			})
			if err == nil {
				changed = true
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return false, ErrTokenNotFound
			case errors.Is(err, ErrCorruptRecord):
				return false, err
			default:
				return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
			}
		}
		return changed, nil
	}

	return false, ErrLedgerContention
}
