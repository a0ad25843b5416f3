package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxRevokeRetries = 4

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

// Store keeps sessions in Redis under "<prefix>:<id>" with a per-user index
// set at "<prefix>:u:<userID>".
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewStore returns a Store namespaced under prefix ("as" when empty).
// Records are kept for retention beyond their expiry.
func NewStore(client redis.UniversalClient, prefix string, retention time.Duration) *Store {
	if prefix == "" {
		prefix = "as"
	}
	if retention < 0 {
		retention = 0
	}
	return &Store{redis: client, prefix: prefix, retention: retention}
}

func (s *Store) key(id string) string {
	return s.prefix + ":" + id
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	ttl := sess.ExpiresAt.Sub(time.Now()) + s.retention
	if ttl < time.Second {
		ttl = time.Second
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		indexAddScript.Eval(ctx, pipe, []string{s.userKey(sess.UserID)}, sess.ID, ttl.Milliseconds())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	sess.ID = id
	return sess, nil
}

// FindByUserID returns every stored session of userID ordered by creation
// time, revoked ones included. Index entries whose record expired are pruned.
func (s *Store) FindByUserID(ctx context.Context, userID string) ([]*Session, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.Get(ctx, s.key(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(ids))
	stale := make([]interface{}, 0)
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			stale = append(stale, ids[i])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		sess, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
		}
		sess.ID = ids[i]
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	slices.SortFunc(sessions, func(a, b *Session) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return sessions, nil
}

func (s *Store) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	key := s.key(id)

	for i := 0; i < maxRevokeRetries; i++ {
		var changed bool

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			sess, err := Decode(data)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
			}
			if !sess.Revoke(now) {
				return nil
			}

			encoded, err := Encode(sess)
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
				return false, ErrSessionNotFound
			case errors.Is(err, ErrSessionCorrupt):
				return false, err
			default:
				return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		return changed, nil
	}

	return false, ErrStoreContention
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID, exceptID string, now time.Time) ([]string, error) {
	sessions, err := s.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	revoked := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		if sess.ID == exceptID || sess.IsRevoked() {
			continue
		}
		changed, err := s.Revoke(ctx, sess.ID, now)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return revoked, err
		}
		if changed {
			revoked = append(revoked, sess.ID)
		}
	}
	return revoked, nil
}
