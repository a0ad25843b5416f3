package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const resetRecordVersion1 = 1

var (
	ErrResetNotFound         = errors.New("reset token not found")
	ErrResetExpired          = errors.New("reset token expired")
	ErrResetMismatch         = errors.New("reset token mismatch")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// PasswordResetToken is a single-use, time-bounded reset capability. Only
// the SHA-256 of the secret half of the plaintext token is stored.
type PasswordResetToken struct {
	ID         string
	UserID     string
	SecretHash [32]byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Used       bool
	Attempts   uint16
}

// IsExpired is strict: the token is still usable at exactly ExpiresAt.
func (t *PasswordResetToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// MarkAsUsed reports whether the token changed.
func (t *PasswordResetToken) MarkAsUsed() bool {
	if t.Used {
		return false
	}
	t.Used = true
	return true
}

func (t *PasswordResetToken) IsValid(now time.Time) bool {
	return !t.Used && !t.IsExpired(now)
}

func (t *PasswordResetToken) MatchesSecret(secretHash [32]byte) bool {
	return subtle.ConstantTimeCompare(t.SecretHash[:], secretHash[:]) == 1
}

// PasswordResetStore keeps at most one live reset token per user. The
// record lives at "<prefix>:<id>" and the user pointer at "<prefix>:u:<userID>".
type PasswordResetStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewPasswordResetStore(client redis.UniversalClient, prefix string, retention time.Duration) *PasswordResetStore {
	if prefix == "" {
		prefix = "apr"
	}
	return &PasswordResetStore{redis: client, prefix: prefix, retention: retention}
}

func (s *PasswordResetStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *PasswordResetStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Issue stores t and invalidates whatever token the user held before. The
// previous record is deleted in the same transaction that installs t.
func (s *PasswordResetStore) Issue(ctx context.Context, t *PasswordResetToken) error {
	data, err := encodeReset(t)
	if err != nil {
		return err
	}
	pointer := s.userKey(t.UserID)
	recordTTL := ttlUntil(t.ExpiresAt, t.CreatedAt, s.retention)
	pointerTTL := ttlUntil(t.ExpiresAt, t.CreatedAt, 0)

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			previous, err := tx.Get(ctx, pointer).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if previous != "" && previous != t.ID {
					pipe.Del(ctx, s.key(previous))
				}
				pipe.Set(ctx, s.key(t.ID), data, recordTTL)
				pipe.Set(ctx, pointer, t.ID, pointerTTL)
				return nil
			})
			return err
		}, pointer)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
		}
		return nil
	}

	return fmt.Errorf("%w: contention", ErrResetRedisUnavailable)
}

func (s *PasswordResetStore) FindByID(ctx context.Context, id string) (*PasswordResetToken, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	t, err := decodeReset(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	t.ID = id
	return t, nil
}

// FindByUser returns the user's current token, used or not.
func (s *PasswordResetStore) FindByUser(ctx context.Context, userID string) (*PasswordResetToken, error) {
	id, err := s.redis.Get(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return s.FindByID(ctx, id)
}

// Consume spends the token identified by id if secretHash matches. The
// secret is checked before expiry so a caller without it learns nothing
// about the token's age. A mismatch counts an attempt and deletes the
// record at maxAttempts (0 means unlimited).
func (s *PasswordResetStore) Consume(
	ctx context.Context,
	id string,
	secretHash [32]byte,
	now time.Time,
	maxAttempts int,
) (*PasswordResetToken, error) {
	key := s.key(id)

	for i := 0; i < maxTxRetries; i++ {
		var consumed *PasswordResetToken

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			t, err := decodeReset(data)
			if err != nil {
				return err
			}
			t.ID = id
			if t.Used {
				return ErrResetNotFound
			}

			if !t.MatchesSecret(secretHash) {
				t.Attempts++
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					if maxAttempts > 0 && int(t.Attempts) >= maxAttempts {
						pipe.Del(ctx, key)
						return nil
					}
					updated, err := encodeReset(t)
					if err != nil {
						return err
					}
					pipe.Set(ctx, key, updated, redis.KeepTTL)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrResetMismatch
			}

			if t.IsExpired(now) {
				return ErrResetExpired
			}

			t.MarkAsUsed()
			updated, err := encodeReset(t)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				pipe.Del(ctx, s.userKey(t.UserID))
				return nil
			})
			if err != nil {
				return err
			}
			consumed = t
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrResetNotFound
			case errors.Is(err, ErrResetNotFound), errors.Is(err, ErrResetExpired), errors.Is(err, ErrResetMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
			}
		}
		return consumed, nil
	}

	return nil, fmt.Errorf("%w: contention", ErrResetRedisUnavailable)
}

func encodeReset(t *PasswordResetToken) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetRecordVersion1)
	if err := writeString(&buf, t.UserID); err != nil {
		return nil, err
	}
	buf.Write(t.SecretHash[:])
	if err := writeTime(&buf, t.CreatedAt); err != nil {
		return nil, err
	}
	if err := writeTime(&buf, t.ExpiresAt); err != nil {
		return nil, err
	}

	var used byte
	if t.Used {
		used = 1
	}
	buf.WriteByte(used)
	if err := binary.Write(&buf, binary.BigEndian, t.Attempts); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeReset(data []byte) (*PasswordResetToken, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersion1 {
		return nil, errors.New("invalid reset record version")
	}

	t := &PasswordResetToken{}
	if t.UserID, err = readString(r); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, t.SecretHash[:]); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = readTime(r); err != nil {
		return nil, err
	}
	if t.ExpiresAt, err = readTime(r); err != nil {
		return nil, err
	}
	used, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	t.Used = used == 1
	if err := binary.Read(r, binary.BigEndian, &t.Attempts); err != nil {
		return nil, err
	}

	return t, nil
}
