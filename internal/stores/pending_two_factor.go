package stores

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingRecordVersion1 = 1

var (
	ErrPendingNotFound    = errors.New("pending two-factor not found")
	ErrPendingExpired     = errors.New("pending two-factor expired")
	ErrPendingUnavailable = errors.New("pending two-factor backend unavailable")
)

// PendingTwoFactor bridges a successful password check and the second
// factor. It is consumed or left to expire; it is never revoked.
type PendingTwoFactor struct {
	ID         string
	UserID     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RememberMe bool
	IPAddress  string
	UserAgent  string
	Attempts   uint16
}

func (p *PendingTwoFactor) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

type PendingTwoFactorStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPendingTwoFactorStore(client redis.UniversalClient, prefix string) *PendingTwoFactorStore {
	if prefix == "" {
		prefix = "a2f"
	}
	return &PendingTwoFactorStore{redis: client, prefix: prefix}
}

func (s *PendingTwoFactorStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *PendingTwoFactorStore) Create(ctx context.Context, p *PendingTwoFactor) error {
	data, err := encodePending(p)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(p.ID), data, ttlUntil(p.ExpiresAt, p.CreatedAt, 0)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return nil
}

// Get returns the pending record. A record past ExpiresAt is removed and
// reported as ErrPendingExpired even if Redis has not evicted it yet.
func (s *PendingTwoFactorStore) Get(ctx context.Context, id string, now time.Time) (*PendingTwoFactor, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}

	p, err := decodePending(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	p.ID = id
	if p.IsExpired(now) {
		_, _ = s.redis.Del(ctx, s.key(id)).Result()
		return nil, ErrPendingExpired
	}
	return p, nil
}

// Delete consumes the record. false means another caller consumed it first.
func (s *PendingTwoFactorStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return n > 0, nil
}

// RecordFailure bumps the attempt counter and deletes the record once
// maxAttempts is reached, reporting exceeded. maxAttempts 0 never deletes.
func (s *PendingTwoFactorStore) RecordFailure(ctx context.Context, id string, maxAttempts int, now time.Time) (bool, error) {
	key := s.key(id)

	for i := 0; i < maxTxRetries; i++ {
		var exceeded bool

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			p, err := decodePending(data)
			if err != nil {
				return err
			}
			if p.IsExpired(now) {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrPendingExpired
			}

			p.Attempts++
			if maxAttempts > 0 && int(p.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodePending(p)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
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
				return false, ErrPendingNotFound
			case errors.Is(err, ErrPendingExpired):
				return false, err
			default:
				return false, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
			}
		}
		return exceeded, nil
	}

	return false, fmt.Errorf("%w: contention", ErrPendingUnavailable)
}

func encodePending(p *PendingTwoFactor) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(pendingRecordVersion1)

	for _, s := range []string{p.UserID, p.IPAddress, p.UserAgent} {
		if err := writeString(&buf, s); err != nil {
			return nil, err
		}
	}
	for _, t := range []time.Time{p.CreatedAt, p.ExpiresAt} {
		if err := writeTime(&buf, t); err != nil {
			return nil, err
		}
	}

	var remember byte
	if p.RememberMe {
		remember = 1
	}
	buf.WriteByte(remember)
	buf.WriteByte(byte(p.Attempts >> 8))
	buf.WriteByte(byte(p.Attempts))

	return buf.Bytes(), nil
}

func decodePending(data []byte) (*PendingTwoFactor, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingRecordVersion1 {
		return nil, errors.New("invalid pending two-factor version")
	}

	p := &PendingTwoFactor{}
	if p.UserID, err = readString(r); err != nil {
		return nil, err
	}
	if p.IPAddress, err = readString(r); err != nil {
		return nil, err
	}
	if p.UserAgent, err = readString(r); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = readTime(r); err != nil {
		return nil, err
	}
	if p.ExpiresAt, err = readTime(r); err != nil {
		return nil, err
	}

	var tail [3]byte
	for i := range tail {
		if tail[i], err = r.ReadByte(); err != nil {
			return nil, err
		}
	}
	p.RememberMe = tail[0] == 1
	p.Attempts = uint16(tail[1])<<8 | uint16(tail[2])

	return p, nil
}
