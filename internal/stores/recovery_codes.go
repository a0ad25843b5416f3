package stores

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const recoveryAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var (
	ErrRecoveryCodeNotFound    = errors.New("recovery code not found")
	ErrRecoveryCodeUnavailable = errors.New("recovery code backend unavailable")
)

// RecoveryCode is one single-use backup code. UsedAt is zero until spent.
type RecoveryCode struct {
	ID       string
	UserID   string
	CodeHash [32]byte
	UsedAt   time.Time
}

func (c *RecoveryCode) IsUsed() bool {
	return !c.UsedAt.IsZero()
}

func (c *RecoveryCode) MatchesCode(plain string) bool {
	h := HashRecoveryCode(c.UserID, plain)
	return subtle.ConstantTimeCompare(c.CodeHash[:], h[:]) == 1
}

// MarkAsUsed reports whether the code changed. UsedAt never moves once set.
func (c *RecoveryCode) MarkAsUsed(now time.Time) bool {
	if c.IsUsed() {
		return false
	}
	c.UsedAt = now
	return true
}

// CanonicalRecoveryCode upper-cases input and drops dashes and spaces so
// "abcd-efgh" and "ABCDEFGH" hash identically.
func CanonicalRecoveryCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range strings.ToUpper(code) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HashRecoveryCode binds the code to its owner so identical codes of two
// users never share a hash.
func HashRecoveryCode(userID, code string) [32]byte {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(CanonicalRecoveryCode(code)))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// GenerateRecoveryCode returns a code of length symbols from an alphabet
// without look-alike characters, split into two dash-separated halves.
func GenerateRecoveryCode(length int) (string, error) {
	if length < 2 {
		return "", errors.New("recovery code length must be >= 2")
	}

	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	for i, b := range raw {
		raw[i] = recoveryAlphabet[int(b)%len(recoveryAlphabet)]
	}

	half := length / 2
	return string(raw[:half]) + "-" + string(raw[half:]), nil
}

// markUsedScript flips a code from unused to used and fails when another
// caller already spent it. Values are "<hex hash>:<usedAt ms>".
var markUsedScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if not v then
	return -1
end
local sep = string.find(v, ':', 1, true)
if not sep or string.sub(v, sep + 1) ~= '0' then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], string.sub(v, 1, sep) .. ARGV[2])
return 1
`)

type RecoveryCodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRecoveryCodeStore(client redis.UniversalClient, prefix string) *RecoveryCodeStore {
	if prefix == "" {
		prefix = "arc"
	}
	return &RecoveryCodeStore{redis: client, prefix: prefix}
}

func (s *RecoveryCodeStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Replace discards every existing code for userID and stores codes.
func (s *RecoveryCodeStore) Replace(ctx context.Context, userID string, codes []*RecoveryCode) error {
	key := s.key(userID)
	fields := make([]interface{}, 0, len(codes)*2)
	for _, c := range codes {
		fields = append(fields, c.ID, encodeRecoveryValue(c))
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryCodeUnavailable, err)
	}
	return nil
}

func (s *RecoveryCodeStore) List(ctx context.Context, userID string) ([]*RecoveryCode, error) {
	values, err := s.redis.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecoveryCodeUnavailable, err)
	}

	codes := make([]*RecoveryCode, 0, len(values))
	for id, value := range values {
		c, err := decodeRecoveryValue(value)
		if err != nil {
			return nil, fmt.Errorf("%w: code %s: %v", ErrRecoveryCodeUnavailable, id, err)
		}
		c.ID = id
		c.UserID = userID
		codes = append(codes, c)
	}
	return codes, nil
}

// MarkUsed spends codeID. false means the code was already used, possibly
// by a concurrent caller.
func (s *RecoveryCodeStore) MarkUsed(ctx context.Context, userID, codeID string, now time.Time) (bool, error) {
	res, err := markUsedScript.Run(ctx, s.redis, []string{s.key(userID)}, codeID, now.UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRecoveryCodeUnavailable, err)
	}
	switch res {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, ErrRecoveryCodeNotFound
	}
}

// Remaining counts unused codes.
func (s *RecoveryCodeStore) Remaining(ctx context.Context, userID string) (int, error) {
	codes, err := s.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range codes {
		if !c.IsUsed() {
			n++
		}
	}
	return n, nil
}

func encodeRecoveryValue(c *RecoveryCode) string {
	var used int64
	if c.IsUsed() {
		used = c.UsedAt.UnixMilli()
	}
	return hex.EncodeToString(c.CodeHash[:]) + ":" + strconv.FormatInt(used, 10)
}

func decodeRecoveryValue(v string) (*RecoveryCode, error) {
	hashHex, usedRaw, ok := strings.Cut(v, ":")
	if !ok {
		return nil, errors.New("malformed recovery code value")
	}
	raw, err := hex.DecodeString(hashHex)
	if err != nil || len(raw) != 32 {
		return nil, errors.New("malformed recovery code hash")
	}
	used, err := strconv.ParseInt(usedRaw, 10, 64)
	if err != nil {
		return nil, errors.New("malformed recovery code timestamp")
	}

	c := &RecoveryCode{}
	copy(c.CodeHash[:], raw)
	if used != 0 {
		c.UsedAt = time.UnixMilli(used)
	}
	return c, nil
}
