package refresh

import (
	"crypto/sha256"
	"crypto/subtle"
	"time"

	"github.com/MrEthical07/authcore/internal"
)

// maxRetiredHashes bounds how many superseded hashes a record remembers
// beyond PreviousHash.
const maxRetiredHashes = 32

// State is the lifecycle position of a refresh token record.
type State uint8

const (
	StateActive State = iota
	StateRotatedOut
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRotatedOut:
		return "rotated_out"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Token is one rotation chain for a session. Zero times mean "not set".
type Token struct {
	ID        string
	SessionID string
	UserID    string

	TokenHash     [32]byte
	PreviousHash  [32]byte
	RetiredHashes [][32]byte

	ExpiresAt time.Time
	RotatedAt time.Time
	GraceUsed bool
	RevokedAt time.Time
}

// HashToken returns the stored form of a plain refresh token.
func HashToken(plain string) [32]byte {
	return sha256.Sum256([]byte(plain))
}

// NewPlainToken returns a fresh plain token bound to the record id.
func NewPlainToken(id string) (string, error) {
	plain, _, err := internal.NewOpaqueToken(id)
	return plain, err
}

// ParseTokenID extracts the record id from a plain token.
func ParseTokenID(plain string) (string, error) {
	id, _, err := internal.DecodeOpaqueToken(plain)
	if err != nil {
		return "", ErrMalformedToken
	}
	return id, nil
}

// NewToken builds an Active record whose current hash matches plain.
func NewToken(id, sessionID, userID, plain string, expiresAt time.Time) *Token {
	return &Token{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		TokenHash: HashToken(plain),
		ExpiresAt: expiresAt,
	}
}

// State reports the lifecycle position of t.
func (t *Token) State() State {
	switch {
	case t.IsRevoked():
		return StateRevoked
	case !t.RotatedAt.IsZero():
		return StateRotatedOut
	default:
		return StateActive
	}
}

// MatchesToken reports whether plain is the current token for this record.
func (t *Token) MatchesToken(plain string) bool {
	h := HashToken(plain)
	return hashEqual(t.TokenHash, h)
}

// Rotate installs newPlain as the current token. The superseded hash becomes
// PreviousHash and the grace allowance is re-armed.
func (t *Token) Rotate(newPlain string, now time.Time) {
	t.rotateHash(HashToken(newPlain), now)
}

func (t *Token) rotateHash(next [32]byte, now time.Time) {
	if t.PreviousHash != ([32]byte{}) {
		t.retire(t.PreviousHash)
	}
	t.PreviousHash = t.TokenHash
	t.TokenHash = next
	t.RotatedAt = now
	t.GraceUsed = false
}

// reissueHash replaces the current hash during a grace reissue. RotatedAt
// and PreviousHash stay put so the grace window does not slide.
func (t *Token) reissueHash(next [32]byte) {
	t.retire(t.TokenHash)
	t.TokenHash = next
	t.MarkGraceUsed()
}

func (t *Token) retire(h [32]byte) {
	t.RetiredHashes = append(t.RetiredHashes, h)
	if over := len(t.RetiredHashes) - maxRetiredHashes; over > 0 {
		t.RetiredHashes = append([][32]byte(nil), t.RetiredHashes[over:]...)
	}
}

// MarkGraceUsed flips the one-shot grace flag.
func (t *Token) MarkGraceUsed() {
	t.GraceUsed = true
}

// IsWithinGracePeriod is true when the record was rotated and now is no later
// than RotatedAt+grace. A negative grace disables the window.
func (t *Token) IsWithinGracePeriod(now time.Time, grace time.Duration) bool {
	if grace < 0 || t.RotatedAt.IsZero() {
		return false
	}
	return !now.After(t.RotatedAt.Add(grace))
}

// Revoke sets RevokedAt once. It reports whether this call changed the record.
func (t *Token) Revoke(now time.Time) bool {
	if t.IsRevoked() {
		return false
	}
	t.RevokedAt = now
	return true
}

func (t *Token) IsRevoked() bool {
	return !t.RevokedAt.IsZero()
}

func (t *Token) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

func (t *Token) wasRetired(h [32]byte) bool {
	found := 0
	for _, retired := range t.RetiredHashes {
		found |= subtle.ConstantTimeCompare(retired[:], h[:])
	}
	return found == 1
}

func hashEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
