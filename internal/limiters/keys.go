package limiters

import (
	"crypto/sha256"
	"encoding/hex"
)

// EmailDigest is the key fragment used for per-email counters. Callers
// normalize the address first.
func EmailDigest(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
