// Package refresh implements the rotating refresh-token ledger.
//
// # Token format
//
// A plain refresh token is base64url(token id || 32-byte secret). The ledger
// stores only sha256(plain token). Rotation mutates the same record in place:
// the id stays stable for the session's lifetime while the hash changes.
//
// # State machine
//
// A record is Active until its first rotation, RotatedOut afterwards, and
// Revoked once revokedAt is set (terminal). [Decide] maps a presented hash
// and the stored record to an [Outcome]; storage backends call it while
// holding their own compare-and-swap or row lock.
//
// # What this package must NOT do
//
//   - Import authcore, session or jwt.
//   - Persist plaintext tokens.
//   - Compare hashes with anything but constant-time equality.
package refresh
