// Package internal contains helper utilities that are private to authcore,
// chiefly opaque token generation and decoding.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for every Engine operation
//   - limiters: lockout guard plus TOTP and reset-request throttles
//   - metrics: lock-free counters and latency buckets
//   - rate: fixed-window Redis counter primitive used by limiters
//   - security: posture report derived from engine settings
//   - stores: Redis records for pending two-factor, reset tokens, recovery codes
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Log or persist plaintext secrets.
package internal
