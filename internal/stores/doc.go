// Package stores provides Redis-backed, short-lived record stores used
// around sign-in: pending two-factor challenges, password reset tokens and
// recovery codes.
//
// # Design
//
// Pending challenges and reset tokens are versioned binary records with a
// TTL. Mutations (Consume, RecordFailure, Issue) use WATCH/MULTI optimistic
// transactions retried on contention. Recovery codes live in one hash per
// user and are spent through a Lua compare-and-swap so two concurrent uses of
// the same code cannot both succeed. Secret comparisons are constant-time.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control. It does NOT decide
// sign-in outcomes; those belong to internal/flows.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Log or expose plaintext secrets.
package stores

const maxTxRetries = 4
