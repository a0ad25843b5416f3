// Package session provides the authenticated-session entity and its
// Redis-backed registry.
//
// # Binary encoding
//
// Sessions are stored as a compact versioned binary record. The key carries
// the session id; the record carries everything else.
//
// # Architecture boundaries
//
// This package owns the [Session] entity, the [Repository] contract and the
// Redis [Store]. It does NOT issue tokens or decide sign-in policy. The
// remember-me flag is stored as given; lifetime selection belongs to the
// Engine.
//
// # What this package must NOT do
//
//   - Import authcore, refresh or jwt.
//   - Physically delete sessions; expiry plus retention TTL garbage-collects them.
package session
