// Package authcore is a credential and session lifecycle engine: password
// sign-in with account lockout, a two-step TOTP or recovery-code second
// factor, rotating refresh tokens with theft detection, single-use password
// reset tokens and session revocation.
//
// Engine methods are safe to call from multiple goroutines once
// [Builder.Build] has returned.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the typed events and the error sentinels. Flow orchestration, Redis
// stores, limiters, event dispatch and metric storage live under internal/.
// The session and refresh packages hold the two state machines that can be
// backed by another store (see pgstore).
//
// # What this package must NOT do
//
//   - Tell a caller why a credential failed beyond the public sentinels.
//     Lockout and theft are masked as ErrInvalidCredentials and
//     ErrRefreshInvalid.
//   - Persist or log plaintext passwords, tokens or codes.
//   - Import any sub-package that re-imports authcore.
package authcore
