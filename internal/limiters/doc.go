// Package limiters holds the Redis-backed counters that guard sign-in:
//
//   - [LockoutGuard] counts failed password checks per normalized email and
//     raises a time-boxed lock flag every time the count crosses a multiple of
//     the threshold.
//   - [TwoFactorLimiter] optionally throttles second-factor attempts per user.
//   - [ResetRequestLimiter] throttles password-reset requests per email.
//
// Emails are never stored in key names; keys use the SHA-256 hex of the
// normalized address.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package except internal/rate.
//   - Decide what the caller returns when a limit trips.
package limiters
