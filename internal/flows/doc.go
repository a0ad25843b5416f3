// Package flows contains the orchestration behind every Engine operation.
//
// Each flow function (RunSignIn, RunCompleteTwoFactor, RunRefresh, etc.)
// accepts a typed dependency struct and reports failures as *Error values
// carrying a Failure kind. The Engine maps kinds onto its public sentinels,
// so the decision about what a caller may learn lives in one place.
//
// # Architecture boundaries
//
// Flow functions coordinate the lockout guard, credential verifier, session
// repository, refresh ledger, pending and reset stores, the access token
// minter, event emission and metrics. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependencies.
package flows
