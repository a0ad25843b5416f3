// Package rate provides the fixed-window counter that the domain limiters in
// internal/limiters are built from.
//
// # Window semantics
//
// One Redis key per identifier. The first hit in a window sets the expiry;
// later hits only increment, so a window never slides.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Decide what a caller does once a window is exhausted.
package rate
