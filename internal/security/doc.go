// Package security derives a read-only posture report from engine
// settings: which limits, lookups and hashing parameters are in effect.
//
// # What this package must NOT do
//
//   - Read or expose signing keys or any other secret material.
package security
