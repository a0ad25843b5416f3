// Package password verifies submitted passwords against stored hashes.
//
// # Output format
//
// New hashes are always Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt hashes ($2a$, $2b$, $2y$) still verify. [Verifier.NeedsUpgrade]
// reports them, together with Argon2id hashes produced under weaker parameters,
// so the Engine can re-hash after the next successful sign-in.
//
// # Architecture boundaries
//
// A mismatch is reported as (false, nil). Only a stored hash that cannot be
// parsed produces an error, always wrapping [ErrMalformedHash].
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
