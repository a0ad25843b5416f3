package password

import (
	"errors"
	"fmt"
	"strings"
)

// Verifier is the credential check used by the Engine. It dispatches on the
// stored hash prefix and always hashes new passwords with Argon2id.
type Verifier struct {
	argon  *Argon2
	legacy *Bcrypt
	dummy  string
}

// NewVerifier precomputes a throwaway hash so DummyVerify costs the same as
// a real verification. legacy may be nil to reject bcrypt hashes.
func NewVerifier(argon *Argon2, legacy *Bcrypt) (*Verifier, error) {
	if argon == nil {
		return nil, errors.New("argon2 hasher is required")
	}
	dummy, err := argon.Hash(strings.Repeat("x", max(argon.config.MinPasswordBytes, 16)))
	if err != nil {
		return nil, err
	}
	return &Verifier{argon: argon, legacy: legacy, dummy: dummy}, nil
}

func (v *Verifier) Hash(plaintext string) (string, error) {
	return v.argon.Hash(plaintext)
}

func (v *Verifier) Verify(storedHash, plaintext string) (bool, error) {
	switch {
	case strings.HasPrefix(storedHash, argon2Prefix):
		ok, err := v.argon.Verify(plaintext, storedHash)
		if errors.Is(err, ErrPasswordTooLong) {
			return false, nil
		}
		return ok, err
	case isBcryptHash(storedHash) && v.legacy != nil:
		return v.legacy.Verify(plaintext, storedHash)
	default:
		return false, fmt.Errorf("%w: unrecognized hash scheme", ErrMalformedHash)
	}
}

// DummyVerify burns one Argon2id derivation and always reports false.
func (v *Verifier) DummyVerify(plaintext string) {
	_, _ = v.argon.Verify(plaintext, v.dummy)
}

// NeedsUpgrade reports whether storedHash should be replaced by a fresh
// Argon2id hash after a successful verification.
func (v *Verifier) NeedsUpgrade(storedHash string) bool {
	if isBcryptHash(storedHash) {
		return true
	}
	upgrade, err := v.argon.NeedsUpgrade(storedHash)
	return err == nil && upgrade
}
