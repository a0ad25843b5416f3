package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	opaqueSecretSize = 32
	opaqueTokenSize  = 16 + opaqueSecretSize
)

// ErrMalformedToken is returned when an opaque token does not decode to an id and secret.
var ErrMalformedToken = errors.New("malformed opaque token")

// NewID returns a random (v4) identifier in canonical string form.
func NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewSecret returns 32 bytes from crypto/rand.
func NewSecret() ([opaqueSecretSize]byte, error) {
	var secret [opaqueSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashSecret is the stored form of an opaque token secret.
func HashSecret(secret [opaqueSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeOpaqueToken packs an id and secret as base64url(id || secret).
func EncodeOpaqueToken(id string, secret [opaqueSecretSize]byte) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", err
	}

	var raw [opaqueTokenSize]byte
	copy(raw[:16], parsed[:])
	copy(raw[16:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeOpaqueToken reverses EncodeOpaqueToken.
func DecodeOpaqueToken(token string) (string, [opaqueSecretSize]byte, error) {
	var secret [opaqueSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != opaqueTokenSize {
		return "", secret, ErrMalformedToken
	}

	id, err := uuid.FromBytes(raw[:16])
	if err != nil {
		return "", secret, ErrMalformedToken
	}
	copy(secret[:], raw[16:])

	return id.String(), secret, nil
}

// NewOpaqueToken allocates a fresh secret for id and returns the encoded token.
func NewOpaqueToken(id string) (string, [opaqueSecretSize]byte, error) {
	secret, err := NewSecret()
	if err != nil {
		return "", secret, err
	}
	token, err := EncodeOpaqueToken(id, secret)
	return token, secret, err
}
