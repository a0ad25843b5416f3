package authcore

import (
	"context"
	"time"
)

// UserProvider is the interface callers implement to connect the engine to
// their account database. Lookups for unknown accounts return
// [ErrUserNotFound]; any other error is treated as a backend failure.
//
// Emails are passed in normalized form (trimmed, lower-case).
type UserProvider interface {
	FindByEmail(ctx context.Context, email string) (UserRecord, error)
	FindByID(ctx context.Context, userID string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	UpdateEmail(ctx context.Context, userID, email string) error
	// GetTOTPSecret returns nil when the user has no authenticator enrolled.
	GetTOTPSecret(ctx context.Context, userID string) (*TOTPRecord, error)
	UpdateTOTPLastUsedCounter(ctx context.Context, userID string, counter int64) error
}

// UserRecord is the account view the engine needs.
type UserRecord struct {
	UserID           string
	Email            string
	PasswordHash     string
	TwoFactorEnabled bool
	Roles            []string
	Disabled         bool
}

// TOTPRecord carries the raw authenticator secret and the last accepted
// time-step counter. A code whose counter is not greater than
// LastUsedCounter is rejected as a replay.
type TOTPRecord struct {
	Secret          []byte
	Enabled         bool
	LastUsedCounter int64
}

// ResetTokenMailer delivers password reset tokens. The token is plaintext
// and exists nowhere else once the call returns.
type ResetTokenMailer interface {
	SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error
}

// ResetTokenMailerFunc adapts a function to [ResetTokenMailer].
type ResetTokenMailerFunc func(ctx context.Context, email, token string, expiresAt time.Time) error

func (f ResetTokenMailerFunc) SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error {
	return f(ctx, email, token, expiresAt)
}

type SignInRequest struct {
	Email      string
	Password   string
	RememberMe bool
	IPAddress  string
	UserAgent  string
}

// SignInResult is returned by [Engine.SignIn] and [Engine.CompleteTwoFactor].
// When TwoFactorPending is set no tokens are present and PendingSessionID
// must be passed to CompleteTwoFactor.
type SignInResult struct {
	UserID       string
	SessionID    string
	AccessToken  string
	RefreshToken string

	AccessExpiresAt  time.Time
	SessionExpiresAt time.Time

	TwoFactorPending bool
	PendingSessionID string
	PendingExpiresAt time.Time
}

// TwoFactorRequest completes a pending sign-in with either an
// authenticator code or a recovery code.
type TwoFactorRequest struct {
	PendingSessionID string
	Code             string
	RecoveryCode     string
}

// TokenPair is returned by [Engine.RefreshToken]. The presented refresh
// token is spent; RefreshToken replaces it.
type TokenPair struct {
	UserID          string
	SessionID       string
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
}

// AccessIdentity is the caller behind a valid access token.
type AccessIdentity struct {
	UserID    string
	SessionID string
	Roles     []string
	ExpiresAt time.Time
}
