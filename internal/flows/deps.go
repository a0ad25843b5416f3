package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/metrics"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates each request method to the matching flow.
type Deps struct {
	SignIn        SignInDeps
	TwoFactor     TwoFactorDeps
	Refresh       RefreshDeps
	ResetRequest  ResetRequestDeps
	ResetConfirm  ResetConfirmDeps
	RevokeAll     RevokeAllDeps
	RevokeSession RevokeSessionDeps
	Account       AccountDeps
	Validate      ValidateDeps
}

// User is the flow-local view of an account.
type User struct {
	ID               string
	Email            string
	PasswordHash     string
	TwoFactorEnabled bool
	Roles            []string
	Disabled         bool
}

// TOTPRecord is the flow-local view of a user's authenticator enrollment.
type TOTPRecord struct {
	Secret          []byte
	Enabled         bool
	LastUsedCounter int64
}

// Observer carries the side channels every flow reports through. Nil
// fields are replaced with no-ops by defaults.
type Observer struct {
	Now  func() time.Time
	Emit func(context.Context, audit.Event)
	Inc  func(metrics.ID)
	Warn func(string, ...any)
}

func (o *Observer) defaults() {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Emit == nil {
		o.Emit = func(context.Context, audit.Event) {}
	}
	if o.Inc == nil {
		o.Inc = func(metrics.ID) {}
	}
	if o.Warn == nil {
		o.Warn = func(string, ...any) {}
	}
}
