package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
)

// SignIn verifies email and password. On success it either issues a
// session with access and refresh tokens, or, for accounts with two-factor
// enabled, returns a pending sign-in to finish with CompleteTwoFactor.
//
// Every credential failure, including a locked account, returns an error
// matching ErrInvalidCredentials.
func (e *Engine) SignIn(ctx context.Context, req SignInRequest) (*SignInResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricSignInLatency, start)

	res, err := flows.RunSignIn(ctx, flows.SignInInput{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	}, e.deps.SignIn)
	if err != nil {
		return nil, publicError(err)
	}
	return toSignInResult(res), nil
}

// CompleteTwoFactor finishes a pending sign-in with an authenticator code
// or an unused recovery code. A wrong code leaves the pending sign-in in
// place until it expires or exhausts its attempts.
func (e *Engine) CompleteTwoFactor(ctx context.Context, req TwoFactorRequest) (*SignInResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricSignInLatency, start)

	res, err := flows.RunCompleteTwoFactor(ctx, flows.TwoFactorInput{
		PendingSessionID: req.PendingSessionID,
		Code:             req.Code,
		RecoveryCode:     req.RecoveryCode,
	}, e.deps.TwoFactor)
	if err != nil {
		return nil, publicError(err)
	}
	return toSignInResult(res), nil
}

func toSignInResult(res *flows.SignInResult) *SignInResult {
	out := &SignInResult{
		UserID:           res.UserID,
		TwoFactorPending: res.TwoFactorPending,
		PendingSessionID: res.PendingSessionID,
		PendingExpiresAt: res.PendingExpiresAt,
	}
	if res.Issued != nil {
		out.SessionID = res.Issued.SessionID
		out.AccessToken = res.Issued.AccessToken
		out.RefreshToken = res.Issued.RefreshToken
		out.AccessExpiresAt = res.Issued.AccessExpiresAt
		out.SessionExpiresAt = res.Issued.SessionExpiresAt
	}
	return out
}

// IsLockedOut reports whether sign-in for email is currently refused.
func (e *Engine) IsLockedOut(ctx context.Context, email string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	locked, err := e.lockout.IsLocked(ctx, flows.NormalizeEmail(email))
	if err != nil {
		return false, publicError(err)
	}
	return locked, nil
}

// UnlockAccount clears the lock flag and the failure counter for email.
func (e *Engine) UnlockAccount(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.lockout.ClearFailures(ctx, flows.NormalizeEmail(email)); err != nil {
		return publicError(err)
	}
	return nil
}

// ProvisionTOTP generates an authenticator secret for account. The caller
// stores the secret through its UserProvider and enables it once the user
// has confirmed a code.
func (e *Engine) ProvisionTOTP(issuer, account string) (*TOTPProvision, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.totp.provision(issuer, account)
}
