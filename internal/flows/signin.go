package flows

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/internal/stores"
)

// SignInInput is the credential submission for the first sign-in step.
type SignInInput struct {
	Email      string
	Password   string
	RememberMe bool
	IPAddress  string
	UserAgent  string
}

// SignInResult carries either issued credentials or a pending second
// factor, never both.
type SignInResult struct {
	UserID           string
	Issued           *Issued
	TwoFactorPending bool
	PendingSessionID string
	PendingExpiresAt time.Time
}

// SignInDeps captures the first-step dependencies.
type SignInDeps struct {
	Observer

	PendingTTL    time.Duration
	UpgradeHashes bool
	LockDuration  time.Duration

	IsLocked      func(context.Context, string) (bool, error)
	RecordFailure func(context.Context, string) (int, bool, error)
	ClearFailures func(context.Context, string) error

	FindUserByEmail    func(context.Context, string) (User, bool, error)
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error

	VerifyPassword func(hash, plaintext string) (bool, error)
	DummyVerify    func(plaintext string)
	NeedsUpgrade   func(hash string) bool
	HashPassword   func(plaintext string) (string, error)

	NewID         func() (string, error)
	CreatePending func(context.Context, *stores.PendingTwoFactor) error

	Issuer *Issuer
}

// NormalizeEmail is the canonical form used for lockout keys and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RunSignIn checks the lock flag, verifies the password and either issues a
// session or parks the attempt as a pending second factor.
func RunSignIn(ctx context.Context, in SignInInput, deps SignInDeps) (*SignInResult, error) {
	deps.defaults()
	if deps.IsLocked == nil ||
		deps.RecordFailure == nil ||
		deps.ClearFailures == nil ||
		deps.FindUserByEmail == nil ||
		deps.VerifyPassword == nil ||
		deps.DummyVerify == nil ||
		deps.NewID == nil ||
		deps.CreatePending == nil ||
		!deps.Issuer.ready() {
		return nil, fail(FailureNotReady, nil)
	}

	email := NormalizeEmail(in.Email)
	now := deps.Now()

	locked, err := deps.IsLocked(ctx, email)
	if err != nil {
		return nil, fail(FailureBackend, err)
	}
	if locked {
		deps.Inc(metrics.SignInLocked)
		deps.Emit(ctx, audit.SignInFailedEvent{
			At:        now,
			Email:     email,
			Reason:    audit.ReasonLocked,
			IPAddress: in.IPAddress,
		})
		return nil, fail(FailureLocked, nil)
	}

	user, found, err := deps.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fail(FailureBackend, err)
	}
	if !found {
		deps.DummyVerify(in.Password)
		return nil, rejectCredentials(ctx, &deps, email, "", audit.ReasonUnknownUser, in.IPAddress, now)
	}

	ok, err := deps.VerifyPassword(user.PasswordHash, in.Password)
	if err != nil {
		deps.Warn("authcore: stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, rejectCredentials(ctx, &deps, email, user.ID, audit.ReasonMalformedHash, in.IPAddress, now)
	}
	if !ok {
		return nil, rejectCredentials(ctx, &deps, email, user.ID, audit.ReasonBadPassword, in.IPAddress, now)
	}

	if err := deps.ClearFailures(ctx, email); err != nil {
		deps.Warn("authcore: clearing lockout counter failed", "user_id", user.ID, "error", err)
	}

	if user.Disabled {
		deps.Inc(metrics.SignInFailure)
		deps.Emit(ctx, audit.SignInFailedEvent{
			At:        now,
			Email:     email,
			UserID:    user.ID,
			Reason:    audit.ReasonDisabled,
			IPAddress: in.IPAddress,
		})
		return nil, fail(FailureInvalidCredentials, nil)
	}

	if deps.UpgradeHashes {
		upgradePasswordHash(ctx, &deps, user, in.Password)
	}

	if user.TwoFactorEnabled {
		id, err := deps.NewID()
		if err != nil {
			return nil, fail(FailureBackend, err)
		}
		pending := &stores.PendingTwoFactor{
			ID:         id,
			UserID:     user.ID,
			CreatedAt:  now,
			ExpiresAt:  now.Add(deps.PendingTTL),
			RememberMe: in.RememberMe,
			IPAddress:  in.IPAddress,
			UserAgent:  in.UserAgent,
		}
		if err := deps.CreatePending(ctx, pending); err != nil {
			return nil, fail(FailureBackend, err)
		}

		deps.Inc(metrics.TwoFactorRequired)
		deps.Emit(ctx, audit.TwoFactorRequiredEvent{At: now, UserID: user.ID, PendingSessionID: id})
		return &SignInResult{
			UserID:           user.ID,
			TwoFactorPending: true,
			PendingSessionID: id,
			PendingExpiresAt: pending.ExpiresAt,
		}, nil
	}

	issued, err := deps.Issuer.Issue(ctx, IssueRequest{
		User:       user,
		RememberMe: in.RememberMe,
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
		Now:        now,
	})
	if err != nil {
		return nil, fail(FailureBackend, err)
	}

	deps.Inc(metrics.SignInSuccess)
	deps.Inc(metrics.SessionCreated)
	deps.Emit(ctx, audit.UserSignedInEvent{
		At:        now,
		UserID:    user.ID,
		SessionID: issued.SessionID,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	})
	return &SignInResult{UserID: user.ID, Issued: issued}, nil
}

// rejectCredentials counts the failure toward lockout and reports it. The
// caller always sees FailureInvalidCredentials, including on the attempt
// that raises the lock.
func rejectCredentials(
	ctx context.Context,
	deps *SignInDeps,
	email, userID, reason, ip string,
	now time.Time,
) error {
	count, lockedNow, err := deps.RecordFailure(ctx, email)
	if err != nil {
		return fail(FailureBackend, err)
	}
	if lockedNow {
		deps.Inc(metrics.AccountLockedOut)
		deps.Emit(ctx, audit.AccountLockedOutEvent{
			At:           now,
			Email:        email,
			FailureCount: count,
			LockedFor:    deps.LockDuration,
		})
	}

	deps.Inc(metrics.SignInFailure)
	deps.Emit(ctx, audit.SignInFailedEvent{
		At:        now,
		Email:     email,
		UserID:    userID,
		Reason:    reason,
		IPAddress: ip,
	})
	return fail(FailureInvalidCredentials, nil)
}

func upgradePasswordHash(ctx context.Context, deps *SignInDeps, user User, plaintext string) {
	if deps.NeedsUpgrade == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return
	}
	if !deps.NeedsUpgrade(user.PasswordHash) {
		return
	}
	hash, err := deps.HashPassword(plaintext)
	if err != nil {
		deps.Warn("authcore: password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if err := deps.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		deps.Warn("authcore: password hash upgrade not stored", "user_id", user.ID, "error", err)
		return
	}
	deps.Inc(metrics.PasswordHashUpgraded)
}
