package authcore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
	"github.com/redis/go-redis/v9"
)

// Engine runs sign-in, two-factor completion, refresh rotation, password
// reset and session revocation. All methods are safe for concurrent use.
type Engine struct {
	config Config
	logger *slog.Logger
	now    func() time.Time

	users  UserProvider
	mailer ResetTokenMailer

	sessions      session.Repository
	ledger        refresh.Ledger
	lockout       *limiters.LockoutGuard
	twoFactorRate *limiters.TwoFactorLimiter
	resetRate     *limiters.ResetRequestLimiter
	pending       *stores.PendingTwoFactorStore
	resets        *stores.PasswordResetStore
	codes         *stores.RecoveryCodeStore

	passwords *password.Verifier
	tokens    *jwt.Manager
	totp      *totpVerifier

	audit   *audit.Dispatcher
	metrics *metrics.Registry

	deps       flows.Deps
	closeRedis func() error
}

type components struct {
	redis    redis.UniversalClient
	logger   *slog.Logger
	users    UserProvider
	mailer   ResetTokenMailer
	sink     EventSink
	sessions session.Repository
	ledger   refresh.Ledger
}

func newEngine(cfg Config, c components) (*Engine, error) {
	argon, err := password.NewArgon2(cfg.Password.argon2())
	if err != nil {
		return nil, err
	}
	var legacy *password.Bcrypt
	if cfg.Password.LegacyBcryptCost > 0 {
		legacy = password.NewBcrypt(cfg.Password.LegacyBcryptCost)
	}
	verifier, err := password.NewVerifier(argon, legacy)
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}

	sink := c.sink
	if sink == nil {
		sink = audit.NewSlogSink(c.logger)
	}

	e := &Engine{
		config: cfg,
		logger: c.logger,
		now:    time.Now,
		users:  c.users,
		mailer: c.mailer,

		sessions: c.sessions,
		ledger:   c.ledger,
		lockout: limiters.NewLockoutGuard(c.redis, limiters.LockoutConfig{
			Threshold:    cfg.Lockout.Threshold,
			Window:       cfg.Lockout.Window,
			LockDuration: cfg.Lockout.LockDuration,
		}),
		pending: stores.NewPendingTwoFactorStore(c.redis, ""),
		resets:  stores.NewPasswordResetStore(c.redis, "", cfg.PasswordReset.Retention),
		codes:   stores.NewRecoveryCodeStore(c.redis, ""),

		passwords: verifier,
		tokens:    tokens,
		totp:      newTOTPVerifier(cfg.TwoFactor),

		audit: audit.NewDispatcher(audit.Config{
			Async:      cfg.Audit.Async,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
		metrics: metrics.NewRegistry(cfg.Metrics.Enabled, cfg.Metrics.EnableLatencyHistograms),
	}
	if e.sessions == nil {
		e.sessions = session.NewStore(c.redis, cfg.Session.RedisPrefix, cfg.Session.Retention)
	}
	if e.ledger == nil {
		e.ledger = refresh.NewRedisLedger(c.redis, cfg.Refresh.RedisPrefix, cfg.Refresh.Retention)
	}
	if cfg.TwoFactor.MaxAttemptsPerWindow > 0 {
		e.twoFactorRate = limiters.NewTwoFactorLimiter(c.redis, cfg.TwoFactor.MaxAttemptsPerWindow, cfg.TwoFactor.AttemptWindow)
	}
	if cfg.PasswordReset.MaxRequestsPerWindow > 0 {
		e.resetRate = limiters.NewResetRequestLimiter(c.redis, cfg.PasswordReset.MaxRequestsPerWindow, cfg.PasswordReset.RequestWindow)
	}

	e.deps = e.buildDeps()
	return e, nil
}

// Close drains pending events and, when the engine dialed Redis itself,
// closes that client. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.closeRedis != nil {
		if err := e.closeRedis(); err != nil {
			e.warn("authcore: closing redis client failed", "error", err)
		}
	}
}

// AuditDropped reports how many events were discarded because the async
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) ready() bool {
	return e != nil && e.users != nil && e.sessions != nil && e.ledger != nil
}

func (e *Engine) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func (e *Engine) observe(id MetricID, start time.Time) {
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) observer() flows.Observer {
	return flows.Observer{
		Now:  func() time.Time { return e.now() },
		Emit: e.audit.Emit,
		Inc:  e.metrics.Inc,
		Warn: e.warn,
	}
}

func toFlowUser(u UserRecord) flows.User {
	return flows.User{
		ID:               u.UserID,
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		TwoFactorEnabled: u.TwoFactorEnabled,
		Roles:            append([]string(nil), u.Roles...),
		Disabled:         u.Disabled,
	}
}

func (e *Engine) findUserByEmail(ctx context.Context, email string) (flows.User, bool, error) {
	u, err := e.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return flows.User{}, false, nil
	}
	if err != nil {
		return flows.User{}, false, err
	}
	return toFlowUser(u), true, nil
}

func (e *Engine) findUserByID(ctx context.Context, userID string) (flows.User, bool, error) {
	u, err := e.users.FindByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return flows.User{}, false, nil
	}
	if err != nil {
		return flows.User{}, false, err
	}
	return toFlowUser(u), true, nil
}

func (e *Engine) getTOTP(ctx context.Context, userID string) (flows.TOTPRecord, error) {
	rec, err := e.users.GetTOTPSecret(ctx, userID)
	if err != nil || rec == nil {
		return flows.TOTPRecord{}, err
	}
	return flows.TOTPRecord{
		Secret:          rec.Secret,
		Enabled:         rec.Enabled,
		LastUsedCounter: rec.LastUsedCounter,
	}, nil
}

// buildDeps binds every flow to this engine's components once.
func (e *Engine) buildDeps() flows.Deps {
	obs := e.observer()
	cfg := e.config

	issuer := &flows.Issuer{
		SessionTTL:   cfg.Session.TTL,
		RememberTTL:  cfg.Session.RememberMeTTL,
		AccessTTL:    cfg.JWT.AccessTTL,
		NewID:        internal.NewID,
		Sessions:     e.sessions,
		Ledger:       e.ledger,
		CreateAccess: e.tokens.CreateAccess,
	}
	revokeAll := flows.RevokeAllDeps{
		Observer: obs,
		Sessions: e.sessions,
		Ledger:   e.ledger,
	}

	deps := flows.Deps{
		SignIn: flows.SignInDeps{
			Observer:           obs,
			PendingTTL:         cfg.TwoFactor.PendingTTL,
			UpgradeHashes:      cfg.Password.UpgradeOnSignIn,
			LockDuration:       e.lockout.LockDuration(),
			IsLocked:           e.lockout.IsLocked,
			RecordFailure:      e.lockout.RecordFailure,
			ClearFailures:      e.lockout.ClearFailures,
			FindUserByEmail:    e.findUserByEmail,
			UpdatePasswordHash: e.users.UpdatePasswordHash,
			VerifyPassword:     e.passwords.Verify,
			DummyVerify:        e.passwords.DummyVerify,
			NeedsUpgrade:       e.passwords.NeedsUpgrade,
			HashPassword:       e.passwords.Hash,
			NewID:              internal.NewID,
			CreatePending:      e.pending.Create,
			Issuer:             issuer,
		},
		TwoFactor: flows.TwoFactorDeps{
			Observer:              obs,
			MaxPendingAttempts:    cfg.TwoFactor.MaxPendingAttempts,
			GetPending:            e.pending.Get,
			DeletePending:         e.pending.Delete,
			RestorePending:        e.pending.Create,
			RecordPendingFailure:  e.pending.RecordFailure,
			FindUserByID:          e.findUserByID,
			GetTOTP:               e.getTOTP,
			VerifyTOTP:            e.totp.verify,
			UpdateTOTPCounter:     e.users.UpdateTOTPLastUsedCounter,
			ListRecoveryCodes:     e.codes.List,
			MarkRecoveryCodeUsed:  e.codes.MarkUsed,
			RemainingRecoveryCode: e.codes.Remaining,
			Issuer:                issuer,
		},
		Refresh: flows.RefreshDeps{
			Observer:     obs,
			Grace:        cfg.Refresh.GracePeriod,
			AccessTTL:    cfg.JWT.AccessTTL,
			Ledger:       e.ledger,
			Sessions:     e.sessions,
			FindUserByID: e.findUserByID,
			CreateAccess: e.tokens.CreateAccess,
		},
		ResetRequest: flows.ResetRequestDeps{
			Observer:        obs,
			TTL:             cfg.PasswordReset.TokenTTL,
			FindUserByEmail: e.findUserByEmail,
			NewID:           internal.NewID,
			Issue:           e.resets.Issue,
			Send:            e.mailer.SendPasswordReset,
		},
		ResetConfirm: flows.ResetConfirmDeps{
			Observer:           obs,
			MaxAttempts:        cfg.PasswordReset.MaxAttempts,
			Consume:            e.resets.Consume,
			HashPassword:       e.passwords.Hash,
			UpdatePasswordHash: e.users.UpdatePasswordHash,
			FindUserByID:       e.findUserByID,
			ClearFailures:      e.lockout.ClearFailures,
			RevokeAll:          revokeAll,
		},
		RevokeAll: revokeAll,
		RevokeSession: flows.RevokeSessionDeps{
			Observer: obs,
			Sessions: e.sessions,
			Ledger:   e.ledger,
		},
		Account: flows.AccountDeps{
			Observer:             obs,
			RecoveryCodeCount:    cfg.RecoveryCodes.Count,
			RecoveryCodeLength:   cfg.RecoveryCodes.Length,
			FindUserByID:         e.findUserByID,
			VerifyPassword:       e.passwords.Verify,
			HashPassword:         e.passwords.Hash,
			UpdatePasswordHash:   e.users.UpdatePasswordHash,
			UpdateEmail:          e.users.UpdateEmail,
			NewID:                internal.NewID,
			ReplaceRecoveryCodes: e.codes.Replace,
			RevokeAll:            revokeAll,
		},
		Validate: flows.ValidateDeps{
			Observer:         obs,
			SkipSessionCheck: cfg.Session.SkipValidationLookup,
			ParseAccess:      e.tokens.ParseAccess,
			Sessions:         e.sessions,
		},
	}

	if e.twoFactorRate != nil {
		deps.TwoFactor.CheckThrottle = e.twoFactorRate.Check
		deps.TwoFactor.RecordThrottle = e.twoFactorRate.RecordFailure
		deps.TwoFactor.ResetThrottle = e.twoFactorRate.Reset
	}
	if e.resetRate != nil {
		deps.ResetRequest.Allow = e.resetRate.Allow
	}
	return deps
}
