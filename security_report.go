package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/internal/security"
)

// SecurityReport is a read-only summary of the protections an engine was
// built with. It carries no key material.
type SecurityReport struct {
	SigningAlgorithm   string
	AccessTTL          time.Duration
	SessionTTL         time.Duration
	RememberMeTTL      time.Duration
	RefreshGracePeriod time.Duration
	Argon2             PasswordConfigReport

	LegacyBcryptAccepted    bool
	HashUpgradeOnSignIn     bool
	LockoutActive           bool
	TwoFactorThrottleActive bool
	RecoveryCodesActive     bool
	ResetThrottleActive     bool
	ResetGuessCapActive     bool
	SessionLookupOnValidate bool
	AuditMayDropEvents      bool
}

// PasswordConfigReport contains the Argon2id parameters used for new hashes.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	c := e.config
	r := security.BuildReport(security.ReportInput{
		SigningAlgorithm:   c.JWT.SigningMethod,
		AccessTTL:          c.JWT.AccessTTL,
		SessionTTL:         c.Session.TTL,
		RememberMeTTL:      c.Session.RememberMeTTL,
		RefreshGracePeriod: c.Refresh.GracePeriod,
		Password: security.PasswordReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		LegacyBcryptCost:     c.Password.LegacyBcryptCost,
		UpgradeOnSignIn:      c.Password.UpgradeOnSignIn,
		LockoutThreshold:     c.Lockout.Threshold,
		LockDuration:         c.Lockout.LockDuration,
		MaxPendingAttempts:   c.TwoFactor.MaxPendingAttempts,
		MaxTwoFactorAttempts: c.TwoFactor.MaxAttemptsPerWindow,
		TwoFactorWindow:      c.TwoFactor.AttemptWindow,
		RecoveryCodeCount:    c.RecoveryCodes.Count,
		MaxResetRequests:     c.PasswordReset.MaxRequestsPerWindow,
		ResetRequestWindow:   c.PasswordReset.RequestWindow,
		MaxResetAttempts:     c.PasswordReset.MaxAttempts,
		SkipValidationLookup: c.Session.SkipValidationLookup,
		AsyncAudit:           c.Audit.Async,
		DropAuditIfFull:      c.Audit.DropIfFull,
	})

	return SecurityReport{
		SigningAlgorithm:   r.SigningAlgorithm,
		AccessTTL:          r.AccessTTL,
		SessionTTL:         r.SessionTTL,
		RememberMeTTL:      r.RememberMeTTL,
		RefreshGracePeriod: r.RefreshGracePeriod,
		Argon2: PasswordConfigReport{
			Memory:      r.Argon2.Memory,
			Time:        r.Argon2.Time,
			Parallelism: r.Argon2.Parallelism,
			SaltLength:  r.Argon2.SaltLength,
			KeyLength:   r.Argon2.KeyLength,
		},
		LegacyBcryptAccepted:    r.LegacyBcryptAccepted,
		HashUpgradeOnSignIn:     r.HashUpgradeOnSignIn,
		LockoutActive:           r.LockoutActive,
		TwoFactorThrottleActive: r.TwoFactorThrottleActive,
		RecoveryCodesActive:     r.RecoveryCodesActive,
		ResetThrottleActive:     r.ResetThrottleActive,
		ResetGuessCapActive:     r.ResetGuessCapActive,
		SessionLookupOnValidate: r.SessionLookupOnValidate,
		AuditMayDropEvents:      r.AuditMayDropEvents,
	}
}
