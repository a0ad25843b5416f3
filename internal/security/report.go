package security

import "time"

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Report struct {
	SigningAlgorithm   string
	AccessTTL          time.Duration
	SessionTTL         time.Duration
	RememberMeTTL      time.Duration
	RefreshGracePeriod time.Duration
	Argon2             PasswordReport

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

type ReportInput struct {
	SigningAlgorithm     string
	AccessTTL            time.Duration
	SessionTTL           time.Duration
	RememberMeTTL        time.Duration
	RefreshGracePeriod   time.Duration
	Password             PasswordReport
	LegacyBcryptCost     int
	UpgradeOnSignIn      bool
	LockoutThreshold     int
	LockDuration         time.Duration
	MaxPendingAttempts   int
	MaxTwoFactorAttempts int
	TwoFactorWindow      time.Duration
	RecoveryCodeCount    int
	MaxResetRequests     int
	ResetRequestWindow   time.Duration
	MaxResetAttempts     int
	SkipValidationLookup bool
	AsyncAudit           bool
	DropAuditIfFull      bool
}

// BuildReport derives which protections are in effect. A limit only counts
// as active when both its cap and its window are positive.
func BuildReport(input ReportInput) Report {
	lockout := input.LockoutThreshold > 0 && input.LockDuration > 0

	twoFactorThrottle := input.MaxPendingAttempts > 0 ||
		(input.MaxTwoFactorAttempts > 0 && input.TwoFactorWindow > 0)

	resetThrottle := input.MaxResetRequests > 0 && input.ResetRequestWindow > 0

	return Report{
		SigningAlgorithm:        input.SigningAlgorithm,
		AccessTTL:               input.AccessTTL,
		SessionTTL:              input.SessionTTL,
		RememberMeTTL:           input.RememberMeTTL,
		RefreshGracePeriod:      input.RefreshGracePeriod,
		Argon2:                  input.Password,
		LegacyBcryptAccepted:    input.LegacyBcryptCost > 0,
		HashUpgradeOnSignIn:     input.UpgradeOnSignIn,
		LockoutActive:           lockout,
		TwoFactorThrottleActive: twoFactorThrottle,
		RecoveryCodesActive:     input.RecoveryCodeCount > 0,
		ResetThrottleActive:     resetThrottle,
		ResetGuessCapActive:     input.MaxResetAttempts > 0,
		SessionLookupOnValidate: !input.SkipValidationLookup,
		AuditMayDropEvents:      input.AsyncAudit && input.DropAuditIfFull,
	}
}
