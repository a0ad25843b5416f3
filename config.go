package authcore

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/password"
)

// Config holds every engine policy. Build a Config from DefaultConfig and
// override fields; the engine keeps its own copy after Build.
type Config struct {
	JWT           JWTConfig
	Session       SessionConfig
	Refresh       RefreshConfig
	Lockout       LockoutConfig
	TwoFactor     TwoFactorConfig
	RecoveryCodes RecoveryCodesConfig
	PasswordReset PasswordResetConfig
	Password      PasswordConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Redis         RedisConfig
}

/*
====================================
TOKENS AND SESSIONS
====================================
*/

// JWTConfig describes access token signing. SigningMethod is "ed25519"
// (PEM keys) or "hs256" (PrivateKey is the shared secret).
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

type SessionConfig struct {
	TTL           time.Duration
	RememberMeTTL time.Duration
	// Retention keeps revoked and expired records readable after their
	// lifetime ends.
	Retention   time.Duration
	RedisPrefix string
	// SkipValidationLookup makes ValidateAccessToken trust the token
	// signature alone.
	SkipValidationLookup bool
}

// RefreshConfig controls refresh rotation. A superseded token presented
// within GracePeriod of its rotation gets a reissued successor once; after
// that it is treated as stolen.
type RefreshConfig struct {
	GracePeriod time.Duration
	Retention   time.Duration
	RedisPrefix string
}

/*
====================================
CREDENTIAL POLICY
====================================
*/

// LockoutConfig sets when repeated failures lock an email. Threshold 0
// disables lockout.
type LockoutConfig struct {
	Threshold    int
	Window       time.Duration
	LockDuration time.Duration
}

type TwoFactorConfig struct {
	PendingTTL time.Duration
	// MaxPendingAttempts deletes a pending sign-in after that many wrong
	// codes. Zero, the default, keeps it retryable until PendingTTL.
	MaxPendingAttempts int
	// MaxAttemptsPerWindow caps wrong codes per user across pending
	// sign-ins. Zero disables the throttle.
	MaxAttemptsPerWindow int
	AttemptWindow        time.Duration

	Period    int
	Digits    int
	Algorithm string
	Skew      int
}

type RecoveryCodesConfig struct {
	Count  int
	Length int
}

type PasswordResetConfig struct {
	TokenTTL    time.Duration
	MaxAttempts int
	Retention   time.Duration
	// MaxRequestsPerWindow throttles reset requests per email. Throttled
	// requests look successful to the caller.
	MaxRequestsPerWindow int
	RequestWindow        time.Duration
}

// PasswordConfig is the Argon2id profile for new hashes plus the accepted
// plaintext length range. LegacyBcryptCost is only used to build the
// bcrypt verifier and never for new hashes.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinLength        int
	MaxLength        int
	UpgradeOnSignIn  bool
	LegacyBcryptCost int
}

/*
====================================
OBSERVABILITY AND BACKEND
====================================
*/

type AuditConfig struct {
	Async      bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// RedisConfig is used only when the builder is not given a client.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	PoolSize int
}

// DefaultConfig returns the baseline policy. Signing keys are left empty
// and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	argon := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			RememberMeTTL: 30 * 24 * time.Hour,
			Retention:     24 * time.Hour,
			RedisPrefix:   "as",
		},
		Refresh: RefreshConfig{
			GracePeriod: 30 * time.Second,
			Retention:   24 * time.Hour,
			RedisPrefix: "art",
		},
		Lockout: LockoutConfig{
			Threshold:    20,
			Window:       time.Hour,
			LockDuration: 15 * time.Minute,
		},
		TwoFactor: TwoFactorConfig{
			PendingTTL:    5 * time.Minute,
			AttemptWindow: 15 * time.Minute,
			Period:        30,
			Digits:        6,
			Algorithm:     "SHA1",
			Skew:          1,
		},
		RecoveryCodes: RecoveryCodesConfig{
			Count:  10,
			Length: 10,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:             time.Hour,
			MaxAttempts:          5,
			Retention:            24 * time.Hour,
			MaxRequestsPerWindow: 3,
			RequestWindow:        15 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:           argon.Memory,
			Time:             argon.Time,
			Parallelism:      argon.Parallelism,
			SaltLength:       argon.SaltLength,
			KeyLength:        argon.KeyLength,
			MinLength:        argon.MinPasswordBytes,
			MaxLength:        argon.MaxPasswordBytes,
			UpgradeOnSignIn:  true,
			LegacyBcryptCost: 12,
		},
		Audit: AuditConfig{
			Async:      true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c PasswordConfig) argon2() password.Config {
	return password.Config{
		Memory:           c.Memory,
		Time:             c.Time,
		Parallelism:      c.Parallelism,
		SaltLength:       c.SaltLength,
		KeyLength:        c.KeyLength,
		MinPasswordBytes: c.MinLength,
		MaxPasswordBytes: c.MaxLength,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.RememberMeTTL < 0 {
		return errors.New("Session RememberMeTTL must be >= 0")
	}
	if c.Session.Retention < 0 {
		return errors.New("Session Retention must be >= 0")
	}

	// Refresh
	if c.Refresh.GracePeriod < 0 {
		return errors.New("Refresh GracePeriod must be >= 0")
	}
	if c.Refresh.GracePeriod >= c.JWT.AccessTTL {
		return errors.New("Refresh GracePeriod must be shorter than JWT AccessTTL")
	}
	if c.Refresh.Retention < 0 {
		return errors.New("Refresh Retention must be >= 0")
	}

	// Lockout
	if c.Lockout.Threshold < 0 {
		return errors.New("Lockout Threshold must be >= 0")
	}
	if c.Lockout.Threshold > 0 {
		if c.Lockout.Window <= 0 {
			return errors.New("Lockout Window must be > 0")
		}
		if c.Lockout.LockDuration <= 0 {
			return errors.New("Lockout LockDuration must be > 0")
		}
	}

	// Two-factor
	if c.TwoFactor.PendingTTL <= 0 {
		return errors.New("TwoFactor PendingTTL must be > 0")
	}
	if c.TwoFactor.MaxPendingAttempts < 0 {
		return errors.New("TwoFactor MaxPendingAttempts must be >= 0")
	}
	if c.TwoFactor.MaxAttemptsPerWindow < 0 {
		return errors.New("TwoFactor MaxAttemptsPerWindow must be >= 0")
	}
	if c.TwoFactor.MaxAttemptsPerWindow > 0 && c.TwoFactor.AttemptWindow <= 0 {
		return errors.New("TwoFactor AttemptWindow must be > 0 when throttling")
	}
	if c.TwoFactor.Period <= 0 {
		return errors.New("TwoFactor Period must be > 0")
	}
	if c.TwoFactor.Digits != 6 && c.TwoFactor.Digits != 8 {
		return errors.New("TwoFactor Digits must be 6 or 8")
	}
	if c.TwoFactor.Skew < 0 || c.TwoFactor.Skew > 2 {
		return errors.New("TwoFactor Skew must be between 0 and 2")
	}
	if _, err := hmacFunc(c.TwoFactor.Algorithm); err != nil {
		return err
	}

	// Recovery codes
	if c.RecoveryCodes.Count <= 0 {
		return errors.New("RecoveryCodes Count must be > 0")
	}
	if c.RecoveryCodes.Length < 8 {
		return errors.New("RecoveryCodes Length must be >= 8")
	}

	// Password reset
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.MaxAttempts < 0 {
		return errors.New("PasswordReset MaxAttempts must be >= 0")
	}
	if c.PasswordReset.MaxRequestsPerWindow < 0 {
		return errors.New("PasswordReset MaxRequestsPerWindow must be >= 0")
	}
	if c.PasswordReset.MaxRequestsPerWindow > 0 && c.PasswordReset.RequestWindow <= 0 {
		return errors.New("PasswordReset RequestWindow must be > 0 when throttling")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.LegacyBcryptCost < 0 {
		return errors.New("Password LegacyBcryptCost must be >= 0")
	}

	// Audit
	if c.Audit.Async && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Async is true")
	}

	return nil
}
