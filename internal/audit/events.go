package audit

import "time"

// Sign-in failure reasons carried by SignInFailedEvent.
const (
	ReasonLocked        = "locked"
	ReasonUnknownUser   = "unknown_user"
	ReasonBadPassword   = "bad_password"
	ReasonMalformedHash = "malformed_hash"
	ReasonDisabled      = "disabled"
)

// Second-factor methods carried by TwoFactorFailedEvent.
const (
	MethodTOTP     = "totp"
	MethodRecovery = "recovery"
)

type UserSignedInEvent struct {
	At            time.Time `json:"at"`
	UserID        string    `json:"user_id"`
	SessionID     string    `json:"session_id"`
	IPAddress     string    `json:"ip_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	TwoFactorUsed bool      `json:"two_factor_used"`
}

func (UserSignedInEvent) EventName() string       { return "user_signed_in" }
func (UserSignedInEvent) Severity() Severity      { return SeverityInfo }
func (e UserSignedInEvent) OccurredAt() time.Time { return e.At }

// SignInFailedEvent is emitted for every rejected credential check. Email is
// the normalized address; UserID is empty when the address is unknown.
type SignInFailedEvent struct {
	At        time.Time `json:"at"`
	Email     string    `json:"email"`
	UserID    string    `json:"user_id,omitempty"`
	Reason    string    `json:"reason"`
	IPAddress string    `json:"ip_address,omitempty"`
}

func (SignInFailedEvent) EventName() string       { return "sign_in_failed" }
func (SignInFailedEvent) Severity() Severity      { return SeverityWarning }
func (e SignInFailedEvent) OccurredAt() time.Time { return e.At }

type AccountLockedOutEvent struct {
	At           time.Time     `json:"at"`
	Email        string        `json:"email"`
	FailureCount int           `json:"failure_count"`
	LockedFor    time.Duration `json:"locked_for"`
}

func (AccountLockedOutEvent) EventName() string       { return "account_locked_out" }
func (AccountLockedOutEvent) Severity() Severity      { return SeverityWarning }
func (e AccountLockedOutEvent) OccurredAt() time.Time { return e.At }

type TwoFactorRequiredEvent struct {
	At               time.Time `json:"at"`
	UserID           string    `json:"user_id"`
	PendingSessionID string    `json:"pending_session_id"`
}

func (TwoFactorRequiredEvent) EventName() string       { return "two_factor_required" }
func (TwoFactorRequiredEvent) Severity() Severity      { return SeverityInfo }
func (e TwoFactorRequiredEvent) OccurredAt() time.Time { return e.At }

type TwoFactorFailedEvent struct {
	At               time.Time `json:"at"`
	UserID           string    `json:"user_id,omitempty"`
	PendingSessionID string    `json:"pending_session_id"`
	Method           string    `json:"method"`
	Reason           string    `json:"reason"`
}

func (TwoFactorFailedEvent) EventName() string       { return "two_factor_failed" }
func (TwoFactorFailedEvent) Severity() Severity      { return SeverityWarning }
func (e TwoFactorFailedEvent) OccurredAt() time.Time { return e.At }

// RecoveryCodeUsedEvent is a warning so operators notice accounts running
// out of codes.
type RecoveryCodeUsedEvent struct {
	At        time.Time `json:"at"`
	UserID    string    `json:"user_id"`
	Remaining int       `json:"remaining"`
}

func (RecoveryCodeUsedEvent) EventName() string       { return "recovery_code_used" }
func (RecoveryCodeUsedEvent) Severity() Severity      { return SeverityWarning }
func (e RecoveryCodeUsedEvent) OccurredAt() time.Time { return e.At }

type RefreshTokenRotatedEvent struct {
	At        time.Time `json:"at"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Grace     bool      `json:"grace"`
}

func (RefreshTokenRotatedEvent) EventName() string       { return "refresh_token_rotated" }
func (RefreshTokenRotatedEvent) Severity() Severity      { return SeverityInfo }
func (e RefreshTokenRotatedEvent) OccurredAt() time.Time { return e.At }

type RefreshTokenTheftDetectedEvent struct {
	At              time.Time `json:"at"`
	UserID          string    `json:"user_id"`
	SessionID       string    `json:"session_id"`
	TokenID         string    `json:"token_id"`
	RevokedSessions int       `json:"revoked_sessions"`
}

func (RefreshTokenTheftDetectedEvent) EventName() string       { return "refresh_token_theft_detected" }
func (RefreshTokenTheftDetectedEvent) Severity() Severity      { return SeverityCritical }
func (e RefreshTokenTheftDetectedEvent) OccurredAt() time.Time { return e.At }

type SessionRevokedEvent struct {
	At        time.Time `json:"at"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
}

func (SessionRevokedEvent) EventName() string       { return "session_revoked" }
func (SessionRevokedEvent) Severity() Severity      { return SeverityInfo }
func (e SessionRevokedEvent) OccurredAt() time.Time { return e.At }

type AllSessionsRevokedEvent struct {
	At              time.Time `json:"at"`
	UserID          string    `json:"user_id"`
	Reason          string    `json:"reason"`
	ExceptSessionID string    `json:"except_session_id,omitempty"`
	Count           int       `json:"count"`
}

func (AllSessionsRevokedEvent) EventName() string       { return "all_sessions_revoked" }
func (AllSessionsRevokedEvent) Severity() Severity      { return SeverityWarning }
func (e AllSessionsRevokedEvent) OccurredAt() time.Time { return e.At }

type PasswordResetRequestedEvent struct {
	At     time.Time `json:"at"`
	UserID string    `json:"user_id"`
}

func (PasswordResetRequestedEvent) EventName() string       { return "password_reset_requested" }
func (PasswordResetRequestedEvent) Severity() Severity      { return SeverityInfo }
func (e PasswordResetRequestedEvent) OccurredAt() time.Time { return e.At }

type PasswordResetCompletedEvent struct {
	At     time.Time `json:"at"`
	UserID string    `json:"user_id"`
}

func (PasswordResetCompletedEvent) EventName() string       { return "password_reset_completed" }
func (PasswordResetCompletedEvent) Severity() Severity      { return SeverityInfo }
func (e PasswordResetCompletedEvent) OccurredAt() time.Time { return e.At }
