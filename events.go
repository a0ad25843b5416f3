package authcore

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/authcore/internal/audit"
)

// Event is a typed domain event. Switch on the concrete type to read its
// fields.
type Event = audit.Event

// Severity ranks events for routing; SlogSink maps it to a log level.
type Severity = audit.Severity

const (
	SeverityInfo     = audit.SeverityInfo
	SeverityWarning  = audit.SeverityWarning
	SeverityCritical = audit.SeverityCritical
)

// EventSink receives events from the engine's dispatcher. Implementations
// must be safe for concurrent use.
type EventSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	SlogSink       = audit.SlogSink
	MultiSink      = audit.MultiSink
)

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

func NewSlogSink(logger *slog.Logger) *SlogSink { return audit.NewSlogSink(logger) }

type (
	UserSignedInEvent              = audit.UserSignedInEvent
	SignInFailedEvent              = audit.SignInFailedEvent
	AccountLockedOutEvent          = audit.AccountLockedOutEvent
	TwoFactorRequiredEvent         = audit.TwoFactorRequiredEvent
	TwoFactorFailedEvent           = audit.TwoFactorFailedEvent
	RecoveryCodeUsedEvent          = audit.RecoveryCodeUsedEvent
	RefreshTokenRotatedEvent       = audit.RefreshTokenRotatedEvent
	RefreshTokenTheftDetectedEvent = audit.RefreshTokenTheftDetectedEvent
	SessionRevokedEvent            = audit.SessionRevokedEvent
	AllSessionsRevokedEvent        = audit.AllSessionsRevokedEvent
	PasswordResetRequestedEvent    = audit.PasswordResetRequestedEvent
	PasswordResetCompletedEvent    = audit.PasswordResetCompletedEvent
)
