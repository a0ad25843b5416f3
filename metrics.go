package authcore

import (
	"github.com/MrEthical07/authcore/internal/metrics"
)

// MetricID identifies one counter or latency histogram.
type MetricID = metrics.ID

// MetricsSnapshot is a point-in-time copy of every metric. Histogram
// slices hold non-cumulative counts for the buckets <=5ms, <=10ms, <=25ms,
// <=50ms, <=100ms, <=250ms, <=500ms and +Inf.
type MetricsSnapshot = metrics.Snapshot

const (
	MetricSignInSuccess               = metrics.SignInSuccess
	MetricSignInFailure               = metrics.SignInFailure
	MetricSignInLocked                = metrics.SignInLocked
	MetricAccountLockedOut            = metrics.AccountLockedOut
	MetricTwoFactorRequired           = metrics.TwoFactorRequired
	MetricTwoFactorSuccess            = metrics.TwoFactorSuccess
	MetricTwoFactorFailure            = metrics.TwoFactorFailure
	MetricTwoFactorExpired            = metrics.TwoFactorExpired
	MetricTwoFactorRateLimited        = metrics.TwoFactorRateLimited
	MetricTOTPReplay                  = metrics.TOTPReplay
	MetricRecoveryCodeUsed            = metrics.RecoveryCodeUsed
	MetricRecoveryCodesGenerated      = metrics.RecoveryCodesGenerated
	MetricRefreshSuccess              = metrics.RefreshSuccess
	MetricRefreshGraceReissue         = metrics.RefreshGraceReissue
	MetricRefreshFailure              = metrics.RefreshFailure
	MetricRefreshTheftDetected        = metrics.RefreshTheftDetected
	MetricSessionCreated              = metrics.SessionCreated
	MetricSessionRevoked              = metrics.SessionRevoked
	MetricSessionRevokeAll            = metrics.SessionRevokeAll
	MetricPasswordResetRequest        = metrics.PasswordResetRequest
	MetricPasswordResetThrottled      = metrics.PasswordResetThrottled
	MetricPasswordResetConfirmSuccess = metrics.PasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure = metrics.PasswordResetConfirmFailure
	MetricPasswordChangeSuccess       = metrics.PasswordChangeSuccess
	MetricPasswordChangeInvalidOld    = metrics.PasswordChangeInvalidOld
	MetricPasswordHashUpgraded        = metrics.PasswordHashUpgraded
	MetricEmailChanged                = metrics.EmailChanged
	MetricValidateSuccess             = metrics.ValidateSuccess
	MetricValidateFailure             = metrics.ValidateFailure
	MetricSignInLatency               = metrics.SignInLatency
	MetricRefreshLatency              = metrics.RefreshLatency
	MetricValidateLatency             = metrics.ValidateLatency
)
