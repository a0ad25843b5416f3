package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricSignInSuccess, Name: "authcore_sign_in_success_total", Help: "Sign-ins that issued a session."},
	{ID: authcore.MetricSignInFailure, Name: "authcore_sign_in_failure_total", Help: "Sign-ins rejected for bad credentials or disabled accounts."},
	{ID: authcore.MetricSignInLocked, Name: "authcore_sign_in_locked_total", Help: "Sign-ins refused while the account was locked."},
	{ID: authcore.MetricAccountLockedOut, Name: "authcore_account_locked_out_total", Help: "Locks raised by repeated failures."},
	{ID: authcore.MetricTwoFactorRequired, Name: "authcore_two_factor_required_total", Help: "Sign-ins parked for a second factor."},
	{ID: authcore.MetricTwoFactorSuccess, Name: "authcore_two_factor_success_total", Help: "Completed second-factor checks."},
	{ID: authcore.MetricTwoFactorFailure, Name: "authcore_two_factor_failure_total", Help: "Rejected second-factor codes."},
	{ID: authcore.MetricTwoFactorExpired, Name: "authcore_two_factor_expired_total", Help: "Completions against a missing or expired pending sign-in."},
	{ID: authcore.MetricTwoFactorRateLimited, Name: "authcore_two_factor_rate_limited_total", Help: "Second-factor attempts refused by the per-user window."},
	{ID: authcore.MetricTOTPReplay, Name: "authcore_totp_replay_total", Help: "Authenticator codes rejected as replays."},
	{ID: authcore.MetricRecoveryCodeUsed, Name: "authcore_recovery_code_used_total", Help: "Recovery codes spent."},
	{ID: authcore.MetricRecoveryCodesGenerated, Name: "authcore_recovery_codes_generated_total", Help: "Recovery code sets generated."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Refresh tokens redeemed."},
	{ID: authcore.MetricRefreshGraceReissue, Name: "authcore_refresh_grace_reissue_total", Help: "Superseded refresh tokens honoured within the grace period."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Refresh tokens rejected."},
	{ID: authcore.MetricRefreshTheftDetected, Name: "authcore_refresh_theft_detected_total", Help: "Refresh replays treated as theft."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Sessions issued."},
	{ID: authcore.MetricSessionRevoked, Name: "authcore_session_revoked_total", Help: "Single sessions revoked."},
	{ID: authcore.MetricSessionRevokeAll, Name: "authcore_session_revoke_all_total", Help: "Revoke-all operations."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Reset tokens issued."},
	{ID: authcore.MetricPasswordResetThrottled, Name: "authcore_password_reset_throttled_total", Help: "Reset requests dropped by the per-email window."},
	{ID: authcore.MetricPasswordResetConfirmSuccess, Name: "authcore_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: authcore.MetricPasswordResetConfirmFailure, Name: "authcore_password_reset_confirm_failure_total", Help: "Rejected reset tokens."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "authcore_password_change_success_total", Help: "Password changes."},
	{ID: authcore.MetricPasswordChangeInvalidOld, Name: "authcore_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: authcore.MetricPasswordHashUpgraded, Name: "authcore_password_hash_upgraded_total", Help: "Stored hashes rewritten with current parameters."},
	{ID: authcore.MetricEmailChanged, Name: "authcore_email_changed_total", Help: "Email address changes."},
	{ID: authcore.MetricValidateSuccess, Name: "authcore_validate_success_total", Help: "Access tokens accepted."},
	{ID: authcore.MetricValidateFailure, Name: "authcore_validate_failure_total", Help: "Access tokens rejected."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricSignInLatency, Name: "authcore_sign_in_latency_seconds", Help: "SignIn and CompleteTwoFactor latency."},
	{ID: authcore.MetricRefreshLatency, Name: "authcore_refresh_latency_seconds", Help: "RefreshToken latency."},
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "ValidateAccessToken latency."},
}

// AuditDroppedName is the counter for events lost to a full async buffer.
const (
	AuditDroppedName = "authcore_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the async buffer was full."
)

// BucketCount matches the engine's fixed latency buckets.
const BucketCount = 8

// HistogramBounds are the upper bounds in seconds, as Prometheus le labels.
var HistogramBounds = [BucketCount]string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form valid inside an
// instrument name.
var HistogramBoundSuffix = [BucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// Cumulative converts raw per-bucket counts into running totals. Missing
// trailing buckets count as zero; extra ones are ignored.
func Cumulative(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < BucketCount; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
