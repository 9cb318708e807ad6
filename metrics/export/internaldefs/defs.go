package internaldefs

import (
	"github.com/keikakun/authcore"
)

// CounterDef defines a public type used by authcore APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by authcore APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Accounts locked after repeated password failures."},
	{ID: authcore.MetricMFARequired, Name: "authcore_mfa_required_total", Help: "Login flows requiring MFA verification."},
	{ID: authcore.MetricMFAFirstSetupRequired, Name: "authcore_mfa_first_setup_required_total", Help: "Login flows entering first-time MFA setup."},
	{ID: authcore.MetricMFASuccess, Name: "authcore_mfa_success_total", Help: "Successful MFA verifications."},
	{ID: authcore.MetricMFAFailure, Name: "authcore_mfa_failure_total", Help: "Failed MFA verifications."},
	{ID: authcore.MetricMFASecretCorrupted, Name: "authcore_mfa_secret_corrupted_total", Help: "MFA secrets that could not be decrypted."},
	{ID: authcore.MetricMFAEnrolled, Name: "authcore_mfa_enrolled_total", Help: "MFA enrollment operations."},
	{ID: authcore.MetricMFADisabled, Name: "authcore_mfa_disabled_total", Help: "MFA disable operations."},
	{ID: authcore.MetricRecoveryCodeUsed, Name: "authcore_recovery_code_used_total", Help: "Successful recovery-code authentications."},
	{ID: authcore.MetricRecoveryCodeFailed, Name: "authcore_recovery_code_failed_total", Help: "Failed recovery-code authentications."},
	{ID: authcore.MetricRecoveryCodesGenerated, Name: "authcore_recovery_codes_generated_total", Help: "Recovery-code batch generations."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh operations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authcore.MetricRefreshRevoked, Name: "authcore_refresh_revoked_total", Help: "Refresh attempts rejected as revoked."},
	{ID: authcore.MetricTokenRevoked, Name: "authcore_token_revoked_total", Help: "Refresh token revocation operations."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "authcore_password_change_success_total", Help: "Successful password changes."},
	{ID: authcore.MetricPasswordChangeInvalidOld, Name: "authcore_password_change_invalid_old_total", Help: "Password change attempts with invalid old password."},
	{ID: authcore.MetricPasswordChangeReuseRejected, Name: "authcore_password_change_reuse_rejected_total", Help: "Password change attempts rejected for reuse."},
	{ID: authcore.MetricPasswordBreachDetected, Name: "authcore_password_breach_detected_total", Help: "Candidate passwords found in the breach corpus."},
	{ID: authcore.MetricBreachCheckFailOpen, Name: "authcore_breach_check_fail_open_total", Help: "Breach screenings that failed open on corpus errors."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset requests."},
	{ID: authcore.MetricPasswordResetConfirmSuccess, Name: "authcore_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: authcore.MetricPasswordResetConfirmFailure, Name: "authcore_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: authcore.MetricEmailVerificationRequest, Name: "authcore_email_verification_request_total", Help: "Email verification requests."},
	{ID: authcore.MetricEmailVerificationSuccess, Name: "authcore_email_verification_success_total", Help: "Successful email verifications."},
	{ID: authcore.MetricEmailVerificationFailure, Name: "authcore_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: authcore.MetricRegistrationSuccess, Name: "authcore_registration_success_total", Help: "Successful account registrations."},
	{ID: authcore.MetricRegistrationDuplicate, Name: "authcore_registration_duplicate_total", Help: "Registrations rejected by the directory."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Attempt-window checks that denied requests."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "ValidateAccess latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
