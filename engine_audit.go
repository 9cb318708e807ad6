package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginRateLimited       = "login_rate_limited"
	auditEventAccountLocked          = "account_locked"
	auditEventAccountUnlocked        = "account_unlocked"
	auditEventMFARequired            = "mfa_required"
	auditEventMFAFirstSetupRequired  = "mfa_first_setup_required"
	auditEventMFASuccess             = "mfa_success"
	auditEventMFAFailure             = "mfa_failure"
	auditEventMFASecretCorrupted     = "mfa_secret_corrupted"
	auditEventMFAEnrolled            = "mfa_enrolled"
	auditEventMFAActivated           = "mfa_activated"
	auditEventMFADisabled            = "mfa_disabled"
	auditEventRecoveryCodesGenerated = "recovery_codes_generated"
	auditEventRecoveryCodeUsed       = "recovery_code_used"
	auditEventRecoveryCodeFailed     = "recovery_code_failed"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshRejected        = "refresh_rejected"
	auditEventTokenRevoked           = "token_revoked"
	auditEventLogout                 = "logout"
	auditEventPasswordChangeSuccess  = "password_change_success"
	auditEventPasswordChangeFailure  = "password_change_failure"
	auditEventPasswordChangeReuse    = "password_change_reuse_attempt"
	auditEventPasswordBreached       = "password_breach_detected"
	auditEventBreachCheckFailOpen    = "breach_check_fail_open"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventPasswordResetConfirm   = "password_reset_confirm"
	auditEventEmailVerifyRequest     = "email_verification_request"
	auditEventEmailVerifyConfirm     = "email_verification_confirm"
	auditEventAccountRegistered      = "account_registered"
	auditEventRateLimitTriggered     = "rate_limit_triggered"
)

const auditTargetStaff = "staff"

// AuditErrorCode defines a public type used by authcore APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrPassphraseRequired  AuditErrorCode = "passphrase_required"
	auditErrEmailNotVerified    AuditErrorCode = "email_not_verified"
	auditErrOfficeWithdrawn     AuditErrorCode = "office_withdrawn"
	auditErrAccountLocked       AuditErrorCode = "account_locked"
	auditErrAccountDeleted      AuditErrorCode = "account_deleted"
	auditErrPrincipalNotFound   AuditErrorCode = "principal_not_found"
	auditErrDuplicate           AuditErrorCode = "duplicate"
	auditErrMFAInvalid          AuditErrorCode = "mfa_invalid"
	auditErrMFAState            AuditErrorCode = "mfa_state"
	auditErrMFASecretCorrupted  AuditErrorCode = "mfa_secret_corrupted"
	auditErrInvalidToken        AuditErrorCode = "invalid_token"
	auditErrTokenRevoked        AuditErrorCode = "token_revoked"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrPasswordPolicy      AuditErrorCode = "password_policy"
	auditErrPasswordBreached    AuditErrorCode = "password_breached"
	auditErrPasswordReuse       AuditErrorCode = "password_reuse"
	auditErrChallengeInvalid    AuditErrorCode = "challenge_invalid"
	auditErrAttemptsExceeded    AuditErrorCode = "attempts_exceeded"
	auditErrBackendUnavailable  AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	actorID string,
	actorRole Role,
	targetID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	targetType := ""
	if targetID != "" {
		targetType = auditTargetStaff
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		ActorID:    actorID,
		ActorRole:  string(actorRole),
		TargetType: targetType,
		TargetID:   targetID,
		OfficeID:   officeIDFromContext(ctx),
		IP:         clientIPFromContext(ctx),
		UserAgent:  userAgentFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope AttemptAction,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", "", nil, func() map[string]string {
		base := map[string]string{
			"scope": string(scope),
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrPassphraseRequired):
		return auditErrPassphraseRequired
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrEmailNotVerified
	case errors.Is(err, ErrOfficeWithdrawn):
		return auditErrOfficeWithdrawn
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDeleted):
		return auditErrAccountDeleted
	case errors.Is(err, ErrPrincipalNotFound):
		return auditErrPrincipalNotFound
	case errors.Is(err, ErrDuplicateEmail):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidMFACredential):
		return auditErrMFAInvalid
	case errors.Is(err, ErrMFAAlreadyVerified),
		errors.Is(err, ErrMFAAlreadyEnabled),
		errors.Is(err, ErrMFANotEnrolled),
		errors.Is(err, ErrMFANotEnabled):
		return auditErrMFAState
	case errors.Is(err, ErrMFASecretCorrupted):
		return auditErrMFASecretCorrupted
	case errors.Is(err, ErrRefreshTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrWeakPassword):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordBreached):
		return auditErrPasswordBreached
	case errors.Is(err, ErrPasswordReused):
		return auditErrPasswordReuse
	case errors.Is(err, ErrResetChallengeInvalid),
		errors.Is(err, ErrVerificationInvalid):
		return auditErrChallengeInvalid
	case errors.Is(err, ErrResetAttemptsExceeded),
		errors.Is(err, ErrVerificationAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrSecurityBackendUnavailable):
		return auditErrBackendUnavailable
	default:
		return auditErrInternal
	}
}
