package authcore

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RegisterInput carries the fields for account registration. Passphrase is
// required when Role is the admin role and rejected otherwise.
type RegisterInput struct {
	Email      string
	Name       string
	Role       Role
	Password   string
	Passphrase string
}

// Register creates a new account with a screened password and kicks off
// email verification. The account cannot log in until the verification
// challenge is spent.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (PrincipalRecord, error) {
	if e == nil || e.directory == nil || e.passwordHash == nil {
		return PrincipalRecord{}, ErrEngineNotReady
	}

	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || input.Password == "" {
		return PrincipalRecord{}, ErrWeakPassword
	}
	if input.Role == RoleAdmin && input.Passphrase == "" {
		return PrincipalRecord{}, ErrPassphraseRequired
	}

	if err := passwordMeetsPolicy(e.config.Password, input.Password); err != nil {
		return PrincipalRecord{}, err
	}
	if e.breach != nil {
		count, err := e.breach.Check(ctx, input.Password)
		switch {
		case err != nil:
			e.metricInc(MetricBreachCheckFailOpen)
			e.emitAudit(ctx, auditEventBreachCheckFailOpen, false, "", "", "", nil, func() map[string]string {
				return map[string]string{
					"error": err.Error(),
				}
			})
		case count > 0:
			e.metricInc(MetricPasswordBreachDetected)
			e.emitAudit(ctx, auditEventPasswordBreached, false, "", "", "", ErrPasswordBreached, func() map[string]string {
				return map[string]string{
					"identifier": email,
				}
			})
			return PrincipalRecord{}, ErrPasswordBreached
		}
	}

	passwordHash, err := e.passwordHash.Hash(input.Password)
	if err != nil {
		return PrincipalRecord{}, ErrWeakPassword
	}
	passphraseHash := ""
	if input.Role == RoleAdmin {
		passphraseHash, err = e.passwordHash.Hash(input.Passphrase)
		if err != nil {
			return PrincipalRecord{}, ErrWeakPassword
		}
	}

	principal, err := e.directory.CreatePrincipal(ctx, CreatePrincipalInput{
		Email:          email,
		Name:           input.Name,
		Role:           input.Role,
		PasswordHash:   passwordHash,
		PassphraseHash: passphraseHash,
	})
	if err != nil {
		e.metricInc(MetricRegistrationDuplicate)
		e.emitAudit(ctx, auditEventAccountRegistered, false, "", input.Role, "", err, func() map[string]string {
			return map[string]string{
				"identifier": email,
			}
		})
		return PrincipalRecord{}, err
	}

	e.metricInc(MetricRegistrationSuccess)
	e.emitAudit(ctx, auditEventAccountRegistered, true, principal.ID, principal.Role, principal.ID, nil, func() map[string]string {
		return map[string]string{
			"identifier": email,
			"role":       string(principal.Role),
		}
	})

	if err := e.issueVerificationChallenge(ctx, principal); err != nil {
		// Registration already committed; the owner can request a fresh
		// verification mail later.
		log.Print("authcore: verification challenge issue failed after registration")
	}

	return principal, nil
}

// VerifyEmail spends a verification challenge and marks the account's email
// address verified.
//
// VerifyEmail may return an error when input validation, dependency calls, or security checks fail.
// VerifyEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil || e.directory == nil || e.verifications == nil {
		return ErrEngineNotReady
	}

	verificationID, providedHash, err := splitChallengeToken(token)
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerifyConfirm, false, "", "", "", ErrVerificationInvalid, func() map[string]string {
			return map[string]string{
				"reason": "malformed_token",
			}
		})
		return ErrVerificationInvalid
	}

	record, err := e.verifications.Consume(ctx, verificationID, providedHash, e.config.Verification.MaxAttempts)
	if err != nil {
		mapped := mapChallengeError(err, ErrVerificationInvalid, ErrVerificationAttemptsExceeded)
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerifyConfirm, false, "", "", "", mapped, nil)
		return mapped
	}

	if err := e.directory.MarkEmailVerified(ctx, record.PrincipalID); err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerifyConfirm, false, record.PrincipalID, "", record.PrincipalID, err, nil)
		return err
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerifyConfirm, true, record.PrincipalID, "", record.PrincipalID, nil, nil)

	return nil
}

// ResendVerification issues a fresh verification challenge for an unverified
// account. Like the reset flow, the response never reveals whether the email
// is known or already verified.
//
// ResendVerification may return an error when input validation, dependency calls, or security checks fail.
// ResendVerification does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if e == nil || e.directory == nil || e.verifications == nil {
		return ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	subject := loginAttemptSubject(email, ip)

	allowed, err := e.attempts.Check(ctx, ActionEmailVerification, subject)
	if err != nil {
		return ErrSecurityBackendUnavailable
	}
	if !allowed {
		e.emitRateLimit(ctx, ActionEmailVerification, func() map[string]string {
			return map[string]string{
				"identifier": email,
			}
		})
		return ErrRateLimited
	}
	if _, err := e.attempts.Record(ctx, ActionEmailVerification, subject); err != nil {
		log.Print("authcore: verification attempt recording failed")
	}

	principal, err := e.directory.GetPrincipalByEmail(ctx, email)
	if err != nil || principal.Deleted || principal.EmailVerified {
		return nil
	}

	return e.issueVerificationChallenge(ctx, principal)
}

// issueVerificationChallenge stores a fresh challenge and mails its token.
func (e *Engine) issueVerificationChallenge(ctx context.Context, principal PrincipalRecord) error {
	verificationID := uuid.NewString()
	secret, secretHash, err := newChallengeSecret()
	if err != nil {
		return err
	}

	record := &challengeRecord{
		PrincipalID: principal.ID,
		SecretHash:  secretHash,
		ExpiresAt:   time.Now().Add(e.config.Verification.TTL).Unix(),
	}
	if err := e.verifications.Save(ctx, verificationID, record, e.config.Verification.TTL); err != nil {
		return ErrSecurityBackendUnavailable
	}

	e.sendEmailAsync(ctx, principal.Email, EmailTemplateVerify, map[string]string{
		"name":  principal.Name,
		"token": verificationID + "." + secret,
	})

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventEmailVerifyRequest, true, principal.ID, principal.Role, principal.ID, nil, nil)

	return nil
}
