package authcore

import (
	"context"
	"log"
	"strconv"
	"time"
)

// LoginInput carries the credentials presented at login. Passphrase is the
// second secret required for the admin role and ignored for everyone else.
// An empty or unknown SessionType selects the configured default class.
type LoginInput struct {
	Email       string
	Password    string
	Passphrase  string
	SessionType SessionType
}

// Login verifies credentials and drives the MFA state machine. The result is
// one of three shapes: a full session grant, a first-time-setup payload, or a
// verify-pending payload. Gate failures before the MFA branch all collapse to
// their sentinel without revealing which gate fired beyond the error itself.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	subject := loginAttemptSubject(input.Email, ip)

	allowed, err := e.attempts.Check(ctx, ActionLogin, subject)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "", ErrSecurityBackendUnavailable, func() map[string]string {
			return map[string]string{
				"identifier": input.Email,
				"reason":     "attempt_store_unavailable",
			}
		})
		return nil, ErrSecurityBackendUnavailable
	}
	if !allowed {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", "", ErrRateLimited, func() map[string]string {
			return map[string]string{
				"identifier": input.Email,
			}
		})
		e.emitRateLimit(ctx, ActionLogin, func() map[string]string {
			return map[string]string{
				"identifier": input.Email,
			}
		})
		return nil, ErrRateLimited
	}

	// Failed attempts must count even when the request context dies mid-flow,
	// otherwise a client can cancel its way around the window.
	granted := false
	defer func() {
		if granted {
			return
		}
		bg := context.WithoutCancel(ctx)
		if _, err := e.attempts.Record(bg, ActionLogin, subject); err != nil {
			log.Print("authcore: login attempt recording failed")
		}
	}()

	if input.Email == "" || input.Password == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": input.Email,
				"reason":     "empty_credentials",
			}
		})
		return nil, ErrInvalidCredentials
	}

	principal, err := e.directory.GetPrincipalByEmail(ctx, input.Email)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": input.Email,
				"reason":     "principal_not_found",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if principal.Locked {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, principal.Role, "", ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"identifier": input.Email,
				"reason":     "account_locked",
			}
		})
		return nil, ErrAccountLocked
	}

	ok, err := e.passwordHash.Verify(input.Password, principal.PasswordHash)
	if err != nil || !ok {
		e.recordPasswordFailure(ctx, principal)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, principal.Role, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": input.Email,
				"reason":     "password_mismatch",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if !principal.EmailVerified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, principal.Role, "", ErrEmailNotVerified, func() map[string]string {
			return map[string]string{
				"identifier": input.Email,
				"reason":     "email_not_verified",
			}
		})
		return nil, ErrEmailNotVerified
	}

	// Admins operate across offices and are exempt from the membership gate.
	if principal.Role != RoleAdmin && principal.OfficeWithdrawn {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, principal.Role, "", ErrOfficeWithdrawn, func() map[string]string {
			return map[string]string{
				"identifier": input.Email,
				"reason":     "office_withdrawn",
			}
		})
		return nil, ErrOfficeWithdrawn
	}

	if principal.Deleted {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, principal.Role, "", ErrAccountDeleted, func() map[string]string {
			return map[string]string{
				"identifier": input.Email,
				"reason":     "account_deleted",
			}
		})
		return nil, ErrAccountDeleted
	}

	if principal.Role == RoleAdmin {
		if input.Passphrase == "" {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, principal.Role, "", ErrPassphraseRequired, func() map[string]string {
				return map[string]string{
					"identifier": input.Email,
					"reason":     "passphrase_missing",
				}
			})
			return nil, ErrPassphraseRequired
		}
		ok, err := e.passwordHash.Verify(input.Passphrase, principal.PassphraseHash)
		if err != nil || !ok {
			e.recordPasswordFailure(ctx, principal)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, principal.Role, "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{
					"identifier": input.Email,
					"reason":     "passphrase_mismatch",
				}
			})
			return nil, ErrInvalidCredentials
		}
	}

	if principal.FailedPasswordAttempts > 0 {
		// Counter reset is best-effort and must not block successful login.
		if err := e.directory.ResetFailedPassword(ctx, principal.ID); err != nil {
			log.Print("authcore: failed password counter reset failed")
		}
	}
	if err := e.attempts.Reset(ctx, ActionLogin, subject); err != nil {
		log.Print("authcore: login attempt window reset failed")
	}

	if needsUpgrade, err := e.passwordHash.NeedsUpgrade(principal.PasswordHash); err == nil && needsUpgrade {
		if upgradedHash, err := e.passwordHash.Hash(input.Password); err == nil {
			// Rehash update is best-effort and must not block successful login.
			if err := e.directory.UpdatePasswordHash(ctx, principal.ID, upgradedHash); err != nil {
				log.Print("authcore: password hash upgrade update failed")
			}
		} else {
			log.Print("authcore: password hash upgrade generation failed")
		}
	}
	input.Password = ""
	input.Passphrase = ""

	sessionType := e.resolveSessionType(input.SessionType)
	duration := e.config.Session.Duration(sessionType)

	switch {
	case principal.MFAEnabled && !principal.MFAVerifiedByUser:
		granted = true
		return e.loginMFAFirstSetup(ctx, principal, sessionType, duration)
	case principal.MFAEnabled:
		granted = true
		return e.loginMFAVerifyPending(ctx, principal, sessionType, duration)
	}

	access, refresh, grantedDuration, err := e.issueSession(ctx, principal.ID, sessionType)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, principal.Role, "", err, func() map[string]string {
			return map[string]string{
				"identifier": input.Email,
				"reason":     "issue_session_failed",
			}
		})
		return nil, err
	}

	granted = true
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, principal.ID, principal.Role, principal.ID, nil, func() map[string]string {
		return map[string]string{
			"session_type": string(sessionType),
		}
	})

	return &LoginResult{
		AccessToken:     access,
		RefreshToken:    refresh,
		SessionType:     sessionType,
		SessionDuration: int(grantedDuration.Seconds()),
	}, nil
}

// loginMFAFirstSetup handles an account whose MFA was enabled by an admin but
// never confirmed by the owner. The decrypted secret and provisioning URI are
// handed out exactly once here, under a short-lived setup token.
func (e *Engine) loginMFAFirstSetup(ctx context.Context, principal PrincipalRecord, sessionType SessionType, duration time.Duration) (*LoginResult, error) {
	secret, err := e.secrets.Decrypt(principal.EncryptedMFASecret)
	if err != nil || len(secret) == 0 {
		e.metricInc(MetricMFASecretCorrupted)
		e.emitAudit(ctx, auditEventMFASecretCorrupted, false, principal.ID, principal.Role, principal.ID, ErrMFASecretCorrupted, nil)
		return nil, ErrMFASecretCorrupted
	}

	secretBase32 := encodeTOTPSecret(secret)
	temp, err := e.jwtManager.CreateTemporary(principal.ID, mfaPurposeFirstSetup, string(sessionType), duration)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, principal.Role, "", err, func() map[string]string {
			return map[string]string{
				"reason": "temporary_token_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricMFAFirstSetupRequired)
	e.emitAudit(ctx, auditEventMFAFirstSetupRequired, true, principal.ID, principal.Role, principal.ID, nil, nil)

	return &LoginResult{
		SessionType:           sessionType,
		SessionDuration:       int(duration.Seconds()),
		RequiresMFAFirstSetup: true,
		TemporaryToken:        temp,
		MFASecret:             secretBase32,
		MFAProvisioningURI:    e.totp.ProvisionURI(secretBase32, principal.Email),
	}, nil
}

// loginMFAVerifyPending handles the steady state: MFA is enabled and
// confirmed, so the password grant stops at a verify-pending temporary token.
func (e *Engine) loginMFAVerifyPending(ctx context.Context, principal PrincipalRecord, sessionType SessionType, duration time.Duration) (*LoginResult, error) {
	temp, err := e.jwtManager.CreateTemporary(principal.ID, mfaPurposeVerify, string(sessionType), duration)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, principal.Role, "", err, func() map[string]string {
			return map[string]string{
				"reason": "temporary_token_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricMFARequired)
	e.emitAudit(ctx, auditEventMFARequired, true, principal.ID, principal.Role, principal.ID, nil, nil)

	return &LoginResult{
		SessionType:     sessionType,
		SessionDuration: int(duration.Seconds()),
		RequiresMFA:     true,
		TemporaryToken:  temp,
	}, nil
}

// recordPasswordFailure bumps the directory-side failed-password counter and
// locks the account at the configured threshold.
func (e *Engine) recordPasswordFailure(ctx context.Context, principal PrincipalRecord) {
	bg := context.WithoutCancel(ctx)

	count, err := e.directory.RecordFailedPassword(bg, principal.ID)
	if err != nil {
		log.Print("authcore: failed password counter update failed")
		return
	}
	if count < e.config.Password.MaxFailedAttempts {
		return
	}

	if err := e.directory.SetLocked(bg, principal.ID, true); err != nil {
		log.Print("authcore: account lock update failed")
		return
	}
	e.metricInc(MetricAccountLocked)
	e.emitAudit(ctx, auditEventAccountLocked, true, principal.ID, principal.Role, principal.ID, nil, func() map[string]string {
		return map[string]string{
			"failed_attempts": strconv.Itoa(count),
		}
	})
}

func loginAttemptSubject(email, ip string) string {
	return email + "|" + ip
}
