package httpapi

// LoginRequest is the body of POST /auth/token.
type LoginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Passphrase  string `json:"passphrase,omitempty"`
	SessionType string `json:"session_type,omitempty"`
}

// LoginResponse is the body returned by POST /auth/token. On a full grant the
// access token is set as a cookie and RefreshToken is populated; when MFA is
// pending only the temporary-token fields are set.
type LoginResponse struct {
	RefreshToken    string `json:"refresh_token,omitempty"`
	SessionType     string `json:"session_type,omitempty"`
	SessionDuration int    `json:"session_duration,omitempty"`

	MFARequired           bool   `json:"mfa_required,omitempty"`
	MFAFirstSetupRequired bool   `json:"mfa_first_setup_required,omitempty"`
	TemporaryToken        string `json:"temporary_token,omitempty"`
	MFASecret             string `json:"mfa_secret,omitempty"`
	MFAProvisioningURI    string `json:"mfa_provisioning_uri,omitempty"`
}

// MFAConfirmRequest is the body of the two temporary-token MFA endpoints.
type MFAConfirmRequest struct {
	TemporaryToken string `json:"temporary_token"`
	Code           string `json:"code"`
}

// SessionResponse is the grant returned after MFA confirmation.
type SessionResponse struct {
	RefreshToken    string   `json:"refresh_token"`
	SessionType     string   `json:"session_type"`
	SessionDuration int      `json:"session_duration"`
	RecoveryCodes   []string `json:"recovery_codes,omitempty"`
}

// RefreshRequest is the body of POST /auth/refresh-token and POST /auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse is the body returned by POST /auth/refresh-token. The new
// access token is set as a cookie; no new refresh token is issued.
type RefreshResponse struct {
	SessionType     string `json:"session_type"`
	SessionDuration int    `json:"session_duration"`
}

// RegisterRequest is the body of POST /auth/register-admin.
type RegisterRequest struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Password   string `json:"password"`
	Passphrase string `json:"passphrase,omitempty"`
}

// RegisterResponse is the body returned by POST /auth/register-admin.
type RegisterResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// VerifyEmailRequest is the body of POST /auth/verify-email.
type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// ResendVerificationRequest is the body of POST /auth/resend-verification.
type ResendVerificationRequest struct {
	Email string `json:"email"`
}

// PasswordChangeRequest is the body of POST /auth/password-change.
type PasswordChangeRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// PasswordResetRequestBody is the body of POST /auth/password-reset/request.
type PasswordResetRequestBody struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest is the body of POST /auth/password-reset/confirm.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// MFACodeRequest carries a second-factor credential for the guarded MFA
// management endpoints.
type MFACodeRequest struct {
	Code string `json:"code"`
}

// EnrollResponse is the provisioning payload returned by POST /auth/mfa/enroll.
type EnrollResponse struct {
	SecretBase32    string `json:"secret_base32"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// RecoveryCodesResponse carries a freshly minted recovery-code batch.
type RecoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// MeResponse is the identity projection returned by GET /me.
type MeResponse struct {
	PrincipalID     string `json:"principal_id"`
	SessionType     string `json:"session_type"`
	SessionDuration int    `json:"session_duration"`
	ExpiresAt       int64  `json:"expires_at"`
}

// CSRFTokenResponse is the body returned by GET /csrf-token.
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
