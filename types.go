package authcore

import (
	"context"
	"time"
)

// Role identifies the authorization tier of a principal. The admin role
// carries platform-wide privileges and is exempt from office-membership
// checks during login.
type Role string

const (
	// RoleEmployee is an exported constant or variable used by the authentication engine.
	RoleEmployee Role = "employee"
	// RoleManager is an exported constant or variable used by the authentication engine.
	RoleManager Role = "manager"
	// RoleOwner is an exported constant or variable used by the authentication engine.
	RoleOwner Role = "owner"
	// RoleAdmin is an exported constant or variable used by the authentication engine.
	RoleAdmin Role = "app_admin"
)

// SessionType is the session class granted at login and preserved across
// refreshes. The class selects the access-token lifetime from
// [SessionConfig.Durations].
type SessionType string

const (
	// SessionStandard is an exported constant or variable used by the authentication engine.
	SessionStandard SessionType = "standard"
	// SessionExtended is an exported constant or variable used by the authentication engine.
	SessionExtended SessionType = "extended"
)

// PrincipalRecord is the full account record returned by [DirectoryProvider].
// It carries credential hashes, verification and lockout state, and the MFA
// flag pair that drives the login state machine.
type PrincipalRecord struct {
	ID             string
	Email          string
	Name           string
	Role           Role
	PasswordHash   string
	PassphraseHash string

	EmailVerified bool
	Deleted       bool

	OfficeID        string
	OfficeWithdrawn bool

	MFAEnabled         bool
	MFAVerifiedByUser  bool
	EncryptedMFASecret []byte

	FailedPasswordAttempts int
	Locked                 bool
	LockedAt               time.Time
	PasswordChangedAt      time.Time
}

// RecoveryCodeRecord stores the SHA-256 hash of a single recovery code.
// The plaintext is never persisted.
type RecoveryCodeRecord struct {
	Hash [32]byte
}

// PasswordHistoryEntry is one retired password hash kept for reuse checks.
type PasswordHistoryEntry struct {
	Hash      string
	ChangedAt time.Time
}

// CreatePrincipalInput is the input for [DirectoryProvider.CreatePrincipal].
type CreatePrincipalInput struct {
	Email          string
	Name           string
	Role           Role
	PasswordHash   string
	PassphraseHash string
}

// DirectoryProvider is the primary interface that callers must implement to
// integrate authcore with their staff directory. It covers credential lookup,
// security-field mutations, recovery code storage, and password history.
//
// Implementations must treat ConsumeRecoveryCode atomically: at most one
// caller may consume a given code, and a consumed code stays consumed.
type DirectoryProvider interface {
	GetPrincipalByEmail(ctx context.Context, email string) (PrincipalRecord, error)
	GetPrincipalByID(ctx context.Context, id string) (PrincipalRecord, error)
	CreatePrincipal(ctx context.Context, input CreatePrincipalInput) (PrincipalRecord, error)

	UpdatePasswordHash(ctx context.Context, id, newHash string) error
	MarkEmailVerified(ctx context.Context, id string) error
	RecordFailedPassword(ctx context.Context, id string) (int, error)
	ResetFailedPassword(ctx context.Context, id string) error
	SetLocked(ctx context.Context, id string, locked bool) error

	UpdateMFASecret(ctx context.Context, id string, encryptedSecret []byte) error
	SetMFAState(ctx context.Context, id string, enabled, verifiedByUser bool) error
	ClearMFA(ctx context.Context, id string) error

	ReplaceRecoveryCodes(ctx context.Context, id string, codes []RecoveryCodeRecord) error
	ConsumeRecoveryCode(ctx context.Context, id string, codeHash [32]byte) (bool, error)

	PasswordHistory(ctx context.Context, id string, limit int) ([]PasswordHistoryEntry, error)
	AppendPasswordHistory(ctx context.Context, id, hash string, keep int) error
}

// EmailSender delivers transactional mail for verification, password reset,
// and password-changed notifications. Sends are fire-and-forget from the
// engine's perspective: a send failure never fails the guarded operation.
type EmailSender interface {
	Send(ctx context.Context, recipient, template string, data map[string]string) error
}

// Email template identifiers passed to [EmailSender.Send].
const (
	// EmailTemplateVerify is an exported constant or variable used by the authentication engine.
	EmailTemplateVerify = "verify_email"
	// EmailTemplateResetRequest is an exported constant or variable used by the authentication engine.
	EmailTemplateResetRequest = "password_reset_request"
	// EmailTemplatePasswordChanged is an exported constant or variable used by the authentication engine.
	EmailTemplatePasswordChanged = "password_changed"
)

// LoginResult is returned by [Engine.Login]. Exactly one of the three shapes
// is populated: a full session grant, a first-time-setup payload (temporary
// token plus provisioning material), or a verify-pending payload (temporary
// token only).
type LoginResult struct {
	AccessToken     string
	RefreshToken    string
	SessionType     SessionType
	SessionDuration int

	RequiresMFA           bool
	RequiresMFAFirstSetup bool
	TemporaryToken        string

	// First-time-setup provisioning payload. The decrypted secret leaves the
	// engine exactly once, here.
	MFASecret          string
	MFAProvisioningURI string
}

// SessionGrant is returned by the MFA confirmation flows. RecoveryCodes is
// populated only when the confirmation minted a fresh batch; it is the single
// time the plaintext codes are visible.
type SessionGrant struct {
	AccessToken     string
	RefreshToken    string
	SessionType     SessionType
	SessionDuration int

	RecoveryCodes []string
}

// RefreshResult is returned by [Engine.Refresh]. The session class of the
// original login is preserved; no new refresh token is issued.
type RefreshResult struct {
	AccessToken     string
	SessionType     SessionType
	SessionDuration int
}

// MFAEnrollment holds the base32 secret and otpauth:// URI returned by
// [Engine.EnrollMFA] for QR provisioning.
type MFAEnrollment struct {
	SecretBase32    string
	ProvisioningURI string
}

// AccessIdentity is the claims projection returned by
// [Engine.ValidateAccess] for request guards.
type AccessIdentity struct {
	PrincipalID     string
	SessionType     SessionType
	SessionDuration int
	ExpiresAt       time.Time
}
