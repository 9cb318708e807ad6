package authcore

import "errors"

var (
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPassphraseRequired is an exported constant or variable used by the authentication engine.
	ErrPassphraseRequired = errors.New("admin passphrase required")
	// ErrEmailNotVerified is an exported constant or variable used by the authentication engine.
	ErrEmailNotVerified = errors.New("email address not verified")
	// ErrOfficeWithdrawn is an exported constant or variable used by the authentication engine.
	ErrOfficeWithdrawn = errors.New("office membership withdrawn")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDeleted is an exported constant or variable used by the authentication engine.
	ErrAccountDeleted = errors.New("account deleted")
	// ErrPrincipalNotFound is an exported constant or variable used by the authentication engine.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrDuplicateEmail is an exported constant or variable used by the authentication engine.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidMFACredential is an exported constant or variable used by the authentication engine.
	ErrInvalidMFACredential = errors.New("invalid mfa credential")
	// ErrMFAAlreadyVerified is an exported constant or variable used by the authentication engine.
	ErrMFAAlreadyVerified = errors.New("mfa setup already verified")
	// ErrMFAAlreadyEnabled is an exported constant or variable used by the authentication engine.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFANotEnrolled is an exported constant or variable used by the authentication engine.
	ErrMFANotEnrolled = errors.New("mfa not enrolled")
	// ErrMFANotEnabled is an exported constant or variable used by the authentication engine.
	ErrMFANotEnabled = errors.New("mfa not enabled")
	// ErrMFASecretCorrupted is an exported constant or variable used by the authentication engine.
	ErrMFASecretCorrupted = errors.New("mfa secret cannot be decrypted")

	// ErrTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshTokenRevoked is an exported constant or variable used by the authentication engine.
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")

	// ErrRateLimited is an exported constant or variable used by the authentication engine.
	ErrRateLimited = errors.New("too many requests")

	// ErrWeakPassword is an exported constant or variable used by the authentication engine.
	ErrWeakPassword = errors.New("password does not meet the strength policy")
	// ErrPasswordBreached is an exported constant or variable used by the authentication engine.
	ErrPasswordBreached = errors.New("password found in a known breach")
	// ErrPasswordReused is an exported constant or variable used by the authentication engine.
	ErrPasswordReused = errors.New("new password was used recently")

	// ErrResetChallengeInvalid is an exported constant or variable used by the authentication engine.
	ErrResetChallengeInvalid = errors.New("password reset challenge invalid")
	// ErrResetAttemptsExceeded is an exported constant or variable used by the authentication engine.
	ErrResetAttemptsExceeded = errors.New("password reset attempts exceeded")
	// ErrVerificationInvalid is an exported constant or variable used by the authentication engine.
	ErrVerificationInvalid = errors.New("email verification challenge invalid")
	// ErrVerificationAttemptsExceeded is an exported constant or variable used by the authentication engine.
	ErrVerificationAttemptsExceeded = errors.New("email verification attempts exceeded")

	// ErrSecurityBackendUnavailable is an exported constant or variable used by the authentication engine.
	ErrSecurityBackendUnavailable = errors.New("security state backend unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
