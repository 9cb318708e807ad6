package jwt

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod defines a public type used by authcore APIs.
//
// SigningMethod instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SigningMethod string

const (
	// MethodHS256 is an exported constant or variable used by the authentication engine.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 is an exported constant or variable used by the authentication engine.
	MethodEd25519 SigningMethod = "ed25519"
)

// Temporary-token purpose tags.
const (
	// PurposeMFAVerify is an exported constant or variable used by the authentication engine.
	PurposeMFAVerify = "mfa_verify"
	// PurposeMFAFirstSetup is an exported constant or variable used by the authentication engine.
	PurposeMFAFirstSetup = "mfa_first_setup"
)

// ErrTokenInvalid is the single parse failure. Expired, malformed, wrong-kind,
// and bad-signature tokens are deliberately indistinguishable to callers.
var ErrTokenInvalid = errors.New("invalid token")

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	RefreshTTL    time.Duration
	TemporaryTTL  time.Duration
	Leeway        time.Duration
}

// Manager defines a public type used by authcore APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// Claims is the single claims shape for all three token kinds. Access tokens
// carry the session class; refresh tokens add a jti; temporary tokens add a
// purpose tag. The kind is enforced at parse time, not by separate types.
type Claims struct {
	SessionType     string `json:"session_type,omitempty"`
	SessionDuration int64  `json:"session_duration,omitempty"`
	Purpose         string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid refresh TTL configuration")
	}
	if cfg.TemporaryTTL <= 0 {
		return nil, errors.New("invalid temporary TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// CreateAccess mints an access token for the subject. The expiry is exactly
// issued-at plus duration, and the duration is echoed in the
// session_duration claim so clients never have to infer it.
func (j *Manager) CreateAccess(subject, sessionType string, duration time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		SessionType:     sessionType,
		SessionDuration: int64(duration.Seconds()),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	}

	return j.sign(claims)
}

// CreateRefresh mints a refresh token carrying a fresh jti and the session
// class of the original login, so refreshed access tokens preserve it.
// The returned expiry matches the exp claim exactly.
func (j *Manager) CreateRefresh(subject, sessionType string, sessionDuration time.Duration) (string, string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.config.RefreshTTL)
	jti := uuid.NewString()

	claims := Claims{
		SessionType:     sessionType,
		SessionDuration: int64(sessionDuration.Seconds()),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    j.config.Issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := j.sign(claims)
	if err != nil {
		return "", "", time.Time{}, err
	}

	return token, jti, expiresAt, nil
}

// CreateTemporary mints a short-lived token that authorizes exactly one
// follow-up step (MFA verification or first-time setup). It carries the
// eventual session class so the follow-up grant matches the original login.
func (j *Manager) CreateTemporary(subject, purpose, sessionType string, sessionDuration time.Duration) (string, error) {
	if purpose == "" {
		return "", errors.New("temporary token requires a purpose")
	}

	now := time.Now()

	claims := Claims{
		SessionType:     sessionType,
		SessionDuration: int64(sessionDuration.Seconds()),
		Purpose:         purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.TemporaryTTL)),
		},
	}

	return j.sign(claims)
}

// ParseAccess validates an access token. Tokens of any other kind fail with
// [ErrTokenInvalid].
func (j *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	claims, err := j.parse(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.Purpose != "" || claims.ID != "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ParseRefresh validates a refresh token and requires a jti.
func (j *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	claims, err := j.parse(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.Purpose != "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ParseTemporary validates a temporary token and requires the given purpose.
func (j *Manager) ParseTemporary(tokenStr, purpose string) (*Claims, error) {
	claims, err := j.parse(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.Purpose != purpose || purpose == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (j *Manager) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(j.getMethod(), claims)

	signKey, err := j.getSignKey()
	if err != nil {
		return "", err
	}

	return token.SignedString(signKey)
}

func (j *Manager) parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return j.getVerifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodEd25519:
		return parseEdPrivateKey(j.config.PrivateKey)
	default:
		return j.config.PrivateKey, nil
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(j.config.PublicKey)
	default:
		return j.config.PrivateKey, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
