package authcore

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// 160-bit secrets per RFC 4226 section 4.
const totpSecretBytes = 20

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

type totpManager struct {
	config TOTPConfig
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	return &totpManager{config: cfg}
}

// GenerateSecret returns a fresh random secret as raw bytes plus its
// base32 form for authenticator apps.
func (m *totpManager) GenerateSecret() ([]byte, string, error) {
	if m == nil {
		return nil, "", ErrEngineNotReady
	}
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, base32NoPad.EncodeToString(raw), nil
}

func encodeTOTPSecret(secret []byte) string {
	return base32NoPad.EncodeToString(secret)
}

func decodeTOTPSecret(secretBase32 string) ([]byte, error) {
	return base32NoPad.DecodeString(strings.ToUpper(strings.TrimSpace(secretBase32)))
}

// ProvisionURI builds the otpauth:// URI encoded into enrollment QR codes.
func (m *totpManager) ProvisionURI(secretBase32, account string) string {
	issuer := m.config.Issuer
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(m.config.Period))
	v.Set("digits", strconv.Itoa(m.config.Digits))
	v.Set("algorithm", strings.ToUpper(m.config.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// VerifyCode checks code against the secret across the configured skew
// window. A malformed code is a plain mismatch, not an error; errors are
// reserved for unusable secrets or configuration. On a match it returns the
// counter step that matched.
func (m *totpManager) VerifyCode(secret []byte, code string, now time.Time) (bool, int64, error) {
	if m == nil {
		return false, 0, ErrEngineNotReady
	}

	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.config.Digits || !isNumericString(trimmed) {
		return false, 0, nil
	}
	if len(secret) == 0 {
		return false, 0, errors.New("empty totp secret")
	}

	current := now.Unix() / int64(m.config.Period)
	matched := false
	matchedAt := int64(0)
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := current + int64(step)
		if counter < 0 {
			continue
		}
		candidate, err := hotpCode(secret, counter, m.config.Digits, m.config.Algorithm)
		if err != nil {
			return false, 0, err
		}
		// Compare every candidate so timing does not reveal which step hit.
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(trimmed)) == 1 && !matched {
			matched = true
			matchedAt = counter
		}
	}

	return matched, matchedAt, nil
}

// hotpCode computes the RFC 4226 HOTP value for a counter, zero-padded to
// the requested digit count.
func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	newHash, err := hashForAlgorithm(algorithm)
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))
	mac := hmac.New(newHash, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation, RFC 4226 section 5.3.
	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, truncated%mod), nil
}

func hashForAlgorithm(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isNumericString(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
