package authcore

import (
	"crypto/rand"
	"crypto/sha256"
	"strings"
)

// Unambiguous uppercase alphanumerics: no 0/O, 1/I.
const recoveryCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const recoveryCodeGroupSize = 4

func newRecoveryCode(length int) (string, error) {
	if length <= 0 {
		length = 16
	}

	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(length)
	for _, v := range raw {
		b.WriteByte(recoveryCodeAlphabet[int(v)%len(recoveryCodeAlphabet)])
	}

	return b.String(), nil
}

// formatRecoveryCode renders the canonical code with dash-separated groups
// for display. Storage and hashing always use the canonical form.
func formatRecoveryCode(code string) string {
	if len(code) <= recoveryCodeGroupSize {
		return code
	}

	var b strings.Builder
	b.Grow(len(code) + len(code)/recoveryCodeGroupSize)
	for i := 0; i < len(code); i += recoveryCodeGroupSize {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + recoveryCodeGroupSize
		if end > len(code) {
			end = len(code)
		}
		b.WriteString(code[i:end])
	}

	return b.String()
}

// canonicalizeRecoveryCode strips separators and whitespace and upper-cases
// the input so user-typed codes match the stored canonical form.
func canonicalizeRecoveryCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c == '-' || c == ' ' || c == '\t':
			continue
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// recoveryCodeHash binds the code to its principal so identical codes issued
// to different principals hash differently.
func recoveryCodeHash(principalID, canonicalCode string) [32]byte {
	h := sha256.New()
	h.Write([]byte(principalID))
	h.Write([]byte{0})
	h.Write([]byte(canonicalCode))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// mintRecoveryCodes generates a fresh batch, returning the display-formatted
// plaintexts alongside the hashed records for the directory.
func mintRecoveryCodes(principalID string, count, length int) ([]string, []RecoveryCodeRecord, error) {
	if count <= 0 {
		count = 10
	}

	plaintexts := make([]string, 0, count)
	records := make([]RecoveryCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		code, err := newRecoveryCode(length)
		if err != nil {
			return nil, nil, err
		}
		plaintexts = append(plaintexts, formatRecoveryCode(code))
		records = append(records, RecoveryCodeRecord{Hash: recoveryCodeHash(principalID, code)})
	}

	return plaintexts, records, nil
}
