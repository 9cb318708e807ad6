package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

var (
	// ErrInvalidKey is an exported constant or variable used by the authentication engine.
	ErrInvalidKey = errors.New("secretbox: key must be exactly 32 bytes")
	// ErrDecryptFailed is an exported constant or variable used by the authentication engine.
	ErrDecryptFailed = errors.New("secretbox: decrypt failed")
)

// Box performs authenticated encryption of small secrets at rest using
// AES-256-GCM. The key is fixed at construction; ciphertexts are
// nonce-prefixed and self-contained.
type Box struct {
	aead cipher.AEAD
}

// New creates a [Box] from a 32-byte key.
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Box{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce. The returned slice is
// nonce || ciphertext || tag.
func (b *Box) Encrypt(plaintext []byte) ([]byte, error) {
	if b == nil || b.aead == nil {
		return nil, ErrInvalidKey
	}

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce-prefixed ciphertext. Any tampering, truncation, or
// key mismatch yields [ErrDecryptFailed]; the underlying cause is never
// exposed.
func (b *Box) Decrypt(data []byte) ([]byte, error) {
	if b == nil || b.aead == nil {
		return nil, ErrInvalidKey
	}
	if len(data) < b.aead.NonceSize() {
		return nil, ErrDecryptFailed
	}

	nonce := data[:b.aead.NonceSize()]
	plaintext, err := b.aead.Open(nil, nonce, data[b.aead.NonceSize():], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	return plaintext, nil
}
