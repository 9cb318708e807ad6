// Package secretbox provides authenticated encryption for small secrets at
// rest (TOTP seeds). It deliberately exposes a single failure mode for
// decryption so callers cannot distinguish tampering from key rotation.
package secretbox
