// Package jwt manages issuance and verification of the three token kinds used
// by the authentication engine (access, refresh, temporary) using configured
// signing keys and strict validation semantics suitable for low-latency
// authentication paths.
package jwt
