// Package authcore provides the authentication and session-security engine for
// the Keikakun platform: credential verification with account lockout, TOTP
// multi-factor enrollment and login, JWT access/refresh/temporary tokens with a
// Redis-backed refresh revocation list, password lifecycle management (strength
// policy, breach screening, history), and a structured audit trail.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config], and
// value types (LoginResult, SessionGrant, MetricsSnapshot, etc.). Durable
// principal data (accounts, recovery codes, password history) is owned by the
// caller's directory and reached through [DirectoryProvider]. Ephemeral
// security state (revocations, attempt counters, challenges) lives in Redis.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Persist plaintext passwords, TOTP secrets, or recovery codes anywhere.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//
// # Performance contract
//
// ValidateAccess is the hot path. It is a pure token parse: no Redis
// round-trips and no allocations beyond the returned claims. Login, Refresh,
// and the password flows are allowed Redis and directory round-trips.
package authcore
