// Package middleware exposes HTTP adapters that translate request semantics
// into authcore.Engine calls.
//
// # Guards
//
//   - [Guard]: access-token verification from the Authorization header or a
//     session cookie, injecting the validated identity into the request context.
//   - [CSRF]: double-submit cookie enforcement for cookie-authenticated
//     mutating requests.
//   - [Throttle]: per-client token-bucket request limiting in front of the
//     engine's Redis-backed attempt windows.
//   - [ClientContext]: attaches the caller's IP and User-Agent to the request
//     context for attempt counting and audit logging.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself. All token decisions are delegated to
// Engine.ValidateAccess.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from Engine.ValidateAccess.
package middleware
