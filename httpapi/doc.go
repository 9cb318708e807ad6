// Package httpapi mounts the authentication engine behind a chi router.
//
// The access token travels as an HttpOnly cookie; the refresh token travels in
// JSON response bodies and is the client's responsibility to store. Mutating
// cookie-authenticated requests must carry the double-submit CSRF pair issued
// by GET /csrf-token. Error sentinels from the engine are translated to HTTP
// statuses here and nowhere else.
//
// # What this package must NOT do
//
//   - Implement authentication logic (delegates to authcore.Engine).
//   - Parse or mint tokens (delegates to the engine).
//   - Talk to Redis or the directory.
package httpapi
