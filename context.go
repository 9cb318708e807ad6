package authcore

import "context"

type clientIPContextKey struct{}
type officeIDContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller’s IP address to ctx. The Engine uses it
// for per-IP attempt counting and audit logging.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithOfficeID attaches the acting office identifier to ctx. It is recorded
// on audit events for operations performed in an office scope.
func WithOfficeID(ctx context.Context, officeID string) context.Context {
	return context.WithValue(ctx, officeIDContextKey{}, officeID)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. It is recorded
// on audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func officeIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	officeID, _ := ctx.Value(officeIDContextKey{}).(string)
	return officeID
}
