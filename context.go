package idcore

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's network origin to ctx. The Engine
// uses it for per-origin rate limiting and audit records; without it
// only the per-identifier limiters apply.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
