// Package ratelimit throttles chat and auth traffic.
//
// Chat turns are keyed per authenticated user and auth endpoints per
// client IP, so one noisy client cannot starve the reasoning backend or
// brute-force logins. The default MemoryLimiter keeps buckets in process;
// a multi-replica deployment can swap in a shared store behind the
// Limiter interface without touching the middleware.
package ratelimit

import "context"

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow reports whether the request for key may proceed. Keys are
	// opaque; the middleware builds them ("user:<uuid>" for chat turns,
	// "ip:<addr>" for unauthenticated auth calls). An error means the
	// limiter itself failed, and callers should let the request through
	// rather than reject traffic on a limiter outage.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
