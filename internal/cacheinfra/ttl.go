package cacheinfra

import (
	"context"
	"time"
)

type ttlContextKey struct{}

// WithTTL attaches a per-call expiration used by backends that support one.
// Non-positive values are ignored.
func WithTTL(ctx context.Context, ttl time.Duration) context.Context {
	if ttl <= 0 {
		return ctx
	}
	return context.WithValue(ctx, ttlContextKey{}, ttl)
}

// TTLFromContext returns the TTL set by WithTTL, or fallback.
func TTLFromContext(ctx context.Context, fallback time.Duration) time.Duration {
	if ctx == nil {
		return fallback
	}
	if ttl, ok := ctx.Value(ttlContextKey{}).(time.Duration); ok && ttl > 0 {
		return ttl
	}
	return fallback
}
