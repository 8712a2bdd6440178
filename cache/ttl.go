package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-method-cache/internal/cacheinfra"
)

// WithTTL overrides the expiration of entries stored during calls made with ctx.
// Non-positive values are ignored.
func WithTTL(ctx context.Context, ttl time.Duration) context.Context {
	return cacheinfra.WithTTL(ctx, ttl)
}

// TTLFromContext returns the TTL set by WithTTL, or fallback.
func TTLFromContext(ctx context.Context, fallback time.Duration) time.Duration {
	return cacheinfra.TTLFromContext(ctx, fallback)
}
