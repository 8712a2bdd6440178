package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// sturdycService keeps cached method results in process memory.
type sturdycService struct {
	client *sturdyc.Client[any]
}

// NewSturdycService validates cfg and creates an in-memory cache service.
//
// Capacity, NumShards, TTL and EvictionPercentage are passed to sturdyc.New;
// everything else is applied through ToSturdycOptions.
func NewSturdycService(cfg Config) (*sturdycService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &sturdycService{client: client}, nil
}

// GetOrFetch returns the cached value for key or calls fetchFn and caches the
// result. Concurrent misses for the same key are deduplicated by sturdyc.
func (s *sturdycService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	// validate up front so a bad signature is reported as ConfigError rather than sturdyc.ErrInvalidType
	if err := validateFetchFn(fetchFn); err != nil {
		return nil, err
	}

	return s.client.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return callFetchFunction(ctx, fetchFn)
	})
}

// Put stores value under key. sturdyc applies one TTL to every entry, so ttl is ignored.
func (s *sturdycService) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.client.Set(key, value)
	return nil
}

// Delete removes a single entry.
func (s *sturdycService) Delete(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes every entry whose key starts with prefix.
func (s *sturdycService) DeleteByPrefix(ctx context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// InvalidateKeys removes the given entries.
func (s *sturdycService) InvalidateKeys(ctx context.Context, keys []string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}

// Len reports the number of entries currently held.
func (s *sturdycService) Len() int {
	return s.client.Size()
}
