package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// ErrCacheMiss is returned by lookups when the key is absent.
var ErrCacheMiss = redis.Nil

const defaultScanCount = 100

// RedisServiceOption configures a redisService.
type RedisServiceOption func(*redisService)

// WithRedisLogger sets the logger used for fail-open warnings.
func WithRedisLogger(logger *slog.Logger) RedisServiceOption {
	return func(s *redisService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithScanCount sets the SCAN COUNT hint used by DeleteByPrefix.
func WithScanCount(count int64) RedisServiceOption {
	return func(s *redisService) {
		if count > 0 {
			s.scanCount = count
		}
	}
}

// redisService stores msgpack encoded method results in Redis.
//
// Reads and writes fail open: when Redis cannot be reached the value is
// fetched from the source and returned, and the failure is logged.
type redisService struct {
	client    redis.UniversalClient
	ttl       time.Duration
	scanCount int64
	logger    *slog.Logger
	group     singleflight.Group
}

// NewRedisService creates a cache service on top of an existing client.
// ttl is the default expiration, overridable per call with WithTTL.
func NewRedisService(client redis.UniversalClient, ttl time.Duration, opts ...RedisServiceOption) (*redisService, error) {
	if client == nil {
		return nil, &ConfigError{Field: "client", Message: "cannot be nil"}
	}
	if ttl <= 0 {
		return nil, &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	s := &redisService{
		client:    client,
		ttl:       ttl,
		scanCount: defaultScanCount,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetOrFetch returns the decoded value for key or calls fetchFn, stores the
// result and returns it. Concurrent misses for one key share a single fetch,
// which runs detached from the first caller's cancellation so waiters are not
// failed by it; each caller still stops waiting when its own ctx is done.
func (s *redisService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	if err := validateFetchFn(fetchFn); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		value, decodeErr := decodeValue(data, fetchResultType(fetchFn))
		if decodeErr == nil {
			return value, nil
		}
		s.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", key, "error", decodeErr)
	case errors.Is(err, redis.Nil):
	default:
		s.logger.WarnContext(ctx, "redis read failed, fetching from source", "key", key, "error", err)
	}

	ttl := TTLFromContext(ctx, s.ttl)
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		value, err := callFetchFunction(fetchCtx, fetchFn)
		if err != nil {
			return nil, err
		}
		if err := s.store(fetchCtx, key, value, ttl); err != nil {
			s.logger.WarnContext(fetchCtx, "redis write failed", "key", key, "error", err)
		}
		return value, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put stores value under key. A zero ttl uses the context TTL or the default.
func (s *redisService) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLFromContext(ctx, s.ttl)
	}
	return s.store(ctx, key, value, ttl)
}

// Delete removes a single key.
func (s *redisService) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete cache key %q: %w", key, err)
	}
	return nil
}

// DeleteByPrefix walks the keyspace with SCAN and deletes every match.
// On a cluster client only the node serving the connection is scanned.
func (s *redisService) DeleteByPrefix(ctx context.Context, prefix string) error {
	pattern := escapeGlob(prefix) + "*"

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, s.scanCount).Result()
		if err != nil {
			return fmt.Errorf("scan cache keys %q: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete cache keys %q: %w", pattern, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// InvalidateKeys deletes the given keys in one round trip.
func (s *redisService) InvalidateKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete %d cache keys: %w", len(keys), err)
	}
	return nil
}

func (s *redisService) store(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value for %q: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set cache key %q: %w", key, err)
	}
	return nil
}

// decodeValue decodes data into a fresh value of type t.
func decodeValue(data []byte, t reflect.Type) (any, error) {
	ptr := reflect.New(t)
	if err := msgpack.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

var globReplacer = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
)

// escapeGlob quotes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
