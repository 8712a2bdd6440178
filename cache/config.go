package cache

import (
	"context"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-method-cache/internal/cacheinfra"
)

// Backends selectable through Config.Backend.
const (
	BackendLocal = "local"
	BackendRedis = "redis"
)

// Policies for arguments that cannot be turned into a key.
const (
	// KeyErrorBypass calls the underlying operation without caching.
	KeyErrorBypass = "bypass"
	// KeyErrorPropagate returns the InvalidArgumentError to the caller.
	KeyErrorPropagate = "propagate"
)

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig = cacheinfra.RedisConfig

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Backend        string
	KeyStrategy    string
	KeyPrefix      string
	KeyErrorPolicy string

	// TTL is the default expiration. CacheTTLs overrides it per cache name
	// on backends that support per-entry expiration.
	TTL       time.Duration
	CacheTTLs map[string]time.Duration

	// local backend
	Capacity             int
	NumShards            int
	EvictionPercentage   int
	EarlyRefresh         *EarlyRefreshConfig
	MissingRecordStorage bool
	EvictionInterval     time.Duration

	Redis RedisConfig
}

// EarlyRefreshConfig mirrors the underlying sturdyc early refresh options.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	cfg := convertFromInternal(cacheinfra.DefaultConfig())
	cfg.Backend = BackendLocal
	cfg.KeyStrategy = KeyStrategyConcat
	cfg.KeyErrorPolicy = KeyErrorBypass
	cfg.Redis = cacheinfra.DefaultRedisConfig()
	return cfg
}

// Validate checks the shared settings and those of the selected backend.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendLocal, BackendRedis)),
		validation.Field(&c.KeyStrategy, validation.In(KeyStrategyConcat, KeyStrategyDelimited, KeyStrategyHashed)),
		validation.Field(&c.KeyErrorPolicy, validation.In(KeyErrorBypass, KeyErrorPropagate)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&c.CacheTTLs, validation.Each(validation.Required, validation.Min(time.Duration(1)))),
	)
	if err != nil {
		return err
	}

	if c.Backend == BackendRedis {
		return c.Redis.Validate()
	}
	return c.toInternal().Validate()
}

// TTLFor returns the expiration configured for the named cache.
func (c Config) TTLFor(name string) time.Duration {
	if ttl, ok := c.CacheTTLs[name]; ok && ttl > 0 {
		return ttl
	}
	return c.TTL
}

// NewCacheService constructs the in-memory cache service using the provided configuration.
func NewCacheService(cfg Config) (CacheService, error) {
	service, err := cacheinfra.NewSturdycService(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return service, nil
}

// NewRedisCacheService constructs a Redis backed cache service on top of
// client. The caller owns client and closes it.
func NewRedisCacheService(client redis.UniversalClient, cfg Config, logger *slog.Logger) (CacheService, error) {
	service, err := cacheinfra.NewRedisService(client, cfg.TTL,
		cacheinfra.WithRedisLogger(logger),
		cacheinfra.WithScanCount(cfg.Redis.ScanCount),
	)
	if err != nil {
		return nil, err
	}
	return service, nil
}

// NewRedisClient dials Redis with cfg.Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	return cacheinfra.NewRedisClient(ctx, cfg.Redis)
}

func (c Config) toInternal() cacheinfra.Config {
	var early *cacheinfra.EarlyRefreshConfig
	if c.EarlyRefresh != nil {
		early = &cacheinfra.EarlyRefreshConfig{
			MinAsyncRefreshTime: c.EarlyRefresh.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: c.EarlyRefresh.MaxAsyncRefreshTime,
			SyncRefreshTime:     c.EarlyRefresh.SyncRefreshTime,
			RetryBaseDelay:      c.EarlyRefresh.RetryBaseDelay,
		}
	}

	return cacheinfra.Config{
		Capacity:             c.Capacity,
		NumShards:            c.NumShards,
		TTL:                  c.TTL,
		EvictionPercentage:   c.EvictionPercentage,
		EarlyRefresh:         early,
		MissingRecordStorage: c.MissingRecordStorage,
		EvictionInterval:     c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	var early *EarlyRefreshConfig
	if cfg.EarlyRefresh != nil {
		early = &EarlyRefreshConfig{
			MinAsyncRefreshTime: cfg.EarlyRefresh.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: cfg.EarlyRefresh.MaxAsyncRefreshTime,
			SyncRefreshTime:     cfg.EarlyRefresh.SyncRefreshTime,
			RetryBaseDelay:      cfg.EarlyRefresh.RetryBaseDelay,
		}
	}

	return Config{
		Capacity:             cfg.Capacity,
		NumShards:            cfg.NumShards,
		TTL:                  cfg.TTL,
		EvictionPercentage:   cfg.EvictionPercentage,
		EarlyRefresh:         early,
		MissingRecordStorage: cfg.MissingRecordStorage,
		EvictionInterval:     cfg.EvictionInterval,
	}
}
