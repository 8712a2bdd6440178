package di

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"

	"github.com/goliatone/go-method-cache/cache"
	"github.com/goliatone/go-method-cache/methodcache"
)

// Option customizes how a Container builds its dependencies.
type Option func(*containerOptions)

type containerOptions struct {
	redisClient   redis.UniversalClient
	logger        *slog.Logger
	meterProvider metric.MeterProvider
}

// WithRedisClient makes the Redis backend use client instead of dialing
// cfg.Redis. The container does not close a client it did not create.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *containerOptions) {
		o.redisClient = client
	}
}

// WithLogger sets the logger handed to the store and the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithMeterProvider sets the provider for cache metrics.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *containerOptions) {
		o.meterProvider = provider
	}
}

// Container wires the cache service, key generator and method cache manager
// from one Config. Every component is built once in NewContainer and passed
// explicitly; nothing is held in package state.
type Container struct {
	cacheService cache.CacheService
	keyGenerator cache.KeyGenerator
	manager      *methodcache.Manager
	config       cache.Config
	ownedClient  *redis.Client
}

// NewContainer validates config and builds the selected backend. For the
// Redis backend without WithRedisClient it dials cfg.Redis and owns the
// connection until Close.
func NewContainer(ctx context.Context, config cache.Config, opts ...Option) (*Container, error) {
	options := containerOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	keyGenerator, err := cache.NewKeyGenerator(config.KeyStrategy)
	if err != nil {
		return nil, err
	}

	c := &Container{
		keyGenerator: keyGenerator,
		config:       config,
	}

	switch config.Backend {
	case cache.BackendRedis:
		client := options.redisClient
		if client == nil {
			dialed, err := cache.NewRedisClient(ctx, config)
			if err != nil {
				return nil, err
			}
			c.ownedClient = dialed
			client = dialed
		}
		c.cacheService, err = cache.NewRedisCacheService(client, config, options.logger)
	default:
		c.cacheService, err = cache.NewCacheService(config)
	}
	if err != nil {
		c.Close()
		return nil, err
	}

	managerOpts := []methodcache.Option{
		methodcache.WithLogger(options.logger),
		methodcache.WithMeterProvider(options.meterProvider),
		methodcache.WithKeyErrorPolicy(config.KeyErrorPolicy),
		methodcache.WithKeyPrefix(config.KeyPrefix),
		methodcache.WithDefaultTTL(config.TTL),
	}
	for name, ttl := range config.CacheTTLs {
		managerOpts = append(managerOpts, methodcache.WithCacheTTL(name, ttl))
	}

	c.manager, err = methodcache.NewManager(c.cacheService, keyGenerator, managerOpts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("build method cache manager: %w", err)
	}

	return c, nil
}

// NewContainerWithDefaults creates an in-memory container using DefaultConfig.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(context.Background(), cache.DefaultConfig())
}

// CacheService returns the cache store shared by every cache.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// KeyGenerator returns the key generator selected by Config.KeyStrategy.
func (c *Container) KeyGenerator() cache.KeyGenerator {
	return c.keyGenerator
}

// Manager returns the method cache manager.
func (c *Container) Manager() *methodcache.Manager {
	return c.manager
}

// Cache is shorthand for Manager().Cache(name).
func (c *Container) Cache(name string) *methodcache.Cache {
	return c.manager.Cache(name)
}

// Config returns a copy of the cache configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Close releases the Redis connection dialed by NewContainer, if any.
func (c *Container) Close() error {
	if c.ownedClient == nil {
		return nil
	}
	err := c.ownedClient.Close()
	c.ownedClient = nil
	return err
}
