package methodcache

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/goliatone/go-method-cache/cache"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for bypassed calls and store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMeterProvider sets the provider for the methodcache.requests counter.
// The global provider is used otherwise.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(m *Manager) {
		if provider != nil {
			m.meterProvider = provider
		}
	}
}

// WithKeyErrorPolicy selects cache.KeyErrorBypass or cache.KeyErrorPropagate.
func WithKeyErrorPolicy(policy string) Option {
	return func(m *Manager) {
		if policy != "" {
			m.keyErrorPolicy = policy
		}
	}
}

// WithKeyPrefix prepends prefix to every store key, e.g. "app:".
func WithKeyPrefix(prefix string) Option {
	return func(m *Manager) {
		m.keyPrefix = prefix
	}
}

// WithDefaultTTL sets the expiration used by caches without their own TTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.defaultTTL = ttl
	}
}

// WithCacheTTL sets the expiration of the named cache.
func WithCacheTTL(name string, ttl time.Duration) Option {
	return func(m *Manager) {
		m.cacheTTLs[normalizeName(name)] = ttl
	}
}

// Manager hands out named caches that share one store and key generator.
type Manager struct {
	service        cache.CacheService
	keys           cache.KeyGenerator
	logger         *slog.Logger
	meterProvider  metric.MeterProvider
	metrics        *metrics
	keyErrorPolicy string
	keyPrefix      string
	defaultTTL     time.Duration
	cacheTTLs      map[string]time.Duration
	caches         *xsync.MapOf[string, *Cache]
}

// NewManager creates a manager on top of service. A nil keys uses the concat
// generator behind cache.GenerateKey.
func NewManager(service cache.CacheService, keys cache.KeyGenerator, opts ...Option) (*Manager, error) {
	if service == nil {
		return nil, errors.New("methodcache: cache service is required")
	}
	if keys == nil {
		keys = cache.NewConcatKeyGenerator()
	}

	m := &Manager{
		service:        service,
		keys:           keys,
		logger:         slog.New(slog.DiscardHandler),
		meterProvider:  otel.GetMeterProvider(),
		keyErrorPolicy: cache.KeyErrorBypass,
		cacheTTLs:      make(map[string]time.Duration),
		caches:         xsync.NewMapOf[string, *Cache](),
	}
	for _, opt := range opts {
		opt(m)
	}

	switch m.keyErrorPolicy {
	case cache.KeyErrorBypass, cache.KeyErrorPropagate:
	default:
		return nil, errors.New("methodcache: unknown key error policy " + m.keyErrorPolicy)
	}

	mt, err := newMetrics(m.meterProvider.Meter(meterName))
	if err != nil {
		return nil, err
	}
	m.metrics = mt

	return m, nil
}

// Cache returns the cache registered under name, creating it on first use.
// Names are normalized to snake_case, so "UserProfiles" and "user_profiles"
// refer to the same cache. The empty name is the default cache.
func (m *Manager) Cache(name string) *Cache {
	normalized := normalizeName(name)
	c, _ := m.caches.LoadOrCompute(normalized, func() *Cache {
		return newCache(m, normalized)
	})
	return c
}

// Names lists the caches created so far, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, m.caches.Size())
	m.caches.Range(func(name string, _ *Cache) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Clear clears every cache created so far.
func (m *Manager) Clear(ctx context.Context) error {
	var errs []error
	m.caches.Range(func(_ string, c *Cache) bool {
		if err := c.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	return errors.Join(errs...)
}

// KeyGenerator returns the generator shared by all caches.
func (m *Manager) KeyGenerator() cache.KeyGenerator {
	return m.keys
}

func (m *Manager) ttlFor(name string) time.Duration {
	if ttl, ok := m.cacheTTLs[name]; ok && ttl > 0 {
		return ttl
	}
	return m.defaultTTL
}
