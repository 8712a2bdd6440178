package methodcache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-method-cache/cache"
)

// Stats is a snapshot of a cache's counters.
type Stats struct {
	// Hits includes callers that waited on a concurrent miss for the same key
	// and got its result without running their own function.
	Hits     int64
	Misses   int64
	Bypassed int64
	Errors   int64
	// Keys is the number of store keys tracked by this process.
	Keys int
}

// keyEntry records what produced a tracked store key.
type keyEntry struct {
	operation string
	tags      []string
}

// Cache is a named keyspace inside a Manager. It is safe for concurrent use.
type Cache struct {
	manager   *Manager
	name      string
	namespace string
	ttl       time.Duration
	registry  *xsync.MapOf[string, keyEntry]

	hits     *xsync.Counter
	misses   *xsync.Counter
	bypassed *xsync.Counter
	errors   *xsync.Counter
}

func newCache(m *Manager, name string) *Cache {
	return &Cache{
		manager:   m,
		name:      name,
		namespace: namespaceFor(m.keyPrefix, name),
		ttl:       m.ttlFor(name),
		registry:  xsync.NewMapOf[string, keyEntry](),
		hits:      xsync.NewCounter(),
		misses:    xsync.NewCounter(),
		bypassed:  xsync.NewCounter(),
		errors:    xsync.NewCounter(),
	}
}

// Name returns the normalized cache name.
func (c *Cache) Name() string {
	return c.name
}

// Namespace returns the prefix shared by every store key of this cache.
func (c *Cache) Namespace() string {
	return c.namespace
}

// Key returns the store key for an invocation: the namespace followed by the
// generated cache key.
func (c *Cache) Key(operation string, args ...any) (string, error) {
	key, err := c.manager.keys.GenerateKey(operation, args...)
	if err != nil {
		return "", err
	}
	return c.namespace + key, nil
}

// Cacheable returns the cached result of operation(args) or calls fn and
// caches what it returns. Errors from fn are returned and not cached.
//
// When no key can be derived from args the manager's key error policy
// applies: bypass calls fn directly, propagate returns the error.
func Cacheable[T any](ctx context.Context, c *Cache, operation string, args []any, fn cache.FetchFn[T]) (T, error) {
	key, err := c.Key(operation, args...)
	if err != nil {
		return handleKeyError(ctx, c, operation, err, fn)
	}

	var fetched atomic.Bool
	result, err := cache.GetOrFetch(c.withTTL(ctx), c.manager.service, key, func(ctx context.Context) (T, error) {
		fetched.Store(true)
		return fn(ctx)
	})
	if err != nil {
		c.record(ctx, resultError)
		return result, err
	}
	c.track(ctx, key, operation)

	if fetched.Load() {
		c.record(ctx, resultMiss)
	} else {
		c.record(ctx, resultHit)
	}
	return result, nil
}

// Refresh always calls fn and stores its result under the key of
// operation(args), replacing whatever was cached. A failed store write is
// logged and the fresh result is still returned.
func Refresh[T any](ctx context.Context, c *Cache, operation string, args []any, fn cache.FetchFn[T]) (T, error) {
	key, err := c.Key(operation, args...)
	if err != nil {
		return handleKeyError(ctx, c, operation, err, fn)
	}

	result, err := fn(ctx)
	if err != nil {
		c.record(ctx, resultError)
		return result, err
	}

	c.track(ctx, key, operation)
	if err := c.manager.service.Put(ctx, key, result, cache.TTLFromContext(ctx, c.ttl)); err != nil {
		c.manager.logger.WarnContext(ctx, "cache refresh not stored",
			"cache", c.name, "operation", operation, "key", key, "error", err)
		c.record(ctx, resultError)
		return result, nil
	}

	c.record(ctx, resultRefresh)
	return result, nil
}

func handleKeyError[T any](ctx context.Context, c *Cache, operation string, keyErr error, fn cache.FetchFn[T]) (T, error) {
	if c.manager.keyErrorPolicy == cache.KeyErrorPropagate {
		c.record(ctx, resultError)
		var zero T
		return zero, keyErr
	}

	c.manager.logger.DebugContext(ctx, "cache bypassed",
		"cache", c.name, "operation", operation, "error", keyErr)
	c.record(ctx, resultBypass)
	return fn(ctx)
}

// Evict removes the entry cached for operation(args).
func (c *Cache) Evict(ctx context.Context, operation string, args ...any) error {
	key, err := c.Key(operation, args...)
	if err != nil {
		return err
	}
	if err := c.manager.service.Delete(ctx, key); err != nil {
		return fmt.Errorf("evict %s from cache %q: %w", operation, c.name, err)
	}
	c.registry.Delete(key)
	return nil
}

// EvictOperation removes every entry this process cached for operation,
// whatever the arguments.
func (c *Cache) EvictOperation(ctx context.Context, operation string) error {
	return c.invalidate(ctx, func(entry keyEntry) bool {
		return entry.operation == operation
	})
}

// EvictTags removes every entry tracked under any of tags.
func (c *Cache) EvictTags(ctx context.Context, tags ...string) error {
	wanted := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag != "" {
			wanted[tag] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	return c.invalidate(ctx, func(entry keyEntry) bool {
		return hasAnyTag(entry.tags, wanted)
	})
}

// Clear removes every entry of the cache. Named caches delete their whole
// namespace from the store, including entries written by other processes.
// The unnamed cache only removes the keys it tracked: its namespace is the
// bare key prefix, which every named cache's namespace starts with.
func (c *Cache) Clear(ctx context.Context) error {
	if c.name == "" {
		return c.invalidate(ctx, func(keyEntry) bool { return true })
	}

	if err := c.manager.service.DeleteByPrefix(ctx, c.namespace); err != nil {
		return fmt.Errorf("clear cache %q: %w", c.name, err)
	}
	c.registry.Range(func(key string, _ keyEntry) bool {
		c.registry.Delete(key)
		return true
	})
	return nil
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Value(),
		Misses:   c.misses.Value(),
		Bypassed: c.bypassed.Value(),
		Errors:   c.errors.Value(),
		Keys:     c.registry.Size(),
	}
}

func (c *Cache) invalidate(ctx context.Context, match func(keyEntry) bool) error {
	var keys []string
	c.registry.Range(func(key string, entry keyEntry) bool {
		if match(entry) {
			keys = append(keys, key)
		}
		return true
	})
	if len(keys) == 0 {
		return nil
	}

	if err := c.manager.service.InvalidateKeys(ctx, keys); err != nil {
		return fmt.Errorf("invalidate %d keys in cache %q: %w", len(keys), c.name, err)
	}
	for _, key := range keys {
		c.registry.Delete(key)
	}
	return nil
}

// track registers key for later invalidation, merging tags from ctx.
func (c *Cache) track(ctx context.Context, key, operation string) {
	tags := cacheTagsFromContext(ctx)
	c.registry.Compute(key, func(old keyEntry, loaded bool) (keyEntry, bool) {
		merged := tags
		if loaded && len(old.tags) > 0 {
			merged = dedupeStrings(append(append([]string(nil), old.tags...), tags...))
		}
		return keyEntry{operation: operation, tags: merged}, false
	})
}

func (c *Cache) withTTL(ctx context.Context) context.Context {
	if cache.TTLFromContext(ctx, 0) > 0 {
		return ctx
	}
	return cache.WithTTL(ctx, c.ttl)
}

func (c *Cache) record(ctx context.Context, result string) {
	switch result {
	case resultHit:
		c.hits.Inc()
	case resultMiss:
		c.misses.Inc()
	case resultBypass:
		c.bypassed.Inc()
	case resultError:
		c.errors.Inc()
	}
	c.manager.metrics.record(ctx, c.name, result)
}
