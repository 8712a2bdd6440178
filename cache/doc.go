// Package cache provides cache key generation and the storage interface used
// by method result caching.
//
// # Overview
//
// This package exports two main interfaces and their default implementations:
//
//   - KeyGenerator: builds a cache key from an operation name and its arguments
//   - CacheService: a read-through key-value store backed by sturdyc or Redis
//
// # Key Generation
//
// GenerateKey returns the operation name alone when there are no arguments,
// otherwise the operation, an underscore and the concatenated canonical form of
// every argument:
//
//	cache.GenerateKey("listAll")               // "listAll"
//	cache.GenerateKey("findUser", 42, "active") // "findUser_42active"
//
// Canonical forms are independent of memory addresses and map order, so keys
// are identical across processes:
//
//   - Strings as-is; numbers and bools via %v
//   - time.Time in UTC RFC 3339 with nanoseconds
//   - fmt.Stringer values via String
//   - Pointers by the value they point to
//   - Slices and arrays as [a,b]; maps as {k=v} sorted by key
//   - Structs as {Field:value} over exported fields
//
// A nil argument, and any func or channel, yields an *InvalidArgumentError
// matching ErrInvalidArgument. Nil values nested inside a composite render as
// "nil".
//
// # Collisions
//
// Concatenation does not mark argument boundaries: ("ab", "c") and ("a", "bc")
// both give "f_abc". When an operation can receive such arguments use
//
//	cache.NewDelimitedKeyGenerator() // "f::ab::c", composites tagged with kind and length
//	cache.NewHashedKeyGenerator(nil) // "f_<xxhash64 of the delimited key>"
//
// or select the strategy through Config.KeyStrategy.
//
// # Storage
//
// NewCacheService builds the in-process sturdyc store; NewRedisCacheService
// wraps a go-redis client and stores msgpack encoded values. GetOrFetch is the
// typed entry point:
//
//	user, err := cache.GetOrFetch(ctx, service, key, func(ctx context.Context) (User, error) {
//		return users.FindUser(ctx, id)
//	})
//
// WithTTL overrides the expiration for a single call on backends that support
// per-entry TTLs.
//
// For named caches, hit and miss accounting and invalidation by operation or
// tag, see the methodcache package.
package cache
