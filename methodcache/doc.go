// Package methodcache caches method results in named caches that share one
// store and one key generator.
//
// # Overview
//
// A Manager owns the store, the key generator and the caches created from it.
// Each Cache is a namespace inside the store: its keys are the manager's key
// prefix, the snake_case cache name, "::" and the generated key.
//
//	m, _ := methodcache.NewManager(service, nil, methodcache.WithKeyPrefix("app:"))
//	users := m.Cache("UserProfiles")
//
//	user, err := methodcache.Cacheable(ctx, users, "findUser", []any{42, "active"},
//		func(ctx context.Context) (User, error) {
//			return repo.FindUser(ctx, 42, "active")
//		})
//	// stored under "app:user_profiles::findUser_42active"
//
// # Caching Behavior
//
// Cacheable follows a read-through pattern:
//
//  1. Generate the key from the operation and arguments
//  2. On a hit, return the stored value
//  3. On a miss, call the function, store its result and return it
//
// Errors returned by the function are passed to the caller and never stored.
// Refresh skips step 2 and always overwrites the stored value.
//
// # Unkeyable Arguments
//
// When the key generator rejects an argument (a nil value, a func) the
// manager's key error policy decides: cache.KeyErrorBypass calls the function
// without caching, cache.KeyErrorPropagate returns the error.
//
// # Invalidation
//
// Every Cache remembers the keys it wrote in this process together with their
// operation and the tags attached through WithCacheTags:
//
//   - Evict drops one invocation
//   - EvictOperation drops every invocation of an operation
//   - EvictTags drops every key tracked under a tag
//   - Clear drops the whole namespace from the store
//
// Evict and Clear reach entries written by other processes; EvictOperation and
// EvictTags only see keys tracked locally.
//
// # Observability
//
// Each call is counted in Stats and in the methodcache.requests OpenTelemetry
// counter with cache.name and cache.result attributes.
package methodcache
