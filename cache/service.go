package cache

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// KeyGenerator derives a cache key from an operation name and its ordered
// arguments. Implementations must be deterministic across processes and safe
// for concurrent use. Arguments without a canonical string form yield an
// *InvalidArgumentError.
type KeyGenerator interface {
	GenerateKey(operation string, args ...any) (string, error)
}

// FetchFn is the function signature CacheService expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService is the key-value store the method cache reads through.
type CacheService interface {
	// GetOrFetch returns the cached value for key or runs fetchFn, a
	// func(context.Context) (T, error), and stores its result. Errors from
	// fetchFn are returned and not cached.
	GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error)
	// Put stores value under key. A zero ttl uses the backend default.
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	InvalidateKeys(ctx context.Context, keys []string) error
}

// GetOrFetch is a type-safe wrapper function that provides generic support for CacheService.
// A nil cached result yields the zero value of T.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T

	result, err := service.GetOrFetch(ctx, key, fetchFn)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}

	typed, ok := result.(T)
	if !ok {
		return zero, &TypeMismatchError{Key: key, Want: reflect.TypeFor[T]().String(), Got: fmt.Sprintf("%T", result)}
	}
	return typed, nil
}
