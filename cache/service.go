package cache

import (
	"context"
	"time"
)

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// FetchFn is the function signature the cache service expects when fetching
// from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Backend is one cache tier: a key/value store with TTL expiry and
// prefix-scoped scans. Backends may be unreachable at any time; the service
// layer wraps every call and downgrades failures to misses, so backends are
// free to return errors instead of masking them.
type Backend interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Clear(ctx context.Context, prefix string) error
}

// CacheService exposes the read-through caching operations we need when
// decorating query engines. It is exported so that other packages can reuse
// the default serializer or provide alternate cache backends.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	InvalidateKeys(ctx context.Context, keys []string) error
	Stats() Stats
}

// Warmer is implemented by cache services that support warming. Warm
// refreshes the popular tracked signatures; WarmKeys refreshes the named
// signatures regardless of popularity. Both return how many entries were
// refreshed.
type Warmer interface {
	Warm(ctx context.Context) int
	WarmKeys(ctx context.Context, keys []string) int
}

// Stats is a point-in-time snapshot of cache behaviour. Errors counts
// backend failures that were swallowed and treated as misses.
type Stats struct {
	Hits              uint64       `json:"hits"`
	Misses            uint64       `json:"misses"`
	Errors            uint64       `json:"errors"`
	TrackedSignatures int          `json:"tracked_signatures"`
	WarmCycles        uint64       `json:"warm_cycles"`
	PopularQueries    []QueryUsage `json:"popular_queries,omitempty"`
}

// QueryUsage reports how often one normalized query signature was read.
type QueryUsage struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// GetOrFetch is a type-safe wrapper function that provides generic support
// for CacheService.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	result, err := service.GetOrFetch(ctx, key, fetchFn)
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		// A tier returned a value of an unexpected shape; recompute
		// instead of surfacing a conversion error to the caller.
		return fetchFn(ctx)
	}
	return typed, nil
}
