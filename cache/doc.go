// Package cache provides the read-through caching layer used in front of
// the query engine: service interfaces, key serialization, configuration,
// and a tiered implementation with usage-based warming.
//
// # Overview
//
// The package exports three main pieces:
//
//   - CacheService: read-through cache with typed fetch functions, stats,
//     and prefix invalidation
//   - KeySerializer: builds stable cache keys from method names and
//     arguments
//   - TieredService: the default CacheService, layering a small local tier
//     over a primary backend and tracking query usage for warming
//
// # Basic Usage
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("List", filters, opts)
//
//	users, err := cache.GetOrFetch(ctx, svc, key, func(ctx context.Context) ([]*User, error) {
//		return loadUsers(ctx, filters, opts)
//	})
//
// The generic GetOrFetch wrapper asserts the cached value back to the
// caller's type and recomputes on a type mismatch, so a key collision
// degrades to an extra fetch rather than a wrong result.
//
// # Key Serialization Strategy
//
// The default key serializer uses reflection to handle various Go types:
//
//   - Basic types: direct string representation
//   - Slices/arrays: recursive serialization of elements
//   - Maps: sorted key-value pairs for deterministic output
//   - Structs: exported fields with name:value pairs
//   - Function pointers: %p formatting, stable within a process
//   - Complex types: JSON fallback with error handling
//
// Keys longer than MaxKeyLength are compacted to an xxhash digest with a
// readable method prefix, so arbitrarily large filter maps still produce
// bounded keys.
//
// # Warming
//
// TieredService counts GetOrFetch calls per key signature. When warming is
// enabled in Config, signatures at or above MinUsageCount are re-fetched
// ahead of expiry, either on demand through Warm or periodically through
// StartWarming. Stats reports hit/miss/error counters, tracked signatures,
// warm cycles, and the current popular queries.
//
// # Error Handling
//
// The package prioritizes availability over strictness. Backend failures
// on reads and writes are counted in Stats.Errors and otherwise swallowed:
// a cache outage degrades to direct fetches. When JSON marshaling fails,
// the key serializer falls back to type information and memory addresses
// rather than panicking.
//
// # See Also
//
// For complete usage with the query engine, see the repositoryfilter
// package. For backend construction (sturdyc and the local xsync tier),
// see the pkg/di container.
package cache
