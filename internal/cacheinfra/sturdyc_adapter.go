package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-repository-filter/cache"
)

// Config holds the configuration for the sturdyc cache backend.
// It encapsulates the core sturdyc options needed for cache initialization.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Higher values improve concurrency but increase memory overhead.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the default time-to-live for cached entries.
	// After this duration, entries are considered expired.
	// Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	// Default: 10 (evict 10% of entries)
	EvictionPercentage int

	// EarlyRefresh configures early refresh behavior for cached entries.
	// If nil, early refresh is disabled.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage enables storage for missing record flags.
	// When enabled, the cache will remember keys that returned no results
	// to prevent repeated database queries for non-existent records.
	MissingRecordStorage bool

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig configures early refresh behavior.
// Early refresh prevents cache stampedes by refreshing entries
// before they expire when they're frequently accessed.
type EarlyRefreshConfig struct {
	// MinAsyncRefreshTime is the minimum time after which an async refresh can occur
	MinAsyncRefreshTime time.Duration

	// MaxAsyncRefreshTime is the maximum time after which an async refresh can occur
	MaxAsyncRefreshTime time.Duration

	// SyncRefreshTime is when a refresh becomes synchronous instead of async
	SyncRefreshTime time.Duration

	// RetryBaseDelay is the base delay for retry attempts when early refresh fails
	RetryBaseDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		EarlyRefresh: &EarlyRefreshConfig{
			MinAsyncRefreshTime: 10 * time.Second,
			MaxAsyncRefreshTime: 20 * time.Second,
			SyncRefreshTime:     30 * time.Second,
			RetryBaseDelay:      100 * time.Millisecond,
		},
		MissingRecordStorage: true,
		EvictionInterval:     0, // Use default
	}
}

// ToSturdycOptions converts the Config to sturdyc.Option slice.
// Note: Capacity, NumShards, TTL, and EvictionPercentage are passed directly
// to sturdyc.New() constructor and are not included in the options.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}

	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
// Returns an error if any configuration parameter is invalid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EarlyRefresh != nil {
		if c.EarlyRefresh.MinAsyncRefreshTime < 0 {
			return &ConfigError{Field: "EarlyRefresh.MinAsyncRefreshTime", Message: "must be non-negative"}
		}
		if c.EarlyRefresh.MaxAsyncRefreshTime < 0 {
			return &ConfigError{Field: "EarlyRefresh.MaxAsyncRefreshTime", Message: "must be non-negative"}
		}
		if c.EarlyRefresh.SyncRefreshTime < 0 {
			return &ConfigError{Field: "EarlyRefresh.SyncRefreshTime", Message: "must be non-negative"}
		}
		if c.EarlyRefresh.RetryBaseDelay < 0 {
			return &ConfigError{Field: "EarlyRefresh.RetryBaseDelay", Message: "must be non-negative"}
		}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// SturdycBackend adapts a sturdyc client to the cache.Backend tier contract.
// It is the primary tier: sharded, stampede-protected, with optional early
// refresh of hot entries.
//
// Version compatibility note: this implementation assumes sturdyc v1.x API.
// Monitor sturdyc version upgrades for potential option mapping changes.
type SturdycBackend struct {
	client *sturdyc.Client[any]
}

var _ cache.Backend = (*SturdycBackend)(nil)

// NewSturdycBackend validates the configuration and initializes a sturdyc
// client with the provided settings.
//
// The constructor translates Config parameters to sturdyc initialization:
// - Capacity, NumShards, TTL, EvictionPercentage are passed to sturdyc.New()
// - Other options are applied via ToSturdycOptions()
func NewSturdycBackend(cfg Config) (*SturdycBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycBackend{client: client}, nil
}

// Get implements cache.Backend.Get.
func (b *SturdycBackend) Get(ctx context.Context, key string) (any, bool, error) {
	v, ok := b.client.Get(key)
	return v, ok, nil
}

// Set implements cache.Backend.Set. Entry lifetime is governed by the
// client-level TTL configured at construction; the per-call ttl is accepted
// for interface compatibility.
func (b *SturdycBackend) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b.client.Set(key, value)
	return nil
}

// Delete implements cache.Backend.Delete.
func (b *SturdycBackend) Delete(ctx context.Context, key string) error {
	b.client.Delete(key)
	return nil
}

// Keys implements cache.Backend.Keys, returning every stored key under the
// given prefix. An empty prefix matches all keys.
func (b *SturdycBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for _, key := range b.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out, nil
}

// Clear implements cache.Backend.Clear, removing every entry whose key
// starts with the given prefix. Invalidating related entries after a write
// goes through here.
func (b *SturdycBackend) Clear(ctx context.Context, prefix string) error {
	keys, err := b.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		b.client.Delete(key)
	}
	return nil
}
