package di

import (
	"testing"
	"time"

	"github.com/goliatone/go-repository-filter/cache"
	"github.com/goliatone/go-repository-filter/internal/cacheinfra"
)

func TestNewContainer(t *testing.T) {
	config := Config{
		Service: cache.Config{
			DefaultTTL: time.Minute,
			KeyPrefix:  "test",
		},
		Backend: cacheinfra.Config{
			Capacity:           1000,
			NumShards:          256,
			TTL:                5 * time.Minute,
			EvictionPercentage: 10,
			EarlyRefresh: &cacheinfra.EarlyRefreshConfig{
				MinAsyncRefreshTime: 10 * time.Second,
				MaxAsyncRefreshTime: 20 * time.Second,
				SyncRefreshTime:     30 * time.Second,
				RetryBaseDelay:      100 * time.Millisecond,
			},
			MissingRecordStorage: true,
		},
	}

	container, err := NewContainer(config)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	if container == nil {
		t.Fatal("NewContainer() returned nil container")
	}

	if container.CacheService() == nil {
		t.Error("Container should have a non-nil cache service")
	}
	if container.KeySerializer() == nil {
		t.Error("Container should have a non-nil key serializer")
	}

	stored := container.Config()
	if stored.Backend.Capacity != config.Backend.Capacity {
		t.Errorf("Expected capacity %d, got %d", config.Backend.Capacity, stored.Backend.Capacity)
	}
	if stored.Service.DefaultTTL != config.Service.DefaultTTL {
		t.Errorf("Expected TTL %v, got %v", config.Service.DefaultTTL, stored.Service.DefaultTTL)
	}
}

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	if container.CacheService() == nil {
		t.Error("Container should have a non-nil cache service")
	}
	if container.KeySerializer() == nil {
		t.Error("Container should have a non-nil key serializer")
	}

	cfg := container.Config()
	if cfg.Backend.Capacity != 10000 {
		t.Errorf("Expected default capacity 10000, got %d", cfg.Backend.Capacity)
	}
	if cfg.Service.KeyPrefix != "repo" {
		t.Errorf("Expected default key prefix %q, got %q", "repo", cfg.Service.KeyPrefix)
	}
}

func TestNewContainer_InvalidBackendConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.Capacity = 0

	if _, err := NewContainer(cfg); err == nil {
		t.Error("NewContainer() should fail with zero capacity")
	}
}

func TestNewContainer_InvalidServiceConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Service.DefaultTTL = -time.Second

	if _, err := NewContainer(cfg); err == nil {
		t.Error("NewContainer() should fail with a negative TTL")
	}
}

func TestContainer_SharedSingletons(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	if container.CacheService() != container.CacheService() {
		t.Error("CacheService() should return the same instance")
	}
	if container.KeySerializer() != container.KeySerializer() {
		t.Error("KeySerializer() should return the same instance")
	}
}
