package cache

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config exposes cache configuration options for consumers of the cache
// package. Zero values fall back to the defaults from DefaultConfig.
type Config struct {
	// DefaultTTL is applied to every entry written on the read-through
	// path.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// KeyPrefix namespaces every key this service touches, so several
	// engines can share one backend without stepping on each other.
	KeyPrefix string `yaml:"key_prefix"`

	// Warming controls usage-based proactive refresh of popular queries.
	Warming WarmingConfig `yaml:"warming"`
}

// WarmingConfig mirrors the warming knobs of the tiered service. Counters
// are owned by the service instance; restarting the process resets them.
type WarmingConfig struct {
	Enabled             bool          `yaml:"enabled"`
	MinUsageCount       int64         `yaml:"min_usage_count"`
	PopularQueriesLimit int           `yaml:"popular_queries_limit"`
	WarmInterval        time.Duration `yaml:"warm_interval"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
		KeyPrefix:  "repo",
		Warming: WarmingConfig{
			Enabled:             false,
			MinUsageCount:       10,
			PopularQueriesLimit: 20,
			WarmInterval:        time.Minute,
		},
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.DefaultTTL, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&c.KeyPrefix, validation.Required),
	); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	return c.Warming.Validate()
}

// Validate checks the warming knobs. Disabled warming skips the checks so a
// zero-valued Warming block stays valid.
func (w WarmingConfig) Validate() error {
	if !w.Enabled {
		return nil
	}
	if err := validation.ValidateStruct(&w,
		validation.Field(&w.MinUsageCount, validation.Min(int64(1))),
		validation.Field(&w.PopularQueriesLimit, validation.Min(1)),
		validation.Field(&w.WarmInterval, validation.Required, validation.Min(time.Duration(1))),
	); err != nil {
		return fmt.Errorf("cache warming config: %w", err)
	}
	return nil
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DefaultTTL == 0 {
		c.DefaultTTL = def.DefaultTTL
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = def.KeyPrefix
	}
	if c.Warming.MinUsageCount == 0 {
		c.Warming.MinUsageCount = def.Warming.MinUsageCount
	}
	if c.Warming.PopularQueriesLimit == 0 {
		c.Warming.PopularQueriesLimit = def.Warming.PopularQueriesLimit
	}
	if c.Warming.WarmInterval == 0 {
		c.Warming.WarmInterval = def.Warming.WarmInterval
	}
	return c
}

// ParseConfig decodes a YAML document into a Config.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("cache config: %w", err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigFromYAML loads a Config from a YAML file.
func ConfigFromYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cache config: %w", err)
	}
	return ParseConfig(data)
}
