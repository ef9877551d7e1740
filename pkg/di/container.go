// Package di wires the cache tiers, key serializer and query engines
// together so applications can bootstrap with one call.
package di

import (
	"database/sql"
	"log/slog"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-repository-filter/cache"
	"github.com/goliatone/go-repository-filter/internal/cacheinfra"
	"github.com/goliatone/go-repository-filter/repositoryfilter"
)

// Config combines the service-level cache knobs (TTL, key prefix, warming)
// with the sturdyc backend tuning for the primary tier.
type Config struct {
	Service cache.Config
	Backend cacheinfra.Config
}

// DefaultConfig returns the default service and backend configuration.
func DefaultConfig() Config {
	return Config{
		Service: cache.DefaultConfig(),
		Backend: cacheinfra.DefaultConfig(),
	}
}

// Container manages singleton instances of the cache service and key
// serializer, and provides factory helpers for building engines on top of
// them.
type Container struct {
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	config        Config
	logger        *slog.Logger
}

// ContainerOption configures a Container.
type ContainerOption func(*Container)

// WithContainerLogger sets the logger handed to the cache service.
func WithContainerLogger(l *slog.Logger) ContainerOption {
	return func(c *Container) { c.logger = l }
}

// NewContainer builds the two-tier cache service: a sturdyc client as the
// primary tier and a lightweight in-process map as the fallback tier.
func NewContainer(config Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{config: config, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	primary, err := cacheinfra.NewSturdycBackend(config.Backend)
	if err != nil {
		return nil, err
	}
	local := cacheinfra.NewLocalBackend(config.Service.DefaultTTL)

	service, err := cache.NewTieredService(primary, local, config.Service, cache.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}

	c.cacheService = service
	c.keySerializer = cache.NewDefaultKeySerializer()
	return c, nil
}

// NewContainerWithDefaults creates a container using the default
// configuration for both tiers.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(DefaultConfig())
}

// NewContainerFromYAML loads the service configuration from a YAML file and
// pairs it with default backend tuning.
func NewContainerFromYAML(path string, opts ...ContainerOption) (*Container, error) {
	serviceCfg, err := cache.ConfigFromYAML(path)
	if err != nil {
		return nil, err
	}
	return NewContainer(Config{Service: serviceCfg, Backend: cacheinfra.DefaultConfig()}, opts...)
}

// CacheService returns the singleton cache service instance.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// KeySerializer returns the singleton key serializer instance.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() Config {
	return c.config
}

// NewEngine builds a cached query engine for T using the container's cache
// service and serializer.
//
// Since Go methods cannot have type parameters, this is provided as a
// package-level function. Example: NewEngine[User](container, db)
func NewEngine[T any](container *Container, db *bun.DB, opts ...repositoryfilter.Option[T]) (*repositoryfilter.Engine[T], error) {
	opts = append([]repositoryfilter.Option[T]{
		repositoryfilter.WithCache[T](container.cacheService, container.keySerializer),
	}, opts...)
	return repositoryfilter.New[T](db, opts...)
}

// OpenSQLite opens a sqlite database by DSN and wraps it for bun.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// OpenPostgres opens a Postgres database by DSN and wraps it for bun.
func OpenPostgres(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}
