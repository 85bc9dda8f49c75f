package di

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/datastore"
	"github.com/goliatone/go-entity-cache/entitycache"
	"github.com/goliatone/go-entity-cache/internal/memstore"
	"github.com/goliatone/go-entity-cache/internal/resilience"
	"github.com/goliatone/go-entity-cache/internal/sqlstore"
	"github.com/goliatone/go-entity-cache/pkg/config"
	"github.com/goliatone/go-entity-cache/pkg/logging"
	"github.com/goliatone/go-entity-cache/pkg/metrics"
	"github.com/goliatone/go-entity-cache/txn"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "entity_cache"

// Option customizes container construction.
type Option func(*Container)

// WithLogger replaces the logger built from the logging configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDatastore replaces the datastore built from the datastore
// configuration. The resilience wrapper is still applied.
func WithDatastore(store datastore.Datastore) Option {
	return func(c *Container) {
		c.base = store
	}
}

// Container provides dependency injection for the cache stack.
// It owns singleton instances of the logger, cache storage, entity cache,
// datastore and transaction manager, built from one configuration.
type Container struct {
	config   config.Config
	logger   *zap.Logger
	storage  cache.Storage
	cache    *entitycache.Cache
	base     datastore.Datastore
	store    *resilience.Datastore
	manager  *txn.Manager
	registry *prometheus.Registry
}

// NewContainer validates cfg and wires every component.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{config: cfg}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		logger, err := logging.New(cfg.Logging)
		if err != nil {
			return nil, err
		}
		c.logger = logger
	}

	storage, err := cache.NewStorage(cfg.Cache)
	if err != nil {
		return nil, err
	}
	c.storage = storage
	c.cache = entitycache.New(storage, entitycache.WithLogger(c.logger.Named("cache")))

	if c.base == nil {
		base, err := openDatastore(ctx, cfg.Datastore, c.logger.Named("datastore"))
		if err != nil {
			return nil, err
		}
		c.base = base
	}
	c.store = resilience.Wrap(c.base, cfg.Resilience, resilience.WithLogger(c.logger.Named("resilience")))

	c.manager = txn.NewManager(c.store, c.cache,
		txn.WithLogger(c.logger.Named("txn")),
		txn.WithPutAfterUpdate(cfg.Coordinator.PutAfterUpdate),
	)

	registry, err := metrics.NewRegistry(metrics.NewCollector(MetricsNamespace, c.cache))
	if err != nil {
		_ = c.store.Close()
		return nil, err
	}
	c.registry = registry

	c.logger.Debug("container ready",
		zap.String("cache_backend", string(cfg.Cache.Backend)),
		zap.String("datastore_driver", cfg.Datastore.Driver),
		zap.Bool("put_after_update", cfg.Coordinator.PutAfterUpdate),
	)
	return c, nil
}

// NewContainerWithDefaults wires an in-memory datastore with the default
// cache and resilience settings.
func NewContainerWithDefaults(ctx context.Context, opts ...Option) (*Container, error) {
	return NewContainer(ctx, config.Default(), opts...)
}

func openDatastore(ctx context.Context, cfg config.DatastoreConfig, logger *zap.Logger) (datastore.Datastore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memstore.New(memstore.WithLogger(logger)), nil
	case config.DriverSQLite, config.DriverPostgres:
		driver := sqlstore.DriverSQLite
		if cfg.Driver == config.DriverPostgres {
			driver = sqlstore.DriverPostgres
		}
		return sqlstore.Open(ctx, sqlstore.Config{
			Driver:       driver,
			DSN:          cfg.DSN,
			MaxOpenConns: cfg.MaxOpenConns,
		}, sqlstore.WithLogger(logger))
	}
	return nil, fmt.Errorf("unsupported datastore driver %q", cfg.Driver)
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() config.Config { return c.config }

func (c *Container) Logger() *zap.Logger { return c.logger }

func (c *Container) Storage() cache.Storage { return c.storage }

func (c *Container) Cache() *entitycache.Cache { return c.cache }

// Datastore returns the resilient datastore every session goes through.
func (c *Container) Datastore() *resilience.Datastore { return c.store }

func (c *Container) Manager() *txn.Manager { return c.manager }

// Registry exposes region statistics as Prometheus gauges.
func (c *Container) Registry() *prometheus.Registry { return c.registry }

// Close releases the datastore and flushes the logger.
func (c *Container) Close() error {
	err := c.store.Close()
	_ = c.logger.Sync()
	return err
}
