package txn

import (
	"context"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/datastore"
	"github.com/goliatone/go-entity-cache/entitycache"
)

const tracerName = "github.com/goliatone/go-entity-cache/txn"

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// WithPutAfterUpdate stores the committed value of a targeted update in the
// cache instead of only evicting the entry.
func WithPutAfterUpdate(enabled bool) Option {
	return func(m *Manager) {
		m.putAfterUpdate = enabled
	}
}

// Manager owns the shared pieces every session uses: the datastore, the
// second-level cache and the registered schemas.
type Manager struct {
	store          datastore.Datastore
	cache          *entitycache.Cache
	schemas        *xsync.MapOf[string, datastore.Schema]
	logger         *zap.Logger
	tracer         trace.Tracer
	putAfterUpdate bool
}

func NewManager(store datastore.Datastore, cache *entitycache.Cache, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		cache:   cache,
		schemas: xsync.NewMapOf[string, datastore.Schema](),
		logger:  zap.NewNop(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register declares an entity type with the datastore and, when the schema
// is cacheable, creates its cache region.
func (m *Manager) Register(ctx context.Context, schema datastore.Schema) error {
	if err := m.store.Register(ctx, schema); err != nil {
		return err
	}
	if schema.Cacheable {
		if _, err := m.cache.Register(schema); err != nil {
			return err
		}
	}
	m.schemas.Store(schema.Name, schema)
	return nil
}

// NewSession opens a session for the calling execution context.
func (m *Manager) NewSession() *Session {
	return &Session{
		m:       m,
		id:      uuid.NewString(),
		managed: make(map[datastore.Ref]datastore.Entity),
		logger:  m.logger,
	}
}

func (m *Manager) Cache() *entitycache.Cache  { return m.cache }
func (m *Manager) Store() datastore.Datastore { return m.store }
func (m *Manager) Logger() *zap.Logger        { return m.logger }

func (m *Manager) schema(entityType string) (datastore.Schema, error) {
	s, ok := m.schemas.Load(entityType)
	if !ok {
		return datastore.Schema{}, datastore.NewUnknownType(entityType)
	}
	return s, nil
}

// region returns the cache region for a cacheable type, or nil.
func (m *Manager) region(schema datastore.Schema) *entitycache.Region {
	if !schema.Cacheable {
		return nil
	}
	r, _ := m.cache.Region(schema.Name)
	return r
}
