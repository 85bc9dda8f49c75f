package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/datastore"
)

// Store is an in-memory transactional datastore with read-committed
// isolation. Transactions see their own writes; other readers see only
// committed rows. Concurrent writers to the same row do not block each
// other and the last committer wins.
type Store struct {
	mu      sync.RWMutex
	schemas map[string]datastore.Schema
	rows    map[string]map[string]datastore.Fields

	unavailable atomic.Bool
	logger      *zap.Logger
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		schemas: make(map[string]datastore.Schema),
		rows:    make(map[string]map[string]datastore.Fields),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ datastore.Datastore = (*Store)(nil)

// SetUnavailable simulates loss of connectivity. While set, every operation
// fails with a StoreUnavailable error.
func (s *Store) SetUnavailable(down bool) {
	s.unavailable.Store(down)
}

func (s *Store) Register(_ context.Context, schema datastore.Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[schema.Name] = schema
	if _, ok := s.rows[schema.Name]; !ok {
		s.rows[schema.Name] = make(map[string]datastore.Fields)
	}
	return nil
}

func (s *Store) FindByKey(_ context.Context, entityType, key string) (datastore.Entity, error) {
	if err := s.check("find"); err != nil {
		return datastore.Entity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.schemas[entityType]; !ok {
		return datastore.Entity{}, datastore.NewUnknownType(entityType)
	}
	fields, ok := s.rows[entityType][key]
	if !ok {
		return datastore.Entity{}, datastore.NewNotFound(datastore.Ref{Type: entityType, Key: key})
	}
	return datastore.NewEntity(entityType, key, maps.Clone(fields)), nil
}

func (s *Store) Begin(_ context.Context) (datastore.Tx, error) {
	if err := s.check("begin"); err != nil {
		return nil, err
	}
	t := &tx{
		store:  s,
		id:     uuid.NewString(),
		writes: make(map[datastore.Ref]*write),
	}
	s.logger.Debug("memstore transaction begun", zap.String("store_tx", t.id))
	return t, nil
}

func (s *Store) Close() error { return nil }

// Rows returns the committed rows of entityType ordered by key.
func (s *Store) Rows(entityType string) []datastore.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := slices.Sorted(maps.Keys(s.rows[entityType]))
	out := make([]datastore.Entity, 0, len(keys))
	for _, k := range keys {
		out = append(out, datastore.NewEntity(entityType, k, maps.Clone(s.rows[entityType][k])))
	}
	return out
}

func (s *Store) schema(entityType string) (datastore.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[entityType]
	if !ok {
		return datastore.Schema{}, datastore.NewUnknownType(entityType)
	}
	return schema, nil
}

func (s *Store) check(operation string) error {
	if s.unavailable.Load() {
		return datastore.NewStoreUnavailable(operation, nil)
	}
	return nil
}
