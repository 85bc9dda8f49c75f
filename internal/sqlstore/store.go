// Package sqlstore implements the datastore collaborator on top of bun for
// SQLite and PostgreSQL. Every registered schema maps to one table named
// after the pluralized schema name.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"github.com/jinzhu/inflection"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/datastore"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the SQL engine and connection.
type Config struct {
	Driver       string `json:"driver" yaml:"driver"`
	DSN          string `json:"dsn" yaml:"dsn"`
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns"`
}

func (c Config) Validate() error {
	if verr := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
			validation.Field(&c.DSN, validation.Required),
			validation.Field(&c.MaxOpenConns, validation.Min(0)),
		)
	}, "invalid sql datastore configuration"); verr != nil {
		return verr
	}
	return nil
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is a Datastore backed by a SQL database.
type Store struct {
	db     *bun.DB
	logger *zap.Logger

	mu      sync.RWMutex
	schemas map[string]datastore.Schema
}

var _ datastore.Datastore = (*Store)(nil)

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	driverName := "sqlite3"
	if cfg.Driver == DriverPostgres {
		driverName = "postgres"
	}
	sqldb, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, datastore.NewStoreUnavailable("open", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	var db *bun.DB
	if cfg.Driver == DriverPostgres {
		db = bun.NewDB(sqldb, pgdialect.New())
	} else {
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, datastore.NewStoreUnavailable("open", err)
	}
	return New(db, opts...), nil
}

// New wraps an already configured bun database.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:      db,
		logger:  zap.NewNop(),
		schemas: make(map[string]datastore.Schema),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying bun database.
func (s *Store) DB() *bun.DB { return s.db }

// Register creates the table for schema when it does not exist yet.
func (s *Store) Register(ctx context.Context, schema datastore.Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	query, args := createTableQuery(s.db.Dialect().Name(), schema)
	if _, err := s.db.NewRaw(query, args...).Exec(ctx); err != nil {
		return mapError("register", datastore.Ref{Type: schema.Name}, err)
	}

	s.mu.Lock()
	s.schemas[schema.Name] = schema
	s.mu.Unlock()

	s.logger.Debug("sqlstore schema registered",
		zap.String("entity_type", schema.Name),
		zap.String("table", tableName(schema)),
	)
	return nil
}

func (s *Store) FindByKey(ctx context.Context, entityType, key string) (datastore.Entity, error) {
	schema, err := s.schema(entityType)
	if err != nil {
		return datastore.Entity{}, err
	}
	return findByKey(ctx, s.db, schema, key)
}

func (s *Store) Begin(ctx context.Context) (datastore.Tx, error) {
	btx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError("begin", datastore.Ref{}, err)
	}
	return &tx{store: s, tx: btx}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
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

func tableName(schema datastore.Schema) string {
	return inflection.Plural(strings.ToLower(schema.Name))
}

func createTableQuery(name dialect.Name, schema datastore.Schema) (string, []any) {
	var b strings.Builder
	args := []any{bun.Ident(tableName(schema)), bun.Ident(schema.KeyColumn)}
	b.WriteString("CREATE TABLE IF NOT EXISTS ? (? TEXT PRIMARY KEY")
	for _, c := range schema.Columns {
		fmt.Fprintf(&b, ", ? %s", columnType(name, c.Kind))
		args = append(args, bun.Ident(c.Name))
	}
	b.WriteString(")")
	return b.String(), args
}

func columnType(name dialect.Name, kind datastore.Kind) string {
	switch kind {
	case datastore.KindInt:
		if name == dialect.PG {
			return "BIGINT"
		}
		return "INTEGER"
	case datastore.KindFloat:
		if name == dialect.PG {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case datastore.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func findByKey(ctx context.Context, idb bun.IDB, schema datastore.Schema, key string) (datastore.Entity, error) {
	ref := datastore.Ref{Type: schema.Name, Key: key}
	row := map[string]any{}
	err := idb.NewSelect().
		TableExpr("?", bun.Ident(tableName(schema))).
		Where("? = ?", bun.Ident(schema.KeyColumn), key).
		Limit(1).
		Scan(ctx, &row)
	if err != nil {
		return datastore.Entity{}, mapError("find", ref, err)
	}
	return rowToEntity(schema, row)
}

func rowToEntity(schema datastore.Schema, row map[string]any) (datastore.Entity, error) {
	rawKey, err := datastore.KindString.Coerce(row[schema.KeyColumn])
	if err != nil {
		return datastore.Entity{}, err
	}
	key, _ := rawKey.(string)
	fields := make(datastore.Fields, len(schema.Columns))
	for _, c := range schema.Columns {
		fields[c.Name] = row[c.Name]
	}
	return schema.Normalize(datastore.NewEntity(schema.Name, key, fields))
}
