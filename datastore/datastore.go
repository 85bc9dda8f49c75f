package datastore

import "context"

// Reader looks up single entities by identity.
// Implementations return a NotFound error when the key is absent.
type Reader interface {
	FindByKey(ctx context.Context, entityType, key string) (Entity, error)
}

// Datastore is the persistent source of truth the entity cache sits in front of.
// Reads issued directly on the Datastore run outside of any transaction and
// only observe committed state.
type Datastore interface {
	Reader

	// Register declares an entity type. It must be called before any
	// operation that references the type.
	Register(ctx context.Context, schema Schema) error

	// Begin opens a transaction owned by the calling execution context.
	Begin(ctx context.Context) (Tx, error)

	Close() error
}

// Tx is a per-context transaction handle. A Tx is not safe for concurrent use.
type Tx interface {
	Reader

	// Insert stores a new entity and returns its key. When the schema uses
	// generated keys and the entity has no key, one is assigned.
	Insert(ctx context.Context, entity Entity) (string, error)

	// Update replaces the fields of an existing entity identified by key.
	Update(ctx context.Context, entity Entity) error

	// Delete removes the entity identified by key.
	Delete(ctx context.Context, entityType, key string) error

	// ExecuteSetUpdate applies assignments to every row of entityType that
	// matches where and reports how many rows were affected.
	ExecuteSetUpdate(ctx context.Context, entityType string, where Predicate, set Assignments) (int, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
