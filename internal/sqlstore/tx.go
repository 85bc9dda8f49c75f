package sqlstore

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-entity-cache/datastore"
)

type tx struct {
	store *Store
	tx    bun.Tx
}

func (t *tx) FindByKey(ctx context.Context, entityType, key string) (datastore.Entity, error) {
	schema, err := t.store.schema(entityType)
	if err != nil {
		return datastore.Entity{}, err
	}
	return findByKey(ctx, t.tx, schema, key)
}

func (t *tx) Insert(ctx context.Context, e datastore.Entity) (string, error) {
	schema, err := t.store.schema(e.Type)
	if err != nil {
		return "", err
	}
	if e.Key == "" {
		if !schema.GeneratedKey {
			return "", datastore.NewIllegalState(fmt.Sprintf("%s requires an explicit %s", schema.Name, schema.KeyColumn))
		}
		e.Key = uuid.NewString()
	}
	normalized, err := schema.Normalize(e)
	if err != nil {
		return "", err
	}

	values := maps.Clone(map[string]any(normalized.Fields))
	values[schema.KeyColumn] = normalized.Key
	_, err = t.tx.NewInsert().
		Model(&values).
		TableExpr("?", bun.Ident(tableName(schema))).
		Exec(ctx)
	if err != nil {
		return "", mapError("insert", normalized.Ref(), err)
	}
	return normalized.Key, nil
}

func (t *tx) Update(ctx context.Context, e datastore.Entity) error {
	schema, err := t.store.schema(e.Type)
	if err != nil {
		return err
	}
	normalized, err := schema.Normalize(e)
	if err != nil {
		return err
	}
	ref := normalized.Ref()
	if len(normalized.Fields) == 0 {
		_, err := findByKey(ctx, t.tx, schema, ref.Key)
		return err
	}

	values := map[string]any(normalized.Fields)
	res, err := t.tx.NewUpdate().
		Model(&values).
		TableExpr("?", bun.Ident(tableName(schema))).
		Where("? = ?", bun.Ident(schema.KeyColumn), ref.Key).
		Exec(ctx)
	if err != nil {
		return mapError("update", ref, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return datastore.NewNotFound(ref)
	}
	return nil
}

func (t *tx) Delete(ctx context.Context, entityType, key string) error {
	schema, err := t.store.schema(entityType)
	if err != nil {
		return err
	}
	ref := datastore.Ref{Type: entityType, Key: key}
	res, err := t.tx.NewDelete().
		TableExpr("?", bun.Ident(tableName(schema))).
		Where("? = ?", bun.Ident(schema.KeyColumn), key).
		Exec(ctx)
	if err != nil {
		return mapError("delete", ref, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return datastore.NewNotFound(ref)
	}
	return nil
}

func (t *tx) ExecuteSetUpdate(ctx context.Context, entityType string, where datastore.Predicate, set datastore.Assignments) (int, error) {
	schema, err := t.store.schema(entityType)
	if err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, datastore.NewIllegalState(fmt.Sprintf("set-based update of %s without assignments", entityType))
	}
	assignments, err := schema.Normalize(datastore.Entity{Type: entityType, Fields: datastore.Fields(set)})
	if err != nil {
		return 0, err
	}
	clauses, err := whereClauses(schema, where)
	if err != nil {
		return 0, err
	}

	q := t.tx.NewUpdate().TableExpr("?", bun.Ident(tableName(schema)))
	for _, col := range slices.Sorted(maps.Keys(assignments.Fields)) {
		q = q.Set("? = ?", bun.Ident(col), assignments.Fields[col])
	}
	for _, c := range clauses {
		q = q.Where(c.query, c.args...)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, mapError("set update", datastore.Ref{Type: entityType}, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("set update", datastore.Ref{Type: entityType}, err)
	}
	return int(n), nil
}

func (t *tx) Commit(_ context.Context) error {
	return mapError("commit", datastore.Ref{}, t.tx.Commit())
}

func (t *tx) Rollback(_ context.Context) error {
	return mapError("rollback", datastore.Ref{}, t.tx.Rollback())
}
