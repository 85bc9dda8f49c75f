package memstore

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/datastore"
)

type writeKind int

const (
	writeInsert writeKind = iota
	writeUpdate
	writeReplace
	writeDelete
)

type write struct {
	kind   writeKind
	fields datastore.Fields
}

type tx struct {
	store  *Store
	id     string
	writes map[datastore.Ref]*write
	order  []datastore.Ref
	done   bool
}

func (t *tx) FindByKey(_ context.Context, entityType, key string) (datastore.Entity, error) {
	if err := t.usable("find"); err != nil {
		return datastore.Entity{}, err
	}
	if _, err := t.store.schema(entityType); err != nil {
		return datastore.Entity{}, err
	}
	ref := datastore.Ref{Type: entityType, Key: key}
	fields, ok := t.visible(ref)
	if !ok {
		return datastore.Entity{}, datastore.NewNotFound(ref)
	}
	return datastore.NewEntity(entityType, key, fields), nil
}

func (t *tx) Insert(_ context.Context, e datastore.Entity) (string, error) {
	if err := t.usable("insert"); err != nil {
		return "", err
	}
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

	ref := e.Ref()
	if _, exists := t.visible(ref); exists {
		return "", datastore.NewConstraintViolation(ref, nil)
	}
	if w, ok := t.writes[ref]; ok && w.kind == writeDelete {
		// delete then re-insert within one transaction replaces the row
		t.writes[ref] = &write{kind: writeReplace, fields: normalized.Fields}
		return ref.Key, nil
	}
	t.record(ref, &write{kind: writeInsert, fields: normalized.Fields})
	return ref.Key, nil
}

func (t *tx) Update(_ context.Context, e datastore.Entity) error {
	if err := t.usable("update"); err != nil {
		return err
	}
	schema, err := t.store.schema(e.Type)
	if err != nil {
		return err
	}
	normalized, err := schema.Normalize(e)
	if err != nil {
		return err
	}
	return t.apply(e.Ref(), datastore.Assignments(normalized.Fields))
}

func (t *tx) Delete(_ context.Context, entityType, key string) error {
	if err := t.usable("delete"); err != nil {
		return err
	}
	if _, err := t.store.schema(entityType); err != nil {
		return err
	}
	ref := datastore.Ref{Type: entityType, Key: key}
	if _, ok := t.visible(ref); !ok {
		return datastore.NewNotFound(ref)
	}
	if w, ok := t.writes[ref]; ok && w.kind == writeInsert {
		delete(t.writes, ref)
		return nil
	}
	t.record(ref, &write{kind: writeDelete})
	return nil
}

func (t *tx) ExecuteSetUpdate(_ context.Context, entityType string, where datastore.Predicate, set datastore.Assignments) (int, error) {
	if err := t.usable("set update"); err != nil {
		return 0, err
	}
	schema, err := t.store.schema(entityType)
	if err != nil {
		return 0, err
	}
	assignments, err := schema.Normalize(datastore.Entity{Type: entityType, Fields: datastore.Fields(set)})
	if err != nil {
		return 0, err
	}

	affected := 0
	for _, e := range t.visibleRows(entityType) {
		ok, err := where.Matches(schema, e)
		if err != nil {
			return affected, err
		}
		if !ok {
			continue
		}
		if err := t.apply(e.Ref(), datastore.Assignments(assignments.Fields)); err != nil {
			return affected, err
		}
		affected++
	}
	return affected, nil
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return datastore.NewTransactionCompleted()
	}
	if err := t.store.check("commit"); err != nil {
		return err
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	t.done = true

	for _, ref := range t.order {
		w, ok := t.writes[ref]
		if !ok || w.kind != writeInsert {
			continue
		}
		if _, exists := s.rows[ref.Type][ref.Key]; exists {
			return datastore.NewConstraintViolation(ref, nil)
		}
	}

	for _, ref := range t.order {
		w, ok := t.writes[ref]
		if !ok {
			continue
		}
		table := s.rows[ref.Type]
		switch w.kind {
		case writeInsert, writeReplace:
			table[ref.Key] = maps.Clone(w.fields)
		case writeUpdate:
			current, exists := table[ref.Key]
			if !exists {
				// deleted by a transaction that committed first
				continue
			}
			next := maps.Clone(current)
			maps.Copy(next, w.fields)
			table[ref.Key] = next
		case writeDelete:
			delete(table, ref.Key)
		}
	}

	s.logger.Debug("memstore transaction committed",
		zap.String("store_tx", t.id),
		zap.Int("writes", len(t.writes)),
	)
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return datastore.NewTransactionCompleted()
	}
	t.done = true
	t.writes = nil
	t.order = nil
	if err := t.store.check("rollback"); err != nil {
		return err
	}
	t.store.logger.Debug("memstore transaction rolled back", zap.String("store_tx", t.id))
	return nil
}

func (t *tx) usable(operation string) error {
	if t.done {
		return datastore.NewTransactionCompleted()
	}
	return t.store.check(operation)
}

// apply merges assignments into the row visible to this transaction.
func (t *tx) apply(ref datastore.Ref, set datastore.Assignments) error {
	if _, ok := t.visible(ref); !ok {
		return datastore.NewNotFound(ref)
	}
	w, ok := t.writes[ref]
	if !ok {
		t.record(ref, &write{kind: writeUpdate, fields: datastore.Fields(maps.Clone(set))})
		return nil
	}
	if w.fields == nil {
		w.fields = datastore.Fields{}
	}
	maps.Copy(w.fields, set)
	return nil
}

func (t *tx) record(ref datastore.Ref, w *write) {
	if _, seen := t.writes[ref]; !seen {
		t.order = append(t.order, ref)
	}
	t.writes[ref] = w
}

// visible returns the row as this transaction sees it: committed state
// overlaid with its own pending writes.
func (t *tx) visible(ref datastore.Ref) (datastore.Fields, bool) {
	t.store.mu.RLock()
	committed, exists := t.store.rows[ref.Type][ref.Key]
	committed = maps.Clone(committed)
	t.store.mu.RUnlock()

	w, ok := t.writes[ref]
	if !ok {
		return committed, exists
	}
	switch w.kind {
	case writeDelete:
		return nil, false
	case writeInsert, writeReplace:
		return maps.Clone(w.fields), true
	default:
		if !exists {
			// updated row was deleted by a concurrent committer
			return nil, false
		}
		maps.Copy(committed, w.fields)
		return committed, true
	}
}

func (t *tx) visibleRows(entityType string) []datastore.Entity {
	t.store.mu.RLock()
	keys := make(map[string]struct{}, len(t.store.rows[entityType]))
	for k := range t.store.rows[entityType] {
		keys[k] = struct{}{}
	}
	t.store.mu.RUnlock()

	for ref := range t.writes {
		if ref.Type == entityType {
			keys[ref.Key] = struct{}{}
		}
	}

	var rows []datastore.Entity
	for k := range keys {
		ref := datastore.Ref{Type: entityType, Key: k}
		if fields, ok := t.visible(ref); ok {
			rows = append(rows, datastore.NewEntity(entityType, k, fields))
		}
	}
	return rows
}
