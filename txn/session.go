package txn

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/datastore"
	"github.com/goliatone/go-entity-cache/entitycache"
)

type pendingOp struct {
	op     Operation
	entity datastore.Entity
}

// lockedItem is a key soft-locked by this session's transaction.
type lockedItem struct {
	region *entitycache.Region
	key    string
	op     Operation
	value  datastore.Entity
}

// Session is the transaction context and persistence context of one
// execution context. A Session is not safe for concurrent use; give every
// goroutine its own.
type Session struct {
	m      *Manager
	id     string
	logger *zap.Logger

	state State
	txID  string
	tx    datastore.Tx

	// managed is the transaction scoped persistence context.
	managed map[datastore.Ref]datastore.Entity
	pending []pendingOp

	lockedItems   []lockedItem
	lockedRegions []*entitycache.Region
	writes        []WriteOp
}

// ID identifies the session for logging.
func (s *Session) ID() string { return s.id }

// TxID identifies the current or last transaction. Empty before the first Begin.
func (s *Session) TxID() string { return s.txID }

func (s *Session) State() State { return s.state }

// Writes returns the writes flushed by the current or last transaction.
func (s *Session) Writes() []WriteOp {
	out := make([]WriteOp, len(s.writes))
	copy(out, s.writes)
	return out
}

// Begin starts a transaction. It fails with an IllegalState error when one
// is already active on this session.
func (s *Session) Begin(ctx context.Context) error {
	if s.state == StateActive {
		return datastore.NewIllegalState(fmt.Sprintf("transaction %s already active", s.txID))
	}

	txID := uuid.NewString()
	s.logger.Debug("transaction starting", zap.String("tx_id", txID), zap.String("session_id", s.id))

	tx, err := s.m.store.Begin(ctx)
	if err != nil {
		return err
	}

	s.tx = tx
	s.txID = txID
	s.state = StateActive
	s.resetTransactionScope()

	s.logger.Debug("transaction started", zap.String("tx_id", txID))
	return nil
}

// Persist schedules the insert of a new entity and makes it managed.
// Types with generated keys get a key assigned when e.Key is empty.
func (s *Session) Persist(ctx context.Context, e datastore.Entity) (datastore.Entity, error) {
	if err := s.requireActive("persist"); err != nil {
		return datastore.Entity{}, err
	}
	schema, err := s.m.schema(e.Type)
	if err != nil {
		return datastore.Entity{}, err
	}
	if e.Key == "" {
		if !schema.GeneratedKey {
			return datastore.Entity{}, datastore.NewIllegalState(
				fmt.Sprintf("%s requires an explicit %s", schema.Name, schema.KeyColumn))
		}
		e.Key = uuid.NewString()
	}
	normalized, err := schema.Normalize(e)
	if err != nil {
		return datastore.Entity{}, err
	}
	if _, ok := s.managed[normalized.Ref()]; ok {
		return datastore.Entity{}, datastore.NewConstraintViolation(normalized.Ref(), nil)
	}

	s.pending = append(s.pending, pendingOp{op: OpInsert, entity: normalized})
	s.managed[normalized.Ref()] = normalized.Clone()
	return normalized.Clone(), nil
}

// Merge schedules a targeted update. Fields absent from e keep their values.
func (s *Session) Merge(ctx context.Context, e datastore.Entity) (datastore.Entity, error) {
	if err := s.requireActive("merge"); err != nil {
		return datastore.Entity{}, err
	}
	schema, err := s.m.schema(e.Type)
	if err != nil {
		return datastore.Entity{}, err
	}
	normalized, err := schema.Normalize(e)
	if err != nil {
		return datastore.Entity{}, err
	}

	current, ok := s.managed[normalized.Ref()]
	if !ok {
		if current, err = s.Find(ctx, normalized.Type, normalized.Key); err != nil {
			return datastore.Entity{}, err
		}
	}
	merged := current.Clone()
	if merged.Fields == nil {
		merged.Fields = datastore.Fields{}
	}
	maps.Copy(merged.Fields, normalized.Fields)

	s.pending = append(s.pending, pendingOp{op: OpUpdate, entity: normalized})
	s.managed[merged.Ref()] = merged.Clone()
	return merged.Clone(), nil
}

// Remove schedules the delete of an entity and detaches it.
func (s *Session) Remove(ctx context.Context, entityType, key string) error {
	if err := s.requireActive("remove"); err != nil {
		return err
	}
	if _, err := s.m.schema(entityType); err != nil {
		return err
	}
	ref := datastore.Ref{Type: entityType, Key: key}
	s.pending = append(s.pending, pendingOp{op: OpDelete, entity: datastore.Entity{Type: entityType, Key: key}})
	delete(s.managed, ref)
	return nil
}

// Find returns the entity with the given key.
//
// Inside a transaction managed instances are returned first. Otherwise the
// cache region is consulted and misses read through the transaction, so the
// transaction sees its own flushed writes. Outside a transaction misses read
// committed state directly from the datastore.
func (s *Session) Find(ctx context.Context, entityType, key string) (datastore.Entity, error) {
	schema, err := s.m.schema(entityType)
	if err != nil {
		return datastore.Entity{}, err
	}
	ref := datastore.Ref{Type: entityType, Key: key}

	var reader datastore.Reader = s.m.store
	if s.state == StateActive {
		if e, ok := s.managed[ref]; ok {
			return e.Clone(), nil
		}
		if len(s.pending) > 0 {
			if err := s.Flush(ctx); err != nil {
				return datastore.Entity{}, err
			}
		}
		reader = s.tx
	}

	load := func(ctx context.Context) (datastore.Entity, error) {
		e, err := reader.FindByKey(ctx, entityType, key)
		if err != nil {
			return datastore.Entity{}, err
		}
		return schema.Normalize(e)
	}

	var e datastore.Entity
	if region := s.m.region(schema); region != nil {
		var outcome entitycache.Outcome
		e, outcome, err = region.GetOrLoad(ctx, key, load)
		if err == nil {
			s.logger.Debug("find",
				zap.String("tx_id", s.txID),
				zap.String("entity", ref.String()),
				zap.Stringer("outcome", outcome),
			)
		}
	} else {
		e, err = load(ctx)
	}
	if err != nil {
		return datastore.Entity{}, err
	}

	if s.state == StateActive {
		s.managed[ref] = e.Clone()
	}
	return e, nil
}

// ExecuteUpdate runs a set-based update. Pending writes are flushed first,
// the region of the affected type is soft-locked before the statement runs
// and managed instances of the type are detached.
func (s *Session) ExecuteUpdate(ctx context.Context, entityType string, where datastore.Predicate, set datastore.Assignments) (n int, err error) {
	if err := s.requireActive("execute update"); err != nil {
		return 0, err
	}
	schema, err := s.m.schema(entityType)
	if err != nil {
		return 0, err
	}

	ctx, span := s.startSpan(ctx, "txn.ExecuteUpdate", attribute.String("entity.type", entityType))
	defer func() { endSpan(span, err) }()

	if len(s.pending) > 0 {
		if err := s.Flush(ctx); err != nil {
			return 0, err
		}
	}

	if region := s.m.region(schema); region != nil {
		region.LockRegion(s.txID)
		s.lockedRegions = append(s.lockedRegions, region)
	}

	n, err = s.tx.ExecuteSetUpdate(ctx, entityType, where, set)
	if err != nil {
		return 0, err
	}

	for ref := range s.managed {
		if ref.Type == entityType {
			delete(s.managed, ref)
		}
	}
	s.writes = append(s.writes, WriteOp{
		Kind:      SetBased,
		Operation: OpSetUpdate,
		Type:      entityType,
		Predicate: where,
		Affected:  n,
	})
	s.logger.Debug("set-based update executed",
		zap.String("tx_id", s.txID),
		zap.String("entity_type", entityType),
		zap.Stringer("where", where),
		zap.Int("affected", n),
	)
	return n, nil
}

// Flush sends pending writes to the datastore. Every key is soft-locked in
// its region before the statement that changes it runs.
func (s *Session) Flush(ctx context.Context) (err error) {
	if err := s.requireActive("flush"); err != nil {
		return err
	}

	ctx, span := s.startSpan(ctx, "txn.Flush", attribute.Int("pending", len(s.pending)))
	defer func() { endSpan(span, err) }()

	for len(s.pending) > 0 {
		p := s.pending[0]
		s.pending = s.pending[1:]

		schema, err := s.m.schema(p.entity.Type)
		if err != nil {
			return err
		}
		if region := s.m.region(schema); region != nil {
			region.LockItem(s.txID, p.entity.Key)
			s.lockedItems = append(s.lockedItems, lockedItem{region: region, key: p.entity.Key, op: p.op, value: p.entity})
		}

		switch p.op {
		case OpInsert:
			_, err = s.tx.Insert(ctx, p.entity)
		case OpUpdate:
			err = s.tx.Update(ctx, p.entity)
		case OpDelete:
			err = s.tx.Delete(ctx, p.entity.Type, p.entity.Key)
		}
		if err != nil {
			return err
		}

		s.writes = append(s.writes, WriteOp{
			Kind:      Targeted,
			Operation: p.op,
			Type:      p.entity.Type,
			Key:       p.entity.Key,
			Affected:  1,
		})
	}
	return nil
}

// Commit flushes pending writes, commits the datastore transaction and then
// applies the cache effects: evict updated and deleted keys, put inserted
// entities and evict regions touched by set-based updates. When any step
// before the datastore commit returns fails, the transaction is rolled back
// and the original error is returned.
func (s *Session) Commit(ctx context.Context) (err error) {
	if err := s.requireActive("commit"); err != nil {
		return err
	}

	ctx, span := s.startSpan(ctx, "txn.Commit")
	defer func() { endSpan(span, err) }()

	if err := s.Flush(ctx); err != nil {
		return s.rollbackAfter(ctx, err)
	}

	if err := s.captureCommittedValues(ctx); err != nil {
		return s.rollbackAfter(ctx, err)
	}

	if err := s.tx.Commit(ctx); err != nil {
		return s.rollbackAfter(ctx, err)
	}

	s.releaseLocks(true)
	s.finish(StateCommitted)
	s.logger.Debug("transaction committed", zap.String("tx_id", s.txID), zap.Int("writes", len(s.writes)))
	return nil
}

// Rollback discards pending and flushed writes. Cache entries are left as
// they were before the transaction began.
func (s *Session) Rollback(ctx context.Context) (err error) {
	if err := s.requireActive("rollback"); err != nil {
		return err
	}

	ctx, span := s.startSpan(ctx, "txn.Rollback")
	defer func() { endSpan(span, err) }()

	err = s.tx.Rollback(ctx)
	s.releaseLocks(false)
	s.finish(StateRolledBack)
	if err != nil {
		return err
	}
	s.logger.Debug("transaction rolled back", zap.String("tx_id", s.txID))
	return nil
}

// rollbackAfter rolls back after cause and returns cause. A rollback failure
// is logged, never returned in place of cause.
func (s *Session) rollbackAfter(ctx context.Context, cause error) error {
	if s.state != StateActive {
		return cause
	}
	if rbErr := s.Rollback(ctx); rbErr != nil && !datastore.IsTransactionCompleted(rbErr) {
		s.logger.Error("rollback failed",
			zap.String("tx_id", s.txID),
			zap.NamedError("rollback_error", rbErr),
			zap.Error(cause),
		)
	}
	return cause
}

// Clear detaches every managed entity and drops unflushed writes.
func (s *Session) Clear() {
	clear(s.managed)
	s.pending = nil
}

// IsManaged reports whether the entity is in the persistence context.
func (s *Session) IsManaged(entityType, key string) bool {
	_, ok := s.managed[datastore.Ref{Type: entityType, Key: key}]
	return ok
}

// captureCommittedValues reads back the final state of inserted rows, and of
// updated rows when put-after-update is enabled, as they will be committed.
func (s *Session) captureCommittedValues(ctx context.Context) error {
	for i, item := range s.lockedItems {
		if item.op != OpInsert && (item.op != OpUpdate || !s.m.putAfterUpdate) {
			continue
		}
		e, err := s.tx.FindByKey(ctx, item.value.Type, item.key)
		if err != nil {
			if datastore.IsNotFound(err) {
				s.lockedItems[i].op = OpDelete
				continue
			}
			return err
		}
		s.lockedItems[i].value = e
	}
	return nil
}

func (s *Session) releaseLocks(committed bool) {
	for _, region := range s.lockedRegions {
		region.UnlockRegion(s.txID, committed)
	}
	for _, item := range s.lockedItems {
		switch {
		case !committed:
			item.region.UnlockItem(s.txID, item.key, false)
		case item.op == OpInsert:
			item.region.UnlockItemAfterInsert(s.txID, item.key, item.value)
		case item.op == OpUpdate && s.m.putAfterUpdate:
			item.region.UnlockItemWithValue(s.txID, item.key, item.value)
		default:
			item.region.UnlockItem(s.txID, item.key, true)
		}
	}
	s.lockedRegions = nil
	s.lockedItems = nil
}

func (s *Session) finish(state State) {
	s.state = state
	s.tx = nil
	s.pending = nil
	clear(s.managed)
}

func (s *Session) resetTransactionScope() {
	clear(s.managed)
	s.pending = nil
	s.lockedItems = nil
	s.lockedRegions = nil
	s.writes = nil
}

func (s *Session) requireActive(operation string) error {
	if s.state != StateActive {
		return datastore.NewIllegalState(fmt.Sprintf("%s requires an active transaction (state %s)", operation, s.state))
	}
	return nil
}

func (s *Session) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("tx.id", s.txID))
	return s.m.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
