// Package harness runs work on execution contexts other than the caller's and
// waits for the result. Each call starts one goroutine, so every piece of work
// gets its own session and therefore its own transaction context.
package harness

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-entity-cache/datastore"
	"github.com/goliatone/go-entity-cache/txn"
)

// PanicError carries a panic recovered from work run on a separate context.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic on separate context: %v", e.Value)
}

// RunOnSeparateContext runs fn on a new goroutine and blocks until it returns.
// The error of fn is returned unchanged; a panic is returned as *PanicError.
func RunOnSeparateContext(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := SupplyAsync(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// SupplyAsync runs fn on a new goroutine and returns its result.
func SupplyAsync[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = &PanicError{Value: p, Stack: debug.Stack()}
			}
		}()
		result, err = fn(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Harness opens sessions of one Manager on separate execution contexts.
type Harness struct {
	manager *txn.Manager
	logger  *zap.Logger
}

func New(manager *txn.Manager) *Harness {
	return &Harness{manager: manager, logger: manager.Logger()}
}

// OnSeparateSession runs fn with a fresh session, without an active
// transaction, on a separate goroutine.
func (h *Harness) OnSeparateSession(ctx context.Context, fn func(ctx context.Context, s *txn.Session) error) error {
	return RunOnSeparateContext(ctx, func(ctx context.Context) error {
		s := h.manager.NewSession()
		h.logger.Debug("running on separate session", zap.String("session_id", s.ID()))
		return fn(ctx, s)
	})
}

// FindOnSeparateSession loads an entity from a separate execution context.
// The read goes through the cache region and, on a miss, the committed
// datastore state.
func (h *Harness) FindOnSeparateSession(ctx context.Context, entityType, key string) (datastore.Entity, error) {
	return SupplyAsync(ctx, func(ctx context.Context) (datastore.Entity, error) {
		return h.manager.NewSession().Find(ctx, entityType, key)
	})
}

// InTransactionOnSeparateSession runs fn inside a transaction of a fresh
// session on a separate goroutine.
func (h *Harness) InTransactionOnSeparateSession(ctx context.Context, fn func(ctx context.Context, s *txn.Session) error) error {
	return h.OnSeparateSession(ctx, func(ctx context.Context, s *txn.Session) error {
		return txn.InTransaction(ctx, s, func(ctx context.Context) error {
			return fn(ctx, s)
		})
	})
}
