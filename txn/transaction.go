package txn

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/datastore"
)

// InTransaction runs fn inside a new transaction on s and commits it.
func InTransaction(ctx context.Context, s *Session, fn func(ctx context.Context) error) error {
	_, err := FromTransaction(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// FromTransaction runs fn inside a new transaction on s and returns its
// result once the transaction commits.
//
// When fn fails the transaction is rolled back and fn's error is returned;
// a failing rollback is logged. When fn itself completes the transaction,
// FromTransaction fails with a TransactionManagement error. A panic in fn
// rolls the transaction back before it propagates.
func FromTransaction[R any](ctx context.Context, s *Session, fn func(ctx context.Context) (R, error)) (result R, err error) {
	var zero R
	if err := s.Begin(ctx); err != nil {
		return zero, err
	}
	txID := s.TxID()

	defer func() {
		if p := recover(); p != nil {
			if s.State() == StateActive {
				if rbErr := s.Rollback(ctx); rbErr != nil {
					s.logger.Error("rollback after panic failed", zap.String("tx_id", txID), zap.Error(rbErr))
				}
			}
			panic(p)
		}
	}()

	result, err = fn(ctx)
	if err != nil {
		if s.State() == StateActive {
			s.logger.Debug("transaction rolling back", zap.String("tx_id", txID), zap.Error(err))
			if rbErr := s.Rollback(ctx); rbErr != nil {
				s.logger.Error("rollback failed",
					zap.String("tx_id", txID),
					zap.NamedError("rollback_error", rbErr),
					zap.Error(err),
				)
			}
		} else {
			s.logger.Warn("transaction was not active when the action failed",
				zap.String("tx_id", txID),
				zap.Stringer("state", s.State()),
			)
		}
		return zero, err
	}

	if s.State() != StateActive {
		return zero, datastore.NewTransactionManagement(
			fmt.Sprintf("execution of action caused managed transaction %s to be completed", txID))
	}

	if err := s.Commit(ctx); err != nil {
		return zero, err
	}
	return result, nil
}
