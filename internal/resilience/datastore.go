// Package resilience decorates a datastore with retries and a circuit
// breaker for transient unavailability.
package resilience

import (
	"context"
	stderrors "errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/datastore"
)

// Config controls retry and breaker behaviour. Retries only apply to reads
// and Begin. Statements inside a transaction are never retried.
type Config struct {
	RetryAttempts      uint64        `json:"retry_attempts" yaml:"retry_attempts"`
	RetryBaseDelay     time.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
	BreakerEnabled     bool          `json:"breaker_enabled" yaml:"breaker_enabled"`
	BreakerMaxFailures uint32        `json:"breaker_max_failures" yaml:"breaker_max_failures"`
	BreakerTimeout     time.Duration `json:"breaker_timeout" yaml:"breaker_timeout"`
}

func DefaultConfig() Config {
	return Config{
		RetryAttempts:      3,
		RetryBaseDelay:     50 * time.Millisecond,
		BreakerEnabled:     true,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
	}
}

func (c Config) Validate() error {
	if verr := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.RetryBaseDelay, validation.When(c.RetryAttempts > 0, validation.Required)),
			validation.Field(&c.BreakerMaxFailures, validation.When(c.BreakerEnabled, validation.Required)),
			validation.Field(&c.BreakerTimeout, validation.When(c.BreakerEnabled, validation.Required)),
		)
	}, "invalid resilience configuration"); verr != nil {
		return verr
	}
	return nil
}

type Option func(*Datastore)

func WithLogger(logger *zap.Logger) Option {
	return func(d *Datastore) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Datastore wraps another datastore.Datastore.
type Datastore struct {
	next    datastore.Datastore
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ datastore.Datastore = (*Datastore)(nil)

func Wrap(next datastore.Datastore, cfg Config, opts ...Option) *Datastore {
	d := &Datastore{next: next, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	if cfg.BreakerEnabled {
		d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "datastore",
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				d.logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
			// only connectivity failures count against the breaker
			IsSuccessful: func(err error) bool {
				return err == nil || !datastore.IsStoreUnavailable(err)
			},
		})
	}
	return d
}

// BreakerState reports the breaker state, or closed when disabled.
func (d *Datastore) BreakerState() gobreaker.State {
	if d.breaker == nil {
		return gobreaker.StateClosed
	}
	return d.breaker.State()
}

func (d *Datastore) Register(ctx context.Context, schema datastore.Schema) error {
	return d.retry(ctx, "register", func(ctx context.Context) error {
		return d.next.Register(ctx, schema)
	})
}

func (d *Datastore) FindByKey(ctx context.Context, entityType, key string) (datastore.Entity, error) {
	var e datastore.Entity
	err := d.retry(ctx, "find", func(ctx context.Context) error {
		var err error
		e, err = d.next.FindByKey(ctx, entityType, key)
		return err
	})
	return e, err
}

func (d *Datastore) Begin(ctx context.Context) (datastore.Tx, error) {
	var t datastore.Tx
	err := d.retry(ctx, "begin", func(ctx context.Context) error {
		var err error
		t, err = d.next.Begin(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &tx{next: t, d: d}, nil
}

func (d *Datastore) Close() error {
	return d.next.Close()
}

// retry runs fn through the breaker, retrying StoreUnavailable failures
// with exponential backoff.
func (d *Datastore) retry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if d.cfg.RetryAttempts == 0 {
		return d.guard(operation, func() error { return fn(ctx) })
	}

	attempt := 0
	backoff := retry.WithMaxRetries(d.cfg.RetryAttempts, retry.NewExponential(d.cfg.RetryBaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := d.guard(operation, func() error { return fn(ctx) })
		if err != nil && datastore.IsStoreUnavailable(err) {
			d.logger.Debug("datastore unavailable, will retry",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
}

// guard runs fn through the breaker when one is configured.
func (d *Datastore) guard(operation string, fn func() error) error {
	if d.breaker == nil {
		return fn()
	}
	_, err := d.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return datastore.NewStoreUnavailable(operation, err)
	}
	return err
}

type tx struct {
	next datastore.Tx
	d    *Datastore
}

func (t *tx) FindByKey(ctx context.Context, entityType, key string) (datastore.Entity, error) {
	var e datastore.Entity
	err := t.d.guard("find", func() error {
		var err error
		e, err = t.next.FindByKey(ctx, entityType, key)
		return err
	})
	return e, err
}

func (t *tx) Insert(ctx context.Context, e datastore.Entity) (string, error) {
	var key string
	err := t.d.guard("insert", func() error {
		var err error
		key, err = t.next.Insert(ctx, e)
		return err
	})
	return key, err
}

func (t *tx) Update(ctx context.Context, e datastore.Entity) error {
	return t.d.guard("update", func() error { return t.next.Update(ctx, e) })
}

func (t *tx) Delete(ctx context.Context, entityType, key string) error {
	return t.d.guard("delete", func() error { return t.next.Delete(ctx, entityType, key) })
}

func (t *tx) ExecuteSetUpdate(ctx context.Context, entityType string, where datastore.Predicate, set datastore.Assignments) (int, error) {
	var n int
	err := t.d.guard("set update", func() error {
		var err error
		n, err = t.next.ExecuteSetUpdate(ctx, entityType, where, set)
		return err
	})
	return n, err
}

func (t *tx) Commit(ctx context.Context) error {
	return t.d.guard("commit", func() error { return t.next.Commit(ctx) })
}

// Rollback bypasses the breaker so that locks held by the datastore are
// always released when it is reachable.
func (t *tx) Rollback(ctx context.Context) error {
	return t.next.Rollback(ctx)
}
