package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/goliatone/go-entity-cache/datastore"
	"github.com/goliatone/go-entity-cache/internal/memstore"
)

var employee = datastore.Schema{
	Name:      "employee",
	KeyColumn: "name",
	Columns:   []datastore.Column{{Name: "oca", Kind: datastore.KindInt}},
	Cacheable: true,
}

// flakyStore fails the first failures lookups with StoreUnavailable.
type flakyStore struct {
	datastore.Datastore

	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) FindByKey(ctx context.Context, entityType, key string) (datastore.Entity, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return datastore.Entity{}, datastore.NewStoreUnavailable("find", nil)
	}
	return f.Datastore.FindByKey(ctx, entityType, key)
}

func (f *flakyStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newFlaky(t *testing.T, failures int) *flakyStore {
	t.Helper()
	store := memstore.New()
	ctx := context.Background()
	if err := store.Register(ctx, employee); err != nil {
		t.Fatalf("register: %v", err)
	}
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.Insert(ctx, datastore.NewEntity("employee", "John Smith", datastore.Fields{"oca": 0})); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return &flakyStore{Datastore: store, failures: failures}
}

func fastConfig() Config {
	return Config{
		RetryAttempts:      3,
		RetryBaseDelay:     time.Millisecond,
		BreakerEnabled:     true,
		BreakerMaxFailures: 10,
		BreakerTimeout:     time.Minute,
	}
}

func TestDatastore_RetriesTransientFailures(t *testing.T) {
	flaky := newFlaky(t, 2)
	d := Wrap(flaky, fastConfig())

	e, err := d.FindByKey(context.Background(), "employee", "John Smith")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if e.Key != "John Smith" {
		t.Errorf("expected John Smith, got %q", e.Key)
	}
	if got := flaky.callCount(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestDatastore_GivesUpAfterRetryBudget(t *testing.T) {
	flaky := newFlaky(t, 100)
	d := Wrap(flaky, fastConfig())

	_, err := d.FindByKey(context.Background(), "employee", "John Smith")
	if !datastore.IsStoreUnavailable(err) {
		t.Fatalf("expected StoreUnavailable, got %v", err)
	}
	if got := flaky.callCount(); got != 4 {
		t.Errorf("expected initial call plus 3 retries, got %d", got)
	}
}

func TestDatastore_DoesNotRetryOrTripOnNotFound(t *testing.T) {
	flaky := newFlaky(t, 0)
	cfg := fastConfig()
	cfg.BreakerMaxFailures = 1
	d := Wrap(flaky, cfg)

	for i := 0; i < 3; i++ {
		_, err := d.FindByKey(context.Background(), "employee", "Nobody")
		if !datastore.IsNotFound(err) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	}
	if got := flaky.callCount(); got != 3 {
		t.Errorf("expected one call per lookup, got %d", got)
	}
	if d.BreakerState() != gobreaker.StateClosed {
		t.Errorf("expected closed breaker, got %v", d.BreakerState())
	}
}

func TestDatastore_BreakerOpens(t *testing.T) {
	flaky := newFlaky(t, 100)
	cfg := fastConfig()
	cfg.RetryAttempts = 0
	cfg.BreakerMaxFailures = 2
	d := Wrap(flaky, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := d.FindByKey(ctx, "employee", "John Smith"); !datastore.IsStoreUnavailable(err) {
			t.Fatalf("call %d: expected StoreUnavailable, got %v", i, err)
		}
	}
	if d.BreakerState() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %v", d.BreakerState())
	}

	_, err := d.FindByKey(ctx, "employee", "John Smith")
	if !datastore.IsStoreUnavailable(err) {
		t.Fatalf("expected StoreUnavailable from open breaker, got %v", err)
	}
	if got := flaky.callCount(); got != 2 {
		t.Errorf("open breaker must not reach the datastore, got %d calls", got)
	}
}

func TestDatastore_TransactionsPassThrough(t *testing.T) {
	d := Wrap(newFlaky(t, 0), fastConfig())
	ctx := context.Background()

	tx, err := d.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.Insert(ctx, datastore.NewEntity("employee", "Jane Doe", datastore.Fields{"oca": 1})); err != nil {
		t.Fatalf("insert: %v", err)
	}
	n, err := tx.ExecuteSetUpdate(ctx, "employee", nil, datastore.Assignments{"oca": 2})
	if err != nil || n != 2 {
		t.Fatalf("set update: n=%d err=%v", n, err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	e, err := d.FindByKey(ctx, "employee", "Jane Doe")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if e.Int("oca") != 2 {
		t.Errorf("expected oca 2, got %d", e.Int("oca"))
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.BreakerMaxFailures = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for enabled breaker without failure threshold")
	}
	cfg = Config{}
	if err := cfg.Validate(); err != nil {
		t.Errorf("everything disabled should be valid: %v", err)
	}
}
