package scenarios

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/datastore"
	"github.com/goliatone/go-entity-cache/entitycache"
	"github.com/goliatone/go-entity-cache/internal/memstore"
	"github.com/goliatone/go-entity-cache/internal/resilience"
	"github.com/goliatone/go-entity-cache/internal/sqlstore"
	"github.com/goliatone/go-entity-cache/pkg/testsupport"
	"github.com/goliatone/go-entity-cache/txn"
)

func newManager(t *testing.T, store datastore.Datastore, storage cache.Storage) *txn.Manager {
	t.Helper()
	logger := zaptest.NewLogger(t)
	m := txn.NewManager(store, entitycache.New(storage, entitycache.WithLogger(logger)), txn.WithLogger(logger))
	require.NoError(t, Register(context.Background(), m))
	return m
}

func openSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "scenarios.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	s, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: dsn, MaxOpenConns: 4})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunAll(t *testing.T) {
	tests := []struct {
		name    string
		store   func(t *testing.T) datastore.Datastore
		storage func(t *testing.T) cache.Storage
	}{
		{
			name:    "memory store with map cache",
			store:   func(t *testing.T) datastore.Datastore { return memstore.New() },
			storage: func(t *testing.T) cache.Storage { return cache.NewMapStorage() },
		},
		{
			name:  "memory store with sturdyc cache",
			store: func(t *testing.T) datastore.Datastore { return memstore.New() },
			storage: func(t *testing.T) cache.Storage {
				s, err := cache.NewStorage(cache.DefaultConfig())
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "resilient memory store",
			store: func(t *testing.T) datastore.Datastore {
				return resilience.Wrap(memstore.New(), resilience.DefaultConfig())
			},
			storage: func(t *testing.T) cache.Storage { return cache.NewMapStorage() },
		},
		{
			name:    "sqlite store",
			store:   func(t *testing.T) datastore.Datastore { return openSQLite(t) },
			storage: func(t *testing.T) cache.Storage { return cache.NewMapStorage() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t, tt.store(t), tt.storage(t))

			results := RunAll(context.Background(), m)
			require.Len(t, results, len(All()))
			for _, r := range results {
				assert.NoError(t, r.Err, r.Name)
			}

			testsupport.CompareWithGolden(t, testsupport.GoldenPath("report.txt"), []byte(Report(results)))
		})
	}
}

func TestRunAll_WithSeededColleagues(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	testsupport.Seed(t, ctx, store, Schemas(), testsupport.LoadEntities(t, testsupport.FixturePath("colleagues.json"), Schemas()...)...)
	m := newManager(t, store, cache.NewMapStorage())

	results := RunAll(ctx, m)
	for _, r := range results {
		assert.NoError(t, r.Err, r.Name)
	}
	testsupport.CompareWithGolden(t, testsupport.GoldenPath("report.txt"), []byte(Report(results)))

	for _, key := range []string{"Jane Doe", "Max Mustermann"} {
		e, err := store.FindByKey(ctx, employeeType, key)
		require.NoError(t, err)
		assert.Equal(t, int64(1), e.Int("oca"), key)
		assert.Equal(t, "Senior Engineer", e.String("title"), key)
	}
	assert.Len(t, store.Rows(testEntityType), 2)
}

func TestRun_EmployeeRemovedAfterScenario(t *testing.T) {
	store := memstore.New()
	m := newManager(t, store, cache.NewMapStorage())

	sc, ok := Lookup("simple-case")
	require.True(t, ok)

	r := Run(context.Background(), m, sc)
	require.NoError(t, r.Err)
	assert.Empty(t, store.Rows(employeeType))
	assert.False(t, m.Cache().Contains(employeeType, johnSmith))
}

func TestRun_FailedBodyStillCleansUp(t *testing.T) {
	store := memstore.New()
	m := newManager(t, store, cache.NewMapStorage())
	boom := errors.New("boom")

	r := Run(context.Background(), m, Scenario{
		Name:            "failing",
		Region:          employeeType,
		EmployeeFixture: true,
		Body: func(ctx context.Context, env *Env) error {
			return boom
		},
	})
	assert.False(t, r.Passed())
	assert.ErrorIs(t, r.Err, boom)
	assert.Equal(t, int64(1), r.Statistics.Puts)
	assert.Empty(t, store.Rows(employeeType))
}

func TestRun_ExpectationFailureIsReported(t *testing.T) {
	m := newManager(t, memstore.New(), cache.NewMapStorage())

	r := Run(context.Background(), m, Scenario{
		Name:            "wrong-expectation",
		Region:          employeeType,
		EmployeeFixture: true,
		Body: func(ctx context.Context, env *Env) error {
			e, err := env.Session.Find(ctx, employeeType, johnSmith)
			if err != nil {
				return err
			}
			return expectOca("find", e, 7)
		},
	})
	require.Error(t, r.Err)
	assert.True(t, IsExpectationFailure(r.Err))
	report := Report([]Result{r})
	assert.Contains(t, report, "FAIL wrong-expectation employee hits=1 misses=0 puts=1\n")
	assert.Contains(t, report, "find: expected oca to be 7, got 0")
}

func TestRun_SetupFailure(t *testing.T) {
	store := memstore.New()
	m := newManager(t, store, cache.NewMapStorage())
	sc, _ := Lookup("simple-case")

	store.SetUnavailable(true)
	r := Run(context.Background(), m, sc)
	store.SetUnavailable(false)

	require.Error(t, r.Err)
	assert.True(t, datastore.IsStoreUnavailable(r.Err))
	assert.False(t, IsExpectationFailure(r.Err))
}

func TestLookup(t *testing.T) {
	for _, sc := range All() {
		got, ok := Lookup(sc.Name)
		assert.True(t, ok)
		assert.Equal(t, sc.Name, got.Name)
		assert.NotEmpty(t, got.Description)
	}

	_, ok := Lookup("missing")
	assert.False(t, ok)
}

func TestSchemas_Validate(t *testing.T) {
	for _, s := range Schemas() {
		assert.NoError(t, s.Validate(), s.Name)
		assert.True(t, s.Cacheable, s.Name)
	}
}
