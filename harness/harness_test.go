package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/datastore"
	"github.com/goliatone/go-entity-cache/entitycache"
	"github.com/goliatone/go-entity-cache/internal/memstore"
	"github.com/goliatone/go-entity-cache/txn"
)

var employee = datastore.Schema{
	Name:      "employee",
	KeyColumn: "name",
	Columns: []datastore.Column{
		{Name: "oca", Kind: datastore.KindInt},
		{Name: "title", Kind: datastore.KindString},
	},
	Cacheable: true,
}

func newManager(t *testing.T) *txn.Manager {
	t.Helper()
	m := txn.NewManager(memstore.New(), entitycache.New(cache.NewMapStorage()))
	require.NoError(t, m.Register(context.Background(), employee))
	return m
}

func TestRunOnSeparateContext(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		fn      func(ctx context.Context) error
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "success",
			fn:   func(ctx context.Context) error { return nil },
			wantErr: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "error propagates",
			fn:   func(ctx context.Context) error { return boom },
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, boom)
			},
		},
		{
			name: "panic becomes error",
			fn:   func(ctx context.Context) error { panic("kaboom") },
			wantErr: func(t *testing.T, err error) {
				var pe *PanicError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, "kaboom", pe.Value)
				assert.NotEmpty(t, pe.Stack)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.wantErr(t, RunOnSeparateContext(context.Background(), tt.fn))
		})
	}
}

func TestSupplyAsync(t *testing.T) {
	got, err := SupplyAsync(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	got, err = SupplyAsync(context.Background(), func(ctx context.Context) (int, error) {
		return 7, errors.New("nope")
	})
	assert.Error(t, err)
	assert.Zero(t, got)
}

func TestHarness_FindOnSeparateSessionIgnoresUncommittedWrites(t *testing.T) {
	m := newManager(t)
	h := New(m)
	ctx := context.Background()

	require.NoError(t, h.InTransactionOnSeparateSession(ctx, func(ctx context.Context, s *txn.Session) error {
		_, err := s.Persist(ctx, datastore.NewEntity("employee", "John Smith", datastore.Fields{"oca": 0, "title": "Engineer"}))
		return err
	}))

	writer := m.NewSession()
	require.NoError(t, writer.Begin(ctx))
	_, err := writer.ExecuteUpdate(ctx, "employee", nil, datastore.Assignments{"oca": 1})
	require.NoError(t, err)

	before, err := h.FindOnSeparateSession(ctx, "employee", "John Smith")
	require.NoError(t, err)
	assert.Equal(t, int64(0), before.Int("oca"))

	require.NoError(t, writer.Commit(ctx))

	after, err := h.FindOnSeparateSession(ctx, "employee", "John Smith")
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.Int("oca"))
}

func TestHarness_OnSeparateSessionGetsFreshSession(t *testing.T) {
	m := newManager(t)
	h := New(m)
	ctx := context.Background()

	outer := m.NewSession()
	require.NoError(t, outer.Begin(ctx))
	defer func() { _ = outer.Rollback(ctx) }()

	require.NoError(t, h.OnSeparateSession(ctx, func(ctx context.Context, s *txn.Session) error {
		assert.NotEqual(t, outer.ID(), s.ID())
		assert.Equal(t, txn.StateInactive, s.State())
		return nil
	}))
}
