// Package scenarios encodes the bulk-update consistency reproductions as
// runnable checks against any datastore.
//
// Employee scenarios share a fixture: statistics are cleared, "John Smith"
// (oca 0, "Engineer") is persisted in its own transaction and must then be
// cached with exactly one put. After the scenario body the entity is removed
// again, whether or not the body passed.
package scenarios

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/datastore"
	"github.com/goliatone/go-entity-cache/entitycache"
	"github.com/goliatone/go-entity-cache/harness"
	"github.com/goliatone/go-entity-cache/txn"
)

const TextCodeExpectationFailed = "EXPECTATION_FAILED"

const (
	employeeType   = "employee"
	testEntityType = "test_entity"
	johnSmith      = "John Smith"
)

// Env is what a scenario body works with. Session plays the role of the
// current execution context; other contexts go through Harness.
type Env struct {
	Manager *txn.Manager
	Harness *harness.Harness
	Session *txn.Session
	Logger  *zap.Logger
}

// Scenario is one named reproduction.
type Scenario struct {
	Name        string
	Description string
	// Region is the cache region whose statistics are reported.
	Region string
	// EmployeeFixture wraps the body with the John Smith setup and cleanup.
	EmployeeFixture bool
	Body            func(ctx context.Context, env *Env) error
}

// Result is the outcome of one scenario. Statistics are taken right after
// the body, before cleanup.
type Result struct {
	Name       string
	Err        error
	Statistics entitycache.StatisticsSnapshot
}

func (r Result) Passed() bool { return r.Err == nil }

// Register declares every scenario type on m.
func Register(ctx context.Context, m *txn.Manager) error {
	for _, s := range Schemas() {
		if err := m.Register(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// All returns the scenarios in their canonical order.
func All() []Scenario {
	return []Scenario{
		{
			Name:            "old-value-other-context-new-value-current",
			Description:     "other contexts keep seeing the committed value while the writer sees its bulk update",
			Region:          employeeType,
			EmployeeFixture: true,
			Body:            oldValueOtherContextNewValueCurrent,
		},
		{
			Name:            "updated-value-not-cached-before-commit",
			Description:     "the writer's read after a bulk update misses and is not cached",
			Region:          employeeType,
			EmployeeFixture: true,
			Body:            updatedValueNotCachedBeforeCommit,
		},
		{
			Name:            "old-value-other-context-after-update-before-commit",
			Description:     "the writer's read does not leak the uncommitted value to other contexts",
			Region:          employeeType,
			EmployeeFixture: true,
			Body:            oldValueOtherContextAfterUpdateBeforeCommit,
		},
		{
			Name:            "updated-value-visible-after-commit",
			Description:     "the committed bulk update is visible to the next read",
			Region:          employeeType,
			EmployeeFixture: true,
			Body:            updatedValueVisibleAfterCommit,
		},
		{
			Name:            "simple-case",
			Description:     "after a committed bulk update the first read misses and caches, the second hits",
			Region:          employeeType,
			EmployeeFixture: true,
			Body:            simpleCase,
		},
		{
			Name:            "stale-reload-guard",
			Description:     "a reload on another context during the bulk update does not leave stale data cached",
			Region:          employeeType,
			EmployeeFixture: true,
			Body:            staleReloadGuard,
		},
		{
			Name:        "persist-and-find",
			Description: "an entity with a generated key is found after its insert commits",
			Region:      testEntityType,
			Body:        persistAndFind,
		},
	}
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, bool) {
	for _, sc := range All() {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

// Run executes one scenario on m.
func Run(ctx context.Context, m *txn.Manager, sc Scenario) Result {
	logger := m.Logger().With(zap.String("scenario", sc.Name))
	env := &Env{
		Manager: m,
		Harness: harness.New(m),
		Session: m.NewSession(),
		Logger:  logger,
	}

	m.Cache().ClearStatistics()
	result := Result{Name: sc.Name}

	if sc.EmployeeFixture {
		if err := setupEmployee(ctx, env); err != nil {
			result.Err = err
			result.Statistics, _ = m.Cache().Statistics(sc.Region)
			return result
		}
		defer func() {
			if err := cleanupEmployee(ctx, env); err != nil {
				logger.Error("cleanup failed", zap.Error(err))
				result.Err = stderrors.Join(result.Err, err)
			}
		}()
	}

	result.Err = sc.Body(ctx, env)
	result.Statistics, _ = m.Cache().Statistics(sc.Region)
	if result.Err != nil {
		logger.Warn("scenario failed", zap.Error(result.Err))
	} else {
		logger.Info("scenario passed")
	}
	return result
}

// RunAll executes every scenario in order.
func RunAll(ctx context.Context, m *txn.Manager) []Result {
	scenarios := All()
	results := make([]Result, 0, len(scenarios))
	for _, sc := range scenarios {
		results = append(results, Run(ctx, m, sc))
	}
	return results
}

// Report renders one line per result.
func Report(results []Result) string {
	var b strings.Builder
	for _, r := range results {
		status := "PASS"
		if !r.Passed() {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%s %s %s hits=%d misses=%d puts=%d\n",
			status, r.Name, r.Statistics.Region, r.Statistics.Hits, r.Statistics.Misses, r.Statistics.Puts)
		if r.Err != nil {
			fmt.Fprintf(&b, "  %v\n", r.Err)
		}
	}
	return b.String()
}

func setupEmployee(ctx context.Context, env *Env) error {
	err := txn.InTransaction(ctx, env.Session, func(ctx context.Context) error {
		e := datastore.NewEntity(employeeType, johnSmith, datastore.Fields{"oca": 0, "title": "Engineer"})
		env.Logger.Info("persisting entity", zap.String("name", e.Key))
		_, err := env.Session.Persist(ctx, e)
		return err
	})
	if err != nil {
		return err
	}
	if !env.Manager.Cache().Contains(employeeType, johnSmith) {
		return expectationFailed("setup", "cached after insert", true, false)
	}
	return expectStats(env, "setup", 0, 0, 1)
}

func cleanupEmployee(ctx context.Context, env *Env) error {
	s := env.Manager.NewSession()
	return txn.InTransaction(ctx, s, func(ctx context.Context) error {
		if _, err := s.Find(ctx, employeeType, johnSmith); err != nil {
			return err
		}
		return s.Remove(ctx, employeeType, johnSmith)
	})
}

func expectationFailed(step, what string, want, got any) error {
	return errors.New(fmt.Sprintf("%s: expected %s to be %v, got %v", step, what, want, got), errors.CategoryInternal).
		WithTextCode(TextCodeExpectationFailed).
		WithMetadata(map[string]any{"step": step, "want": want, "got": got})
}

func expectOca(step string, e datastore.Entity, want int64) error {
	if got := e.Int("oca"); got != want {
		return expectationFailed(step, "oca", want, got)
	}
	return nil
}

func expectStats(env *Env, step string, hits, misses, puts int64) error {
	snap, _ := env.Manager.Cache().Statistics(employeeType)
	want := entitycache.StatisticsSnapshot{Region: employeeType, Hits: hits, Misses: misses, Puts: puts}
	if snap != want {
		return expectationFailed(step, "statistics",
			fmt.Sprintf("hits=%d misses=%d puts=%d", hits, misses, puts),
			fmt.Sprintf("hits=%d misses=%d puts=%d", snap.Hits, snap.Misses, snap.Puts))
	}
	return nil
}

// IsExpectationFailure reports whether err comes from a failed scenario check.
func IsExpectationFailure(err error) bool {
	return datastore.HasTextCode(err, TextCodeExpectationFailed)
}
