package scenarios

import (
	"context"

	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/datastore"
	"github.com/goliatone/go-entity-cache/txn"
)

var promotion = datastore.Assignments{"oca": 1, "title": "Senior Engineer"}

func bulkUpdate(ctx context.Context, env *Env) error {
	env.Logger.Info("updating employees")
	_, err := env.Session.ExecuteUpdate(ctx, employeeType, nil, promotion)
	return err
}

func findOther(ctx context.Context, env *Env) (datastore.Entity, error) {
	e, err := env.Harness.FindOnSeparateSession(ctx, employeeType, johnSmith)
	if err == nil {
		env.Logger.Info("found on other context",
			zap.String("name", e.Key),
			zap.Int64("oca", e.Int("oca")),
			zap.String("title", e.String("title")),
		)
	}
	return e, err
}

func findCurrent(ctx context.Context, env *Env) (datastore.Entity, error) {
	return env.Session.Find(ctx, employeeType, johnSmith)
}

func oldValueOtherContextNewValueCurrent(ctx context.Context, env *Env) error {
	return txn.InTransaction(ctx, env.Session, func(ctx context.Context) error {
		other, err := findOther(ctx, env)
		if err != nil {
			return err
		}
		if err := expectOca("other context before update", other, 0); err != nil {
			return err
		}
		if err := expectStats(env, "other context before update", 1, 0, 1); err != nil {
			return err
		}

		if err := bulkUpdate(ctx, env); err != nil {
			return err
		}

		other, err = findOther(ctx, env)
		if err != nil {
			return err
		}
		if err := expectOca("other context after update", other, 0); err != nil {
			return err
		}
		if err := expectStats(env, "other context after update", 1, 1, 1); err != nil {
			return err
		}

		current, err := findCurrent(ctx, env)
		if err != nil {
			return err
		}
		return expectOca("current context after update", current, 1)
	})
}

func updatedValueNotCachedBeforeCommit(ctx context.Context, env *Env) error {
	return txn.InTransaction(ctx, env.Session, func(ctx context.Context) error {
		if err := bulkUpdate(ctx, env); err != nil {
			return err
		}
		current, err := findCurrent(ctx, env)
		if err != nil {
			return err
		}
		if err := expectOca("current context after update", current, 1); err != nil {
			return err
		}
		return expectStats(env, "current context after update", 0, 1, 1)
	})
}

func oldValueOtherContextAfterUpdateBeforeCommit(ctx context.Context, env *Env) error {
	return txn.InTransaction(ctx, env.Session, func(ctx context.Context) error {
		if err := bulkUpdate(ctx, env); err != nil {
			return err
		}
		current, err := findCurrent(ctx, env)
		if err != nil {
			return err
		}
		if err := expectOca("current context after update", current, 1); err != nil {
			return err
		}
		other, err := findOther(ctx, env)
		if err != nil {
			return err
		}
		return expectOca("other context after update", other, 0)
	})
}

func updatedValueVisibleAfterCommit(ctx context.Context, env *Env) error {
	err := txn.InTransaction(ctx, env.Session, func(ctx context.Context) error {
		if err := bulkUpdate(ctx, env); err != nil {
			return err
		}
		other, err := findOther(ctx, env)
		if err != nil {
			return err
		}
		return expectOca("other context before commit", other, 0)
	})
	if err != nil {
		return err
	}

	e, err := findCurrent(ctx, env)
	if err != nil {
		return err
	}
	return expectOca("after commit", e, 1)
}

func simpleCase(ctx context.Context, env *Env) error {
	if err := txn.InTransaction(ctx, env.Session, func(ctx context.Context) error {
		return bulkUpdate(ctx, env)
	}); err != nil {
		return err
	}

	return txn.InTransaction(ctx, env.Session, func(ctx context.Context) error {
		e, err := findCurrent(ctx, env)
		if err != nil {
			return err
		}
		if err := expectOca("first find", e, 1); err != nil {
			return err
		}
		if err := expectStats(env, "first find", 0, 1, 2); err != nil {
			return err
		}

		env.Session.Clear()

		e, err = findCurrent(ctx, env)
		if err != nil {
			return err
		}
		if err := expectOca("second find", e, 1); err != nil {
			return err
		}
		return expectStats(env, "second find", 1, 1, 2)
	})
}

func staleReloadGuard(ctx context.Context, env *Env) error {
	err := txn.InTransaction(ctx, env.Session, func(ctx context.Context) error {
		if _, err := findOther(ctx, env); err != nil {
			return err
		}
		if err := bulkUpdate(ctx, env); err != nil {
			return err
		}
		_, err := findOther(ctx, env)
		return err
	})
	if err != nil {
		return err
	}

	e, err := findCurrent(ctx, env)
	if err != nil {
		return err
	}
	return expectOca("after commit", e, 1)
}

func persistAndFind(ctx context.Context, env *Env) error {
	var key string
	err := txn.InTransaction(ctx, env.Session, func(ctx context.Context) error {
		e, err := env.Session.Persist(ctx, datastore.NewEntity(testEntityType, "", datastore.Fields{"name": "region entity"}))
		key = e.Key
		return err
	})
	if err != nil {
		return err
	}

	found, err := env.Session.Find(ctx, testEntityType, key)
	if err != nil {
		return err
	}
	if got := found.String("name"); got != "region entity" {
		return expectationFailed("find after commit", "name", "region entity", got)
	}
	return nil
}
