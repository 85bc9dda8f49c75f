package sqlstore

import (
	"database/sql"
	"database/sql/driver"
	stderrors "errors"

	"github.com/goliatone/go-errors"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-entity-cache/datastore"
)

// mapError translates driver errors into the datastore error taxonomy.
func mapError(operation string, ref datastore.Ref, err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, sql.ErrNoRows):
		return datastore.NewNotFound(ref)
	case stderrors.Is(err, sql.ErrTxDone):
		return datastore.NewTransactionCompleted()
	case isConstraintViolation(err):
		return datastore.NewConstraintViolation(ref, err)
	case isUnavailable(err):
		return datastore.NewStoreUnavailable(operation, err)
	}
	return errors.Wrap(err, errors.CategoryExternal, "sql datastore "+operation+" failed").
		WithMetadata(map[string]any{"operation": operation})
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func isUnavailable(err error) bool {
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, sql.ErrConnDone) {
		return true
	}
	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return true
		}
		return false
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		// class 08: connection exception, 57P: operator intervention
		return pqErr.Code.Class() == "08" || pqErr.Code == "57P01" || pqErr.Code == "57P03"
	}
	return false
}
