// Package txn coordinates datastore transactions with the second-level
// entity cache.
//
// A Manager is shared by the process. Each execution context opens its own
// Session, which carries at most one active transaction and a transaction
// scoped persistence context.
//
// Writes made through Persist, Merge and Remove are queued and flushed to the
// datastore before Find, before ExecuteUpdate and at Commit. Flushing a
// targeted write soft-locks its key in the cache region; ExecuteUpdate locks
// the whole region because the rows it touches are not known. Commit-time
// effects (evicting, putting inserted entities) happen only after the
// datastore commit succeeds. Rollback releases the locks and leaves the cache
// as it was.
//
//	err := txn.InTransaction(ctx, session, func(ctx context.Context) error {
//		_, err := session.ExecuteUpdate(ctx, "employee", nil, datastore.Assignments{"oca": 1})
//		return err
//	})
package txn
