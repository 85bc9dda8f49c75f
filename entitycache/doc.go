// Package entitycache implements a transactional second-level entity cache.
//
// A Cache holds one Region per cacheable entity type. Regions are shared by
// every transaction in the process and stay coherent with the datastore
// through soft locks:
//
//   - a transaction that flushes a targeted write locks the key, and one that
//     runs a set-based update locks the whole region
//   - while a lock is held readers miss and read through to the datastore,
//     and the values they load are not cached
//   - after commit the lock is released and the affected entries are evicted
//   - after rollback the lock is released and the entries are left untouched
//
// Values loaded from the datastore are cached through PutFromLoad, which
// takes the logical time at which the load started. Any invalidation, lock or
// unlock of the key or region after that time discards the load, so a slow
// reader can never put back a value older than a concurrent invalidation.
//
// Region statistics count hits, misses and puts. Discarded loads count their
// miss but no put.
package entitycache
