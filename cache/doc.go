// Package cache provides the storage layer and key serialization used by
// entity cache regions.
//
// # Overview
//
// This package exports two main interfaces and their default implementations:
//
//   - Storage: a concurrent byte store addressed by string keys
//   - KeySerializer: builds namespaced keys of the form region::key
//
// Every region of an entity cache shares a single Storage. Keys are
// namespaced by region so that evicting a region is a prefix delete:
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("employee", "John Smith") // employee::John Smith
//	storage.DeleteByPrefix(serializer.RegionPrefix("employee"))
//
// # Backends
//
// NewStorage picks a backend from Config.Backend:
//
//   - BackendSturdyc: sharded, bounded by Capacity and expiring after TTL
//   - BackendMap: unbounded, entries only leave on explicit deletion
//
// Storage deals in encoded bytes and copies on both Set and Get. Callers
// never observe mutations of a value they did not write.
//
// # See Also
//
// The entitycache package builds regions with statistics and soft locks on
// top of this package.
package cache
