package entitycache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/datastore"
)

const stripeCount = 64

// Outcome reports how GetOrLoad produced its value.
type Outcome int

const (
	Miss Outcome = iota
	Hit
)

func (o Outcome) String() string {
	if o == Hit {
		return "HIT"
	}
	return "MISS"
}

// Loader reads an entity from the datastore on a cache miss.
type Loader func(ctx context.Context) (datastore.Entity, error)

// itemState tracks soft locks and the last invalidation of one key.
// Guarded by the key's stripe.
type itemState struct {
	invalidatedAt uint64
	locks         map[string]int
	// contended is set when two transactions held locks on the key at the
	// same time. It clears once all locks are released.
	contended bool
}

func (s *itemState) locked() bool { return len(s.locks) > 0 }

// Region caches snapshots of one entity type.
//
// Per-key operations hold regionMu for reading plus the key's stripe.
// Region-wide operations (InvalidateAll, LockRegion, UnlockRegion) hold
// regionMu for writing and therefore exclude every per-key operation.
type Region struct {
	name    string
	schema  datastore.Schema
	storage cache.Storage
	keys    cache.KeySerializer
	clock   *clock
	stats   *Statistics
	logger  *zap.Logger

	stripes [stripeCount]sync.Mutex
	items   *xsync.MapOf[string, *itemState]

	regionMu            sync.RWMutex
	regionLocks         map[string]int
	regionInvalidatedAt uint64

	// releasedAt is the latest invalidation time of any item state dropped
	// since. Loads started before it are rejected.
	releasedAt atomic.Uint64
}

func newRegion(schema datastore.Schema, storage cache.Storage, keys cache.KeySerializer, clk *clock, logger *zap.Logger) *Region {
	return &Region{
		name:        schema.Name,
		schema:      schema,
		storage:     storage,
		keys:        keys,
		clock:       clk,
		stats:       newStatistics(),
		logger:      logger.With(zap.String("region", schema.Name)),
		items:       xsync.NewMapOf[string, *itemState](),
		regionLocks: make(map[string]int),
	}
}

func (r *Region) Name() string                 { return r.name }
func (r *Region) Schema() datastore.Schema     { return r.schema }
func (r *Region) Statistics() *Statistics      { return r.stats }
func (r *Region) Snapshot() StatisticsSnapshot { return r.stats.snapshot(r.name) }

// NextTimestamp returns a logical time strictly greater than any previously
// issued by the owning cache. Take it before starting a load that will be
// passed to PutFromLoad.
func (r *Region) NextTimestamp() uint64 {
	return r.clock.next()
}

// GetOrLoad returns the cached entity for key, counting a hit. When the key
// is absent or soft locked it counts a miss, calls load and offers the result
// to PutFromLoad. Load failures propagate and leave the region unchanged.
func (r *Region) GetOrLoad(ctx context.Context, key string, load Loader) (datastore.Entity, Outcome, error) {
	if e, ok := r.readable(key); ok {
		r.stats.recordHit()
		return e, Hit, nil
	}
	r.stats.recordMiss()

	since := r.NextTimestamp()
	e, err := load(ctx)
	if err != nil {
		return datastore.Entity{}, Miss, err
	}
	r.PutFromLoad(key, e, since)
	return e, Miss, nil
}

// Peek returns the cached entity for key without touching statistics.
// Soft-locked entries are reported as absent.
func (r *Region) Peek(key string) (datastore.Entity, bool) {
	return r.readable(key)
}

func (r *Region) readable(key string) (datastore.Entity, bool) {
	unlock := r.lockKey(key)
	defer unlock()

	if len(r.regionLocks) > 0 {
		return datastore.Entity{}, false
	}
	if st, ok := r.items.Load(key); ok && st.locked() {
		return datastore.Entity{}, false
	}

	b, ok := r.storage.Get(r.keys.SerializeKey(r.name, key))
	if !ok {
		return datastore.Entity{}, false
	}
	e, err := decodeEntry(r.schema, key, b)
	if err != nil {
		r.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		r.storage.Delete(r.keys.SerializeKey(r.name, key))
		return datastore.Entity{}, false
	}
	return e, true
}

// PutFromLoad stores a value read from the datastore by a load that started
// at since. The put is discarded when the key or the region has been
// invalidated, locked or unlocked after since, or is locked now: an
// invalidation issued after the load started always wins. It reports whether
// the value was stored.
func (r *Region) PutFromLoad(key string, e datastore.Entity, since uint64) bool {
	unlock := r.lockKey(key)
	defer unlock()

	if reason := r.rejectLoad(key, since); reason != "" {
		r.logger.Debug("discarding load", zap.String("key", key), zap.String("reason", reason))
		return false
	}
	return r.put(key, e)
}

func (r *Region) rejectLoad(key string, since uint64) string {
	if len(r.regionLocks) > 0 {
		return "region locked"
	}
	if r.regionInvalidatedAt > since {
		return "region invalidated during load"
	}
	if r.releasedAt.Load() > since {
		return "key released during load"
	}
	if st, ok := r.items.Load(key); ok {
		if st.locked() {
			return "key locked"
		}
		if st.invalidatedAt > since {
			return "key invalidated during load"
		}
	}
	return ""
}

// PutAfterInsert stores the committed state of a newly inserted entity.
// The put is skipped while another transaction holds a lock on the key or
// the region.
func (r *Region) PutAfterInsert(key string, e datastore.Entity) bool {
	unlock := r.lockKey(key)
	defer unlock()

	if len(r.regionLocks) > 0 {
		return false
	}
	if st, ok := r.items.Load(key); ok && st.locked() {
		return false
	}
	return r.put(key, e)
}

func (r *Region) put(key string, e datastore.Entity) bool {
	b, err := encodeEntry(e)
	if err != nil {
		r.logger.Warn("cannot encode entity", zap.String("key", key), zap.Error(err))
		return false
	}
	r.storage.Set(r.keys.SerializeKey(r.name, key), b)
	r.stats.recordPut()
	return true
}

// Invalidate removes the entry for key and makes in-flight loads of it stale.
func (r *Region) Invalidate(key string) {
	unlock := r.lockKey(key)
	defer unlock()

	r.storage.Delete(r.keys.SerializeKey(r.name, key))
	st := r.stateFor(key)
	st.invalidatedAt = r.clock.next()
	r.dropIfUnlocked(key, st)
}

// InvalidateAll removes every entry of the region and makes all in-flight
// loads stale.
func (r *Region) InvalidateAll() {
	r.regionMu.Lock()
	defer r.regionMu.Unlock()
	r.invalidateAllLocked()
}

func (r *Region) invalidateAllLocked() {
	r.storage.DeleteByPrefix(r.keys.RegionPrefix(r.name))
	r.regionInvalidatedAt = r.clock.next()
	r.pruneLocked()
}

// LockItem soft-locks key on behalf of txID. While any lock is held the entry
// is invisible to readers and loads cannot repopulate it. The entry itself is
// left in place.
func (r *Region) LockItem(txID, key string) {
	unlock := r.lockKey(key)
	defer unlock()

	st := r.stateFor(key)
	if len(st.locks) > 0 && st.locks[txID] == 0 {
		st.contended = true
	}
	st.locks[txID]++
	st.invalidatedAt = r.clock.next()
}

// UnlockItem releases one lock taken by txID on key. After a commit the entry
// is evicted; after a rollback it becomes visible again unchanged.
func (r *Region) UnlockItem(txID, key string, committed bool) {
	unlock := r.lockKey(key)
	defer unlock()

	r.releaseItem(txID, key)
	if committed {
		r.storage.Delete(r.keys.SerializeKey(r.name, key))
	}
}

// UnlockItemWithValue releases txID's lock on key after a successful commit
// and stores the committed value when no other transaction touched the key or
// the region while the lock was held. Otherwise the entry is evicted.
func (r *Region) UnlockItemWithValue(txID, key string, e datastore.Entity) bool {
	return r.unlockAndPut(txID, key, e)
}

// UnlockItemAfterInsert is the commit-time release of a key locked for an
// insert. The inserted state is cached only when no other transaction locked
// the key while txID held it and no lock remains.
func (r *Region) UnlockItemAfterInsert(txID, key string, e datastore.Entity) bool {
	return r.unlockAndPut(txID, key, e)
}

func (r *Region) unlockAndPut(txID, key string, e datastore.Entity) bool {
	unlock := r.lockKey(key)
	defer unlock()

	contended := r.releaseItem(txID, key)
	st, _ := r.items.Load(key)
	if contended || len(r.regionLocks) > 0 || (st != nil && st.locked()) {
		r.storage.Delete(r.keys.SerializeKey(r.name, key))
		return false
	}
	return r.put(key, e)
}

// releaseItem drops one of txID's locks and reports whether the key was
// contended during the lock.
func (r *Region) releaseItem(txID, key string) bool {
	st := r.stateFor(key)
	if st.locks[txID] > 1 {
		st.locks[txID]--
	} else {
		delete(st.locks, txID)
	}
	contended := st.contended
	st.invalidatedAt = r.clock.next()
	r.dropIfUnlocked(key, st)
	return contended
}

// dropIfUnlocked forgets the state of an unlocked key, carrying its
// invalidation time over to releasedAt. Callers hold the key's stripe.
func (r *Region) dropIfUnlocked(key string, st *itemState) {
	if st.locked() {
		return
	}
	for {
		cur := r.releasedAt.Load()
		if cur >= st.invalidatedAt || r.releasedAt.CompareAndSwap(cur, st.invalidatedAt) {
			break
		}
	}
	r.items.Delete(key)
}

// LockRegion soft-locks the whole region on behalf of txID, as required by
// set-based updates whose affected keys are unknown.
func (r *Region) LockRegion(txID string) {
	r.regionMu.Lock()
	defer r.regionMu.Unlock()

	r.regionLocks[txID]++
	r.regionInvalidatedAt = r.clock.next()
}

// UnlockRegion releases one region lock held by txID. After a commit every
// entry of the region is evicted.
func (r *Region) UnlockRegion(txID string, committed bool) {
	r.regionMu.Lock()
	defer r.regionMu.Unlock()

	if r.regionLocks[txID] > 1 {
		r.regionLocks[txID]--
	} else {
		delete(r.regionLocks, txID)
	}
	if committed {
		r.invalidateAllLocked()
		return
	}
	r.regionInvalidatedAt = r.clock.next()
	r.pruneLocked()
}

// Contains reports whether storage holds an entry for key, locked or not.
func (r *Region) Contains(key string) bool {
	_, ok := r.storage.Get(r.keys.SerializeKey(r.name, key))
	return ok
}

// Locked reports whether key is currently hidden by a key or region lock.
func (r *Region) Locked(key string) bool {
	unlock := r.lockKey(key)
	defer unlock()

	if len(r.regionLocks) > 0 {
		return true
	}
	st, ok := r.items.Load(key)
	return ok && st.locked()
}

// Len returns the number of entries currently stored for the region.
func (r *Region) Len() int {
	return len(r.storage.Keys(r.keys.RegionPrefix(r.name)))
}

func (r *Region) lockKey(key string) func() {
	r.regionMu.RLock()
	m := &r.stripes[xxhash.Sum64String(key)%stripeCount]
	m.Lock()
	return func() {
		m.Unlock()
		r.regionMu.RUnlock()
	}
}

// stateFor returns the state of key, creating it. Callers hold the key's stripe.
func (r *Region) stateFor(key string) *itemState {
	st, _ := r.items.LoadOrCompute(key, func() *itemState {
		return &itemState{locks: make(map[string]int)}
	})
	return st
}

// pruneLocked drops unlocked item states made redundant by the region
// invalidation timestamp. Callers hold regionMu for writing.
func (r *Region) pruneLocked() {
	r.items.Range(func(key string, st *itemState) bool {
		if !st.locked() && st.invalidatedAt <= r.regionInvalidatedAt {
			r.items.Delete(key)
		}
		return true
	})
}
