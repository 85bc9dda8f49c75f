package entitycache

import (
	"slices"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/datastore"
)

type clock struct {
	seq atomic.Uint64
}

func (c *clock) next() uint64 { return c.seq.Add(1) }

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used by the cache and its regions.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithKeySerializer overrides the serializer used to namespace storage keys.
func WithKeySerializer(keys cache.KeySerializer) Option {
	return func(c *Cache) {
		if keys != nil {
			c.keys = keys
		}
	}
}

// Cache is the second-level entity cache: one Region per cacheable entity
// type, all sharing a single Storage and logical clock.
type Cache struct {
	storage cache.Storage
	keys    cache.KeySerializer
	clock   *clock
	logger  *zap.Logger
	regions *xsync.MapOf[string, *Region]
}

func New(storage cache.Storage, opts ...Option) *Cache {
	c := &Cache{
		storage: storage,
		keys:    cache.NewDefaultKeySerializer(),
		clock:   &clock{},
		logger:  zap.NewNop(),
		regions: xsync.NewMapOf[string, *Region](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register creates the region for schema. Registering the same type again
// returns the existing region.
func (c *Cache) Register(schema datastore.Schema) (*Region, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	r, _ := c.regions.LoadOrCompute(schema.Name, func() *Region {
		return newRegion(schema, c.storage, c.keys, c.clock, c.logger)
	})
	return r, nil
}

// Region returns the region for entityType, if one was registered.
func (c *Cache) Region(entityType string) (*Region, bool) {
	return c.regions.Load(entityType)
}

// Contains reports whether the region for entityType holds an entry for key.
func (c *Cache) Contains(entityType, key string) bool {
	r, ok := c.regions.Load(entityType)
	return ok && r.Contains(key)
}

// Evict removes a single entry. Unknown types are ignored.
func (c *Cache) Evict(entityType, key string) {
	if r, ok := c.regions.Load(entityType); ok {
		r.Invalidate(key)
	}
}

// EvictRegion removes every entry of entityType.
func (c *Cache) EvictRegion(entityType string) {
	if r, ok := c.regions.Load(entityType); ok {
		r.InvalidateAll()
	}
}

// EvictAll removes every entry of every region.
func (c *Cache) EvictAll() {
	c.regions.Range(func(_ string, r *Region) bool {
		r.InvalidateAll()
		return true
	})
}

// Statistics returns a snapshot of the counters of entityType's region.
func (c *Cache) Statistics(entityType string) (StatisticsSnapshot, bool) {
	r, ok := c.regions.Load(entityType)
	if !ok {
		return StatisticsSnapshot{}, false
	}
	return r.Snapshot(), true
}

// AllStatistics returns a snapshot per region ordered by region name.
func (c *Cache) AllStatistics() []StatisticsSnapshot {
	var out []StatisticsSnapshot
	for _, name := range c.RegionNames() {
		if r, ok := c.regions.Load(name); ok {
			out = append(out, r.Snapshot())
		}
	}
	return out
}

// ClearStatistics resets the counters of every region.
func (c *Cache) ClearStatistics() {
	c.regions.Range(func(_ string, r *Region) bool {
		r.stats.Clear()
		return true
	})
}

// RegionNames lists registered regions in lexical order.
func (c *Cache) RegionNames() []string {
	var names []string
	c.regions.Range(func(name string, _ *Region) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}
