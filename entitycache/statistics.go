package entitycache

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Statistics records hit, miss and put counts for one region.
//
// Increments take the read side of mu so they never contend with each other;
// Clear takes the write side, which gives every increment a definite place
// before or after the reset.
type Statistics struct {
	mu     sync.RWMutex
	hits   *xsync.Counter
	misses *xsync.Counter
	puts   *xsync.Counter
}

// StatisticsSnapshot is a point-in-time copy of a region's counters.
type StatisticsSnapshot struct {
	Region string `json:"region"`
	Hits   int64  `json:"hits"`
	Misses int64  `json:"misses"`
	Puts   int64  `json:"puts"`
}

func newStatistics() *Statistics {
	return &Statistics{
		hits:   xsync.NewCounter(),
		misses: xsync.NewCounter(),
		puts:   xsync.NewCounter(),
	}
}

func (s *Statistics) HitCount() int64  { return s.read(s.hits) }
func (s *Statistics) MissCount() int64 { return s.read(s.misses) }
func (s *Statistics) PutCount() int64  { return s.read(s.puts) }

// Clear resets all counters to zero.
func (s *Statistics) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits.Reset()
	s.misses.Reset()
	s.puts.Reset()
}

func (s *Statistics) snapshot(region string) StatisticsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatisticsSnapshot{
		Region: region,
		Hits:   s.hits.Value(),
		Misses: s.misses.Value(),
		Puts:   s.puts.Value(),
	}
}

func (s *Statistics) recordHit()  { s.inc(s.hits) }
func (s *Statistics) recordMiss() { s.inc(s.misses) }
func (s *Statistics) recordPut()  { s.inc(s.puts) }

func (s *Statistics) inc(c *xsync.Counter) {
	s.mu.RLock()
	c.Inc()
	s.mu.RUnlock()
}

func (s *Statistics) read(c *xsync.Counter) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.Value()
}
