package cache

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// Storage holds encoded entity snapshots under namespaced keys.
// Implementations must be safe for concurrent use and must not retain
// the slices passed to Set or hand out slices they still reference.
type Storage interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
	DeleteByPrefix(prefix string) int
	Keys(prefix string) []string
	Len() int
}

// MapStorage is an unbounded Storage backed by a concurrent map.
type MapStorage struct {
	entries *xsync.MapOf[string, []byte]
}

func NewMapStorage() *MapStorage {
	return &MapStorage{entries: xsync.NewMapOf[string, []byte]()}
}

func (m *MapStorage) Get(key string) ([]byte, bool) {
	v, ok := m.entries.Load(key)
	if !ok {
		return nil, false
	}
	return cloneBytes(v), true
}

func (m *MapStorage) Set(key string, value []byte) {
	m.entries.Store(key, cloneBytes(value))
}

func (m *MapStorage) Delete(key string) {
	m.entries.Delete(key)
}

func (m *MapStorage) DeleteByPrefix(prefix string) int {
	removed := 0
	m.entries.Range(func(key string, _ []byte) bool {
		if strings.HasPrefix(key, prefix) {
			m.entries.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

func (m *MapStorage) Keys(prefix string) []string {
	var keys []string
	m.entries.Range(func(key string, _ []byte) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	return keys
}

func (m *MapStorage) Len() int {
	return m.entries.Size()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
