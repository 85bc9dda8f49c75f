package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "map backend ignores sturdyc sizing", mutate: func(c *Config) {
			c.Backend = BackendMap
			c.Capacity = 0
		}},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "redis" }, wantErr: "backend"},
		{name: "missing backend", mutate: func(c *Config) { c.Backend = "" }, wantErr: "backend"},
		{name: "sturdyc without ttl", mutate: func(c *Config) { c.TTL = 0 }, wantErr: "TTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Backend != BackendSturdyc {
		t.Errorf("expected sturdyc backend, got %q", cfg.Backend)
	}
	if cfg.TTL != 5*time.Minute {
		t.Errorf("expected 5m TTL, got %v", cfg.TTL)
	}
}

func TestNewStorage_Backends(t *testing.T) {
	for _, backend := range []Backend{BackendSturdyc, BackendMap} {
		t.Run(string(backend), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Backend = backend

			s, err := NewStorage(cfg)
			if err != nil {
				t.Fatalf("NewStorage: %v", err)
			}
			exerciseStorage(t, s)
		})
	}
}

func TestNewStorage_InvalidConfig(t *testing.T) {
	s, err := NewStorage(Config{Backend: BackendSturdyc})
	if err == nil {
		t.Fatal("expected error")
	}
	if s != nil {
		t.Errorf("expected nil storage on error, got %T", s)
	}
}

func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()

	s.Set("employee::a", []byte("1"))
	s.Set("employee::b", []byte("2"))
	s.Set("test_entity::a", []byte("3"))

	if v, ok := s.Get("employee::a"); !ok || string(v) != "1" {
		t.Errorf("Get(employee::a) = %q, %v", v, ok)
	}
	if _, ok := s.Get("employee::missing"); ok {
		t.Error("expected miss for absent key")
	}

	keys := s.Keys("employee::")
	sort.Strings(keys)
	if fmt.Sprint(keys) != "[employee::a employee::b]" {
		t.Errorf("unexpected keys %v", keys)
	}

	if n := s.DeleteByPrefix("employee::"); n != 2 {
		t.Errorf("expected 2 deletions, got %d", n)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 remaining entry, got %d", s.Len())
	}

	s.Delete("test_entity::a")
	if s.Len() != 0 {
		t.Errorf("expected empty storage, got %d", s.Len())
	}
}

func TestMapStorage_ConcurrentAccess(t *testing.T) {
	s := NewMapStorage()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("employee::%d", i)
			for j := 0; j < 100; j++ {
				s.Set(key, []byte{byte(j)})
				s.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 16 {
		t.Errorf("expected 16 entries, got %d", s.Len())
	}
	for i := 0; i < 16; i++ {
		v, ok := s.Get(fmt.Sprintf("employee::%d", i))
		if !ok || len(v) != 1 || v[0] != 99 {
			t.Errorf("unexpected final value for %d: %v", i, v)
		}
	}
}
