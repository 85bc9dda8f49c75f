package cacheinfra

import (
	"sort"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capacity != 10000 {
		t.Errorf("expected Capacity to be 10000, got %d", cfg.Capacity)
	}

	if cfg.NumShards != 256 {
		t.Errorf("expected NumShards to be 256, got %d", cfg.NumShards)
	}

	if cfg.TTL != 5*time.Minute {
		t.Errorf("expected TTL to be 5 minutes, got %v", cfg.TTL)
	}

	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantError bool
		errorMsg  string
	}{
		{
			name: "valid default config",
			cfg:  DefaultConfig(),
		},
		{
			name: "invalid capacity - zero",
			cfg: Config{
				Capacity:           0,
				NumShards:          256,
				TTL:                5 * time.Minute,
				EvictionPercentage: 10,
			},
			wantError: true,
			errorMsg:  "Capacity",
		},
		{
			name: "invalid num shards - negative",
			cfg: Config{
				Capacity:           1000,
				NumShards:          -1,
				TTL:                5 * time.Minute,
				EvictionPercentage: 10,
			},
			wantError: true,
			errorMsg:  "NumShards",
		},
		{
			name: "invalid TTL - zero",
			cfg: Config{
				Capacity:           1000,
				NumShards:          256,
				EvictionPercentage: 10,
			},
			wantError: true,
			errorMsg:  "TTL",
		},
		{
			name: "invalid eviction percentage - too high",
			cfg: Config{
				Capacity:           1000,
				NumShards:          256,
				TTL:                5 * time.Minute,
				EvictionPercentage: 101,
			},
			wantError: true,
			errorMsg:  "EvictionPercentage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !tt.wantError {
				if err != nil {
					t.Errorf("expected no validation error but got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error to mention %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestConfig_ToSturdycOptions(t *testing.T) {
	if n := len(DefaultConfig().ToSturdycOptions()); n != 0 {
		t.Errorf("expected no sturdyc options for default config, got %d", n)
	}

	cfg := DefaultConfig()
	cfg.EvictionInterval = time.Second
	if n := len(cfg.ToSturdycOptions()); n != 1 {
		t.Errorf("expected 1 sturdyc option with eviction interval, got %d", n)
	}
}

func TestNewSturdycStorage_InvalidConfig(t *testing.T) {
	if _, err := NewSturdycStorage(Config{}); err == nil {
		t.Error("expected error for zero config")
	}
}

func TestSturdycStorage_Operations(t *testing.T) {
	s, err := NewSturdycStorage(DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	value := []byte("payload")
	s.Set("employee::John", value)
	s.Set("employee::Jane", []byte("other"))
	s.Set("test_entity::1", []byte("x"))

	value[0] = 'X'
	got, ok := s.Get("employee::John")
	if !ok {
		t.Fatal("expected key to be present")
	}
	if string(got) != "payload" {
		t.Errorf("stored value shares caller buffer: %q", got)
	}

	got[0] = 'Y'
	again, _ := s.Get("employee::John")
	if string(again) != "payload" {
		t.Errorf("returned value shares cache buffer: %q", again)
	}

	keys := s.Keys("employee::")
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "employee::Jane" || keys[1] != "employee::John" {
		t.Errorf("unexpected keys %v", keys)
	}

	if s.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", s.Len())
	}

	if removed := s.DeleteByPrefix("employee::"); removed != 2 {
		t.Errorf("expected 2 removed entries, got %d", removed)
	}
	if _, ok := s.Get("employee::Jane"); ok {
		t.Error("expected prefix delete to remove employee entries")
	}
	if _, ok := s.Get("test_entity::1"); !ok {
		t.Error("expected other region to survive prefix delete")
	}

	s.Delete("test_entity::1")
	if s.Len() != 0 {
		t.Errorf("expected empty storage, got %d", s.Len())
	}
}
