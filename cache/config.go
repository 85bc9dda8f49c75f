package cache

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-entity-cache/internal/cacheinfra"
)

// Backend names a Storage implementation.
type Backend string

const (
	// BackendSturdyc is a bounded, TTL aware sharded cache.
	BackendSturdyc Backend = "sturdyc"
	// BackendMap is an unbounded concurrent map. Entries only leave on eviction.
	BackendMap Backend = "map"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Backend            Backend       `yaml:"backend" json:"backend"`
	Capacity           int           `yaml:"capacity" json:"capacity"`
	NumShards          int           `yaml:"num_shards" json:"num_shards"`
	TTL                time.Duration `yaml:"ttl" json:"ttl"`
	EvictionPercentage int           `yaml:"eviction_percentage" json:"eviction_percentage"`
	EvictionInterval   time.Duration `yaml:"eviction_interval" json:"eviction_interval"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(BackendSturdyc, cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if verr := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.Backend, validation.Required, validation.In(BackendSturdyc, BackendMap)),
		)
	}, "invalid cache configuration"); verr != nil {
		return verr
	}
	if c.Backend == BackendSturdyc {
		return c.toInternal().Validate()
	}
	return nil
}

// NewStorage constructs the Storage selected by cfg.Backend.
func NewStorage(cfg Config) (Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendMap:
		return NewMapStorage(), nil
	case BackendSturdyc:
		s, err := cacheinfra.NewSturdycStorage(cfg.toInternal())
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(backend Backend, cfg cacheinfra.Config) Config {
	return Config{
		Backend:            backend,
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
