// Package config loads the module configuration from defaults, an optional
// YAML file and ENTITY_CACHE_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/internal/resilience"
	"github.com/goliatone/go-entity-cache/pkg/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ENTITY_CACHE_"

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Cache       cache.Config      `json:"cache" yaml:"cache"`
	Datastore   DatastoreConfig   `json:"datastore" yaml:"datastore"`
	Resilience  resilience.Config `json:"resilience" yaml:"resilience"`
	Coordinator CoordinatorConfig `json:"coordinator" yaml:"coordinator"`
	Logging     logging.Config    `json:"logging" yaml:"logging"`
}

type DatastoreConfig struct {
	Driver       string `json:"driver" yaml:"driver"`
	DSN          string `json:"dsn" yaml:"dsn"`
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns"`
}

type CoordinatorConfig struct {
	// PutAfterUpdate caches the committed state of targeted updates instead
	// of only evicting them.
	PutAfterUpdate bool `json:"put_after_update" yaml:"put_after_update"`
}

func Default() Config {
	return Config{
		Cache:      cache.DefaultConfig(),
		Datastore:  DatastoreConfig{Driver: DriverMemory},
		Resilience: resilience.DefaultConfig(),
		Logging:    logging.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Datastore.Validate(); err != nil {
		return err
	}
	if err := c.Resilience.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

func (c DatastoreConfig) Validate() error {
	if verr := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.Driver, validation.Required, validation.In(DriverMemory, DriverSQLite, DriverPostgres)),
			validation.Field(&c.DSN, validation.When(c.Driver != DriverMemory, validation.Required)),
			validation.Field(&c.MaxOpenConns, validation.Min(0)),
		)
	}, "invalid datastore configuration"); verr != nil {
		return verr
	}
	return nil
}

// Load builds the configuration. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, errors.CategoryBadInput, fmt.Sprintf("reading config file %s", path))
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrap(err, errors.CategoryBadInput, fmt.Sprintf("parsing config file %s", path))
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var fieldErrs []errors.FieldError
	set := func(name string, apply func(string) error) {
		raw, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		if err := apply(raw); err != nil {
			fieldErrs = append(fieldErrs, errors.FieldError{Field: EnvPrefix + name, Message: err.Error(), Value: raw})
		}
	}

	set("CACHE_BACKEND", func(v string) error { cfg.Cache.Backend = cache.Backend(v); return nil })
	set("CACHE_CAPACITY", intVar(&cfg.Cache.Capacity))
	set("CACHE_NUM_SHARDS", intVar(&cfg.Cache.NumShards))
	set("CACHE_TTL", durationVar(&cfg.Cache.TTL))
	set("CACHE_EVICTION_PERCENTAGE", intVar(&cfg.Cache.EvictionPercentage))
	set("CACHE_EVICTION_INTERVAL", durationVar(&cfg.Cache.EvictionInterval))

	set("DATASTORE_DRIVER", func(v string) error { cfg.Datastore.Driver = v; return nil })
	set("DATASTORE_DSN", func(v string) error { cfg.Datastore.DSN = v; return nil })
	set("DATASTORE_MAX_OPEN_CONNS", intVar(&cfg.Datastore.MaxOpenConns))

	set("RETRY_ATTEMPTS", func(v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return err
		}
		cfg.Resilience.RetryAttempts = n
		return nil
	})
	set("RETRY_BASE_DELAY", durationVar(&cfg.Resilience.RetryBaseDelay))
	set("BREAKER_ENABLED", boolVar(&cfg.Resilience.BreakerEnabled))
	set("BREAKER_MAX_FAILURES", func(v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return err
		}
		cfg.Resilience.BreakerMaxFailures = uint32(n)
		return nil
	})
	set("BREAKER_TIMEOUT", durationVar(&cfg.Resilience.BreakerTimeout))

	set("PUT_AFTER_UPDATE", boolVar(&cfg.Coordinator.PutAfterUpdate))

	set("LOG_LEVEL", func(v string) error { cfg.Logging.Level = v; return nil })
	set("LOG_DEVELOPMENT", boolVar(&cfg.Logging.Development))
	set("LOG_ENCODING", func(v string) error { cfg.Logging.Encoding = v; return nil })

	if len(fieldErrs) > 0 {
		return errors.NewValidation("invalid environment configuration", fieldErrs...)
	}
	return nil
}

func intVar(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func boolVar(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func durationVar(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}
