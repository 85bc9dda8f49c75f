// Package logging builds the zap logger used across the module.
package logging

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
	// Encoding is "json" or "console". Empty picks the preset's default.
	Encoding string `json:"encoding" yaml:"encoding"`
}

func DefaultConfig() Config {
	return Config{Level: "info"}
}

func (c Config) Validate() error {
	if verr := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.Level, validation.Required, validation.By(validLevel)),
			validation.Field(&c.Encoding, validation.In("json", "console")),
		)
	}, "invalid logging configuration"); verr != nil {
		return verr
	}
	return nil
}

func validLevel(value any) error {
	s, _ := value.(string)
	_, err := zapcore.ParseLevel(s)
	return err
}

// New builds a production or development logger with the configured level.
func New(cfg Config) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := zapcore.ParseLevel(cfg.Level)

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.Encoding != "" {
		zc.Encoding = cfg.Encoding
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build(zap.AddStacktrace(zap.ErrorLevel))
}
