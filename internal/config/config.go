// Package config loads repovault configuration from repovault.yaml, the
// REPOVAULT_* environment and the per-entity INCLUDE_* / OVERRIDE_*
// variables.
package config

import (
	"github.com/randalmurphal/repovault/internal/conflict"
	"github.com/randalmurphal/repovault/internal/hosting"
	"github.com/randalmurphal/repovault/internal/orchestrator"
	"github.com/randalmurphal/repovault/internal/tracing"
)

const (
	// FileName is the config file name searched for without --config.
	FileName = "repovault.yaml"
	// Dir is the per-project config directory.
	Dir = ".repovault"
	// EnvPrefix prefixes every scalar environment override.
	EnvPrefix = "REPOVAULT"
)

// Config is the complete repovault configuration.
type Config struct {
	// Repository selects the hosting provider and project.
	Repository hosting.Config `yaml:"repository" mapstructure:"repository"`

	// DataRoot is the directory entities are saved to and restored from.
	DataRoot string `yaml:"data_root" mapstructure:"data_root" validate:"required"`

	// Include maps entity names to selection strings: "true", "false" or
	// explicit numbers such as "1-10 20".
	Include map[string]string `yaml:"include,omitempty" mapstructure:"-"`

	// Overrides lists child entities whose selection ignores their parent.
	Overrides []string `yaml:"overrides,omitempty" mapstructure:"overrides"`

	// StrictSelection turns coupling warnings into errors.
	StrictSelection bool `yaml:"strict_selection" mapstructure:"strict_selection"`

	Conflict ConflictConfig       `yaml:"conflict" mapstructure:"conflict"`
	Run      orchestrator.Options `yaml:"run" mapstructure:"run"`
	Journal  JournalConfig        `yaml:"journal" mapstructure:"journal"`
	Metrics  MetricsConfig        `yaml:"metrics" mapstructure:"metrics"`
	Tracing  tracing.Config       `yaml:"tracing" mapstructure:"tracing"`
	Log      LogConfig            `yaml:"log" mapstructure:"log"`
}

// ConflictConfig configures restore collision handling.
type ConflictConfig struct {
	// Mode is the default: skip, overwrite, rename or fail.
	Mode string `yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=skip overwrite rename fail"`
	// Entities overrides Mode per entity.
	Entities map[string]string `yaml:"entities,omitempty" mapstructure:"entities" validate:"dive,oneof=skip overwrite rename fail"`
}

// JournalConfig configures the run journal.
type JournalConfig struct {
	// Driver is sqlite, postgres or none.
	Driver string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres none"`
	// DSN is a file path for sqlite or a connection string for postgres.
	// An empty sqlite DSN means <data_root>/journal.db.
	DSN string `yaml:"dsn,omitempty" mapstructure:"dsn"`
}

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	// Textfile, when set, receives Prometheus text exposition after every run.
	Textfile string `yaml:"textfile,omitempty" mapstructure:"textfile"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=text json"`
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Repository: hosting.Config{Provider: "auto"},
		DataRoot:   "repovault-data",
		Include:    map[string]string{},
		Conflict:   ConflictConfig{Mode: string(conflict.DefaultMode)},
		Journal:    JournalConfig{Driver: "sqlite"},
		Tracing:    tracing.DefaultConfig(),
		Log:        LogConfig{Format: "text", Level: "info"},
	}
}

// ConflictPolicy builds the restore collision policy.
func (c *Config) ConflictPolicy() (conflict.Policy, error) {
	def, err := conflict.ParseMode(c.Conflict.Mode)
	if err != nil {
		return conflict.Policy{}, err
	}
	per := make(map[string]conflict.Mode, len(c.Conflict.Entities))
	for name, raw := range c.Conflict.Entities {
		m, err := conflict.ParseMode(raw)
		if err != nil {
			return conflict.Policy{}, err
		}
		per[name] = m
	}
	return conflict.NewPolicy(def, per), nil
}
