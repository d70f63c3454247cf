package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// LoadOption customizes Load.
type LoadOption func(*loader)

type loader struct {
	file    string
	environ []string
	dirs    []string
}

// WithFile reads exactly path instead of searching for repovault.yaml.
func WithFile(path string) LoadOption {
	return func(l *loader) { l.file = path }
}

// WithEnviron replaces os.Environ for INCLUDE_* / OVERRIDE_* scanning.
func WithEnviron(env []string) LoadOption {
	return func(l *loader) { l.environ = env }
}

// WithSearchDirs replaces the directories searched for repovault.yaml.
func WithSearchDirs(dirs ...string) LoadOption {
	return func(l *loader) { l.dirs = dirs }
}

func newLoader(opts []LoadOption) *loader {
	l := &loader{environ: os.Environ(), dirs: []string{".", Dir}}
	if home, err := os.UserHomeDir(); err == nil {
		l.dirs = append(l.dirs, filepath.Join(home, Dir))
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load builds the configuration. Later sources win:
//  1. Built-in defaults
//  2. repovault.yaml (--config, ./, ./.repovault/, ~/.repovault/)
//  3. REPOVAULT_* environment variables
//  4. INCLUDE_<ENTITY> and OVERRIDE_<ENTITY> environment variables
//
// The result is validated.
func Load(opts ...LoadOption) (*Config, error) {
	l := newLoader(opts)

	v := viper.New()
	setDefaults(v, Default())

	if l.file != "" {
		v.SetConfigFile(l.file)
	} else {
		for _, d := range l.dirs {
			v.AddConfigPath(d)
		}
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Include = includeFromViper(v)
	applyEntityEnv(cfg, l.environ)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigFileUsed reports which file Load would read, or "".
func ConfigFileUsed(opts ...LoadOption) string {
	l := newLoader(opts)
	if l.file != "" {
		return l.file
	}
	for _, d := range l.dirs {
		p := filepath.Join(d, FileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// setDefaults registers every scalar and list key so REPOVAULT_* variables
// bind even when the config file omits the key. Lists read from the
// environment are comma-separated. Per-entity conflict modes are maps and
// are read by applyEntityEnv instead.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("repository.provider", d.Repository.Provider)
	v.SetDefault("repository.base_url", d.Repository.BaseURL)
	v.SetDefault("repository.token_env_var", d.Repository.TokenEnvVar)
	v.SetDefault("repository.repository", d.Repository.Repository)
	v.SetDefault("repository.requests_per_second", d.Repository.RequestsPerSecond)
	v.SetDefault("data_root", d.DataRoot)
	v.SetDefault("overrides", nonNilSlice(d.Overrides))
	v.SetDefault("strict_selection", d.StrictSelection)
	v.SetDefault("conflict.mode", d.Conflict.Mode)
	v.SetDefault("run.critical", nonNilSlice(d.Run.Critical))
	v.SetDefault("run.stop_on_first_failure", d.Run.StopOnFirstFailure)
	v.SetDefault("run.skip_dependents_on_failure", d.Run.SkipDependentsOnFailure)
	v.SetDefault("journal.driver", d.Journal.Driver)
	v.SetDefault("journal.dsn", d.Journal.DSN)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.level", d.Log.Level)
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// includeFromViper reads include.<entity> keeping YAML booleans as
// "true"/"false" rather than letting weak decoding turn them into "1"/"0".
func includeFromViper(v *viper.Viper) map[string]string {
	out := map[string]string{}
	for name, raw := range v.GetStringMap("include") {
		switch x := raw.(type) {
		case nil:
			continue
		case bool:
			out[name] = strconv.FormatBool(x)
		default:
			out[name] = fmt.Sprint(x)
		}
	}
	return out
}

const (
	includePrefix  = "INCLUDE_"
	overridePrefix = "OVERRIDE_"
	conflictPrefix = EnvPrefix + "_CONFLICT_ENTITIES_"
)

// applyEntityEnv folds INCLUDE_<ENTITY>=<spec>, OVERRIDE_<ENTITY>=true and
// REPOVAULT_CONFLICT_ENTITIES_<ENTITY>=<mode> into cfg. Entity names are
// lower-cased: INCLUDE_PULL_REQUESTS sets include.pull_requests.
func applyEntityEnv(cfg *Config, environ []string) {
	overrides := make(map[string]bool, len(cfg.Overrides))
	for _, o := range cfg.Overrides {
		overrides[o] = true
	}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(key, includePrefix) && len(key) > len(includePrefix):
			cfg.Include[strings.ToLower(strings.TrimPrefix(key, includePrefix))] = value
		case strings.HasPrefix(key, overridePrefix) && len(key) > len(overridePrefix):
			name := strings.ToLower(strings.TrimPrefix(key, overridePrefix))
			on, err := strconv.ParseBool(strings.TrimSpace(value))
			if err != nil {
				continue
			}
			overrides[name] = on
		case strings.HasPrefix(key, conflictPrefix) && len(key) > len(conflictPrefix):
			if cfg.Conflict.Entities == nil {
				cfg.Conflict.Entities = map[string]string{}
			}
			cfg.Conflict.Entities[strings.ToLower(strings.TrimPrefix(key, conflictPrefix))] = strings.TrimSpace(value)
		}
	}

	cfg.Overrides = cfg.Overrides[:0]
	for name, on := range overrides {
		if on {
			cfg.Overrides = append(cfg.Overrides, name)
		}
	}
	sort.Strings(cfg.Overrides)
}
