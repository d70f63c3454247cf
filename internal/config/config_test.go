package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/repovault/internal/conflict"
	rverrors "github.com/randalmurphal/repovault/internal/errors"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(WithSearchDirs(t.TempDir()), WithEnviron(nil))
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.Repository.Provider)
	assert.Equal(t, "repovault-data", cfg.DataRoot)
	assert.Equal(t, "skip", cfg.Conflict.Mode)
	assert.Equal(t, "sqlite", cfg.Journal.Driver)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Include)
	assert.Empty(t, cfg.Overrides)
	assert.Equal(t, filepath.Join("repovault-data", "journal.db"), cfg.JournalDSN())
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, `
repository:
  provider: gitlab
  base_url: https://gitlab.example.com
  repository: group/project
data_root: /var/backups/project
include:
  labels: true
  comments: false
  issues: "1-10 20"
  pull_requests: 7
overrides: [pr_comments]
strict_selection: true
conflict:
  mode: overwrite
  entities:
    labels: rename
run:
  critical: [git_repository]
  stop_on_first_failure: true
journal:
  driver: none
log:
  format: json
  level: debug
`)

	cfg, err := Load(WithSearchDirs(dir), WithEnviron(nil))
	require.NoError(t, err)

	assert.Equal(t, "gitlab", cfg.Repository.Provider)
	assert.Equal(t, "https://gitlab.example.com", cfg.Repository.BaseURL)
	assert.Equal(t, "group/project", cfg.Repository.Repository)
	assert.Equal(t, "/var/backups/project", cfg.DataRoot)
	assert.Equal(t, map[string]string{
		"labels":        "true",
		"comments":      "false",
		"issues":        "1-10 20",
		"pull_requests": "7",
	}, cfg.Include)
	assert.Equal(t, []string{"pr_comments"}, cfg.Overrides)
	assert.True(t, cfg.StrictSelection)
	assert.Equal(t, []string{"git_repository"}, cfg.Run.Critical)
	assert.True(t, cfg.Run.StopOnFirstFailure)
	assert.Equal(t, "none", cfg.Journal.Driver)
	assert.Equal(t, "json", cfg.Log.Format)

	policy, err := cfg.ConflictPolicy()
	require.NoError(t, err)
	assert.Equal(t, conflict.ModeRename, policy.ModeFor("labels"))
	assert.Equal(t, conflict.ModeOverwrite, policy.ModeFor("milestones"))
}

func TestLoad_EntityEnvironment(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, `
include:
  issues: "1-3"
overrides: [comments]
`)

	cfg, err := Load(WithSearchDirs(dir), WithEnviron([]string{
		"INCLUDE_ISSUES=5 6",
		"INCLUDE_PULL_REQUESTS=false",
		"OVERRIDE_COMMENTS=false",
		"OVERRIDE_PR_COMMENTS=1",
		"OVERRIDE_RELEASES=maybe",
		"INCLUDE_=ignored",
		"PATH=/usr/bin",
	}))
	require.NoError(t, err)

	assert.Equal(t, "5 6", cfg.Include["issues"])
	assert.Equal(t, "false", cfg.Include["pull_requests"])
	assert.NotContains(t, cfg.Include, "")
	assert.Equal(t, []string{"pr_comments"}, cfg.Overrides)
}

// Not parallel: sets process environment.
func TestLoad_RunAndConflictEnvironment(t *testing.T) {
	t.Setenv("REPOVAULT_RUN_CRITICAL", "git_repository,issues")

	cfg, err := Load(WithSearchDirs(t.TempDir()), WithEnviron([]string{
		"REPOVAULT_CONFLICT_ENTITIES_LABELS=overwrite",
		"REPOVAULT_CONFLICT_ENTITIES_PR_COMMENTS=fail",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"git_repository", "issues"}, cfg.Run.Critical)
	assert.Equal(t, map[string]string{"labels": "overwrite", "pr_comments": "fail"}, cfg.Conflict.Entities)

	policy, err := cfg.ConflictPolicy()
	require.NoError(t, err)
	assert.Equal(t, conflict.ModeOverwrite, policy.ModeFor("labels"))
	assert.Equal(t, conflict.ModeSkip, policy.ModeFor("issues"))
}

func TestLoad_PrefixedEnvironment(t *testing.T) {
	t.Setenv("REPOVAULT_DATA_ROOT", "/tmp/from-env")
	t.Setenv("REPOVAULT_CONFLICT_MODE", "fail")
	t.Setenv("REPOVAULT_REPOSITORY_PROVIDER", "github")

	cfg, err := Load(WithSearchDirs(t.TempDir()), WithEnviron(nil))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-env", cfg.DataRoot)
	assert.Equal(t, "fail", cfg.Conflict.Mode)
	assert.Equal(t, "github", cfg.Repository.Provider)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Parallel()

	_, err := Load(WithFile(filepath.Join(t.TempDir(), "nope.yaml")), WithEnviron(nil))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "include: [unterminated\n")
	_, err := Load(WithSearchDirs(dir), WithEnviron(nil))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty data root", func(c *Config) { c.DataRoot = "" }, "data_root"},
		{"bad conflict mode", func(c *Config) { c.Conflict.Mode = "merge" }, "conflict.mode"},
		{"bad per-entity mode", func(c *Config) { c.Conflict.Entities = map[string]string{"labels": "merge"} }, "conflict.entities"},
		{"bad journal driver", func(c *Config) { c.Journal.Driver = "mysql" }, "journal.driver"},
		{"postgres without dsn", func(c *Config) { c.Journal.Driver = "postgres" }, "journal.dsn"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, "tracing.exporter"},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 2 }, "tracing.sample_rate"},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
			c.Tracing.OTLPEndpoint = ""
		}, "tracing.otlp_endpoint"},
		{"empty override", func(c *Config) { c.Overrides = []string{" "} }, "overrides"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, rverrors.HasCode(err, rverrors.CodeConfigInvalid), "got %v", err)
			assert.Contains(t, rverrors.AsError(err).What, tt.field)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestFieldPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "journal.driver", fieldPath("Config.Journal.Driver"))
	assert.Equal(t, "data_root", fieldPath("Config.DataRoot"))
	assert.Equal(t, "tracing.otlp_endpoint", fieldPath("Config.Tracing.OTLPEndpoint"))
}

func TestWrite_LoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := Default()
	cfg.DataRoot = "/srv/vault"
	cfg.Include = map[string]string{"issues": "1-4", "labels": "true"}
	cfg.Conflict.Entities = map[string]string{"releases": "fail"}

	path := filepath.Join(dir, "nested", FileName)
	require.NoError(t, Write(cfg, path))

	got, err := Load(WithFile(path), WithEnviron(nil))
	require.NoError(t, err)
	assert.Equal(t, cfg.DataRoot, got.DataRoot)
	assert.Equal(t, cfg.Include, got.Include)
	assert.Equal(t, cfg.Conflict.Entities, got.Conflict.Entities)
	assert.Equal(t, path, ConfigFileUsed(WithFile(path)))
}

func TestSample(t *testing.T) {
	t.Parallel()

	data, err := Sample([]string{"labels", "issues"})
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Directory holding saved entity files")

	var cfg Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "owner/repo", cfg.Repository.Repository)
	assert.Equal(t, map[string]string{"labels": "true", "issues": "true"}, cfg.Include)
}
