package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/repovault/internal/config"
	"github.com/randalmurphal/repovault/internal/entity"
	rverrors "github.com/randalmurphal/repovault/internal/errors"
	"github.com/randalmurphal/repovault/internal/git"
	"github.com/randalmurphal/repovault/internal/hosting"
	"github.com/randalmurphal/repovault/internal/hosting/memory"
	"github.com/randalmurphal/repovault/internal/orchestrator"
	"github.com/randalmurphal/repovault/internal/storage"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	code = run(context.Background(), root, args, &errOut)
	return out.String(), errOut.String(), code
}

// writeConfig writes a memory-provider config for source and returns its path.
func writeConfig(t *testing.T, dataRoot, source, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.FileName)
	body := fmt.Sprintf(`
repository:
  provider: memory
  repository: %s
data_root: %s
include:
  git_repository: false
  releases: false
  pull_requests: false
  pr_comments: false
log:
  level: error
%s`, hosting.MemoryScheme+source, dataRoot, extra)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func seedSource(owner, repo string) *memory.Project {
	src := memory.Lookup(owner, repo)
	_, _ = src.CreateLabel(context.Background(), hosting.Label{Name: "bug", Color: "d73a4a"})
	src.SeedIssue(hosting.Issue{Number: 1, Title: "first", State: "open", Labels: []string{"bug"}, Author: "ana"},
		hosting.Comment{Body: "me too", Author: "ben"})
	src.SeedIssue(hosting.Issue{Number: 2, Title: "second", State: "closed", Author: "ana"})
	return src
}

func TestSaveRestoreRuns(t *testing.T) {
	t.Parallel()

	seedSource("clitest", "roundtrip-src")
	dataRoot := t.TempDir()
	cfgPath := writeConfig(t, dataRoot, "clitest/roundtrip-src", "")

	out, stderr, code := execute(t, "--config", cfgPath, "save")
	require.Equal(t, 0, code, "stderr: %s\nstdout: %s", stderr, out)
	assert.Contains(t, out, "labels")
	assert.Contains(t, out, "succeeded")
	assert.FileExists(t, filepath.Join(dataRoot, "issues.json"))

	store, err := storage.Open(dataRoot)
	require.NoError(t, err)
	manifest, err := store.ReadManifest()
	require.NoError(t, err)
	assert.NotEmpty(t, manifest.RunID)
	assert.Equal(t, Version, manifest.ToolVersion)

	out, stderr, code = execute(t, "--config", cfgPath, "--json", "restore",
		"--repository", hosting.MemoryScheme+"clitest/roundtrip-dst")
	require.Equal(t, 0, code, "stderr: %s\nstdout: %s", stderr, out)

	var result orchestrator.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, entity.OpRestore, result.Operation)
	assert.Equal(t, orchestrator.RunSuccess, result.Status)
	assert.Equal(t, 2, result.Entity("issues").Items)

	dst := memory.Lookup("clitest", "roundtrip-dst")
	issues, err := dst.ListIssues(context.Background())
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "closed", issues[1].State)

	out, _, code = execute(t, "--config", cfgPath, "--json", "runs")
	require.Equal(t, 0, code)
	var entries []struct {
		ID         string `json:"id"`
		Repository string `json:"repository"`
		Operation  string `json:"operation"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "restore", entries[0].Operation)
	assert.Equal(t, "clitest/roundtrip-dst", entries[0].Repository)
	assert.Equal(t, manifest.RunID, entries[1].ID)

	out, _, code = execute(t, "--config", cfgPath, "runs", entries[1].ID)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "clitest/roundtrip-src")
}

func TestSave_FailureExitCode(t *testing.T) {
	t.Parallel()

	src := seedSource("clitest", "failing-src")
	src.FailOn("ListIssues", fmt.Errorf("api down"))
	cfgPath := writeConfig(t, t.TempDir(), "clitest/failing-src", "journal:\n  driver: none\n")

	out, stderr, code := execute(t, "--config", cfgPath, "save")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "api down")
	assert.Contains(t, stderr, "entities failed")
}

func TestRestore_LabelConflictStillRestoresIssues(t *testing.T) {
	t.Parallel()

	seedSource("clitest", "conflict-src")
	dataRoot := t.TempDir()
	cfgPath := writeConfig(t, dataRoot, "clitest/conflict-src", "journal:\n  driver: none\n")
	_, stderr, code := execute(t, "--config", cfgPath, "save")
	require.Equal(t, 0, code, stderr)

	tests := []struct {
		name       string
		dst        string
		extra      []string
		wantIssues orchestrator.State
		wantCount  int
	}{
		{name: "dependents run", dst: "conflict-dst", wantIssues: orchestrator.StateSucceeded, wantCount: 2},
		{name: "dependents skipped", dst: "conflict-dst-skip", extra: []string{"--skip-dependents"}, wantIssues: orchestrator.StateSkipped},
	}
	for _, tt := range tests {
		// Sequential: both restores share the saved number maps.
		t.Run(tt.name, func(t *testing.T) {
			dst := memory.Lookup("clitest", tt.dst)
			_, err := dst.CreateLabel(context.Background(), hosting.Label{Name: "bug", Color: "000000"})
			require.NoError(t, err)

			args := append([]string{"--config", cfgPath, "--json", "restore", "--conflict", "fail",
				"--repository", hosting.MemoryScheme + "clitest/" + tt.dst}, tt.extra...)
			out, _, code := execute(t, args...)
			assert.Equal(t, ExitFailure, code)

			var result orchestrator.RunResult
			require.NoError(t, json.Unmarshal([]byte(out), &result))
			assert.Equal(t, orchestrator.RunPartialFailure, result.Status)
			assert.Equal(t, orchestrator.StateFailed, result.Entity("labels").Status)
			assert.Equal(t, tt.wantIssues, result.Entity("issues").Status)
			assert.Equal(t, tt.wantIssues, result.Entity("comments").Status)

			issues, err := dst.ListIssues(context.Background())
			require.NoError(t, err)
			assert.Len(t, issues, tt.wantCount)
		})
	}
}

func TestSave_SelectionErrorIsConfigExit(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, t.TempDir(), "clitest/unused", "")
	_, stderr, code := execute(t, "--config", cfgPath, "save", "--include", "issues=5-1")
	assert.Equal(t, ExitConfigError, code)
	assert.NotEmpty(t, stderr)
}

func TestRestore_IncompatibleFormat(t *testing.T) {
	t.Parallel()

	dataRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataRoot, "manifest.json"),
		[]byte(`{"format_version":"2.0.0","entities":{}}`), 0o644))
	cfgPath := writeConfig(t, dataRoot, "clitest/format-dst", "journal:\n  driver: none\n")

	_, stderr, code := execute(t, "--config", cfgPath, "restore")
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "2.0.0")
}

func TestCheck(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, t.TempDir(), "clitest/unused", "")

	out, _, code := execute(t, "--config", cfgPath, "check", "--include", "issues=1-3")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "1-3")
	assert.Contains(t, out, "disabled")

	out, _, code = execute(t, "--config", cfgPath, "--json", "check", "--include", "issues=false")
	require.Equal(t, 0, code)
	var report checkReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "disabled", report.Selections["issues"])
	assert.Equal(t, "enabled, nothing selected", report.Selections["comments"])
	assert.NotEmpty(t, report.Warnings)

	_, _, code = execute(t, "--config", cfgPath, "check", "--strict", "--include", "issues=false")
	assert.Equal(t, ExitConfigError, code)
}

func TestCheck_SavedInventory(t *testing.T) {
	t.Parallel()

	seedSource("clitest", "inventory-src")
	dataRoot := t.TempDir()
	cfgPath := writeConfig(t, dataRoot, "clitest/inventory-src", "journal:\n  driver: none\n")
	_, stderr, code := execute(t, "--config", cfgPath, "save")
	require.Equal(t, 0, code, stderr)

	out, _, code := execute(t, "--config", cfgPath, "--json", "check")
	require.Equal(t, 0, code)
	var report checkReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Saved["labels"])
	assert.Equal(t, 2, report.Saved["issues"])
	assert.Equal(t, 1, report.Saved["comments"])
	assert.NotContains(t, report.Saved, "pull_requests")
	assert.NotContains(t, report.Saved, "manifest")

	fresh := filepath.Join(t.TempDir(), "not-yet")
	out, _, code = execute(t, "--config", cfgPath, "--json", "check", "--data-root", fresh)
	require.Equal(t, 0, code)
	report = checkReport{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Empty(t, report.Saved)
	assert.NoDirExists(t, fresh)
}

func TestMissingDocuments(t *testing.T) {
	t.Parallel()

	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Write("labels", []hosting.Label{{Name: "bug"}}))
	require.NoError(t, store.WriteMap("issues", storage.NumberMap{1: 4}))

	got := missingDocuments(store, []string{"labels", "issues", "git_repository", "comments"})
	assert.Equal(t, []string{"issues", "comments"}, got)
}

func TestCheck_Sample(t *testing.T) {
	t.Parallel()

	out, _, code := execute(t, "check", "--sample")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "data_root:")
	assert.Contains(t, out, "git_repository:")
}

func TestEntities(t *testing.T) {
	t.Parallel()

	out, _, code := execute(t, "--json", "entities")
	require.Equal(t, 0, code)
	var infos []entityInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 8)

	pos := map[string]int{}
	for i, e := range infos {
		pos[e.Name] = i
	}
	assert.Less(t, pos["labels"], pos["issues"])
	assert.Less(t, pos["issues"], pos["comments"])
	assert.Less(t, pos["git_repository"], pos["releases"])
	assert.Less(t, pos["pull_requests"], pos["pr_comments"])

	out, _, code = execute(t, "entities")
	require.Equal(t, 0, code)
	assert.Contains(t, strings.ToLower(out), "depends on")
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, _, code := execute(t, "version")
	require.Equal(t, 0, code)
	assert.Contains(t, out, Version)
	assert.Contains(t, out, storage.FormatVersion)
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitConfigError, ExitCode(rverrors.ErrSelectionInvalid("issues", "x", "bad")))
	assert.Equal(t, ExitFailure, ExitCode(fmt.Errorf("boom")))
}

func TestPrintError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := rverrors.ErrServiceMissing("labels", "api_service").WithCause(fmt.Errorf("root cause"))
	PrintError(&buf, err, true)
	assert.Contains(t, buf.String(), "Code: SERVICE_MISSING")
	assert.Contains(t, buf.String(), "root cause")

	buf.Reset()
	PrintError(&buf, fmt.Errorf("plain"), false)
	assert.Equal(t, "Error: plain\n", buf.String())
}

// mirrorVCS writes a bare-repository skeleton on clone and records pushes.
type mirrorVCS struct {
	pushed []string
}

func (m *mirrorVCS) Clone(_ context.Context, _ string, _ git.Auth, dest string) error {
	for _, d := range []string{"objects", "refs"} {
		if err := os.MkdirAll(filepath.Join(dest, d), 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(dest, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644)
}

func (m *mirrorVCS) Push(_ context.Context, _ string, url string, _ git.Auth) error {
	m.pushed = append(m.pushed, url)
	return nil
}

func (m *mirrorVCS) Tags(context.Context, string) ([]string, error) { return []string{"v1.0.0"}, nil }

func TestPipeline_GitRepository(t *testing.T) {
	t.Parallel()

	seedSource("clitest", "git-src")
	dataRoot := t.TempDir()
	cfg := config.Default()
	cfg.Repository = hosting.Config{Provider: "memory", Repository: hosting.MemoryScheme + "clitest/git-src"}
	cfg.DataRoot = dataRoot
	cfg.Journal.Driver = "none"
	cfg.Include = map[string]string{"issues": "false", "pull_requests": "false"}
	cfg.Metrics.Textfile = filepath.Join(dataRoot, "repovault.prom")

	vcs := &mirrorVCS{}
	p := &pipeline{cfg: cfg, logger: newLogger(&bytes.Buffer{}, cfg.Log), vcs: vcs}

	saved, err := p.run(context.Background(), entity.OpSave)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StateSucceeded, saved.Entity("git_repository").Status)
	assert.Equal(t, orchestrator.StateSucceeded, saved.Entity("releases").Status)

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "repovault_runs_total")

	cfg.Repository.Repository = hosting.MemoryScheme + "clitest/git-dst"
	restored, err := p.run(context.Background(), entity.OpRestore)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.RunSuccess, restored.Status)
	assert.Equal(t, []string{hosting.MemoryScheme + "clitest/git-dst"}, vcs.pushed)
}
