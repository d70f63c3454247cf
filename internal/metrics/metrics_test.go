package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityFinished(t *testing.T) {
	t.Parallel()

	m := New()
	m.EntityFinished("save", "labels", "succeeded", 2*time.Second)
	m.EntityFinished("save", "labels", "succeeded", time.Second)
	m.EntityFinished("save", "issues", "failed", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.entityRuns.WithLabelValues("save", "labels", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.entityRuns.WithLabelValues("save", "issues", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.entityDuration), "zero durations are not observed")
}

func TestItems_IgnoresZero(t *testing.T) {
	t.Parallel()

	m := New()
	m.Items("restore", "labels", "processed", 3)
	m.Items("restore", "labels", "skipped", 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.items.WithLabelValues("restore", "labels", "processed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.items))
}

func TestRunFinished(t *testing.T) {
	t.Parallel()

	m := New()
	finished := time.Unix(1700000000, 0)
	m.RunFinished("save", "partial_failure", time.Minute, finished)
	assert.Equal(t, 0, testutil.CollectAndCount(m.lastSuccess))

	m.RunFinished("save", "success", time.Minute, finished)
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastSuccess.WithLabelValues("save")))

	expected := `
# HELP repovault_runs_total Save and restore runs by final status.
# TYPE repovault_runs_total counter
repovault_runs_total{operation="save",status="partial_failure"} 1
repovault_runs_total{operation="save",status="success"} 1
`
	require.NoError(t, testutil.CollectAndCompare(m.runs, strings.NewReader(expected)))
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	m := New()
	m.EntityFinished("restore", "releases", "skipped", 0)
	path := filepath.Join(t.TempDir(), "textfile", "repovault.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `repovault_entity_runs_total{entity="releases",operation="restore",status="skipped"} 1`)
}
