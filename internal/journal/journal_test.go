package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/repovault/internal/entity"
	"github.com/randalmurphal/repovault/internal/orchestrator"
	"github.com/randalmurphal/repovault/internal/selection"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "journal.db"), "acme/widgets")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func sampleRun(id string, started time.Time) *orchestrator.RunResult {
	return &orchestrator.RunResult{
		ID:         id,
		Operation:  entity.OpRestore,
		Status:     orchestrator.RunPartialFailure,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Entities: []*orchestrator.EntityResult{
			{Name: "labels", Status: orchestrator.StateSucceeded, Items: 4, Skipped: 1, DurationMS: 12},
			{Name: "issues", Status: orchestrator.StateFailed, Error: "create issue 3: boom", DurationMS: 40},
			{Name: "comments", Status: orchestrator.StateSkipped, Reason: "dependency issues failed"},
		},
	}
}

func TestRecordRun_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := openTest(t)
	started := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)

	require.NoError(t, j.RecordRun(ctx, sampleRun("run-1", started)))

	got, found, err := j.Get(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, "acme/widgets", got.Repository)
	assert.Equal(t, entity.OpRestore, got.Operation)
	assert.Equal(t, orchestrator.RunPartialFailure, got.Status)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Equal(t, 1500*time.Millisecond, got.Duration())

	require.Len(t, got.Entities, 3)
	assert.Equal(t, []string{"labels", "issues", "comments"},
		[]string{got.Entities[0].Name, got.Entities[1].Name, got.Entities[2].Name})
	assert.Equal(t, 4, got.Entity("labels").Items)
	assert.Equal(t, 1, got.Entity("labels").Skipped)
	assert.Equal(t, "create issue 3: boom", got.Entity("issues").Error)
	assert.Equal(t, orchestrator.StateSkipped, got.Entity("comments").Status)
	assert.Equal(t, "dependency issues failed", got.Entity("comments").Reason)
}

func TestRecordRun_ReplacesSameID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := openTest(t)
	run := sampleRun("run-1", time.Now().UTC())

	require.NoError(t, j.RecordRun(ctx, run))
	run.Status = orchestrator.RunSuccess
	run.Entities = run.Entities[:1]
	require.NoError(t, j.RecordRun(ctx, run))

	entries, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, orchestrator.RunSuccess, entries[0].Status)
	assert.Len(t, entries[0].Entities, 1)
}

func TestRecordRun_Nil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, openTest(t).RecordRun(context.Background(), nil))
}

func TestList_NewestFirstWithLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := openTest(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, j.RecordRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour))))
	}

	all, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)
	assert.Len(t, all[1].Entities, 3)

	limited, err := j.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, []string{"c", "b"}, []string{limited[0].ID, limited[1].ID})
}

func TestGet_Missing(t *testing.T) {
	t.Parallel()

	_, found, err := openTest(t).Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(ctx, "sqlite", path, "acme/widgets")
	require.NoError(t, err)
	require.NoError(t, j.RecordRun(ctx, sampleRun("kept", time.Now().UTC())))
	require.NoError(t, j.Close())

	j, err = Open(ctx, "sqlite", path, "acme/widgets")
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	_, found, err := j.Get(ctx, "kept")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestOpen_BadDialect(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "oracle", "x", "")
	assert.Error(t, err)
}

func TestJournal_AsRecorder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := openTest(t)

	reg := entity.NewRegistry()
	for _, name := range []string{"labels", "milestones"} {
		name := name
		require.NoError(t, reg.Register(&entity.Definition{
			EntityName: name, Type: selection.TypeBoolean, Default: "true",
			Save: func(*entity.StrategyContext) (entity.Strategy, error) {
				return entity.StrategyFunc{Name: name, Fn: func(context.Context) (entity.Outcome, error) {
					return entity.Outcome{Items: 2}, nil
				}}, nil
			},
		}))
	}
	res, err := selection.Resolver{}.Resolve(reg, nil)
	require.NoError(t, err)
	plan := entity.NewFactory(nil).BuildSave(reg, res, nil)

	run, err := orchestrator.New(orchestrator.WithRecorder(j)).Save(ctx, plan)
	require.NoError(t, err)

	got, found, err := j.Get(ctx, run.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entity.OpSave, got.Operation)
	assert.Equal(t, orchestrator.RunSuccess, got.Status)
	assert.Equal(t, 4, got.Totals().Items)
}
