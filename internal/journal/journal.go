// Package journal persists finished save and restore runs so they can be
// listed later with "repovault runs".
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/repovault/internal/db/driver"
	"github.com/randalmurphal/repovault/internal/entity"
	"github.com/randalmurphal/repovault/internal/orchestrator"
)

//go:embed schema
var schemaFS embed.FS

// timeLayout is fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is a recorded run plus the repository it ran against.
type Entry struct {
	Repository string `json:"repository"`
	*orchestrator.RunResult
}

// Journal records runs into a SQLite or PostgreSQL database.
type Journal struct {
	drv        driver.Driver
	repository string
}

var _ orchestrator.Recorder = (*Journal)(nil)

// Open opens dsn with the named dialect and applies the journal schema.
// repository labels every run recorded through the returned journal.
func Open(ctx context.Context, dialect, dsn, repository string) (*Journal, error) {
	drv, err := driver.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j, err := New(ctx, drv, repository)
	if err != nil {
		_ = drv.Close()
		return nil, err
	}
	return j, nil
}

// New wraps an open driver and applies the journal schema.
func New(ctx context.Context, drv driver.Driver, repository string) (*Journal, error) {
	if err := drv.Migrate(ctx, schemaFS, "journal"); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{drv: drv, repository: repository}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.drv.Close()
}

// RecordRun stores run and its entity results in one transaction.
// Recording the same run ID twice replaces the earlier record.
func (j *Journal) RecordRun(ctx context.Context, run *orchestrator.RunResult) error {
	if run == nil {
		return nil
	}
	p := j.drv.Placeholder

	tx, err := j.drv.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(ctx, "DELETE FROM run_entities WHERE run_id = "+p(1), run.ID); err != nil {
		return fmt.Errorf("clear run %s: %w", run.ID, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM runs WHERE id = "+p(1), run.ID); err != nil {
		return fmt.Errorf("clear run %s: %w", run.ID, err)
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO runs (id, repository, operation, status, started_at, finished_at)
		VALUES (%s)`, driver.Placeholders(j.drv, 6)),
		run.ID, j.repository, string(run.Operation), string(run.Status),
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	insertEntity := fmt.Sprintf(`
		INSERT INTO run_entities (run_id, position, name, status, error, reason, items, skipped, overwritten, renamed, duration_ms)
		VALUES (%s)`, driver.Placeholders(j.drv, 11))
	for i, e := range run.Entities {
		_, err := tx.Exec(ctx, insertEntity,
			run.ID, i, e.Name, string(e.Status), e.Error, e.Reason,
			e.Items, e.Skipped, e.Overwritten, e.Renamed, e.DurationMS)
		if err != nil {
			return fmt.Errorf("insert entity %s for run %s: %w", e.Name, run.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// List returns the most recent runs, newest first. limit <= 0 means no limit.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	query := "SELECT id, repository, operation, status, started_at, finished_at FROM runs ORDER BY started_at DESC, id"
	var args []any
	if limit > 0 {
		query += " LIMIT " + j.drv.Placeholder(1)
		args = append(args, limit)
	}

	rows, err := j.drv.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			op, status        string
			started, finished string
		)
		e.RunResult = &orchestrator.RunResult{}
		if err := rows.Scan(&e.ID, &e.Repository, &op, &status, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.Operation = entity.Operation(op)
		e.Status = orchestrator.RunStatus(status)
		if e.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at of run %s: %w", e.ID, err)
		}
		if e.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at of run %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	_ = rows.Close()

	for i := range entries {
		ents, err := j.entities(ctx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Entities = ents
	}
	return entries, nil
}

// Get returns one run by ID. found is false when no such run exists.
func (j *Journal) Get(ctx context.Context, id string) (Entry, bool, error) {
	var (
		e                 Entry
		op, status        string
		started, finished string
	)
	e.RunResult = &orchestrator.RunResult{ID: id}
	row := j.drv.QueryRow(ctx,
		"SELECT repository, operation, status, started_at, finished_at FROM runs WHERE id = "+j.drv.Placeholder(1), id)
	if err := row.Scan(&e.Repository, &op, &status, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("get run %s: %w", id, err)
	}
	e.Operation = entity.Operation(op)
	e.Status = orchestrator.RunStatus(status)
	var err error
	if e.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Entry{}, false, fmt.Errorf("parse started_at of run %s: %w", id, err)
	}
	if e.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return Entry{}, false, fmt.Errorf("parse finished_at of run %s: %w", id, err)
	}
	if e.Entities, err = j.entities(ctx, id); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (j *Journal) entities(ctx context.Context, runID string) ([]*orchestrator.EntityResult, error) {
	rows, err := j.drv.Query(ctx, `
		SELECT name, status, error, reason, items, skipped, overwritten, renamed, duration_ms
		FROM run_entities WHERE run_id = `+j.drv.Placeholder(1)+` ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list entities of run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*orchestrator.EntityResult
	for rows.Next() {
		var (
			r      orchestrator.EntityResult
			status string
		)
		if err := rows.Scan(&r.Name, &status, &r.Error, &r.Reason, &r.Items, &r.Skipped, &r.Overwritten, &r.Renamed, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("scan entity of run %s: %w", runID, err)
		}
		r.Status = orchestrator.State(status)
		out = append(out, &r)
	}
	return out, rows.Err()
}
