package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/randalmurphal/repovault/internal/catalog"
	"github.com/randalmurphal/repovault/internal/config"
	"github.com/randalmurphal/repovault/internal/entity"
	"github.com/randalmurphal/repovault/internal/git"
	"github.com/randalmurphal/repovault/internal/hosting"
	"github.com/randalmurphal/repovault/internal/journal"
	"github.com/randalmurphal/repovault/internal/metrics"
	"github.com/randalmurphal/repovault/internal/orchestrator"
	"github.com/randalmurphal/repovault/internal/selection"
	"github.com/randalmurphal/repovault/internal/storage"
	"github.com/randalmurphal/repovault/internal/tracing"

	// Provider constructors register themselves with hosting.
	_ "github.com/randalmurphal/repovault/internal/hosting/github"
	_ "github.com/randalmurphal/repovault/internal/hosting/gitlab"
	_ "github.com/randalmurphal/repovault/internal/hosting/memory"
)

// pipeline wires config into a registry, a plan and an orchestrator for one
// save or restore.
type pipeline struct {
	cfg    *config.Config
	logger *slog.Logger
	// vcs replaces the git CLI mirror when set.
	vcs entity.VCS
	// workDir is where the origin remote is read when no repository is set.
	workDir string
}

// resolve builds the validated registry and the selection for cfg.
func resolve(cfg *config.Config, logger *slog.Logger) (*entity.Registry, *selection.Resolution, error) {
	reg, err := catalog.NewRegistry(logger)
	if err != nil {
		return nil, nil, err
	}
	res, err := selection.Resolver{Strict: cfg.StrictSelection}.Resolve(reg, cfg.Include, cfg.Overrides...)
	if err != nil {
		return nil, nil, err
	}
	return reg, res, nil
}

// run executes op end to end and returns the run result.
func (p *pipeline) run(ctx context.Context, op entity.Operation) (*orchestrator.RunResult, error) {
	cfg, logger := p.cfg, p.logger

	reg, res, err := resolve(cfg, logger)
	if err != nil {
		return nil, err
	}

	provider, err := hosting.NewProvider(ctx, p.workDir, cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("connect to hosting provider: %w", err)
	}
	if err := provider.CheckAuth(ctx); err != nil {
		return nil, fmt.Errorf("check %s credentials: %w", provider.Name(), err)
	}
	owner, repo := provider.OwnerRepo()
	repository := owner + "/" + repo
	logger = logger.With("repository", repository, "operation", op)

	store, err := storage.Open(cfg.DataRoot)
	if err != nil {
		return nil, err
	}
	if op == entity.OpRestore {
		if err := checkSavedData(store, res.Enabled(), logger); err != nil {
			return nil, err
		}
	}

	policy, err := cfg.ConflictPolicy()
	if err != nil {
		return nil, err
	}
	vcs := p.vcs
	if vcs == nil {
		vcs = git.NewMirror(nil)
	}
	sc := entity.NewStrategyContext(
		entity.WithAPI(provider),
		entity.WithVCS(vcs),
		entity.WithStore(store),
		entity.WithConflictPolicy(policy),
		entity.WithDataRoot(cfg.DataRoot),
		entity.WithLogger(logger),
	)

	plan := entity.NewFactory(logger).Build(op, reg, res, sc)
	for _, w := range plan.Warnings {
		logger.Warn("selection", "entity", w.Entity, "dependency", w.Dependency, "message", w.Message)
	}

	m := metrics.New()
	tracer, err := tracing.NewProvider(tracingConfig(cfg))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := tracer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("flush traces", "error", err)
		}
	}()

	opts := []orchestrator.Option{
		orchestrator.WithOptions(cfg.Run),
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(m),
		orchestrator.WithTracer(tracer.Tracer()),
	}
	if cfg.Journal.Driver != "none" {
		j, err := journal.Open(ctx, cfg.Journal.Driver, cfg.JournalDSN(), repository)
		if err != nil {
			return nil, err
		}
		defer func() { _ = j.Close() }()
		opts = append(opts, orchestrator.WithRecorder(j))
	}

	orch := orchestrator.New(opts...)
	var result *orchestrator.RunResult
	if op == entity.OpSave {
		result, err = orch.Save(ctx, plan)
	} else {
		result, err = orch.Restore(ctx, plan)
	}
	if result == nil {
		return nil, err
	}

	if op == entity.OpSave {
		stampManifest(store, result.ID, logger)
	}
	if cfg.Metrics.Textfile != "" {
		if werr := m.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			logger.Warn("write metrics textfile", "path", cfg.Metrics.Textfile, "error", werr)
		}
	}
	return result, err
}

// checkSavedData fails fast when the data root holds a manifest this build
// cannot restore. A missing manifest is allowed: entities with no saved
// document restore nothing, and each one is reported as a warning.
func checkSavedData(store *storage.Store, enabled []string, logger *slog.Logger) error {
	m, err := store.ReadManifest()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		logger.Warn("no manifest in data root", "path", store.Root())
	case err != nil:
		return err
	default:
		logger.Info("restoring saved data",
			"saved_from", m.Repository, "provider", m.Provider,
			"format_version", m.FormatVersion, "entities", len(m.Entities))
	}

	for _, name := range missingDocuments(store, enabled) {
		logger.Warn("no saved document, entity will restore nothing", "entity", name)
	}
	return nil
}

// missingDocuments returns the enabled entities without a saved document.
// The git mirror is a directory and is checked by its own strategy.
func missingDocuments(store *storage.Store, enabled []string) []string {
	saved, err := store.Matching("*")
	if err != nil {
		return nil
	}
	var missing []string
	for _, name := range enabled {
		if name != catalog.GitRepository && !slices.Contains(saved, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// stampManifest records the run ID of the save that last touched the data.
func stampManifest(store *storage.Store, runID string, logger *slog.Logger) {
	m, err := store.ReadManifest()
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("read manifest", "error", err)
		}
		return
	}
	m.RunID = runID
	m.ToolVersion = Version
	if err := store.WriteManifest(m); err != nil {
		logger.Warn("write manifest", "error", err)
	}
}

// tracingConfig defaults the file exporter's path into the data root.
func tracingConfig(cfg *config.Config) tracing.Config {
	tc := cfg.Tracing
	if tc.Exporter == "file" && tc.FilePath == "" {
		tc.FilePath = filepath.Join(cfg.DataRoot, "traces.jsonl")
	}
	return tc
}
