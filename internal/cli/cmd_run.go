package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/repovault/internal/config"
	"github.com/randalmurphal/repovault/internal/entity"
)

// runFlags are the selection and target flags shared by save and restore.
type runFlags struct {
	include    map[string]string
	overrides  []string
	dataRoot   string
	repository string
	provider   string
	strict     bool
	conflict   string
	critical   []string
	stopFirst  bool
	skipDeps   bool
}

func (f *runFlags) register(cmd *cobra.Command, op entity.Operation) {
	fl := cmd.Flags()
	fl.StringToStringVarP(&f.include, "include", "i", nil, `entity selection, e.g. --include issues="1-10 20" --include releases=false`)
	fl.StringSliceVar(&f.overrides, "override", nil, "child entities whose selection ignores their parent")
	fl.StringVarP(&f.dataRoot, "data-root", "d", "", "directory holding saved entities")
	fl.StringVarP(&f.repository, "repository", "r", "", "owner/repo or remote URL (default: config, then origin remote)")
	fl.StringVar(&f.provider, "provider", "", "hosting provider: github, gitlab, memory or auto")
	fl.BoolVar(&f.strict, "strict", false, "fail when a child entity's parent is disabled")
	fl.StringSliceVar(&f.critical, "critical", nil, "entities whose failure aborts the run")
	fl.BoolVar(&f.stopFirst, "stop-on-failure", false, "abort the run at the first failed entity")
	fl.BoolVar(&f.skipDeps, "skip-dependents", false, "skip entities whose dependencies failed")
	if op == entity.OpRestore {
		fl.StringVar(&f.conflict, "conflict", "", "collision mode: skip, overwrite, rename or fail")
	}
}

// apply layers the flags over cfg and revalidates.
func (f *runFlags) apply(cfg *config.Config) error {
	for name, spec := range f.include {
		cfg.Include[strings.ToLower(name)] = spec
	}
	cfg.Overrides = append(cfg.Overrides, f.overrides...)
	if f.dataRoot != "" {
		cfg.DataRoot = f.dataRoot
	}
	if f.repository != "" {
		cfg.Repository.Repository = f.repository
	}
	if f.provider != "" {
		cfg.Repository.Provider = f.provider
	}
	if f.strict {
		cfg.StrictSelection = true
	}
	if f.conflict != "" {
		cfg.Conflict.Mode = f.conflict
	}
	cfg.Run.Critical = append(cfg.Run.Critical, f.critical...)
	if f.stopFirst {
		cfg.Run.StopOnFirstFailure = true
	}
	if f.skipDeps {
		cfg.Run.SkipDependentsOnFailure = true
	}
	return cfg.Validate()
}

func newSaveCmd(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save repository metadata to the data root",
		Long: `Save fetches every enabled entity from the hosting provider and writes
it beneath the data root, together with a manifest and a bare mirror of the
git repository.

Examples:
  repovault save
  repovault save --include issues="1-100" --include pull_requests=false
  INCLUDE_ISSUES="5 7-9" repovault save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, g, f, entity.OpSave)
		},
	}
	f.register(cmd, entity.OpSave)
	return cmd
}

func newRestoreCmd(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore saved metadata into a repository",
		Long: `Restore replays saved entities into the target repository in dependency
order. Issues and pull requests are created in ascending number order and
comments are attached to the new numbers.

Examples:
  repovault restore --repository acme/widgets-copy
  repovault restore --conflict overwrite --include labels=true --include issues=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, g, f, entity.OpRestore)
		},
	}
	f.register(cmd, entity.OpRestore)
	return cmd
}

func runOperation(cmd *cobra.Command, g *globals, f *runFlags, op entity.Operation) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if err := f.apply(cfg); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log)
	wd, _ := os.Getwd()
	p := &pipeline{cfg: cfg, logger: logger, workDir: wd}

	result, runErr := p.run(cmd.Context(), op)
	if result == nil {
		return runErr
	}
	if g.jsonOut {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else if !g.quiet {
		renderRun(out, result)
	}
	if runErr != nil {
		return runErr
	}
	if result.Failed() {
		return &RunFailedError{Run: result}
	}
	return nil
}
