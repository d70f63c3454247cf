// Package cli implements the repovault command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/repovault/internal/config"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	cfgFile   string
	verbose   bool
	quiet     bool
	jsonOut   bool
	logFormat string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "repovault",
		Short: "Back up and restore hosted repository metadata",
		Long: `repovault saves the labels, milestones, issues, comments, releases,
pull requests and git history of a GitHub or GitLab project to a directory,
and restores them into another project.

Quick start:
  repovault check                     Validate config and selection
  repovault save                      Save the configured repository
  repovault restore --repository o/r  Restore into another project
  repovault runs                      Show recent runs`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.cfgFile, "config", "", "config file (default is ./repovault.yaml or .repovault/repovault.yaml)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "suppress non-essential output")
	root.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "output as JSON")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "log format: text or json (default from config)")

	root.AddCommand(newSaveCmd(g))
	root.AddCommand(newRestoreCmd(g))
	root.AddCommand(newEntitiesCmd(g))
	root.AddCommand(newCheckCmd(g))
	root.AddCommand(newRunsCmd(g))
	root.AddCommand(newVersionCmd(g))
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, cancel := SetupSignalHandler()
	defer cancel()
	return run(ctx, newRootCmd(), os.Args[1:], os.Stderr)
}

func run(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		verbose, _ := root.PersistentFlags().GetBool("verbose")
		PrintError(stderr, err, verbose)
		return ExitCode(err)
	}
	return 0
}

// loadConfig reads configuration and applies the global flags on top.
func (g *globals) loadConfig() (*config.Config, error) {
	var opts []config.LoadOption
	if g.cfgFile != "" {
		opts = append(opts, config.WithFile(g.cfgFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if g.verbose {
		cfg.Log.Level = "debug"
	}
	if g.quiet {
		cfg.Log.Level = "error"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the slog logger for cfg, writing to w.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (g *globals) infof(w io.Writer, format string, args ...any) {
	if g.quiet || g.jsonOut {
		return
	}
	fmt.Fprintf(w, format, args...)
}
