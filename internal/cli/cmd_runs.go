package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/repovault/internal/journal"
	"github.com/randalmurphal/repovault/internal/orchestrator"
)

func newRunsCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show recorded save and restore runs",
		Long: `Without arguments, runs lists the most recent runs from the journal.
With a run ID it prints that run's per-entity results.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Journal.Driver == "none" {
				return fmt.Errorf("the run journal is disabled (journal.driver: none)")
			}
			ctx := cmd.Context()
			j, err := journal.Open(ctx, cfg.Journal.Driver, cfg.JournalDSN(), "")
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				entry, found, err := j.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("run %s not found", args[0])
				}
				if g.jsonOut {
					return writeJSON(out, entry)
				}
				g.infof(out, "Repository: %s\n\n", entry.Repository)
				renderRun(out, entry.RunResult)
				return nil
			}

			entries, err := j.List(ctx, limit)
			if err != nil {
				return err
			}
			if g.jsonOut {
				if entries == nil {
					entries = []journal.Entry{}
				}
				return writeJSON(out, entries)
			}
			if len(entries) == 0 {
				g.infof(out, "No runs recorded.\n")
				return nil
			}
			on := styled(out)
			tw := newTable(out, "Run", "Operation", "Repository", "Status", "Started", "Duration", "Failed")
			for _, e := range entries {
				tw.Append([]string{
					e.ID,
					string(e.Operation),
					e.Repository,
					statusText(on, e.Status),
					e.StartedAt.Local().Format(time.DateTime),
					e.Duration().Round(time.Millisecond).String(),
					strconv.Itoa(e.Count(orchestrator.StateFailed)),
				})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to list (0 for all)")
	return cmd
}
