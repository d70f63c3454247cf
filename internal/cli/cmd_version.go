package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/repovault/internal/storage"
)

// Set at build time with -ldflags "-X .../internal/cli.Version=...".
var (
	Version = "0.1.0-dev"
	Commit  = ""
)

func newVersionCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show repovault version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if g.jsonOut {
				return json.NewEncoder(out).Encode(map[string]string{
					"version":        Version,
					"commit":         Commit,
					"format_version": storage.FormatVersion,
				})
			}
			if Commit != "" {
				fmt.Fprintf(out, "repovault version %s (%s), data format %s\n", Version, Commit, storage.FormatVersion)
				return nil
			}
			fmt.Fprintf(out, "repovault version %s, data format %s\n", Version, storage.FormatVersion)
			return nil
		},
	}
}
