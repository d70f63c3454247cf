package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/repovault/internal/catalog"
	"github.com/randalmurphal/repovault/internal/config"
	"github.com/randalmurphal/repovault/internal/selection"
	"github.com/randalmurphal/repovault/internal/storage"
)

type checkReport struct {
	ConfigFile string            `json:"config_file,omitempty"`
	DataRoot   string            `json:"data_root"`
	Enabled    []string          `json:"enabled"`
	Selections map[string]string `json:"selections"`
	Warnings   []string          `json:"warnings"`
	// Saved counts the items in each saved entity document.
	Saved map[string]int `json:"saved"`
}

func newCheckCmd(g *globals) *cobra.Command {
	f := &runFlags{}
	var sample bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and entity selection without calling the API",
		Long: `Check loads the configuration, validates it, and resolves every entity's
selection exactly as save and restore would, printing coupling warnings.
No network calls are made.

Use --sample to print a starting repovault.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if sample {
				data, err := config.Sample(entityNames())
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}

			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if err := f.apply(cfg); err != nil {
				return err
			}
			_, res, err := resolve(cfg, newLogger(cmd.ErrOrStderr(), cfg.Log))
			if err != nil {
				return err
			}

			report := checkReport{
				ConfigFile: configFileUsed(g),
				DataRoot:   cfg.DataRoot,
				Enabled:    res.Enabled(),
				Selections: map[string]string{},
				Warnings:   []string{},
				Saved:      map[string]int{},
			}
			saved, err := savedInventory(cfg.DataRoot)
			if err != nil {
				return err
			}
			for _, e := range saved {
				report.Saved[e.Entity] = e.Items
			}
			for name, en := range res.Enablements {
				report.Selections[name] = describeEnablement(en)
			}
			for _, w := range res.Warnings {
				report.Warnings = append(report.Warnings, w.String())
			}

			if g.jsonOut {
				return writeJSON(out, report)
			}
			if report.ConfigFile != "" {
				g.infof(out, "Config: %s\n", report.ConfigFile)
			}
			g.infof(out, "Data root: %s\n\n", report.DataRoot)
			tw := newTable(out, "Entity", "Selection", "Saved")
			for _, name := range entityNames() {
				count := "-"
				if n, ok := report.Saved[name]; ok {
					count = strconv.Itoa(n)
				}
				tw.Append([]string{name, report.Selections[name], count})
			}
			tw.Render()
			if len(res.Warnings) > 0 {
				fmt.Fprintln(out)
				renderWarnings(out, res.Warnings)
			}
			return nil
		},
	}
	f.register(cmd, "check")
	cmd.Flags().BoolVar(&sample, "sample", false, "print a sample config file and exit")
	return cmd
}

func entityNames() []string {
	var names []string
	for _, d := range catalog.All() {
		names = append(names, d.Name())
	}
	return names
}

// savedInventory lists the documents already saved under dataRoot. A data
// root that does not exist yet has nothing saved and is not created.
func savedInventory(dataRoot string) ([]storage.InventoryEntry, error) {
	if _, err := os.Stat(dataRoot); os.IsNotExist(err) {
		return nil, nil
	}
	store, err := storage.Open(dataRoot)
	if err != nil {
		return nil, err
	}
	return store.Inventory()
}

func configFileUsed(g *globals) string {
	if g.cfgFile != "" {
		return g.cfgFile
	}
	return config.ConfigFileUsed()
}

func describeEnablement(en selection.Enablement) string {
	switch {
	case !en.Enabled:
		return "disabled"
	case en.Empty():
		return "enabled, nothing selected"
	case en.Parent != "" && !en.ParentScope.IsAll():
		return fmt.Sprintf("%s within %s %s", en.Selection, en.Parent, en.ParentScope)
	default:
		return en.Selection.String()
	}
}
