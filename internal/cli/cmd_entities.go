package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/repovault/internal/catalog"
	"github.com/randalmurphal/repovault/internal/entity"
)

type entityInfo struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Dependencies []string `json:"dependencies"`
	Parent       string   `json:"parent,omitempty"`
	Default      string   `json:"default"`
	SaveNeeds    []string `json:"save_needs"`
	RestoreNeeds []string `json:"restore_needs"`
}

func newEntitiesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List entity types in run order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := catalog.NewRegistry(nil)
			if err != nil {
				return err
			}

			var infos []entityInfo
			for _, d := range reg.Ordered() {
				infos = append(infos, entityInfo{
					Name:         d.Name(),
					Type:         d.SelectionType().String(),
					Dependencies: nonNil(d.Dependencies()),
					Parent:       d.Parent(),
					Default:      d.DefaultSelection(),
					SaveNeeds:    serviceNames(d.RequiredServices(entity.OpSave)),
					RestoreNeeds: serviceNames(d.RequiredServices(entity.OpRestore)),
				})
			}

			out := cmd.OutOrStdout()
			if g.jsonOut {
				return writeJSON(out, infos)
			}
			tw := newTable(out, "Entity", "Type", "Depends on", "Parent", "Default", "Restore needs")
			for _, e := range infos {
				tw.Append([]string{e.Name, e.Type, dashIfEmpty(strings.Join(e.Dependencies, ", ")),
					dashIfEmpty(e.Parent), e.Default, strings.Join(e.RestoreNeeds, ", ")})
			}
			tw.Render()
			return nil
		},
	}
}

func serviceNames(svcs []entity.Service) []string {
	out := make([]string, len(svcs))
	for i, s := range svcs {
		out[i] = string(s)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
