package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"github.com/randalmurphal/repovault/internal/orchestrator"
	"github.com/randalmurphal/repovault/internal/selection"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

// styled reports whether w is a terminal that should get colors.
func styled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func paint(on bool, style lipgloss.Style, s string) string {
	if !on {
		return s
	}
	return style.Render(s)
}

func stateText(on bool, s orchestrator.State) string {
	switch s {
	case orchestrator.StateSucceeded:
		return paint(on, okStyle, string(s))
	case orchestrator.StateFailed:
		return paint(on, failStyle, string(s))
	case orchestrator.StateSkipped:
		return paint(on, skipStyle, string(s))
	default:
		return string(s)
	}
}

func statusText(on bool, s orchestrator.RunStatus) string {
	switch s {
	case orchestrator.RunSuccess:
		return paint(on, okStyle, string(s))
	case orchestrator.RunFailure:
		return paint(on, failStyle, string(s))
	default:
		return paint(on, skipStyle, string(s))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetAutoWrapText(false)
	tw.SetBorder(false)
	tw.SetHeaderLine(true)
	tw.SetColumnSeparator("")
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	return tw
}

// renderRun prints a run as a per-entity table followed by a summary line.
func renderRun(w io.Writer, run *orchestrator.RunResult) {
	on := styled(w)

	tw := newTable(w, "Entity", "Status", "Items", "Skipped", "Overwritten", "Renamed", "Time", "Detail")
	for _, e := range run.Entities {
		detail := e.Error
		if detail == "" {
			detail = paint(on, dimStyle, e.Reason)
		}
		tw.Append([]string{
			e.Name,
			stateText(on, e.Status),
			strconv.Itoa(e.Items),
			strconv.Itoa(e.Skipped),
			strconv.Itoa(e.Overwritten),
			strconv.Itoa(e.Renamed),
			(time.Duration(e.DurationMS) * time.Millisecond).String(),
			detail,
		})
	}
	tw.Render()

	totals := run.Totals()
	fmt.Fprintf(w, "\n%s %s in %s: %d items, %d skipped, %d overwritten, %d renamed (run %s)\n",
		run.Operation, statusText(on, run.Status), run.Duration().Round(time.Millisecond),
		totals.Items, totals.Skipped, totals.Overwritten, totals.Renamed, run.ID)
}

// renderWarnings prints selection warnings, one per line.
func renderWarnings(w io.Writer, warnings []selection.Warning) {
	on := styled(w)
	for _, warn := range warnings {
		label := "warning"
		style := skipStyle
		if warn.Severity == selection.SeverityInfo {
			label, style = "info", dimStyle
		}
		fmt.Fprintf(w, "%s %s\n", paint(on, style, label+":"), warn)
	}
}
