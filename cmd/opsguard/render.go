package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/danshapiro/opsguard/internal/remediation/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Width(20)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	statusSuccess = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	statusFailed  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	statusInfra   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	statusOther   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
)

func styleStatus(s runtime.Status) string {
	text := string(s)
	if text == "" {
		text = "UNKNOWN"
	}
	switch s {
	case runtime.StatusSuccess:
		return statusSuccess.Render(text)
	case runtime.StatusFailed:
		return statusFailed.Render(text)
	case runtime.StatusInfraStop:
		return statusInfra.Render(text)
	default:
		return statusOther.Render(text)
	}
}

type row struct {
	label string
	value string
}

// renderBlock draws a titled box of label/value rows. Rows with an empty
// value are skipped.
func renderBlock(title string, rows []row) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	for _, r := range rows {
		if r.value == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(r.label))
		b.WriteString(r.value)
	}
	return boxStyle.Render(b.String()) + "\n"
}

func reportRows(rep *runtime.Report) []row {
	rows := []row{
		{"status", styleStatus(rep.Status)},
		{"run id", rep.RunID},
		{"error kind", string(rep.ErrorKind)},
		{"entry file", rep.EntryFile},
		{"reproduce attempts", fmt.Sprint(rep.ReproduceAttempts)},
		{"fix attempts", fmt.Sprint(rep.FixAttempts)},
		{"provider", rep.Provider},
		{"reason", rep.FailureReason},
	}
	if rep.PatchDiffSummary != nil {
		rows = append(rows, row{"impact", fmt.Sprintf("+%d / -%d lines in %d region(s)",
			rep.PatchDiffSummary.LinesAdded, rep.PatchDiffSummary.LinesRemoved, len(rep.ChangedRegions))})
	}
	rows = append(rows,
		row{"report", rep.Artifacts.Report},
		row{"summary", rep.Artifacts.Summary},
	)
	return rows
}
