package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	summaryBanner = "===================================================="
	summaryRule   = "----------------------------------------------------"
)

// RenderSummary formats the report as the human-readable remediation
// summary: status block, impact, then BEFORE/AFTER for each changed region.
func RenderSummary(r *Report) string {
	var b strings.Builder
	b.WriteString(summaryBanner + "\n")
	b.WriteString("                OPSGUARD REMEDIATION REPORT\n")
	b.WriteString(summaryBanner + "\n\n")

	kind := string(r.ErrorKind)
	if kind == "" {
		kind = "Unknown"
	}
	fmt.Fprintf(&b, "STATUS        : %s\n", r.Status)
	fmt.Fprintf(&b, "ERROR KIND    : %s\n", kind)
	if r.PatchDiffSummary != nil {
		removed := r.PatchDiffSummary.LinesRemoved
		plural := "s"
		if removed == 1 {
			plural = ""
		}
		fmt.Fprintf(&b, "IMPACT        : +%d lines, -%d line%s\n", r.PatchDiffSummary.LinesAdded, removed, plural)
	}
	fmt.Fprintf(&b, "ATTEMPTS      : reproduce=%d fix=%d\n", r.ReproduceAttempts, r.FixAttempts)
	if r.FailureReason != "" {
		fmt.Fprintf(&b, "REASON        : %s\n", r.FailureReason)
	}

	b.WriteString("\n" + summaryRule + "\n")
	fmt.Fprintf(&b, "CHANGED FILE  : %s\n", r.EntryFile)
	b.WriteString(summaryRule + "\n\n")

	for _, region := range r.ChangedRegions {
		fmt.Fprintf(&b, "Change at Line %d\n", region.LineNumber)
		b.WriteString(summaryRule + "\n\n")
		b.WriteString("BEFORE\n")
		writeIndented(&b, region.Before)
		b.WriteString("\nAFTER\n")
		writeIndented(&b, region.After)
		b.WriteString("\n")
	}

	b.WriteString(summaryBanner + "\n")
	b.WriteString("Generated by OpsGuard\n")
	b.WriteString(summaryBanner + "\n")
	return b.String()
}

func writeIndented(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("    " + line + "\n")
	}
}

// SaveSummary writes RenderSummary(r) to path.
func SaveSummary(r *Report, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(RenderSummary(r)), 0o644)
}
