package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactLayout names the files a run leaves behind under
// <root>/<run_id>/.
type ArtifactLayout struct {
	Dir string
}

func NewArtifactLayout(root, runID string) ArtifactLayout {
	if strings.TrimSpace(root) == "" {
		return ArtifactLayout{}
	}
	return ArtifactLayout{Dir: filepath.Join(root, runID)}
}

func (a ArtifactLayout) Enabled() bool { return a.Dir != "" }

func (a ArtifactLayout) ReportPath() string {
	return a.join("final_report.json")
}

func (a ArtifactLayout) SummaryPath() string {
	return a.join("presentation", "remediation_summary.txt")
}

func (a ArtifactLayout) PatchDiffPath() string {
	return a.join("internal", "patch.diff")
}

func (a ArtifactLayout) LatestPatchPath() string {
	return a.join("internal", "latest_patch.py")
}

func (a ArtifactLayout) LogPath() string {
	return a.join("run.log")
}

func (a ArtifactLayout) join(parts ...string) string {
	if !a.Enabled() {
		return ""
	}
	return filepath.Join(append([]string{a.Dir}, parts...)...)
}

// writePatch persists the applied patch and its diff.
func (a ArtifactLayout) writePatch(diff, content string) error {
	if !a.Enabled() {
		return nil
	}
	if err := writeArtifact(a.PatchDiffPath(), diff); err != nil {
		return err
	}
	return writeArtifact(a.LatestPatchPath(), content)
}

func writeArtifact(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
