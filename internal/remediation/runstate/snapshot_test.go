package runstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danshapiro/opsguard/internal/remediation/runtime"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func saveReport(t *testing.T, dir string, status runtime.Status) {
	t.Helper()
	rep := &runtime.Report{
		RunID:             filepath.Base(dir),
		Timestamp:         time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		Status:            status,
		ErrorKind:         runtime.CodeDefect,
		TargetPath:        "/src/app",
		EntryFile:         "app.py",
		VerificationMode:  runtime.ModeSingleScript,
		WorkspacePath:     "/tmp/opsguard-ws-1",
		FixAttempts:       3,
		FailureReason:     "fix verification failed: AssertionError",
		ReproduceAttempts: 0,
	}
	if err := rep.Save(filepath.Join(dir, reportFile)); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestLoadSnapshot_FinishedRunFromReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "01JAAAAAAAAAAAAAAAAAAAAAAA")
	saveReport(t, dir, runtime.StatusFailed)
	writeFile(t, filepath.Join(dir, logFile), `{"level":"info","ts":"2026-10-17T00:00:01.000Z","msg":"final report written","step":"final_report"}`+"\n")

	for _, p := range []string{dir, filepath.Join(dir, reportFile)} {
		s, err := LoadSnapshot(p)
		if err != nil {
			t.Fatalf("LoadSnapshot(%s): %v", p, err)
		}
		if s.State != StateFinished || s.Status != runtime.StatusFailed || s.FixAttempts != 3 {
			t.Fatalf("snapshot=%+v", s)
		}
		if s.FailureReason != "fix verification failed: AssertionError" || s.LastStep != "final_report" {
			t.Fatalf("snapshot=%+v", s)
		}
		if !s.LastEventAt.Equal(time.Date(2026, 10, 17, 0, 0, 1, 0, time.UTC)) {
			t.Fatalf("last event at=%v", s.LastEventAt)
		}
	}
}

func TestLoadSnapshot_ArtifactsRootPicksLatestRun(t *testing.T) {
	root := t.TempDir()
	saveReport(t, filepath.Join(root, "01JAAAAAAAAAAAAAAAAAAAAAAA"), runtime.StatusFailed)
	saveReport(t, filepath.Join(root, "01JBBBBBBBBBBBBBBBBBBBBBBB"), runtime.StatusSuccess)
	if err := os.MkdirAll(filepath.Join(root, "not-a-run"), 0o755); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSnapshot(root)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if s.RunID != "01JBBBBBBBBBBBBBBBBBBBBBBB" || s.Status != runtime.StatusSuccess {
		t.Fatalf("snapshot=%+v", s)
	}
}

func TestLoadSnapshot_RunningFromLogOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "01JCCCCCCCCCCCCCCCCCCCCCCC")
	writeFile(t, filepath.Join(dir, logFile),
		`{"level":"info","ts":"2026-10-17T00:00:00.000Z","msg":"run started"}`+"\n"+
			`{"level":"info","ts":"2026-10-17T00:00:02.500Z","msg":"patch generated","step":"generate_patch"}`+"\n")
	s, err := LoadSnapshot(dir)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if s.State != StateRunning || s.Status != "" || s.LastEvent != "patch generated" || s.LastStep != "generate_patch" {
		t.Fatalf("snapshot=%+v", s)
	}
}

func TestLoadSnapshot_Errors(t *testing.T) {
	if _, err := LoadSnapshot(" "); err == nil {
		t.Fatalf("expected error for blank path")
	}
	if _, err := LoadSnapshot(t.TempDir()); err == nil {
		t.Fatalf("expected error for a directory without runs")
	}
	dir := filepath.Join(t.TempDir(), "run")
	writeFile(t, filepath.Join(dir, logFile), "not json\n")
	if _, err := LoadSnapshot(dir); err == nil {
		t.Fatalf("expected decode error for a corrupt log without a report")
	}
}
