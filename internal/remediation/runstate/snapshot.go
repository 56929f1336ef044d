// Package runstate reads what a remediation run left on disk and reduces it
// to a compact snapshot for `opsguard status`.
package runstate

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/danshapiro/opsguard/internal/remediation/runtime"
)

const (
	reportFile = "final_report.json"
	logFile    = "run.log"
)

type State string

const (
	StateUnknown  State = "unknown"
	StateRunning  State = "running"
	StateFinished State = "finished"
)

type Snapshot struct {
	RunDir string
	RunID  string
	State  State

	// Status is set once the run has written its report.
	Status            runtime.Status
	ErrorKind         runtime.ErrorKind
	FailureReason     string
	ReproduceAttempts int
	FixAttempts       int
	ChangedRegions    int
	Report            *runtime.Report

	LastEvent   string
	LastStep    string
	LastEventAt time.Time
}

// LoadSnapshot accepts a run directory, a final_report.json path, or an
// artifacts root; for a root the most recent run (by run id) is used.
func LoadSnapshot(path string) (*Snapshot, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, fmt.Errorf("run path is required")
	}
	runDir, err := resolveRunDir(p)
	if err != nil {
		return nil, err
	}
	s := &Snapshot{
		RunDir: runDir,
		RunID:  filepath.Base(runDir),
		State:  StateUnknown,
	}
	if err := applyReport(s); err != nil {
		return nil, err
	}
	// The report is authoritative; the log only tells us how far a run got.
	if err := applyLastLogEvent(s); err != nil && s.State != StateFinished {
		return nil, err
	}
	if s.State == StateUnknown && s.LastEvent != "" {
		s.State = StateRunning
	}
	return s, nil
}

func resolveRunDir(p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return filepath.Dir(p), nil
	}
	if isRunDir(p) {
		return p, nil
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return "", err
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() && isRunDir(filepath.Join(p, e.Name())) {
			runs = append(runs, e.Name())
		}
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs found under %s", p)
	}
	// Run ids are ULIDs, so lexical order is creation order.
	sort.Strings(runs)
	return filepath.Join(p, runs[len(runs)-1]), nil
}

func isRunDir(dir string) bool {
	for _, name := range []string{reportFile, logFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

func applyReport(s *Snapshot) error {
	path := filepath.Join(s.RunDir, reportFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	rep, err := runtime.LoadReport(path)
	if err != nil {
		return err
	}
	if rid := strings.TrimSpace(rep.RunID); rid != "" {
		s.RunID = rid
	}
	s.Report = rep
	s.ErrorKind = rep.ErrorKind
	s.FailureReason = strings.TrimSpace(rep.FailureReason)
	s.ReproduceAttempts = rep.ReproduceAttempts
	s.FixAttempts = rep.FixAttempts
	s.ChangedRegions = len(rep.ChangedRegions)
	if st, err := runtime.ParseStatus(string(rep.Status)); err == nil && st.Terminal() {
		s.Status = st
		s.State = StateFinished
	}
	return nil
}

func applyLastLogEvent(s *Snapshot) error {
	ev, found, err := readLastLogEvent(filepath.Join(s.RunDir, logFile))
	if err != nil || !found {
		return err
	}
	s.LastEvent = eventString(ev["msg"])
	s.LastStep = eventString(ev["step"])
	if ts := parseEventTime(ev["ts"]); !ts.IsZero() {
		s.LastEventAt = ts
	}
	return nil
}

func readLastLogEvent(path string) (map[string]any, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	last := ""
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return nil, false, err
	}
	if last == "" {
		return nil, false, nil
	}

	var ev map[string]any
	if err := json.Unmarshal([]byte(last), &ev); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", path, err)
	}
	return ev, true, nil
}

func eventString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// zap's ISO8601 encoder writes millisecond precision and a numeric zone.
const zapISO8601 = "2006-01-02T15:04:05.000Z0700"

func parseEventTime(v any) time.Time {
	raw := eventString(v)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, zapISO8601} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}
