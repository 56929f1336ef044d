package runtime

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/danshapiro/opsguard/internal/remediation/changeset"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed report.schema.json
var reportSchemaJSON string

var (
	reportSchemaOnce sync.Once
	reportSchema     *jsonschema.Schema
	reportSchemaErr  error
)

func compiledReportSchema() (*jsonschema.Schema, error) {
	reportSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("report.schema.json", strings.NewReader(reportSchemaJSON)); err != nil {
			reportSchemaErr = err
			return
		}
		reportSchema, reportSchemaErr = c.Compile("report.schema.json")
	})
	return reportSchema, reportSchemaErr
}

// SourceRevision identifies the commit the target was copied from, when the
// target is a git checkout.
type SourceRevision struct {
	Commit string `json:"commit"`
	Branch string `json:"branch,omitempty"`
}

// ArtifactPaths lists the files written for a run. Empty entries were not
// produced.
type ArtifactPaths struct {
	Report      string `json:"report,omitempty"`
	Summary     string `json:"summary,omitempty"`
	PatchDiff   string `json:"patch_diff,omitempty"`
	LatestPatch string `json:"latest_patch,omitempty"`
	Log         string `json:"log,omitempty"`
}

// Report is the machine-readable record of a finished run.
type Report struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`

	Status      Status    `json:"status"`
	ErrorKind   ErrorKind `json:"error_kind"`
	ErrorReason string    `json:"error_reason,omitempty"`

	TargetPath       string           `json:"target_path"`
	EntryFile        string           `json:"entry_file"`
	VerificationMode VerificationMode `json:"verification_mode"`
	WorkspacePath    string           `json:"workspace_path"`

	ReproduceAttempts    int  `json:"reproduce_attempts"`
	FixAttempts          int  `json:"fix_attempts"`
	ReproductionVerified bool `json:"reproduction_verified"`
	FixVerified          bool `json:"fix_verified"`

	// PatchDiffSummary is nil when no patch was applied.
	PatchDiffSummary *changeset.Summary `json:"patch_diff_summary"`
	PatchDiff        string             `json:"patch_diff"`
	ChangedRegions   []changeset.Region `json:"changed_regions"`

	Provider       string            `json:"provider,omitempty"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	SourceRevision *SourceRevision   `json:"source_revision,omitempty"`
	Digests        map[string]string `json:"digests,omitempty"`

	Artifacts ArtifactPaths `json:"artifacts"`
}

// Validate checks the report against the embedded report schema.
func (r *Report) Validate() error {
	if r == nil {
		return fmt.Errorf("report is nil")
	}
	sch, err := compiledReportSchema()
	if err != nil {
		return fmt.Errorf("compile report schema: %w", err)
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("report does not match schema: %w", err)
	}
	return nil
}

func (r *Report) Save(path string) error {
	if r == nil {
		return fmt.Errorf("report is nil")
	}
	if r.ChangedRegions == nil {
		r.ChangedRegions = []changeset.Region{}
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func LoadReport(path string) (*Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &r, nil
}
