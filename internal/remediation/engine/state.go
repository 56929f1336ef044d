package engine

import (
	"fmt"

	"github.com/danshapiro/opsguard/internal/remediation/changeset"
	"github.com/danshapiro/opsguard/internal/remediation/runtime"
	"github.com/danshapiro/opsguard/internal/sandbox"
)

const (
	// MaxReproduceAttempts is the number of clean reproduction runs after
	// which the failure is declared not reproducible.
	MaxReproduceAttempts = 2
	// MaxFixAttempts bounds failed patch rounds.
	MaxFixAttempts = 3

	// ValidationFailureSentinel marks a fix-verification result that was
	// synthesized without running the sandbox. The attempt it stands for has
	// already been counted.
	ValidationFailureSentinel = "Patch generation failed validation"
)

type Step string

const (
	StepProvisionWorkspace     Step = "provision_workspace"
	StepClassify               Step = "classify"
	StepInfraStop              Step = "infra_stop"
	StepGenerateReproduction   Step = "generate_reproduction"
	StepExecuteReproduction    Step = "execute_reproduction"
	StepReproductionDecision   Step = "reproduction_decision"
	StepNotReproducible        Step = "not_reproducible"
	StepGeneratePatch          Step = "generate_patch"
	StepApplyPatch             Step = "apply_patch"
	StepSyntaxCheck            Step = "syntax_check"
	StepExecuteFixVerification Step = "execute_fix_verification"
	StepFixDecision            Step = "fix_decision"
	StepFailReport             Step = "fail_report"
	StepFinalReport            Step = "final_report"
	StepDone                   Step = "done"
)

// RunState is the single mutable record of one remediation run. Only
// orchestrator steps write to it.
type RunState struct {
	RunID string

	TargetPath string
	// ErrorText starts as the reported failure and is replaced by the stderr
	// of every reproduction run.
	ErrorText   string
	ErrorKind   runtime.ErrorKind
	ErrorReason string

	EntryFile        string
	TestsDir         string
	VerificationMode runtime.VerificationMode
	WorkspacePath    string
	LocalModules     []string

	ReproductionVerified bool
	ReproduceAttempts    int
	ReproductionCommand  sandbox.Command
	ReproductionResult   *sandbox.Result

	// FixAttempts only grows.
	FixAttempts int
	// PatchContent is nil before the first patch round and "" after a round
	// in which no acceptable patch was produced.
	PatchContent   *string
	PatchProvider  string
	PatchDiff      string
	ChangedRegions []changeset.Region

	syntaxFailed       bool
	VerificationResult *sandbox.Result
	FixVerified        bool

	Status        runtime.Status
	FailureReason string

	SourceRevision *runtime.SourceRevision
	Digests        map[string]string

	// Report is set by the final report step.
	Report *runtime.Report

	// Trace lists the steps executed, in order.
	Trace []Step
}

func newRunState(runID string, in Input, opts Options) *RunState {
	return &RunState{
		RunID:            runID,
		TargetPath:       in.TargetPath,
		ErrorText:        in.ErrorText,
		EntryFile:        opts.EntryFile,
		TestsDir:         opts.TestsDir,
		VerificationMode: opts.VerificationMode,
		Status:           runtime.StatusRunning,
		Digests:          map[string]string{},
	}
}

// terminate writes the terminal status. A run gets exactly one.
func (s *RunState) terminate(status runtime.Status) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	if s.Status.Terminal() {
		return fmt.Errorf("terminal status already set to %s (attempted %s)", s.Status, status)
	}
	s.Status = status
	return nil
}

func (s *RunState) patchApplied() bool {
	return s.PatchContent != nil && *s.PatchContent != ""
}
