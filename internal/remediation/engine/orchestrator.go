// Package engine runs one remediation: provision a workspace, reproduce the
// reported failure in a sandbox, ask the patch oracle for fixes and verify
// them, then report. The steps and the transitions between them are an
// explicit table (machine.go); step bodies live in steps.go.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/danshapiro/opsguard/internal/remediation/oracle"
	"github.com/danshapiro/opsguard/internal/remediation/runtime"
	"github.com/danshapiro/opsguard/internal/sandbox"
	"github.com/danshapiro/opsguard/internal/workspace"
)

// PatchOracle produces an accepted replacement for the entry file, or
// oracle.ErrExhausted.
type PatchOracle interface {
	Generate(ctx context.Context, req oracle.Request) (oracle.Result, error)
}

// Provisioner creates and destroys the private copy of the target.
type Provisioner interface {
	Provision(target string) (string, error)
	Cleanup(dir string) error
}

// DirProvisioner copies the target into a temporary directory.
type DirProvisioner struct {
	Options workspace.Options
}

func (p DirProvisioner) Provision(target string) (string, error) {
	return workspace.Provision(target, p.Options)
}

func (p DirProvisioner) Cleanup(dir string) error { return workspace.Cleanup(dir) }

type Options struct {
	// RunID is generated (ULID) when empty.
	RunID string

	EntryFile        string
	TestsDir         string
	VerificationMode runtime.VerificationMode

	// ArtifactsRoot receives <run_id>/...; empty disables artifact files.
	ArtifactsRoot string
	// MetricsTextfile, when set, receives the run metrics after the report.
	MetricsTextfile string

	Logger        *zap.Logger
	Executor      sandbox.Executor
	SyntaxChecker sandbox.SyntaxChecker
	Oracle        PatchOracle
	Provisioner   Provisioner
	Metrics       *Metrics

	Now func() time.Time
}

func (o *Options) applyDefaults() error {
	if o.RunID == "" {
		id, err := NewRunID()
		if err != nil {
			return err
		}
		o.RunID = id
	}
	o.EntryFile = firstNonEmpty(o.EntryFile, DefaultEntryFile)
	o.TestsDir = firstNonEmpty(o.TestsDir, DefaultTestsDir)
	if o.VerificationMode == "" {
		o.VerificationMode = runtime.ModeSingleScript
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Provisioner == nil {
		o.Provisioner = DirProvisioner{Options: workspace.Options{ExcludeGlobs: workspace.DefaultExcludeGlobs}}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return nil
}

func (o *Options) validate() error {
	if o.Executor == nil {
		return fmt.Errorf("sandbox executor is required")
	}
	if o.SyntaxChecker == nil {
		return fmt.Errorf("syntax checker is required")
	}
	if o.Oracle == nil {
		return fmt.Errorf("patch oracle is required")
	}
	if _, err := runtime.ParseVerificationMode(string(o.VerificationMode)); err != nil {
		return err
	}
	return nil
}

// Input is what the caller knows about the failure.
type Input struct {
	TargetPath string
	ErrorText  string
}

type Orchestrator struct {
	opts      Options
	logger    *zap.Logger
	artifacts ArtifactLayout
	started   time.Time
}

const maxSteps = 64

// Run drives one remediation to a terminal status. The returned state always
// has a terminal status unless err is non-nil, which only happens for faults
// outside the remediation itself (cancelled context, unwritable artifacts,
// broken invariants). The workspace is removed on every path.
func Run(ctx context.Context, in Input, opts Options) (st *RunState, err error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.TargetPath) == "" {
		return nil, fmt.Errorf("target path is required")
	}
	o := &Orchestrator{
		opts:      opts,
		logger:    opts.Logger.With(zap.String("run_id", opts.RunID)),
		artifacts: NewArtifactLayout(opts.ArtifactsRoot, opts.RunID),
		started:   opts.Now(),
	}
	st = newRunState(opts.RunID, in, opts)
	o.logger.Info("run started",
		zap.String("target", in.TargetPath),
		zap.String("entry_file", st.EntryFile),
		zap.String("verification_mode", string(st.VerificationMode)))

	defer func() {
		if st.WorkspacePath == "" {
			return
		}
		if cerr := o.opts.Provisioner.Cleanup(st.WorkspacePath); cerr != nil {
			o.logger.Warn("workspace cleanup failed", zap.String("workspace", st.WorkspacePath), zap.Error(cerr))
			return
		}
		o.logger.Info("workspace cleaned up", zap.String("workspace", st.WorkspacePath))
	}()

	step := StepProvisionWorkspace
	for i := 0; step != StepDone; i++ {
		if i >= maxSteps {
			return st, fmt.Errorf("run exceeded %d steps at %s", maxSteps, step)
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}
		st.Trace = append(st.Trace, step)
		if err := o.execute(ctx, step, st); err != nil {
			o.logger.Error("step failed", zap.String("step", string(step)), zap.Error(err))
			return st, fmt.Errorf("%s: %w", step, err)
		}
		step, err = next(step, st)
		if err != nil {
			return st, err
		}
	}
	o.logger.Info("run finished",
		zap.String("status", string(st.Status)),
		zap.Int("reproduce_attempts", st.ReproduceAttempts),
		zap.Int("fix_attempts", st.FixAttempts))
	return st, nil
}

func (o *Orchestrator) execute(ctx context.Context, step Step, s *RunState) error {
	switch step {
	case StepProvisionWorkspace:
		return o.provisionWorkspace(s)
	case StepClassify:
		return o.classify(s)
	case StepInfraStop:
		return o.infraStop(s)
	case StepGenerateReproduction:
		return o.generateReproduction(s)
	case StepExecuteReproduction:
		return o.executeReproduction(ctx, s)
	case StepReproductionDecision:
		return o.reproductionDecision(s)
	case StepNotReproducible:
		return o.notReproducible(s)
	case StepGeneratePatch:
		return o.generatePatch(ctx, s)
	case StepApplyPatch:
		return o.applyPatch(s)
	case StepSyntaxCheck:
		return o.syntaxCheck(ctx, s)
	case StepExecuteFixVerification:
		return o.executeFixVerification(ctx, s)
	case StepFixDecision:
		return o.fixDecision(s)
	case StepFailReport:
		return o.failReport(s)
	case StepFinalReport:
		return o.finalReport(s)
	default:
		return fmt.Errorf("unknown step %q", step)
	}
}

func (o *Orchestrator) event(step Step, msg string, fields ...zap.Field) {
	o.logger.Info(msg, append([]zap.Field{zap.String("step", string(step))}, fields...)...)
}
