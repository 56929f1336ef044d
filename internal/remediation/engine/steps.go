package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/danshapiro/opsguard/internal/remediation/changeset"
	"github.com/danshapiro/opsguard/internal/remediation/classify"
	"github.com/danshapiro/opsguard/internal/remediation/oracle"
	"github.com/danshapiro/opsguard/internal/remediation/runtime"
	"github.com/danshapiro/opsguard/internal/sandbox"
	"github.com/danshapiro/opsguard/internal/workspace"
)

const (
	digestOriginalEntry = "original_entry"
	digestFinalEntry    = "final_entry"
	digestLatestPatch   = "latest_patch"
)

func (o *Orchestrator) entryPath(s *RunState) string {
	return filepath.Join(s.WorkspacePath, filepath.FromSlash(s.EntryFile))
}

// failInput ends the run on a problem with what the caller handed us.
func (o *Orchestrator) failInput(s *RunState, reason string) error {
	s.ErrorKind = runtime.CodeDefect
	s.FailureReason = reason
	o.logger.Warn("input rejected", zap.String("step", string(StepProvisionWorkspace)), zap.String("reason", reason))
	return s.terminate(runtime.StatusFailed)
}

func (o *Orchestrator) provisionWorkspace(s *RunState) error {
	ws, err := o.opts.Provisioner.Provision(s.TargetPath)
	if err != nil {
		return o.failInput(s, fmt.Sprintf("provision workspace: %v", err))
	}
	s.WorkspacePath = ws

	entry := o.entryPath(s)
	info, err := os.Stat(entry)
	if err != nil || info.IsDir() {
		return o.failInput(s, fmt.Sprintf("entry file %s not found in target", s.EntryFile))
	}
	if s.VerificationMode == runtime.ModeTestSuite {
		info, err := os.Stat(filepath.Join(ws, filepath.FromSlash(s.TestsDir)))
		if err != nil || !info.IsDir() {
			return o.failInput(s, fmt.Sprintf("test suite mode requires a %s/ directory in the target", s.TestsDir))
		}
	}

	if mods, err := workspace.LocalModules(filepath.Dir(entry)); err != nil {
		o.logger.Warn("list local modules", zap.Error(err))
	} else {
		s.LocalModules = mods
	}
	if d, err := workspace.DigestFile(entry); err == nil {
		s.Digests[digestOriginalEntry] = d
	}
	rev, err := workspace.SourceRevision(s.TargetPath)
	if err != nil {
		o.logger.Warn("read source revision", zap.Error(err))
	} else if rev != nil {
		s.SourceRevision = &runtime.SourceRevision{Commit: rev.Commit, Branch: rev.Branch}
	}

	o.event(StepProvisionWorkspace, "workspace ready",
		zap.String("workspace", ws),
		zap.Int("local_modules", len(s.LocalModules)))
	return nil
}

func (o *Orchestrator) classify(s *RunState) error {
	r := classify.Classify(s.ErrorText)
	s.ErrorKind = r.Kind
	s.ErrorReason = r.Reason
	o.event(StepClassify, "error classified",
		zap.String("error_kind", string(r.Kind)),
		zap.String("reason", r.Reason))
	return nil
}

func (o *Orchestrator) infraStop(s *RunState) error {
	if s.FailureReason == "" {
		s.FailureReason = s.ErrorReason
	}
	o.event(StepInfraStop, "infrastructure failure, stopping", zap.String("reason", s.ErrorReason))
	return s.terminate(runtime.StatusInfraStop)
}

func (o *Orchestrator) generateReproduction(s *RunState) error {
	s.ReproductionCommand = sandbox.Script(s.EntryFile)
	o.event(StepGenerateReproduction, "reproduction prepared",
		zap.String("command", s.ReproductionCommand.String()),
		zap.Int("attempt", s.ReproduceAttempts+1))
	return nil
}

// markLaunchFailure turns a sandbox that could not start into an
// infrastructure verdict. Other errors are returned as faults.
func (o *Orchestrator) markLaunchFailure(step Step, s *RunState, err error) error {
	if !sandbox.IsLaunchError(err) {
		return err
	}
	s.ErrorKind = runtime.InfraDefect
	s.ErrorReason = err.Error()
	o.logger.Warn("sandbox unavailable", zap.String("step", string(step)), zap.Error(err))
	return nil
}

func (o *Orchestrator) executeReproduction(ctx context.Context, s *RunState) error {
	res, err := o.opts.Executor.Run(ctx, s.WorkspacePath, s.ReproductionCommand)
	if err != nil {
		return o.markLaunchFailure(StepExecuteReproduction, s, err)
	}
	s.ReproductionResult = &res
	s.ErrorText = res.Stderr
	o.event(StepExecuteReproduction, "reproduction executed",
		zap.Int("exit_code", res.ExitCode),
		zap.Int("stderr_bytes", len(res.Stderr)))
	return nil
}

// reproductionDecision reclassifies on every attempt: the stderr of the
// latest run replaces the reported error text.
func (o *Orchestrator) reproductionDecision(s *RunState) error {
	res := s.ReproductionResult
	if res == nil {
		return fmt.Errorf("no reproduction result")
	}
	c := classify.Classify(res.Stderr)
	s.ErrorKind = c.Kind
	s.ErrorReason = c.Reason
	if c.Kind == runtime.NoError && res.ExitCode != 0 {
		s.ErrorKind = runtime.CodeDefect
		s.ErrorReason = fmt.Sprintf("reproduction exited with status %d", res.ExitCode)
	}

	if res.ExitCode == 0 {
		s.ReproduceAttempts++
		o.event(StepReproductionDecision, "failure not reproduced",
			zap.Int("reproduce_attempts", s.ReproduceAttempts),
			zap.String("error_kind", string(s.ErrorKind)))
		return nil
	}
	s.ReproductionVerified = true
	o.event(StepReproductionDecision, "failure reproduced",
		zap.Int("exit_code", res.ExitCode),
		zap.String("error_kind", string(s.ErrorKind)))
	return nil
}

func (o *Orchestrator) notReproducible(s *RunState) error {
	s.FailureReason = fmt.Sprintf("no failure observed in %d reproduction runs", s.ReproduceAttempts)
	o.event(StepNotReproducible, "issue could not be reproduced in sandbox",
		zap.Int("reproduce_attempts", s.ReproduceAttempts))
	return s.terminate(runtime.StatusNotReproducible)
}

func (o *Orchestrator) generatePatch(ctx context.Context, s *RunState) error {
	current, err := os.ReadFile(o.entryPath(s))
	if err != nil {
		return fmt.Errorf("read entry file: %w", err)
	}
	res, err := o.opts.Oracle.Generate(ctx, oracle.Request{
		EntryFile:    s.EntryFile,
		ErrorText:    s.ErrorText,
		Original:     string(current),
		LocalModules: s.LocalModules,
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if errors.Is(err, oracle.ErrCredentials) {
			s.ErrorKind = runtime.InfraDefect
			s.ErrorReason = fmt.Sprintf("patch providers unavailable: %v", err)
			o.logger.Warn("patch providers refused credentials",
				zap.String("step", string(StepGeneratePatch)),
				zap.Error(err))
			return nil
		}
		empty := ""
		s.PatchContent = &empty
		s.PatchProvider = ""
		s.FixAttempts++
		s.FailureReason = fmt.Sprintf("patch generation failed: %v", err)
		o.logger.Warn("no acceptable patch",
			zap.String("step", string(StepGeneratePatch)),
			zap.Int("oracle_attempts", res.Attempts),
			zap.Int("fix_attempts", s.FixAttempts),
			zap.Error(err))
		return nil
	}
	patch := res.Patch
	s.PatchContent = &patch
	s.PatchProvider = res.Provider
	o.event(StepGeneratePatch, "patch generated",
		zap.String("provider", res.Provider),
		zap.Int("oracle_attempts", res.Attempts),
		zap.Int("lines", len(changeset.SplitLines(patch))))
	return nil
}

func (o *Orchestrator) applyPatch(s *RunState) error {
	s.syntaxFailed = false
	s.VerificationResult = nil
	if !s.patchApplied() {
		s.PatchDiff = ""
		s.ChangedRegions = []changeset.Region{}
		o.event(StepApplyPatch, "no patch to apply")
		return nil
	}
	patch := *s.PatchContent
	entry := o.entryPath(s)
	info, err := os.Stat(entry)
	if err != nil {
		return err
	}
	current, err := os.ReadFile(entry)
	if err != nil {
		return err
	}
	diff, err := changeset.UnifiedDiff(string(current), patch, s.EntryFile)
	if err != nil {
		return fmt.Errorf("diff patch: %w", err)
	}
	if err := os.WriteFile(entry, []byte(patch), info.Mode().Perm()); err != nil {
		return fmt.Errorf("write patched entry file: %w", err)
	}
	s.PatchDiff = diff
	s.ChangedRegions = changeset.Regions(string(current), patch)
	s.Digests[digestLatestPatch] = workspace.Digest([]byte(patch))

	if err := o.artifacts.writePatch(diff, patch); err != nil {
		o.logger.Warn("persist patch artifacts", zap.Error(err))
	}
	sum := changeset.Summarize(diff)
	o.event(StepApplyPatch, "patch applied",
		zap.Int("lines_added", sum.LinesAdded),
		zap.Int("lines_removed", sum.LinesRemoved),
		zap.Int("regions", len(s.ChangedRegions)))
	return nil
}

func (o *Orchestrator) syntaxCheck(ctx context.Context, s *RunState) error {
	if !s.patchApplied() {
		return nil
	}
	res, err := o.opts.SyntaxChecker.CheckSyntax(ctx, s.WorkspacePath, s.EntryFile)
	if err != nil {
		return o.markLaunchFailure(StepSyntaxCheck, s, err)
	}
	if res.ExitCode != 0 {
		s.syntaxFailed = true
		s.FixAttempts++
		s.FailureReason = "patched file does not compile: " + lastLine(res.Stderr, res.Stdout)
		o.logger.Warn("syntax check failed",
			zap.String("step", string(StepSyntaxCheck)),
			zap.Int("fix_attempts", s.FixAttempts),
			zap.String("stderr", res.Stderr))
		return nil
	}
	o.event(StepSyntaxCheck, "syntax check passed")
	return nil
}

func (o *Orchestrator) executeFixVerification(ctx context.Context, s *RunState) error {
	var res sandbox.Result
	switch {
	case !s.patchApplied():
		res = sandbox.Result{ExitCode: 1, Stderr: ValidationFailureSentinel}
	case s.syntaxFailed:
		res = sandbox.Result{ExitCode: 1, Stderr: ValidationFailureSentinel + ": syntax check failed"}
	default:
		cmd := sandbox.Script(s.EntryFile)
		if s.VerificationMode == runtime.ModeTestSuite {
			cmd = sandbox.TestSuite()
		}
		out, err := o.opts.Executor.Run(ctx, s.WorkspacePath, cmd)
		if err != nil {
			return o.markLaunchFailure(StepExecuteFixVerification, s, err)
		}
		res = out
	}
	s.VerificationResult = &res
	o.event(StepExecuteFixVerification, "fix verification executed", zap.Int("exit_code", res.ExitCode))
	return nil
}

func (o *Orchestrator) fixDecision(s *RunState) error {
	res := s.VerificationResult
	if res == nil {
		return fmt.Errorf("no verification result")
	}
	if strings.HasPrefix(res.Stderr, ValidationFailureSentinel) {
		o.event(StepFixDecision, "attempt already counted",
			zap.Int("fix_attempts", s.FixAttempts))
		return nil
	}
	if res.ExitCode == 0 {
		s.FixVerified = true
		s.FailureReason = ""
		o.event(StepFixDecision, "fix verified",
			zap.Int("fix_attempts", s.FixAttempts))
		return s.terminate(runtime.StatusSuccess)
	}
	s.FixAttempts++
	s.FailureReason = "fix verification failed: " + lastLine(res.Stderr, res.Stdout)
	o.event(StepFixDecision, "fix failed",
		zap.Int("exit_code", res.ExitCode),
		zap.Int("fix_attempts", s.FixAttempts))
	return nil
}

func (o *Orchestrator) failReport(s *RunState) error {
	if s.FailureReason == "" {
		s.FailureReason = "retries exhausted"
	}
	o.event(StepFailReport, "retries exhausted, remediation failed",
		zap.Int("reproduce_attempts", s.ReproduceAttempts),
		zap.Int("fix_attempts", s.FixAttempts))
	return s.terminate(runtime.StatusFailed)
}

func (o *Orchestrator) finalReport(s *RunState) error {
	if !s.Status.Terminal() {
		return fmt.Errorf("final report reached with status %s", s.Status)
	}
	if s.PatchContent != nil && s.WorkspacePath != "" {
		if d, err := workspace.DigestFile(o.entryPath(s)); err == nil {
			s.Digests[digestFinalEntry] = d
		}
	}
	rep := o.buildReport(s)
	if o.artifacts.Enabled() {
		if err := rep.Save(o.artifacts.ReportPath()); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		if err := runtime.SaveSummary(rep, o.artifacts.SummaryPath()); err != nil {
			return fmt.Errorf("save summary: %w", err)
		}
	} else if err := rep.Validate(); err != nil {
		return err
	}
	s.Report = rep

	var added, removed int
	if rep.PatchDiffSummary != nil {
		added, removed = rep.PatchDiffSummary.LinesAdded, rep.PatchDiffSummary.LinesRemoved
	}
	metrics := o.opts.Metrics
	if metrics == nil && o.opts.MetricsTextfile != "" {
		metrics = NewMetrics()
	}
	metrics.observe(s, added, removed, o.opts.Now().Sub(o.started))
	if o.opts.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(o.opts.MetricsTextfile); err != nil {
			o.logger.Warn("write metrics textfile", zap.Error(err))
		}
	}

	o.event(StepFinalReport, "final report written",
		zap.String("status", string(s.Status)),
		zap.String("report", rep.Artifacts.Report))
	return nil
}

func (o *Orchestrator) buildReport(s *RunState) *runtime.Report {
	rep := &runtime.Report{
		RunID:                s.RunID,
		Timestamp:            o.opts.Now().UTC(),
		Status:               s.Status,
		ErrorKind:            s.ErrorKind,
		ErrorReason:          s.ErrorReason,
		TargetPath:           s.TargetPath,
		EntryFile:            s.EntryFile,
		VerificationMode:     s.VerificationMode,
		WorkspacePath:        s.WorkspacePath,
		ReproduceAttempts:    s.ReproduceAttempts,
		FixAttempts:          s.FixAttempts,
		ReproductionVerified: s.ReproductionVerified,
		FixVerified:          s.FixVerified,
		PatchDiff:            s.PatchDiff,
		ChangedRegions:       s.ChangedRegions,
		Provider:             s.PatchProvider,
		FailureReason:        s.FailureReason,
		SourceRevision:       s.SourceRevision,
	}
	if rep.ChangedRegions == nil {
		rep.ChangedRegions = []changeset.Region{}
	}
	if s.PatchDiff != "" {
		sum := changeset.Summarize(s.PatchDiff)
		rep.PatchDiffSummary = &sum
	}
	if len(s.Digests) > 0 {
		rep.Digests = s.Digests
	}
	if o.artifacts.Enabled() {
		rep.Artifacts.Report = o.artifacts.ReportPath()
		rep.Artifacts.Summary = o.artifacts.SummaryPath()
		if exists(o.artifacts.PatchDiffPath()) {
			rep.Artifacts.PatchDiff = o.artifacts.PatchDiffPath()
			rep.Artifacts.LatestPatch = o.artifacts.LatestPatchPath()
		}
		if exists(o.artifacts.LogPath()) {
			rep.Artifacts.Log = o.artifacts.LogPath()
		}
	}
	return rep
}

// lastLine returns the last non-blank line of the first stream that has one.
func lastLine(streams ...string) string {
	for _, text := range streams {
		lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			if l := strings.TrimSpace(lines[i]); l != "" {
				return l
			}
		}
	}
	return "no output"
}
