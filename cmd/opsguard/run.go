package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danshapiro/opsguard/internal/remediation/engine"
)

type runFlags struct {
	configPath string
	errorText  string
	errorFile  string
	entry      string
	mode       string
	artifacts  string
	image      string
	runID      string
	providers  []string
	verbose    bool
}

func newRunCommand() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <target-dir>",
		Short: "Reproduce the reported failure in a sandbox and try to fix it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemediation(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to opsguard.yaml (or .json)")
	cmd.Flags().StringVar(&f.errorText, "error", "", "reported error text")
	cmd.Flags().StringVar(&f.errorFile, "error-file", "", "file holding the reported error text (- for stdin)")
	cmd.Flags().StringVar(&f.entry, "entry", "", "entry file relative to the target")
	cmd.Flags().StringVar(&f.mode, "mode", "", "verification mode: single_script or test_suite")
	cmd.Flags().StringVar(&f.artifacts, "artifacts", "", "artifacts root directory")
	cmd.Flags().StringVar(&f.image, "image", "", "sandbox docker image")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run id (default: new ULID)")
	cmd.Flags().StringSliceVar(&f.providers, "providers", nil, "patch providers to use, in order (e.g. groq,nvidia)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "print step events on stderr")
	return cmd
}

func runRemediation(cmd *cobra.Command, target string, f runFlags) error {
	errorText, err := readErrorText(f, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if strings.TrimSpace(errorText) == "" {
		return fmt.Errorf("one of --error or --error-file is required")
	}

	cfg := engine.DefaultRunConfig()
	if f.configPath != "" {
		cfg, err = engine.LoadRunConfigFile(f.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if err := applyRunFlags(cfg, f); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	runID := strings.TrimSpace(f.runID)
	if runID == "" {
		if runID, err = engine.NewRunID(); err != nil {
			return err
		}
	}
	layout := engine.NewArtifactLayout(cfg.Artifacts.Root, runID)
	logger, closeLog, err := newRunLogger(layout.LogPath(), cmd.ErrOrStderr(), f.verbose)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer closeLog()

	opts, err := engine.OptionsFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	opts.RunID = runID

	st, err := engine.Run(cmd.Context(), engine.Input{TargetPath: target, ErrorText: errorText}, opts)
	if err != nil {
		logger.Error("run aborted", zap.String("run_id", runID), zap.Error(err))
		return err
	}
	printRunResult(cmd.OutOrStdout(), st)
	return nil
}

func readErrorText(f runFlags, stdin io.Reader) (string, error) {
	if f.errorFile == "" {
		return f.errorText, nil
	}
	if f.errorText != "" {
		return "", fmt.Errorf("--error and --error-file are mutually exclusive")
	}
	if f.errorFile == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read error text from stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(f.errorFile)
	if err != nil {
		return "", fmt.Errorf("read error file: %w", err)
	}
	return string(b), nil
}

func applyRunFlags(cfg *engine.RunConfigFile, f runFlags) error {
	if v := strings.TrimSpace(f.entry); v != "" {
		cfg.Target.EntryFile = v
	}
	if v := strings.TrimSpace(f.mode); v != "" {
		cfg.Target.VerificationMode = v
	}
	if v := strings.TrimSpace(f.artifacts); v != "" {
		cfg.Artifacts.Root = v
	}
	if v := strings.TrimSpace(f.image); v != "" {
		cfg.Sandbox.Image = v
	}
	if len(f.providers) > 0 {
		if err := cfg.SelectProviders(f.providers); err != nil {
			return fmt.Errorf("--providers: %w", err)
		}
	}
	return nil
}

func printRunResult(w io.Writer, st *engine.RunState) {
	if st.Report != nil {
		fmt.Fprint(w, renderBlock("opsguard run", reportRows(st.Report)))
		return
	}
	fmt.Fprint(w, renderBlock("opsguard run", []row{
		{"status", styleStatus(st.Status)},
		{"run id", st.RunID},
		{"error kind", string(st.ErrorKind)},
		{"reason", st.FailureReason},
	}))
}
