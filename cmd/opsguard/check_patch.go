package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/danshapiro/opsguard/internal/remediation/accept"
	"github.com/danshapiro/opsguard/internal/remediation/changeset"
	"github.com/danshapiro/opsguard/internal/workspace"
)

func newCheckPatchCommand() *cobra.Command {
	var (
		originalPath  string
		candidatePath string
		localModules  []string
		showDiff      bool
	)
	cmd := &cobra.Command{
		Use:   "check-patch",
		Short: "Run the patch acceptance checks on a candidate file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			original, err := os.ReadFile(originalPath)
			if err != nil {
				return fmt.Errorf("read original: %w", err)
			}
			candidate, err := os.ReadFile(candidatePath)
			if err != nil {
				return fmt.Errorf("read candidate: %w", err)
			}
			if len(localModules) == 0 {
				localModules, err = workspace.LocalModules(filepath.Dir(originalPath))
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			v := accept.Validator{LocalModules: localModules}.Check(string(original), string(candidate))
			if !v.Accepted {
				fmt.Fprint(out, renderBlock("check-patch", []row{
					{"verdict", statusFailed.Render("REJECTED")},
					{"reason", string(v.Reason)},
					{"detail", v.Detail},
				}))
				return errPatchRejected
			}

			diff, err := changeset.UnifiedDiff(string(original), string(candidate), filepath.Base(originalPath))
			if err != nil {
				return err
			}
			sum := changeset.Summarize(diff)
			fmt.Fprint(out, renderBlock("check-patch", []row{
				{"verdict", statusSuccess.Render("ACCEPTED")},
				{"impact", fmt.Sprintf("+%d / -%d lines in %d region(s)", sum.LinesAdded, sum.LinesRemoved,
					len(changeset.Regions(string(original), string(candidate))))},
			}))
			if showDiff && diff != "" {
				fmt.Fprint(out, diff)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&originalPath, "original", "", "current source file")
	cmd.Flags().StringVar(&candidatePath, "candidate", "", "proposed replacement file")
	cmd.Flags().StringSliceVar(&localModules, "local-module", nil, "import root provided by the project (default: scanned from the original's directory)")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "print the unified diff of an accepted candidate")
	_ = cmd.MarkFlagRequired("original")
	_ = cmd.MarkFlagRequired("candidate")
	return cmd
}
