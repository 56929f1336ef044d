package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danshapiro/opsguard/internal/remediation/engine"
	"github.com/danshapiro/opsguard/internal/remediation/runstate"
)

type statusView struct {
	RunDir            string `json:"run_dir"`
	RunID             string `json:"run_id"`
	State             string `json:"state"`
	Status            string `json:"status,omitempty"`
	ErrorKind         string `json:"error_kind,omitempty"`
	FailureReason     string `json:"failure_reason,omitempty"`
	ReproduceAttempts int    `json:"reproduce_attempts"`
	FixAttempts       int    `json:"fix_attempts"`
	ChangedRegions    int    `json:"changed_regions"`
	LastStep          string `json:"last_step,omitempty"`
	LastEvent         string `json:"last_event,omitempty"`
	LastEventAt       string `json:"last_event_at,omitempty"`
}

func newStatusCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status [run-dir|report|artifacts-root]",
		Short: "Show the state of a run from its artifacts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := engine.DefaultArtifactsRoot
			if len(args) == 1 {
				path = args[0]
			}
			snap, err := runstate.LoadSnapshot(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(viewOf(snap))
			}
			if snap.Report != nil {
				fmt.Fprint(out, renderBlock("opsguard status", reportRows(snap.Report)))
				return nil
			}
			fmt.Fprint(out, renderBlock("opsguard status", []row{
				{"state", string(snap.State)},
				{"run id", snap.RunID},
				{"last step", snap.LastStep},
				{"last event", snap.LastEvent},
				{"at", formatTime(snap.LastEventAt)},
			}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	return cmd
}

func viewOf(s *runstate.Snapshot) statusView {
	return statusView{
		RunDir:            s.RunDir,
		RunID:             s.RunID,
		State:             string(s.State),
		Status:            string(s.Status),
		ErrorKind:         string(s.ErrorKind),
		FailureReason:     s.FailureReason,
		ReproduceAttempts: s.ReproduceAttempts,
		FixAttempts:       s.FixAttempts,
		ChangedRegions:    s.ChangedRegions,
		LastStep:          s.LastStep,
		LastEvent:         s.LastEvent,
		LastEventAt:       formatTime(s.LastEventAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
