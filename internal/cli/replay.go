package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/dfsim/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
	All      bool
	Graph    string // with --all, only runs of this graph
}

// ReplayRunResult is the verification result for one stored run.
type ReplayRunResult struct {
	RunID         string `json:"run_id"`
	Graph         string `json:"graph"`
	Status        string `json:"status"`
	Steps         int64  `json:"steps"`
	RecordedHash  string `json:"recorded_hash"`
	ReplayedHash  string `json:"replayed_hash"`
	Deterministic bool   `json:"deterministic"`
	Divergence    int    `json:"divergence,omitempty"` // first differing step, 1-based
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-execute stored runs and verify determinism",
		Long: `Re-execute stored runs from their recorded graph, bindings and options,
and compare the new trace with the stored one step by step.

The stored graph is checked against its recorded digest before replaying.
A run replays identically when every step fires the same nodes with the
same tokens and commits the same memory writes.

Exit codes:
  0 - All runs replayed identically
  1 - A replay diverged from its recorded trace
  2 - Command error (database not found, corrupted run, etc.)

Examples:
  dfsim replay --db runs.db
  dfsim replay --db runs.db --run <id>
  dfsim replay --db runs.db --all --graph sum --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay a specific run (default: latest run)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "replay every stored run")
	cmd.Flags().StringVar(&opts.Graph, "graph", "", "with --all, only runs of this graph")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.All && opts.RunID != "" {
		err := fmt.Errorf("--all and --run are mutually exclusive")
		_ = formatter.Error(ErrCodeBadFlag, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return outputStoreError(formatter, err)
	}
	defer st.Close()

	ids, err := replayTargets(ctx, st, opts)
	if err != nil {
		return outputStoreError(formatter, err)
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(ids)),
		TotalRuns:        len(ids),
		AllDeterministic: true,
	}
	for _, id := range ids {
		formatter.VerboseLog("Replaying run %s", id)
		report, err := st.ReplayRun(ctx, id)
		if err != nil {
			return outputStoreError(formatter, err)
		}
		rr := ReplayRunResult{
			RunID:         report.Run.ID,
			Graph:         report.Run.Graph.Name,
			Status:        report.Run.Status.String(),
			Steps:         report.Run.Steps,
			RecordedHash:  report.Result.RecordedHash,
			ReplayedHash:  report.Result.ReplayedHash,
			Deterministic: report.Result.Identical,
			Divergence:    report.Result.Divergence,
		}
		result.Runs = append(result.Runs, rr)
		if !rr.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(formatter.Writer, result)
	}
	return outputReplayText(formatter.Writer, result, opts.Verbose)
}

// replayTargets resolves which runs to replay.
func replayTargets(ctx context.Context, st *store.Store, opts *ReplayOptions) ([]string, error) {
	if !opts.All {
		run, err := resolveRun(ctx, st, opts.RunID)
		if err != nil {
			return nil, err
		}
		return []string{run.ID}, nil
	}
	runs, err := st.ListRuns(ctx, opts.Graph)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids, nil
}

func outputReplayJSON(w io.Writer, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeDiverged,
			Message: "determinism verification failed",
		}
	}
	if err := writeResponse(w, response); err != nil {
		return err
	}
	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

func outputReplayText(w io.Writer, result ReplayResult, verbose bool) error {
	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, r := range result.Runs {
		fmt.Fprintf(w, "%s Run: %s (%s, %s, %d step(s))\n", mark(r.Deterministic), r.RunID, r.Graph, r.Status, r.Steps)
		if verbose || !r.Deterministic {
			fmt.Fprintf(w, "  Recorded: %s\n", r.RecordedHash)
			fmt.Fprintf(w, "  Replayed: %s\n", r.ReplayedHash)
		}
		if !r.Deterministic {
			fmt.Fprintf(w, "  Warning: replay diverged at step %d\n", r.Divergence)
		}
	}
	fmt.Fprintln(w)

	if result.AllDeterministic {
		fmt.Fprintln(w, mark(true)+" All runs verified deterministic")
		return nil
	}
	fmt.Fprintln(w, mark(false)+" Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
