package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
)

// StepOptions holds flags for the step command.
type StepOptions struct {
	*RootOptions
	SimOptions
	Count int
}

// StepReport shows a run a few steps at a time.
type StepReport struct {
	Graph  string     `json:"graph"`
	Status string     `json:"status"`
	Steps  []StepView `json:"steps"`
	Nodes  []NodeView `json:"nodes"`
}

// StepView is the result of one Step call.
type StepView struct {
	Step    int64          `json:"step,omitempty"`
	Result  string         `json:"result"`
	Firings []FiringReport `json:"firings,omitempty"`
	Writes  []CellReport   `json:"writes,omitempty"`
	Pending int            `json:"pending_tokens"`
}

// NodeView is a node's queues and latest output after the last step.
type NodeView struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Pending    []int  `json:"pending"`
	LastOutput string `json:"last_output,omitempty"`
	CarryPhase string `json:"carry_phase,omitempty"`
}

// NewStepCommand creates the step command.
func NewStepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "step <graph>",
		Short: "Execute a graph step by step",
		Long: `Execute a bounded number of bulk-synchronous steps and show what fired.

Each step lists the firings in declaration order with the tokens they
consumed and produced, and any memory writes committed at the end of the
step. After the last step every node's per-slot queue depth, latest output
and Carry phase are shown. Stepping stops early once the run completes or no
node is enabled.

Examples:
  dfsim step graphs/counter.hcl --count 5
  dfsim step graphs/sum.cue --input a=2 --one-shot --count 4 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(opts, args[0], cmd)
		},
	}

	opts.SimOptions.register(cmd)
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 1, "number of steps to execute")

	return cmd
}

func runStep(opts *StepOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Count <= 0 {
		err := fmt.Errorf("--count must be positive, got %d", opts.Count)
		_ = formatter.Error(ErrCodeBadFlag, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	cfg, err := opts.RunConfig()
	if err != nil {
		_ = formatter.Error(ErrCodeBadFlag, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	g, err := loadSingleGraph(path)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	if err := checkGraph(path, g); err != nil {
		return outputCommandError(formatter, err)
	}

	state, err := cfg.NewState(g, engine.WithLogger(opts.Logger()))
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidGraph, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to start run", err)
	}

	report := &StepReport{Graph: g.Name}
	var stepErr error
	for range opts.Count {
		res, err := state.Step()
		view := StepView{Result: res.Status.String(), Pending: res.PendingTokens}
		if res.Status == engine.StepFired {
			view.Step = res.Record.Step
			view.Firings = firingReports([]ir.StepRecord{res.Record})
			for _, w := range res.Record.Writes {
				view.Writes = append(view.Writes, CellReport{Address: w.Address, Value: describeValue(w.Value)})
			}
		}
		if err != nil {
			// The failing step is still recorded in the trace.
			view.Result = engine.StatusFailed.String()
			if rec, ok := state.LastRecord(); ok {
				view.Step = rec.Step
				view.Firings = firingReports([]ir.StepRecord{rec})
			}
			report.Steps = append(report.Steps, view)
			stepErr = err
			break
		}
		report.Steps = append(report.Steps, view)
		if res.Status != engine.StepFired || state.Completed() {
			break
		}
	}

	report.Status = state.Status().String()
	report.Nodes = nodeViews(state)

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: report}
		if stepErr != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeRunFailed, Message: stepErr.Error()}
		}
		if err := writeResponse(formatter.Writer, resp); err != nil {
			return err
		}
	} else {
		writeStepText(formatter.Writer, report)
		if stepErr != nil {
			fmt.Fprintf(formatter.Writer, "\n%s %s\n", mark(false), stepErr.Error())
		}
	}

	if stepErr != nil {
		return WrapExitError(ExitFailure, "step failed", stepErr)
	}
	return nil
}

func nodeViews(state *engine.State) []NodeView {
	g := state.Graph()
	views := make([]NodeView, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		v := NodeView{
			ID:      n.ID,
			Kind:    n.Kind.String(),
			Pending: state.PendingBySlot(n.ID),
		}
		if out, ok := state.LastOutput(n.ID); ok {
			v.LastOutput = describeValue(out)
		}
		if phase, ok := state.CarryPhase(n.ID); ok {
			v.CarryPhase = phase
		}
		views = append(views, v)
	}
	return views
}

func writeStepText(w io.Writer, report *StepReport) {
	fmt.Fprintf(w, "Graph: %s\n", report.Graph)
	for _, s := range report.Steps {
		fmt.Fprintln(w)
		if s.Step == 0 {
			fmt.Fprintf(w, "=== %s (pending %d) ===\n", s.Result, s.Pending)
			continue
		}
		fmt.Fprintf(w, "=== Step %d (pending %d) ===\n", s.Step, s.Pending)
		for _, f := range s.Firings {
			writeFiringLine(w, f)
		}
		for _, c := range s.Writes {
			fmt.Fprintf(w, "  write @%d = %s\n", c.Address, c.Value)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Status: %s\n", report.Status)
	fmt.Fprintln(w, "=== Nodes ===")
	for _, n := range report.Nodes {
		line := fmt.Sprintf("  %s (%s) pending=%v", n.ID, n.Kind, n.Pending)
		if n.LastOutput != "" {
			line += " last=" + n.LastOutput
		}
		if n.CarryPhase != "" {
			line += " phase=" + n.CarryPhase
		}
		fmt.Fprintln(w, line)
	}
}
