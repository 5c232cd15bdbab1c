package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
	"github.com/roach88/dfsim/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	SimOptions
	Database  string
	ShowTrace bool

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunReport is the result of one run.
type RunReport struct {
	RunID        string         `json:"run_id,omitempty"`
	Database     string         `json:"database,omitempty"`
	Graph        string         `json:"graph"`
	GraphDigest  string         `json:"graph_digest"`
	Status       string         `json:"status"`
	Return       string         `json:"return,omitempty"`
	Steps        int64          `json:"steps"`
	Pending      int            `json:"pending_tokens"`
	LimitReached bool           `json:"limit_reached"`
	Limit        int            `json:"limit"`
	TraceDigest  string         `json:"trace_digest"`
	ErrorCode    string         `json:"error_code,omitempty"`
	Memory       []CellReport   `json:"memory,omitempty"`
	Trace        []FiringReport `json:"trace,omitempty"`
}

// CellReport is one memory cell after a run.
type CellReport struct {
	Address int64  `json:"address"`
	Value   string `json:"value"`
}

// FiringReport is one node firing within a step.
type FiringReport struct {
	Step   int64    `json:"step"`
	Node   string   `json:"node"`
	Kind   string   `json:"kind"`
	Inputs []string `json:"inputs,omitempty"`
	Output string   `json:"output"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <graph>",
		Short: "Run a graph to completion",
		Long: `Run a dataflow graph until its Output fires, it stops making progress,
or the step bound is reached.

Input nodes take their declared default unless bound with --input. Memory
cells can be seeded with --memory. With --db the run, its full trace and the
final memory image are stored for later trace queries and replay.

Exit codes:
  0 - The run completed
  1 - The run got stuck, hit the step bound, or failed
  2 - Command error (bad flags, invalid graph, database error)

Examples:
  dfsim run graphs/sum.cue
  dfsim run graphs/sum.cue --input a=7 --one-shot
  dfsim run graphs/memory.hcl --memory 2=7 --input laddr=2 --db runs.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(opts, args[0], cmd)
		},
	}

	opts.SimOptions.register(cmd)
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database; the run is stored when set")
	cmd.Flags().BoolVar(&opts.ShowTrace, "trace", false, "include every firing in the output")

	return cmd
}

func runGraph(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := opts.Logger()

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
	logger.Info("graph loaded", "graph", g.Name, "nodes", len(g.Nodes), "path", path)

	state, err := cfg.NewState(g, engine.WithLogger(logger))
	if err != nil {
		code := ErrCodeInvalidGraph
		if engine.HasConfigCode(err, engine.ErrCodeBadBinding) {
			code = ErrCodeBadFlag
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to start run", err)
	}

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	out, runErr := state.RunContext(ctx, cfg.Limit())
	if runErr != nil && !engine.IsConfigError(runErr) {
		_ = formatter.Error(ErrCodeGeneric, runErr.Error(), nil)
		return WrapExitError(ExitCommandError, "run interrupted", runErr)
	}

	report, err := buildRunReport(state, out, opts.ShowTrace || opts.Verbose)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	if runErr != nil {
		report.ErrorCode = ErrCodeRunFailed
		logger.Error("run failed", "graph", g.Name, "error", runErr)
	}

	if opts.Database != "" {
		gen := opts.RunIDs
		if gen == nil {
			gen = engine.UUIDv7Generator{}
		}
		id := gen.Generate()
		if err := persistRun(ctx, opts.Database, id, state, out, cfg, logger); err != nil {
			_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to store run", err)
		}
		report.RunID = id
		report.Database = opts.Database
	}

	return outputRunReport(formatter, report, runErr)
}

// signalContext cancels the returned context on SIGINT or SIGTERM so a
// long run stops between steps.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, func()) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Warn("received signal, stopping run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func persistRun(ctx context.Context, dbPath, id string, state *engine.State, out engine.Outcome, cfg engine.RunConfig, logger *slog.Logger) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	run, err := st.SaveRun(ctx, id, state, out, cfg)
	if err != nil {
		return err
	}
	logger.Info("run stored", "run_id", run.ID, "seq", run.Seq, "db", dbPath)
	return nil
}

func buildRunReport(state *engine.State, out engine.Outcome, withTrace bool) (*RunReport, error) {
	g := state.Graph()
	graphDigest, err := ir.GraphHash(g)
	if err != nil {
		return nil, err
	}
	traceDigest, err := state.TraceHash()
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		Graph:        g.Name,
		GraphDigest:  graphDigest,
		Status:       out.Status.String(),
		Steps:        state.StepCount(),
		Pending:      out.PendingTokens,
		LimitReached: out.LimitReached,
		Limit:        out.Limit,
		TraceDigest:  traceDigest,
	}
	if out.HasReturn {
		report.Return = describeValue(out.Return)
	}
	for _, c := range state.Memory() {
		report.Memory = append(report.Memory, CellReport{Address: c.Address, Value: describeValue(c.Value)})
	}
	if withTrace {
		report.Trace = firingReports(state.Trace())
	}
	return report, nil
}

func firingReports(trace []ir.StepRecord) []FiringReport {
	var out []FiringReport
	for _, rec := range trace {
		for _, f := range rec.Firings {
			out = append(out, FiringReport{
				Step:   rec.Step,
				Node:   f.Node,
				Kind:   f.Kind.String(),
				Inputs: describeTokens(f.Inputs),
				Output: describeValue(f.Output),
			})
		}
	}
	return out
}

// outputRunReport prints the report. Anything but a completed run exits
// with ExitFailure.
func outputRunReport(formatter *OutputFormatter, report *RunReport, runErr error) error {
	var failure *CLIError
	switch {
	case runErr != nil:
		failure = &CLIError{Code: ErrCodeRunFailed, Message: runErr.Error()}
	case report.Status != engine.StatusCompleted.String():
		failure = &CLIError{Code: ErrCodeNotCompleted, Message: notCompletedMessage(report)}
	}

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: report, RunID: report.RunID}
		if failure != nil {
			resp.Status = "error"
			resp.Error = failure
		}
		if err := writeResponse(formatter.Writer, resp); err != nil {
			return err
		}
	} else {
		writeRunText(formatter.Writer, report)
		if failure != nil {
			fmt.Fprintf(formatter.Writer, "\n%s %s\n", mark(false), failure.Message)
		}
	}

	if failure != nil {
		return NewExitError(ExitFailure, failure.Message)
	}
	return nil
}

func notCompletedMessage(report *RunReport) string {
	if report.LimitReached {
		return fmt.Sprintf("run reached the step bound of %d with %d pending token(s)", report.Limit, report.Pending)
	}
	return fmt.Sprintf("run is %s after %d step(s) with %d pending token(s)", report.Status, report.Steps, report.Pending)
}

func writeRunText(w io.Writer, report *RunReport) {
	if report.RunID != "" {
		fmt.Fprintf(w, "Run: %s (stored in %s)\n", report.RunID, report.Database)
	}
	fmt.Fprintf(w, "Graph: %s\n", report.Graph)
	fmt.Fprintf(w, "Status: %s\n", report.Status)
	if report.Return != "" {
		fmt.Fprintf(w, "Return: %s\n", report.Return)
	}
	fmt.Fprintf(w, "Steps: %d\n", report.Steps)
	fmt.Fprintf(w, "Pending tokens: %d\n", report.Pending)
	if report.LimitReached {
		fmt.Fprintf(w, "Step bound reached: %d\n", report.Limit)
	}
	fmt.Fprintf(w, "Trace digest: %s\n", report.TraceDigest)

	if len(report.Memory) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Memory ===")
		for _, c := range report.Memory {
			fmt.Fprintf(w, "  @%d = %s\n", c.Address, c.Value)
		}
	}

	if len(report.Trace) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Trace ===")
		for _, f := range report.Trace {
			writeFiringLine(w, f)
		}
	}
}

func writeFiringLine(w io.Writer, f FiringReport) {
	if len(f.Inputs) > 0 {
		fmt.Fprintf(w, "  [%d] %s %s %v -> %s\n", f.Step, f.Kind, f.Node, f.Inputs, f.Output)
		return
	}
	fmt.Fprintf(w, "  [%d] %s %s -> %s\n", f.Step, f.Kind, f.Node, f.Output)
}

