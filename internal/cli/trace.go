package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dfsim/internal/ir"
	"github.com/roach88/dfsim/internal/queryir"
	"github.com/roach88/dfsim/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
	Node     string
	Kind     string
	From     int64
	To       int64
	Produced bool
	Limit    int
	List     bool
	Graph    string // with --list, only runs of this graph
}

// TraceResult holds the selected firings of one run.
type TraceResult struct {
	RunID   string         `json:"run_id"`
	Graph   string         `json:"graph"`
	Status  string         `json:"status"`
	Return  string         `json:"return,omitempty"`
	Firings []FiringReport `json:"firings"`
	Stats   TraceStats     `json:"stats"`
}

// TraceStats holds summary statistics for the selection.
type TraceStats struct {
	Firings  int   `json:"firings"`
	Produced int   `json:"produced"`
	Stalled  int   `json:"stalled"`
	RunSteps int64 `json:"run_steps"`
}

// RunSummary is one row of --list output.
type RunSummary struct {
	RunID        string `json:"run_id"`
	Seq          int64  `json:"seq"`
	Graph        string `json:"graph"`
	Status       string `json:"status"`
	Steps        int64  `json:"steps"`
	LimitReached bool   `json:"limit_reached"`
	Return       string `json:"return,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the firings of a stored run",
		Long: `Query the step trace of a run stored with 'dfsim run --db'.

Firings can be narrowed by node, operator kind, step range and whether a
token was produced. Filters combine with AND. Without --run the latest run
is used. --list prints the stored runs instead.

Examples:
  dfsim trace --db runs.db
  dfsim trace --db runs.db --run <id> --node add
  dfsim trace --db runs.db --kind Carry --from 3 --to 6
  dfsim trace --db runs.db --produced=false
  dfsim trace --db runs.db --list --graph counter`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: latest run)")
	cmd.Flags().StringVar(&opts.Node, "node", "", "only firings of this node")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only firings of nodes of this kind")
	cmd.Flags().Int64Var(&opts.From, "from", 0, "first step (inclusive)")
	cmd.Flags().Int64Var(&opts.To, "to", 0, "last step (inclusive)")
	cmd.Flags().BoolVar(&opts.Produced, "produced", true, "only firings that did (or with =false did not) produce a token")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of firings (0 = no limit)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list stored runs")
	cmd.Flags().StringVar(&opts.Graph, "graph", "", "with --list, only runs of this graph")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return outputStoreError(formatter, err)
	}
	defer st.Close()

	if opts.List {
		return listRuns(ctx, st, opts.Graph, formatter)
	}

	q, err := opts.selection(cmd.Flags().Changed("produced"))
	if err != nil {
		_ = formatter.Error(ErrCodeBadFlag, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	run, err := resolveRun(ctx, st, opts.RunID)
	if err != nil {
		return outputStoreError(formatter, err)
	}
	q.Run = run.ID

	firings, err := st.QueryFirings(ctx, q)
	if err != nil {
		return outputStoreError(formatter, err)
	}
	formatter.VerboseLog("Selected %d firing(s) of run %s", len(firings), run.ID)

	result := TraceResult{
		RunID:   run.ID,
		Graph:   run.Graph.Name,
		Status:  run.Status.String(),
		Firings: []FiringReport{},
		Stats:   TraceStats{RunSteps: run.Steps},
	}
	if run.Return != nil {
		result.Return = describeValue(run.Return)
	}
	for _, nf := range firings {
		result.Firings = append(result.Firings, FiringReport{
			Step:   nf.Step,
			Node:   nf.Node,
			Kind:   nf.Kind.String(),
			Inputs: describeTokens(nf.Inputs),
			Output: describeValue(nf.Output),
		})
		if nf.Produced() {
			result.Stats.Produced++
		} else {
			result.Stats.Stalled++
		}
	}
	result.Stats.Firings = len(result.Firings)

	if opts.Format == "json" {
		return writeResponse(formatter.Writer, CLIResponse{Status: "ok", Data: result, RunID: result.RunID})
	}
	outputTraceText(formatter.Writer, result)
	return nil
}

// selection builds the query from the filter flags. producedSet reports
// whether --produced was given explicitly.
func (o *TraceOptions) selection(producedSet bool) (queryir.Select, error) {
	var preds []queryir.Predicate
	if o.Node != "" {
		preds = append(preds, queryir.NodeEquals{Node: o.Node})
	}
	if o.Kind != "" {
		kind, err := ir.ParseKind(o.Kind)
		if err != nil {
			return queryir.Select{}, fmt.Errorf("invalid --kind: %w", err)
		}
		preds = append(preds, queryir.KindEquals{Kind: kind})
	}
	if o.From < 0 || o.To < 0 {
		return queryir.Select{}, fmt.Errorf("--from and --to must be non-negative")
	}
	if o.To > 0 && o.From > o.To {
		return queryir.Select{}, fmt.Errorf("--from %d is after --to %d", o.From, o.To)
	}
	if o.From > 0 || o.To > 0 {
		preds = append(preds, queryir.StepRange{From: o.From, To: o.To})
	}
	if producedSet {
		preds = append(preds, queryir.Produced{Value: o.Produced})
	}
	if o.Limit < 0 {
		return queryir.Select{}, fmt.Errorf("--limit must be non-negative")
	}
	return queryir.Select{Filter: queryir.Conjoin(preds...), Limit: o.Limit}, nil
}

// openExistingStore opens a database that must already exist; store.Open
// alone would create an empty one.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("database not found: %s", path)}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStoreFailed, Message: err.Error()}
	}
	return st, nil
}

// resolveRun reads the named run, or the latest one when id is empty.
func resolveRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	var (
		run store.Run
		err error
	)
	if id == "" {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.ReadRun(ctx, id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		if id == "" {
			return store.Run{}, &LoadError{Code: ErrCodeNotFound, Message: "no runs stored"}
		}
		return store.Run{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("run not found: %s", id)}
	}
	return run, err
}

func outputStoreError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		err = &LoadError{Code: ErrCodeStoreFailed, Message: err.Error()}
	}
	return outputCommandError(formatter, err)
}

func listRuns(ctx context.Context, st *store.Store, graph string, formatter *OutputFormatter) error {
	runs, err := st.ListRuns(ctx, graph)
	if err != nil {
		return outputStoreError(formatter, err)
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		s := RunSummary{
			RunID:        r.ID,
			Seq:          r.Seq,
			Graph:        r.Graph.Name,
			Status:       r.Status.String(),
			Steps:        r.Steps,
			LimitReached: r.LimitReached,
		}
		if r.Return != nil {
			s.Return = describeValue(r.Return)
		}
		summaries = append(summaries, s)
	}

	if formatter.Format == "json" {
		return writeResponse(formatter.Writer, CLIResponse{Status: "ok", Data: summaries})
	}

	w := formatter.Writer
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}
	for _, s := range summaries {
		line := fmt.Sprintf("[%d] %s %s %s steps=%d", s.Seq, s.RunID, s.Graph, s.Status, s.Steps)
		if s.Return != "" {
			line += " return=" + s.Return
		}
		if s.LimitReached {
			line += " (step bound)"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func outputTraceText(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.RunID)
	fmt.Fprintf(w, "Graph: %s\n", result.Graph)
	fmt.Fprintf(w, "Status: %s\n", result.Status)
	if result.Return != "" {
		fmt.Fprintf(w, "Return: %s\n", result.Return)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Firings ===")
	if len(result.Firings) == 0 {
		fmt.Fprintln(w, "  (no firings)")
	}
	for _, f := range result.Firings {
		writeFiringLine(w, f)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Firings:   %d\n", result.Stats.Firings)
	fmt.Fprintf(w, "  Produced:  %d\n", result.Stats.Produced)
	fmt.Fprintf(w, "  Stalled:   %d\n", result.Stats.Stalled)
	fmt.Fprintf(w, "  Run steps: %d\n", result.Stats.RunSteps)
}
