package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dfsim/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run every scenario file under a directory.

A scenario names a graph, its bindings and options, the expected outcome,
and assertions over the trace. When golden/<name>.golden exists beside a
scenario the run's trace must match it exactly.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, bad filter)

Examples:
  dfsim test ./scenarios
  dfsim test ./scenarios --filter "memory_*"
  dfsim test ./scenarios --update
  dfsim test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return outputCommandError(formatter, &LoadError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("scenarios directory not found: %s", dir),
		})
	}

	mode := harness.GoldenCompare
	if opts.Update {
		mode = harness.GoldenUpdate
	}
	formatter.VerboseLog("Running scenarios in %s", dir)

	result, err := harness.RunSuite(dir, opts.Filter, mode)
	if err != nil {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeScanError, Message: err.Error()})
	}

	if opts.Format == "json" {
		return outputTestJSON(formatter.Writer, result)
	}
	return outputTestText(formatter.Writer, result, opts.Update)
}

func outputTestJSON(w io.Writer, result *harness.SuiteResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total),
		}
	}
	if err := writeResponse(w, response); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func outputTestText(w io.Writer, result *harness.SuiteResult, updated bool) error {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	failures := make(map[string]harness.ScenarioFailure, len(result.Failures))
	for _, f := range result.Failures {
		failures[f.ScenarioPath] = f
	}

	for _, sc := range result.Scenarios {
		name := sc.Name
		if name == "" {
			name = sc.ScenarioPath
		}
		fmt.Fprintf(w, "%s %s\n", mark(sc.Pass), name)
		for _, msg := range failures[sc.ScenarioPath].Errors {
			fmt.Fprintf(w, "  %s\n", msg)
		}
	}
	fmt.Fprintln(w)

	if updated {
		fmt.Fprintln(w, "Golden files updated.")
	}
	fmt.Fprintf(w, "Results: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}
