package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dfsim/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string
}

// CompilationResult is the compiled graph with its content digest.
type CompilationResult struct {
	Graph  ir.Graph         `json:"graph"`
	Digest string           `json:"digest"`
	Stats  CompilationStats `json:"stats"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	Nodes   int            `json:"nodes"`
	Edges   int            `json:"edges"`
	ByKind  map[string]int `json:"by_kind"`
	Sources int            `json:"sources"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <graph>",
		Short: "Compile a graph description to JSON IR",
		Long: `Compile a CUE, HCL or JSON graph description to the JSON IR.

The graph is parsed, checked against the slot scheme, and printed with its
content digest. With --output the IR is written to a file that run, step
and validate accept directly.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	g, err := loadSingleGraph(path)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	formatter.VerboseLog("Loaded graph %s from %s", g.Name, path)

	if err := checkGraph(path, g); err != nil {
		return outputCommandError(formatter, err)
	}

	digest, err := ir.GraphHash(g)
	if err != nil {
		return outputCommandError(formatter, err)
	}

	result := &CompilationResult{
		Graph:  g,
		Digest: digest,
		Stats:  calculateStats(g),
	}

	if opts.Output != "" {
		if err := writeGraphToFile(g, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// calculateStats counts nodes per kind.
func calculateStats(g ir.Graph) CompilationStats {
	stats := CompilationStats{
		Nodes:  len(g.Nodes),
		Edges:  len(g.Edges),
		ByKind: make(map[string]int),
	}
	for _, n := range g.Nodes {
		stats.ByKind[n.Kind.String()]++
		if n.Kind.IsSource() {
			stats.Sources++
		}
	}
	return stats
}

func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s Compiled graph %s: %d node(s), %d edge(s)\n",
		mark(true), result.Graph.Name, result.Stats.Nodes, result.Stats.Edges)
	fmt.Fprintf(w, "Digest: %s\n", result.Digest)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Nodes:")
	for _, n := range result.Graph.Nodes {
		switch {
		case n.Kind == ir.KindBinaryOp:
			fmt.Fprintf(w, "  %s: %s %s\n", n.ID, n.Kind, n.Op.Symbol())
		case n.Literal != nil:
			fmt.Fprintf(w, "  %s: %s %s\n", n.ID, n.Kind, describeValue(n.Literal))
		default:
			fmt.Fprintf(w, "  %s: %s\n", n.ID, n.Kind)
		}
	}

	if outputFile != "" {
		fmt.Fprintf(w, "\nWrote graph IR to %s\n", outputFile)
	}
	return nil
}

// outputCommandError reports a load, validation or setup failure and
// returns the exit code for it.
func outputCommandError(formatter *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code = loadErr.Code
	}
	_ = formatter.Error(code, err.Error(), nil)
	return NewExitError(ExitCommandError, err.Error())
}

// writeGraphToFile writes the graph IR as indented JSON. Canonical JSON is
// used only for digests.
func writeGraphToFile(g ir.Graph, filename string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling graph: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
