package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/dfsim/internal/compiler"
)

// ValidationResult holds validation results for every graph checked.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Graphs []GraphValidation `json:"graphs"`
}

// GraphValidation is the outcome for one graph file.
type GraphValidation struct {
	Path   string                     `json:"path"`
	Name   string                     `json:"name,omitempty"`
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graph|dir>",
		Short: "Validate graph descriptions without running them",
		Long: `Validate one graph file, or every graph file in a directory.

Checks syntax, node kinds and operators, and the slot scheme: every input
slot of every node is fed by exactly one edge and the graph has an Output.
All errors are reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, err := ValidatePath(path, formatter)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// ValidatePath validates the graph or graphs at path. The error is set only
// when nothing could be loaded at all; per-file failures land in the result.
func ValidatePath(path string, formatter *OutputFormatter) (*ValidationResult, error) {
	if formatter == nil {
		formatter = &OutputFormatter{Format: "text", Writer: io.Discard}
	}

	loadResult, loadErrors := LoadGraphs(path, LoadModeCollectAll)
	if loadResult == nil {
		return nil, loadErrors[0]
	}
	formatter.VerboseLog("Found %d graph file(s) in %s", loadResult.FileCount, path)

	result := &ValidationResult{Valid: true}
	for _, err := range loadErrors {
		gv := GraphValidation{Valid: false}
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			gv.Path = loadErr.Path
			gv.Errors = []compiler.ValidationError{{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    loadErr.Line,
			}}
		} else {
			gv.Errors = []compiler.ValidationError{{Field: "load", Message: err.Error(), Code: ErrCodeGeneric}}
		}
		result.Graphs = append(result.Graphs, gv)
		result.Valid = false
	}

	for _, lg := range loadResult.Graphs {
		formatter.VerboseLog("Validating graph: %s", lg.Graph.Name)
		errs := compiler.Validate(lg.Graph)
		result.Graphs = append(result.Graphs, GraphValidation{
			Path:   lg.Path,
			Name:   lg.Graph.Name,
			Valid:  len(errs) == 0,
			Errors: errs,
		})
		if len(errs) > 0 {
			result.Valid = false
		}
	}
	return result, nil
}

func outputValidateSuccess(formatter *OutputFormatter, result *ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "%s All graphs valid (%d checked)\n", mark(true), len(result.Graphs))
	return nil
}

// outputValidationErrors prints every failing graph. Validation failures
// exit with ExitFailure.
func outputValidationErrors(formatter *OutputFormatter, result *ValidationResult) error {
	var first compiler.ValidationError
	count := 0
	for _, gv := range result.Graphs {
		if count == 0 && len(gv.Errors) > 0 {
			first = gv.Errors[0]
		}
		count += len(gv.Errors)
	}

	if formatter.Format == "json" {
		if err := writeResponse(formatter.Writer, CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", count))
	}

	w := formatter.Writer
	fmt.Fprintln(w, mark(false)+" Validation failed")
	fmt.Fprintln(w)
	for _, gv := range result.Graphs {
		if gv.Valid {
			fmt.Fprintf(w, "%s %s\n", mark(true), gv.Path)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", mark(false), gv.Path)
		for _, e := range gv.Errors {
			if e.Line > 0 {
				fmt.Fprintf(w, "  line %d: %s: %s\n", e.Line, e.Code, e.Message)
			} else {
				fmt.Fprintf(w, "  %s: %s: %s\n", e.Code, e.Field, e.Message)
			}
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", count))
}
