package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/roach88/dfsim/internal/compiler"
	"github.com/roach88/dfsim/internal/ir"
)

// LoadMode controls how errors are handled while loading graphs.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadedGraph is one compiled graph and the file it came from.
type LoadedGraph struct {
	Path  string
	Graph ir.Graph
}

// LoadResult contains the graphs loaded from a file or directory.
type LoadResult struct {
	Graphs    []LoadedGraph
	FileCount int
}

// LoadError is a graph loading failure with its source location.
type LoadError struct {
	Code    string
	Message string
	Path    string
	Line    int
}

func (e *LoadError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s: %s", e.Path, e.Line, e.Code, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants shared by all commands. Validation codes (E1xx)
// come from the compiler package.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeScanError    = "E002" // Directory scan error
	ErrCodeNoFiles      = "E003" // No graph files found
	ErrCodeLoadFailed   = "E004" // Graph source could not be parsed
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBuildFailed  = "E006" // Graph structure could not be assembled
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeBadFlag      = "E008" // Malformed --input or --memory flag
	ErrCodeStoreFailed  = "E009" // Run database error
	ErrCodeInvalidGraph = "E010" // Graph failed validation
	ErrCodeRunFailed    = "E011" // Run stopped with a configuration error

	ErrCodeNotCompleted = "E_NOT_COMPLETED"
	ErrCodeDiverged     = "E_DIVERGED"
	ErrCodeTestFailed   = "E_TEST_FAILED"
)

// LoadGraphs loads one graph file, or every graph file directly inside a
// directory.
func LoadGraphs(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("graph path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing graph path: %v", err)}}
	}

	if !info.IsDir() {
		g, err := compiler.LoadGraph(path)
		if err != nil {
			return nil, []error{convertCompileError(err, path)}
		}
		return &LoadResult{Graphs: []LoadedGraph{{Path: path, Graph: g}}, FileCount: 1}, nil
	}

	files, err := compiler.FindGraphFiles(path)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no graph files found in %s", path)}}
	}

	result := &LoadResult{FileCount: len(files)}
	var errs []error
	for _, file := range files {
		g, err := compiler.LoadGraph(file)
		if err != nil {
			errs = append(errs, convertCompileError(err, file))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Graphs = append(result.Graphs, LoadedGraph{Path: file, Graph: g})
	}
	return result, errs
}

// loadSingleGraph loads exactly one graph for commands that execute it.
func loadSingleGraph(path string) (ir.Graph, error) {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		// A directory argument to run/step is a CUE package.
		g, err := compiler.LoadGraph(path)
		if err != nil {
			return ir.Graph{}, convertCompileError(err, path)
		}
		return g, nil
	}
	result, errs := LoadGraphs(path, LoadModeFailFast)
	if len(errs) > 0 {
		return ir.Graph{}, errs[0]
	}
	return result.Graphs[0].Graph, nil
}

// checkGraph runs validation and reports the first error as a LoadError.
func checkGraph(path string, g ir.Graph) error {
	verrs := compiler.Validate(g)
	if len(verrs) == 0 {
		return nil
	}
	msgs := make([]string, len(verrs))
	for i, v := range verrs {
		msgs[i] = v.Error()
	}
	return &LoadError{Code: ErrCodeInvalidGraph, Message: strings.Join(msgs, "; "), Path: path}
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, path string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Path:    path,
			Line:    compileErr.Line(),
		}
	}
	if errors.Is(err, os.ErrNotExist) {
		return &LoadError{Code: ErrCodeNotFound, Message: err.Error(), Path: path}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error(), Path: path}
}

// MapFieldToErrorCode maps a compiler error field to an error code.
// Node fields have the form nodes.<id>.<attr>.
func MapFieldToErrorCode(field string) string {
	if strings.HasPrefix(field, "nodes.") {
		field = field[strings.LastIndex(field, ".")+1:]
	}
	switch field {
	case "cue", "hcl", "json":
		return ErrCodeLoadFailed
	case "graph", "nodes":
		return ErrCodeBuildFailed
	case "kind":
		return compiler.ErrUnknownKind
	case "op":
		return compiler.ErrMissingOperator
	case "value":
		return compiler.ErrMissingLiteral
	default:
		return ErrCodeGeneric
	}
}
