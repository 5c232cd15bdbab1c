package compiler

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/hashicorp/hcl/v2"
)

// CompileError reports a graph description that cannot be turned into IR.
// Pos is set for CUE sources, Range for HCL sources.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
	Range   *hcl.Range
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	if e.Range != nil && e.Range.Filename != "" {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Range.Filename, e.Range.Start.Line, e.Range.Start.Column,
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Line returns the source line of the error, or 0 when unknown.
func (e *CompileError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	if e.Range != nil {
		return e.Range.Start.Line
	}
	return 0
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

// formatHCLDiags turns the first error diagnostic into a CompileError.
func formatHCLDiags(diags hcl.Diagnostics) error {
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		msg := d.Summary
		if d.Detail != "" {
			msg += ": " + d.Detail
		}
		return &CompileError{Field: "hcl", Message: msg, Range: d.Subject}
	}
	return nil
}
