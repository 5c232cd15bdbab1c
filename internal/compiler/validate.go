package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Graph errors (E101-E109)
	ErrGraphNameEmpty = "E101" // name is required
	ErrGraphNoNodes   = "E102" // at least one node required
	ErrGraphNoOutput  = "E103" // at least one Output node required
	ErrInvalidNodeID  = "E104" // node id is not a valid identifier

	// Slot scheme errors (E110-E129), one per engine configuration code
	ErrInvalidNode     = "E110"
	ErrDuplicateNode   = "E111"
	ErrUnknownKind     = "E112"
	ErrMissingOperator = "E113"
	ErrMissingLiteral  = "E114"
	ErrDanglingEdge    = "E115"
	ErrSlotOutOfRange  = "E116"
	ErrSlotDuplicate   = "E117"
	ErrSlotUnfilled    = "E118"
	ErrBadSelect       = "E119"
	ErrConfigOther     = "E129" // configuration code without a dedicated number
)

var configCodes = map[engine.ConfigErrorCode]string{
	engine.ErrCodeInvalidNode:     ErrInvalidNode,
	engine.ErrCodeDuplicateNode:   ErrDuplicateNode,
	engine.ErrCodeUnknownKind:     ErrUnknownKind,
	engine.ErrCodeMissingOperator: ErrMissingOperator,
	engine.ErrCodeMissingLiteral:  ErrMissingLiteral,
	engine.ErrCodeDanglingEdge:    ErrDanglingEdge,
	engine.ErrCodeSlotOutOfRange:  ErrSlotOutOfRange,
	engine.ErrCodeSlotDuplicate:   ErrSlotDuplicate,
	engine.ErrCodeSlotUnfilled:    ErrSlotUnfilled,
	engine.ErrCodeBadSelect:       ErrBadSelect,
}

// ValidationError represents a graph validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled graph. Returns all errors found (does not
// fail-fast). A graph that passes is accepted by engine.New.
func Validate(v any) []ValidationError {
	switch g := v.(type) {
	case *ir.Graph:
		return validateGraph(g)
	case ir.Graph:
		return validateGraph(&g)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// nodeIDPattern accepts identifiers with dots and dashes, e.g. "loop.i-next".
var nodeIDPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

func validateGraph(g *ir.Graph) []ValidationError {
	var errs []ValidationError

	// E101: name is required
	if strings.TrimSpace(g.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "graph name is required and must be non-empty",
			Code:    ErrGraphNameEmpty,
		})
	}

	// E102: at least one node
	if len(g.Nodes) == 0 {
		errs = append(errs, ValidationError{
			Field:   "nodes",
			Message: "at least one node is required",
			Code:    ErrGraphNoNodes,
		})
		return errs
	}

	hasOutput := false
	for i, n := range g.Nodes {
		if n.Kind == ir.KindOutput {
			hasOutput = true
		}
		// E104: ids appear in CLI flags and trace filters
		if n.ID != "" && !nodeIDPattern.MatchString(n.ID) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("nodes[%d].id", i),
				Message: fmt.Sprintf("invalid node id %q", n.ID),
				Code:    ErrInvalidNodeID,
			})
		}
	}

	// E103: without an Output the run can never complete
	if !hasOutput {
		errs = append(errs, ValidationError{
			Field:   "nodes",
			Message: "graph has no Output node",
			Code:    ErrGraphNoOutput,
		})
	}

	for _, ce := range engine.ValidateGraph(*g) {
		code, ok := configCodes[ce.Code]
		if !ok {
			code = ErrConfigOther
		}
		field := "nodes"
		if ce.Node != "" {
			field = "nodes." + ce.Node
		}
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s: %s", ce.Code, ce.Message),
			Code:    code,
		})
	}

	return errs
}
