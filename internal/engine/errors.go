package engine

import (
	"errors"
	"fmt"
)

// ConfigError reports a graph or binding that cannot be executed.
//
// Configuration errors include:
//   - Unknown operator kind or missing static parameter
//   - Edge slots that do not match the kind's slot scheme
//   - Bindings for nodes that are not Inputs
//   - More than one Output firing in the same step
//
// Stalls (a suppressed steer, a failed load, an undefined arithmetic result)
// are never errors.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Node identifies the offending node, if any.
	Node string

	// Message is a human-readable description.
	Message string
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeInvalidNode indicates a node without an id.
	ErrCodeInvalidNode ConfigErrorCode = "INVALID_NODE"

	// ErrCodeDuplicateNode indicates two nodes share an id.
	ErrCodeDuplicateNode ConfigErrorCode = "DUPLICATE_NODE"

	// ErrCodeUnknownKind indicates an operator kind outside the closed set.
	ErrCodeUnknownKind ConfigErrorCode = "UNKNOWN_KIND"

	// ErrCodeMissingOperator indicates a BinaryOp without a valid symbol.
	ErrCodeMissingOperator ConfigErrorCode = "MISSING_OPERATOR"

	// ErrCodeMissingLiteral indicates a Constant without a value.
	ErrCodeMissingLiteral ConfigErrorCode = "MISSING_LITERAL"

	// ErrCodeDanglingEdge indicates an edge naming an unknown node.
	ErrCodeDanglingEdge ConfigErrorCode = "DANGLING_EDGE"

	// ErrCodeSlotOutOfRange indicates an edge beyond the consumer's slot count.
	ErrCodeSlotOutOfRange ConfigErrorCode = "SLOT_OUT_OF_RANGE"

	// ErrCodeSlotDuplicate indicates two producers feeding one slot.
	ErrCodeSlotDuplicate ConfigErrorCode = "SLOT_DUPLICATE"

	// ErrCodeSlotUnfilled indicates a slot with no producer.
	ErrCodeSlotUnfilled ConfigErrorCode = "SLOT_UNFILLED"

	// ErrCodeBadSelect indicates an Order/Invariant select outside its slots.
	ErrCodeBadSelect ConfigErrorCode = "BAD_SELECT"

	// ErrCodeBadBinding indicates a binding for a missing or non-Input node.
	ErrCodeBadBinding ConfigErrorCode = "BAD_BINDING"

	// ErrCodeAmbiguousOutput indicates two Output nodes fired in one step.
	ErrCodeAmbiguousOutput ConfigErrorCode = "AMBIGUOUS_OUTPUT"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func configErr(code ConfigErrorCode, node, format string, args ...any) *ConfigError {
	return &ConfigError{Code: code, Node: node, Message: fmt.Sprintf(format, args...)}
}

// IsConfigError returns true if err is or wraps a ConfigError.
// Joined errors from New match as well.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// HasConfigCode reports whether err carries a ConfigError with the given code.
// It looks through wrapped and joined errors.
func HasConfigCode(err error, code ConfigErrorCode) bool {
	for _, ce := range ConfigErrors(err) {
		if ce.Code == code {
			return true
		}
	}
	return false
}

// ConfigErrors flattens err into the ConfigErrors it contains.
func ConfigErrors(err error) []*ConfigError {
	if err == nil {
		return nil
	}
	var out []*ConfigError
	var walk func(error)
	walk = func(e error) {
		switch x := e.(type) {
		case *ConfigError:
			out = append(out, x)
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				walk(inner)
			}
		default:
			if inner := errors.Unwrap(e); inner != nil {
				walk(inner)
			}
		}
	}
	walk(err)
	return out
}
