package harness

import (
	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
)

// TraceEvent is one firing as the harness reports it: flattened out of its
// step record so assertions can scan the trace linearly.
type TraceEvent struct {
	Step   int64      `json:"step"`
	Node   string     `json:"node"`
	Kind   string     `json:"kind"`
	Inputs []ir.Value `json:"-"`
	Output ir.Value   `json:"-"`
}

// Produced reports whether the firing emitted a token.
func (e TraceEvent) Produced() bool {
	return e.Output != nil
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	RunID        string   `json:"run_id"`
	Status       string   `json:"status"`
	Return       ir.Value `json:"-"`
	Steps        int64    `json:"steps"`
	Pending      int      `json:"pending"`
	LimitReached bool     `json:"limit_reached"`

	// ErrorCode is the configuration error code of a failed run.
	ErrorCode string `json:"error_code,omitempty"`

	// Trace is the persisted trace read back from the store, one event
	// per firing in step then declaration order.
	Trace []TraceEvent `json:"-"`

	// Memory is the final memory image read back from the store.
	Memory []engine.Cell `json:"-"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed check and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep flattens a step record into the trace.
func (r *Result) AddStep(rec ir.StepRecord) {
	for _, f := range rec.Firings {
		var inputs []ir.Value
		for _, tok := range f.Inputs {
			inputs = append(inputs, tok.Value)
		}
		r.Trace = append(r.Trace, TraceEvent{
			Step:   rec.Step,
			Node:   f.Node,
			Kind:   f.Kind.String(),
			Inputs: inputs,
			Output: f.Output,
		})
	}
}
