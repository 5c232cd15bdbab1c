package engine

import (
	"slices"

	"github.com/roach88/dfsim/internal/ir"
	"github.com/roach88/dfsim/internal/queryir"
)

// Recorder keeps the sequential trace of step records for one run.
// Records are appended in step order and never modified afterwards.
type Recorder struct {
	records []ir.StepRecord
}

// NewRecorder creates an empty trace.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Append adds the record for a completed step.
func (r *Recorder) Append(rec ir.StepRecord) {
	r.records = append(r.records, rec)
}

// Records returns a copy of the trace.
func (r *Recorder) Records() []ir.StepRecord {
	return slices.Clone(r.records)
}

// Len returns the number of recorded steps.
func (r *Recorder) Len() int {
	return len(r.records)
}

// Last returns the most recent record.
func (r *Recorder) Last() (ir.StepRecord, bool) {
	if len(r.records) == 0 {
		return ir.StepRecord{}, false
	}
	return r.records[len(r.records)-1], true
}

// FiringsOf returns every firing of node id, in step order, with its step.
func (r *Recorder) FiringsOf(id string) []NodeFiring {
	var out []NodeFiring
	for _, rec := range r.records {
		for _, f := range rec.Firings {
			if f.Node == id {
				out = append(out, NodeFiring{Step: rec.Step, Firing: f})
			}
		}
	}
	return out
}

// Filter returns the firings matching p, in trace order. It answers the
// same queries the store compiles to SQL.
func (r *Recorder) Filter(p queryir.Predicate) []NodeFiring {
	var out []NodeFiring
	for _, rec := range r.records {
		for _, f := range rec.Firings {
			if queryir.Match(p, rec.Step, f) {
				out = append(out, NodeFiring{Step: rec.Step, Firing: f})
			}
		}
	}
	return out
}

// Hash returns the canonical digest of the trace.
func (r *Recorder) Hash() (string, error) {
	return ir.TraceHash(r.records)
}

// Reset empties the trace.
func (r *Recorder) Reset() {
	clear(r.records)
	r.records = r.records[:0]
}

// NodeFiring pairs a firing with the step it happened in.
type NodeFiring struct {
	Step int64
	ir.Firing
}
