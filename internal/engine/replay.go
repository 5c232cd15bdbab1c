package engine

import (
	"context"
	"fmt"

	"github.com/roach88/dfsim/internal/ir"
)

// Replay re-executes a graph and compares the result with a recorded trace.
//
// Determinism is structural, not a special mode: Replay builds an ordinary
// State with the same bindings and options and runs it for as many steps as
// the recording holds. Any difference in firing set, consumed tokens,
// produced tokens or memory writes shows up as a differing step record.
//
// ## Divergence
//
// Steps are compared one by one through their canonical digests. The first
// differing step is reported; a shorter or longer replay diverges at the
// first step that exists on only one side.
//
// ## Typical Use
//
//	rec, _ := st.ReadTrace(ctx, runID)
//	res, err := engine.Replay(graph, bindings, rec)
//	if !res.Identical {
//	    // nondeterminism, or the graph changed since the recording
//	}
func Replay(g ir.Graph, inputs map[string]ir.Value, recorded []ir.StepRecord, opts ...Option) (*ReplayResult, error) {
	st, err := New(g, inputs, opts...)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	limit := len(recorded)
	if limit == 0 {
		// Allow one step so that a run that now fires is caught.
		limit = 1
	}
	outcome, err := st.run(context.Background(), limit)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	replayed := st.Trace()
	res := &ReplayResult{Outcome: outcome, Steps: len(replayed)}

	res.RecordedHash, err = ir.TraceHash(recorded)
	if err != nil {
		return nil, fmt.Errorf("replay: recorded trace: %w", err)
	}
	res.ReplayedHash, err = ir.TraceHash(replayed)
	if err != nil {
		return nil, fmt.Errorf("replay: replayed trace: %w", err)
	}
	res.Identical = res.RecordedHash == res.ReplayedHash
	if !res.Identical {
		res.Divergence, err = firstDivergence(recorded, replayed)
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
	}
	return res, nil
}

// ReplayResult reports how a replay compared with its recording.
type ReplayResult struct {
	Identical    bool
	RecordedHash string
	ReplayedHash string

	// Divergence is the 1-based index of the first differing step,
	// 0 when the traces are identical.
	Divergence int

	// Steps is the number of steps the replay fired.
	Steps   int
	Outcome Outcome
}

func firstDivergence(a, b []ir.StepRecord) (int, error) {
	for i := 0; i < min(len(a), len(b)); i++ {
		ha, err := ir.TraceHash(a[i : i+1])
		if err != nil {
			return 0, err
		}
		hb, err := ir.TraceHash(b[i : i+1])
		if err != nil {
			return 0, err
		}
		if ha != hb {
			return i + 1, nil
		}
	}
	return min(len(a), len(b)) + 1, nil
}
