package store

import (
	"context"
	"fmt"

	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
)

// ReplayReport pairs a stored run with the result of re-executing it.
type ReplayReport struct {
	Run    Run
	Result *engine.ReplayResult
}

// ReplayRun re-executes a stored run from its recorded graph, bindings and
// options, and compares the new trace with the stored one.
//
// The stored graph is checked against its recorded digest first, so a
// tampered or corrupted row is reported as an error rather than as a
// divergence.
func (s *Store) ReplayRun(ctx context.Context, id string, opts ...engine.Option) (ReplayReport, error) {
	run, err := s.ReadRun(ctx, id)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	hash, err := ir.GraphHash(run.Graph)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}
	if hash != run.GraphHash {
		return ReplayReport{}, fmt.Errorf("replay: run %s graph digest %s does not match recorded %s", id, hash, run.GraphHash)
	}

	trace, err := s.ReadTrace(ctx, id)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	res, err := engine.Replay(run.Graph, run.Config.Inputs, trace, run.Config.Options(opts...)...)
	if err != nil {
		return ReplayReport{}, err
	}
	return ReplayReport{Run: run, Result: res}, nil
}
