package store

import (
	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
)

// Run is one persisted execution: the graph and config that determine it,
// how it ended, and the digests needed to verify a replay.
type Run struct {
	ID        string
	Seq       int64
	Graph     ir.Graph
	GraphHash string
	Config    engine.RunConfig

	Status       engine.Status
	LimitReached bool
	Return       ir.Value
	Steps        int64
	Pending      int
	TraceHash    string

	EngineVersion string
	IRVersion     string
}

// Capture assembles the Run record for a finished State.
// Hashes and Seq are filled in by WriteRun.
func Capture(id string, st *engine.State, out engine.Outcome, cfg engine.RunConfig) Run {
	return Run{
		ID:            id,
		Graph:         st.Graph(),
		Config:        cfg,
		Status:        out.Status,
		LimitReached:  out.LimitReached,
		Return:        out.Return,
		Steps:         st.StepCount(),
		Pending:       out.PendingTokens,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
}
