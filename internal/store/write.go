package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
)

// WriteRun inserts a run with its full trace and final memory in one
// transaction. It computes the graph and trace digests and assigns the
// next Seq, updating run in place.
//
// Run ids are unique; writing the same id twice is an error.
func (s *Store) WriteRun(ctx context.Context, run *Run, trace []ir.StepRecord, memory []engine.Cell) error {
	var err error
	if run.GraphHash, err = ir.GraphHash(run.Graph); err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	if run.TraceHash, err = ir.TraceHash(trace); err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	if run.EngineVersion == "" {
		run.EngineVersion = ir.EngineVersion
	}
	if run.IRVersion == "" {
		run.IRVersion = ir.IRVersion
	}

	graphJSON, err := json.Marshal(run.Graph)
	if err != nil {
		return fmt.Errorf("write run: marshal graph: %w", err)
	}
	bindingsJSON, err := marshalBindings(run.Config.Inputs)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	seedJSON, err := marshalCells(run.Config.Memory)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	ret, err := marshalValue(run.Return)
	if err != nil {
		return fmt.Errorf("write run: return value: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
		return fmt.Errorf("write run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, graph_name, graph_hash, graph_json, bindings, memory_seed, one_shot, max_steps,
		 status, limit_reached, return_value, steps, pending, trace_hash, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Seq,
		run.Graph.Name,
		run.GraphHash,
		string(graphJSON),
		bindingsJSON,
		seedJSON,
		run.Config.OneShot,
		run.Config.MaxSteps,
		run.Status.String(),
		run.LimitReached,
		ret,
		run.Steps,
		run.Pending,
		run.TraceHash,
		run.EngineVersion,
		run.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write run: insert run: %w", err)
	}

	for _, rec := range trace {
		if err := writeStep(ctx, tx, run.ID, rec); err != nil {
			return fmt.Errorf("write run: step %d: %w", rec.Step, err)
		}
	}

	for _, c := range memory {
		val, err := marshalValue(c.Value)
		if err != nil {
			return fmt.Errorf("write run: memory @%d: %w", c.Address, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_cells (run_id, address, value) VALUES (?, ?, ?)
		`, run.ID, c.Address, val); err != nil {
			return fmt.Errorf("write run: memory @%d: %w", c.Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: commit: %w", err)
	}
	return nil
}

func writeStep(ctx context.Context, tx *sql.Tx, runID string, rec ir.StepRecord) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO steps (run_id, step, completed) VALUES (?, ?, ?)
	`, runID, rec.Step, rec.Completed); err != nil {
		return fmt.Errorf("insert step: %w", err)
	}

	for ord, f := range rec.Firings {
		inputs, err := marshalTokens(f.Inputs)
		if err != nil {
			return err
		}
		out, err := marshalValue(f.Output)
		if err != nil {
			return fmt.Errorf("firing %q output: %w", f.Node, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO firings (run_id, step, ord, node_id, kind, inputs, output, produced)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, rec.Step, ord, f.Node, f.Kind.String(), inputs, out, f.Produced()); err != nil {
			return fmt.Errorf("insert firing %q: %w", f.Node, err)
		}
	}

	for ord, w := range rec.Writes {
		val, err := marshalValue(w.Value)
		if err != nil {
			return fmt.Errorf("write @%d: %w", w.Address, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_writes (run_id, step, ord, node_id, address, value)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, rec.Step, ord, w.Node, w.Address, val); err != nil {
			return fmt.Errorf("insert write @%d: %w", w.Address, err)
		}
	}
	return nil
}

// SaveRun captures a finished State and writes it.
func (s *Store) SaveRun(ctx context.Context, id string, st *engine.State, out engine.Outcome, cfg engine.RunConfig) (Run, error) {
	run := Capture(id, st, out, cfg)
	if err := s.WriteRun(ctx, &run, st.Trace(), st.Memory()); err != nil {
		return Run{}, err
	}
	return run, nil
}
