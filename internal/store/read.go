package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
	"github.com/roach88/dfsim/internal/queryir"
	"github.com/roach88/dfsim/internal/querysql"
)

const runColumns = `id, seq, graph_name, graph_hash, graph_json, bindings, memory_seed, one_shot, max_steps,
	status, limit_reached, return_value, steps, pending, trace_hash, engine_version, ir_version`

// ReadRun retrieves a single run header by id.
// Returns sql.ErrNoRows (wrapped) if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// LatestRun returns the most recently written run.
// Returns sql.ErrNoRows (wrapped) if the store is empty.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq DESC LIMIT 1`)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("read latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns every run header ordered by seq ASC.
// If graph is non-empty only runs of that graph name are returned.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context, graph string) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if graph != "" {
		query += ` WHERE graph_name = ?`
		args = append(args, graph)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run                               Run
		graphJSON, bindings, seed, status string
		ret                               *string
	)
	err := row.Scan(
		&run.ID,
		&run.Seq,
		&run.Graph.Name,
		&run.GraphHash,
		&graphJSON,
		&bindings,
		&seed,
		&run.Config.OneShot,
		&run.Config.MaxSteps,
		&status,
		&run.LimitReached,
		&ret,
		&run.Steps,
		&run.Pending,
		&run.TraceHash,
		&run.EngineVersion,
		&run.IRVersion,
	)
	if err != nil {
		return Run{}, err
	}

	if err := json.Unmarshal([]byte(graphJSON), &run.Graph); err != nil {
		return Run{}, fmt.Errorf("unmarshal graph: %w", err)
	}
	if run.Graph.Edges == nil {
		run.Graph.Edges = []ir.Edge{}
	}
	if run.Config.Inputs, err = unmarshalBindings(bindings); err != nil {
		return Run{}, err
	}
	if run.Config.Memory, err = unmarshalCells(seed); err != nil {
		return Run{}, err
	}
	if run.Status, err = engine.ParseStatus(status); err != nil {
		return Run{}, err
	}
	if run.Return, err = unmarshalValue(ret); err != nil {
		return Run{}, fmt.Errorf("unmarshal return value: %w", err)
	}
	return run, nil
}

// ReadTrace rebuilds the step records of a run in step order.
// Returns an empty slice (not nil) for a run that never fired.
func (s *Store) ReadTrace(ctx context.Context, runID string) ([]ir.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step, completed FROM steps WHERE run_id = ? ORDER BY step ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}

	records := []ir.StepRecord{}
	index := make(map[int64]int)
	for rows.Next() {
		var rec ir.StepRecord
		if err := rows.Scan(&rec.Step, &rec.Completed); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan step: %w", err)
		}
		rec.Firings = []ir.Firing{}
		index[rec.Step] = len(records)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	rows.Close()

	firings, err := s.QueryFirings(ctx, queryir.Select{Run: runID})
	if err != nil {
		return nil, err
	}
	for _, f := range firings {
		i, ok := index[f.Step]
		if !ok {
			return nil, fmt.Errorf("firing of %q in unknown step %d", f.Node, f.Step)
		}
		records[i].Firings = append(records[i].Firings, f.Firing)
	}

	writes, err := s.readWrites(ctx, runID)
	if err != nil {
		return nil, err
	}
	for step, ws := range writes {
		i, ok := index[step]
		if !ok {
			return nil, fmt.Errorf("memory write in unknown step %d", step)
		}
		records[i].Writes = ws
	}

	return records, nil
}

func (s *Store) readWrites(ctx context.Context, runID string) (map[int64][]ir.MemoryWrite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step, node_id, address, value
		FROM memory_writes
		WHERE run_id = ?
		ORDER BY step ASC, ord ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query memory writes: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]ir.MemoryWrite)
	for rows.Next() {
		var (
			step int64
			w    ir.MemoryWrite
			val  string
		)
		if err := rows.Scan(&step, &w.Node, &w.Address, &val); err != nil {
			return nil, fmt.Errorf("scan memory write: %w", err)
		}
		if w.Value, err = ir.UnmarshalValue([]byte(val)); err != nil {
			return nil, fmt.Errorf("unmarshal memory write: %w", err)
		}
		out[step] = append(out[step], w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory writes: %w", err)
	}
	return out, nil
}

// QueryFirings returns the firings selected by q, in trace order.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) QueryFirings(ctx context.Context, q queryir.Select) ([]engine.NodeFiring, error) {
	query, params, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	out := []engine.NodeFiring{}
	for rows.Next() {
		var (
			nf       engine.NodeFiring
			ord      int
			kind     string
			inputs   string
			outValue *string
		)
		if err := rows.Scan(&nf.Step, &ord, &nf.Node, &kind, &inputs, &outValue); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		if nf.Kind, err = ir.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("scan firing %q: %w", nf.Node, err)
		}
		if nf.Inputs, err = unmarshalTokens(inputs); err != nil {
			return nil, fmt.Errorf("scan firing %q: %w", nf.Node, err)
		}
		if nf.Output, err = unmarshalValue(outValue); err != nil {
			return nil, fmt.Errorf("scan firing %q: %w", nf.Node, err)
		}
		out = append(out, nf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	return out, nil
}

// ReadMemory returns a run's final memory ordered by address.
func (s *Store) ReadMemory(ctx context.Context, runID string) ([]engine.Cell, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, value FROM memory_cells WHERE run_id = ? ORDER BY address ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query memory: %w", err)
	}
	defer rows.Close()

	cells := []engine.Cell{}
	for rows.Next() {
		var (
			c   engine.Cell
			val string
		)
		if err := rows.Scan(&c.Address, &val); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if c.Value, err = ir.UnmarshalValue([]byte(val)); err != nil {
			return nil, fmt.Errorf("unmarshal memory @%d: %w", c.Address, err)
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory: %w", err)
	}
	return cells, nil
}

// DeleteRun removes a run and everything recorded for it.
// Returns sql.ErrNoRows (wrapped) if the run does not exist.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}
