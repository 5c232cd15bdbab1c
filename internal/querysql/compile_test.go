package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dfsim/internal/ir"
	"github.com/roach88/dfsim/internal/queryir"
)

const base = "SELECT step, ord, node_id, kind, inputs, output FROM firings WHERE run_id = ?"

func TestCompile(t *testing.T) {
	tests := []struct {
		name   string
		q      queryir.Select
		sql    string
		params []any
	}{
		{
			name:   "whole run",
			q:      queryir.Select{Run: "r1"},
			sql:    base + " ORDER BY step ASC, ord ASC",
			params: []any{"r1"},
		},
		{
			name:   "node",
			q:      queryir.Select{Run: "r1", Filter: queryir.NodeEquals{Node: "ld"}},
			sql:    base + " AND node_id = ? ORDER BY step ASC, ord ASC",
			params: []any{"r1", "ld"},
		},
		{
			name:   "kind",
			q:      queryir.Select{Run: "r1", Filter: queryir.KindEquals{Kind: ir.KindCarry}},
			sql:    base + " AND kind = ? ORDER BY step ASC, ord ASC",
			params: []any{"r1", "Carry"},
		},
		{
			name:   "closed range",
			q:      queryir.Select{Run: "r1", Filter: queryir.StepRange{From: 2, To: 5}},
			sql:    base + " AND step BETWEEN ? AND ? ORDER BY step ASC, ord ASC",
			params: []any{"r1", int64(2), int64(5)},
		},
		{
			name:   "lower bound",
			q:      queryir.Select{Run: "r1", Filter: queryir.StepRange{From: 3}},
			sql:    base + " AND step >= ? ORDER BY step ASC, ord ASC",
			params: []any{"r1", int64(3)},
		},
		{
			name:   "upper bound",
			q:      queryir.Select{Run: "r1", Filter: queryir.StepRange{To: 3}},
			sql:    base + " AND step <= ? ORDER BY step ASC, ord ASC",
			params: []any{"r1", int64(3)},
		},
		{
			name:   "open range drops out",
			q:      queryir.Select{Run: "r1", Filter: queryir.StepRange{}},
			sql:    base + " ORDER BY step ASC, ord ASC",
			params: []any{"r1"},
		},
		{
			name: "conjunction with limit",
			q: queryir.Select{
				Run:   "r1",
				Limit: 4,
				Filter: queryir.And{Predicates: []queryir.Predicate{
					queryir.NodeEquals{Node: "c"},
					queryir.Produced{Value: true},
				}},
			},
			sql:    base + " AND (node_id = ? AND produced = ?) ORDER BY step ASC, ord ASC LIMIT ?",
			params: []any{"r1", "c", true, 4},
		},
		{
			name: "single-member and",
			q: queryir.Select{Run: "r1", Filter: queryir.And{Predicates: []queryir.Predicate{
				queryir.StepRange{},
				queryir.Produced{Value: false},
			}}},
			sql:    base + " AND produced = ? ORDER BY step ASC, ord ASC",
			params: []any{"r1", false},
		},
	}

	c := NewSQLCompiler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := c.Compile(tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestCompileRejectsInvalidQuery(t *testing.T) {
	c := NewSQLCompiler()

	_, _, err := c.Compile(queryir.Select{})
	assert.ErrorContains(t, err, "run id is required")

	_, _, err = c.Compile(queryir.Select{Run: "r", Filter: queryir.StepRange{From: 4, To: 1}})
	assert.Error(t, err)
}

func TestCompileCustomTable(t *testing.T) {
	c := &SQLCompiler{Table: "archived_firings"}
	sql, _, err := c.Compile(queryir.Select{Run: "r"})
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM archived_firings WHERE")
}
