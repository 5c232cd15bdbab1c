// Package querysql compiles queryir selections into parameterized SQL
// over the store's firings table.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/dfsim/internal/queryir"
)

// FiringColumns is the column list every compiled query selects, in scan order.
const FiringColumns = "step, ord, node_id, kind, inputs, output"

// SQLCompiler compiles queryir selections to parameterized SQL for SQLite.
//
// CRITICAL: ALL queries order by step, then firing position, so results
// follow trace order.
// CRITICAL: All values are parameterized (never interpolated).
type SQLCompiler struct {
	// Table is the firings table name. Defaults to "firings".
	Table string
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: "firings"}
}

// Compile converts a queryir.Select to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Select) (string, []any, error) {
	if errs := queryir.Validate(q); len(errs) > 0 {
		return "", nil, fmt.Errorf("invalid query: %w", errs[0])
	}

	where, params, err := c.compilePredicate(q.Filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE run_id = ?", FiringColumns, c.table())
	params = append([]any{q.Run}, params...)
	if where != "" {
		b.WriteString(" AND ")
		b.WriteString(where)
	}
	b.WriteString(" ORDER BY " + stableOrderKey)
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}

	return b.String(), params, nil
}

// stableOrderKey is appended to every query so results follow trace order.
const stableOrderKey = "step ASC, ord ASC"

func (c *SQLCompiler) table() string {
	if c.Table == "" {
		return "firings"
	}
	return c.Table
}

// compilePredicate compiles a predicate to a WHERE clause fragment.
// A nil predicate compiles to the empty string.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "", nil, nil
	case queryir.NodeEquals:
		return "node_id = ?", []any{pred.Node}, nil
	case queryir.KindEquals:
		return "kind = ?", []any{pred.Kind.String()}, nil
	case queryir.StepRange:
		return compileStepRange(pred)
	case queryir.Produced:
		return "produced = ?", []any{pred.Value}, nil
	case queryir.And:
		return c.compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileStepRange(r queryir.StepRange) (string, []any, error) {
	switch {
	case r.From > 0 && r.To > 0:
		return "step BETWEEN ? AND ?", []any{r.From, r.To}, nil
	case r.From > 0:
		return "step >= ?", []any{r.From}, nil
	case r.To > 0:
		return "step <= ?", []any{r.To}, nil
	}
	return "", nil, nil
}

// compileAnd compiles an And predicate to a parenthesized conjunction.
// Sub-predicates that compile to nothing are dropped.
func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	var parts []string
	var params []any

	for _, pred := range and.Predicates {
		sql, p, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		if sql == "" {
			continue
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}

	switch len(parts) {
	case 0:
		return "", nil, nil
	case 1:
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}
