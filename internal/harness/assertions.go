package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/dfsim/internal/ir"
	"github.com/roach88/dfsim/internal/queryir"
	"github.com/roach88/dfsim/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", event.Step, event.Kind, event.Node, describe(event.Output))
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the persisted run.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	RunID string
}

// EvaluateAssertions evaluates all assertions against the result and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFiredCount:
			err = assertFiredCount(result.Trace, assertion)
		case AssertNeverFired:
			err = assertNeverFired(result.Trace, assertion)
		case AssertFiredBefore:
			err = assertFiredBefore(result.Trace, assertion)
		case AssertProduced:
			err = assertProduced(result.Trace, assertion)
		case AssertFiringQuery:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: firing_query requires a run store", i)
			} else {
				err = assertFiringQuery(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func countFirings(trace []TraceEvent, node string) int {
	n := 0
	for _, e := range trace {
		if e.Node == node {
			n++
		}
	}
	return n
}

func assertFiredCount(trace []TraceEvent, a Assertion) error {
	count := countFirings(trace, a.Node)
	if count != a.Count {
		return &AssertionError{
			Type:     AssertFiredCount,
			Expected: fmt.Sprintf("%d firings of %s", a.Count, a.Node),
			Actual:   fmt.Sprintf("%d firings", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertNeverFired(trace []TraceEvent, a Assertion) error {
	for _, e := range trace {
		if e.Node == a.Node {
			return &AssertionError{
				Type:     AssertNeverFired,
				Expected: fmt.Sprintf("%s never fires", a.Node),
				Actual:   fmt.Sprintf("%s fired in step %d", a.Node, e.Step),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertFiredBefore checks the first firings of the listed nodes happen in
// strictly increasing steps. Firings within one step are simultaneous, so
// sharing a step fails the assertion.
func assertFiredBefore(trace []TraceEvent, a Assertion) error {
	first := make(map[string]int64)
	for _, e := range trace {
		if _, seen := first[e.Node]; !seen {
			first[e.Node] = e.Step
		}
	}

	for _, node := range a.Nodes {
		if _, ok := first[node]; !ok {
			return &AssertionError{
				Type:     AssertFiredBefore,
				Expected: fmt.Sprintf("all nodes fire: %v", a.Nodes),
				Actual:   fmt.Sprintf("%s never fired", node),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Nodes); i++ {
		prev, curr := a.Nodes[i-1], a.Nodes[i]
		if first[prev] >= first[curr] {
			return &AssertionError{
				Type:     AssertFiredBefore,
				Expected: fmt.Sprintf("first firings in order: %v", a.Nodes),
				Actual: fmt.Sprintf("%s (step %d) should be before %s (step %d)",
					prev, first[prev], curr, first[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertProduced(trace []TraceEvent, a Assertion) error {
	want, err := ir.FromNative(a.Value)
	if err != nil {
		return fmt.Errorf("produced %s: %w", a.Node, err)
	}

	var seen []string
	for _, e := range trace {
		if e.Node != a.Node || !e.Produced() {
			continue
		}
		if ir.Equal(e.Output, want) {
			return nil
		}
		seen = append(seen, describe(e.Output))
	}

	actual := "no tokens produced"
	if len(seen) > 0 {
		actual = "produced " + strings.Join(seen, ", ")
	}
	return &AssertionError{
		Type:     AssertProduced,
		Expected: fmt.Sprintf("%s produces %s", a.Node, describe(want)),
		Actual:   actual,
		Trace:    trace,
	}
}

// assertFiringQuery runs a trace query against the store and checks the
// number of matching firings.
func assertFiringQuery(actx *AssertionContext, a Assertion) error {
	q, err := a.Query.Select(actx.RunID)
	if err != nil {
		return fmt.Errorf("firing_query: %w", err)
	}
	firings, err := actx.Store.QueryFirings(actx.Ctx, q)
	if err != nil {
		return &AssertionError{
			Type:     AssertFiringQuery,
			Expected: fmt.Sprintf("%d matching firings", a.Count),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if len(firings) != a.Count {
		return &AssertionError{
			Type:     AssertFiringQuery,
			Expected: fmt.Sprintf("%d matching firings", a.Count),
			Actual:   fmt.Sprintf("%d matching firings", len(firings)),
		}
	}
	return nil
}

// Select converts the YAML query into the trace query IR.
func (q *FiringQuery) Select(runID string) (queryir.Select, error) {
	var preds []queryir.Predicate
	if q.Node != "" {
		preds = append(preds, queryir.NodeEquals{Node: q.Node})
	}
	if q.Kind != "" {
		k, err := ir.ParseKind(q.Kind)
		if err != nil {
			return queryir.Select{}, err
		}
		preds = append(preds, queryir.KindEquals{Kind: k})
	}
	if q.From != 0 || q.To != 0 {
		preds = append(preds, queryir.StepRange{From: q.From, To: q.To})
	}
	if q.Produced != nil {
		preds = append(preds, queryir.Produced{Value: *q.Produced})
	}
	return queryir.Select{Run: runID, Filter: queryir.Conjoin(preds...)}, nil
}

func sortedAddrs(image map[int64]ir.Value) []int64 {
	addrs := make([]int64, 0, len(image))
	for a := range image {
		addrs = append(addrs, a)
	}
	slices.Sort(addrs)
	return addrs
}
