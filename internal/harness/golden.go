package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/dfsim/internal/ir"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonicalMap converts the snapshot for ir.MarshalCanonical, which
// only handles Values and JSON primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Result.Trace))
	for i, event := range s.Result.Trace {
		eventMap := map[string]any{
			"step": event.Step,
			"node": event.Node,
			"kind": event.Kind,
		}
		if len(event.Inputs) > 0 {
			inputs := make([]any, len(event.Inputs))
			for j, v := range event.Inputs {
				inputs[j] = v
			}
			eventMap["inputs"] = inputs
		}
		if event.Output != nil {
			eventMap["output"] = event.Output
		}
		traceList[i] = eventMap
	}

	out := map[string]any{
		"scenario_name": s.ScenarioName,
		"status":        s.Result.Status,
		"steps":         s.Result.Steps,
		"trace":         traceList,
	}
	if s.Result.Return != nil {
		out["return"] = s.Result.Return
	}
	if len(s.Result.Memory) > 0 {
		cells := make([]any, len(s.Result.Memory))
		for i, c := range s.Result.Memory {
			cells[i] = map[string]any{"address": c.Address, "value": c.Value}
		}
		out["memory"] = cells
	}
	return out
}

// Snapshot renders a result as canonical JSON for golden comparison.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: scenarioName, Result: result}
	return ir.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
