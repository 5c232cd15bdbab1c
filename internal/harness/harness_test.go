package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_TestdataScenarios(t *testing.T) {
	names := []string{
		"sum_one_shot",
		"sum_repeating",
		"branch_false",
		"counter_loop",
		"memory_store_load",
		"memory_seeded",
		"memory_miss_stuck",
		"memory_miss_bounded",
		"two_outputs",
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_ReadsBackPersistedRun(t *testing.T) {
	s := loadTestScenario(t, "memory_store_load")
	s.RunID = "run-under-test"

	result, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, "run-under-test", result.RunID)
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, ir.Int(42), result.Return)
	assert.Equal(t, int64(4), result.Steps)
	assert.Equal(t, []engine.Cell{{Address: 1, Value: ir.Int(42)}}, result.Memory)

	require.Len(t, result.Trace, 7)
	st := result.Trace[4]
	assert.Equal(t, TraceEvent{
		Step:   2,
		Node:   "st",
		Kind:   "Store",
		Inputs: []ir.Value{ir.Int(1), ir.Int(42), ir.Int(0)},
		Output: ir.Bool(true),
	}, st)
	assert.Nil(t, result.Trace[0].Inputs, "sources consume nothing")
}

func TestRun_DefaultRunID(t *testing.T) {
	result, err := Run(loadTestScenario(t, "sum_one_shot"))
	require.NoError(t, err)
	assert.Equal(t, "test-run-default", result.RunID)
}

func TestRun_ExpectMismatchesAreReported(t *testing.T) {
	s := loadTestScenario(t, "sum_one_shot")
	pending := 4
	reached := true
	s.Expect = ExpectClause{
		Status:       "stuck",
		Return:       16,
		Steps:        2,
		Pending:      &pending,
		LimitReached: &reached,
		Memory:       map[int64]any{9: 1},
	}
	s.Assertions = nil

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"expected status stuck, got completed",
		"expected return int:16, got int:15",
		"expected 2 steps, got 3",
		"expected 4 pending tokens, got 0",
		"expected limit_reached true, got false",
		"expected memory @9 = int:1, got undefined",
	}, result.Errors)
}

func TestRun_ReturnTypeMatters(t *testing.T) {
	s := loadTestScenario(t, "sum_one_shot")
	s.Expect.Return = 15.0

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, "expected return float:15, got int:15")
}

func TestRun_NoReturnOnCompletedRun(t *testing.T) {
	s := loadTestScenario(t, "sum_one_shot")
	s.Expect.Return = nil
	s.Expect.NoReturn = true

	result, err := Run(s)
	require.NoError(t, err)
	assert.Contains(t, result.Errors, "expected no return value, got int:15")
}

func TestRun_FailedRunCarriesErrorCode(t *testing.T) {
	result, err := Run(loadTestScenario(t, "two_outputs"))
	require.NoError(t, err)

	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, string(engine.ErrCodeAmbiguousOutput), result.ErrorCode)
	assert.Nil(t, result.Return)
}

func TestRun_InvalidGraphIsAnError(t *testing.T) {
	dir := t.TempDir()
	graph := writeFile(t, dir, "bad.cue", `graph: {
	name: "bad"
	nodes: {
		x: {kind: "Constant", value: 1}
	}
}
`)
	s := &Scenario{Name: "bad", Graph: graph, Expect: ExpectClause{Status: "completed"}}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E103")
}

func TestRun_BadBindingIsAnError(t *testing.T) {
	s := loadTestScenario(t, "sum_one_shot")
	s.Inputs = map[string]any{"ten": 3}

	_, err := Run(s)
	require.Error(t, err)
	assert.True(t, engine.HasConfigCode(err, engine.ErrCodeBadBinding))
}
