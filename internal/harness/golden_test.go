package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
)

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"sum_one_shot", "memory_store_load"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	s := loadTestScenario(t, "counter_loop")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSnapshot_Layout(t *testing.T) {
	result := NewResult()
	result.Status = "completed"
	result.Steps = 1
	result.Return = ir.Text("ok")
	result.Memory = []engine.Cell{{Address: 3, Value: ir.Bool(false)}}
	result.Trace = []TraceEvent{
		{Step: 1, Node: "k", Kind: "Constant", Output: ir.Text("ok")},
		{Step: 1, Node: "s", Kind: "TrueSteer", Inputs: []ir.Value{ir.Bool(false), ir.Float(0.5)}},
	}

	data, err := Snapshot("layout", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"memory":[{"address":3,"value":{"bool":false}}],"return":{"text":"ok"},"scenario_name":"layout","status":"completed","steps":1,`+
			`"trace":[{"kind":"Constant","node":"k","output":{"text":"ok"},"step":1},`+
			`{"inputs":[{"bool":false},{"float":0.5}],"kind":"TrueSteer","node":"s","step":1}]}`,
		string(data))
}
