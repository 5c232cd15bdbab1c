package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepCmd(format string) *StepOptions {
	return &StepOptions{RootOptions: &RootOptions{Format: format}}
}

func decodeStepReport(t *testing.T, out string) (StepReport, *CLIError) {
	t.Helper()
	var resp struct {
		Status string     `json:"status"`
		Data   StepReport `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp.Data, resp.Error
}

func TestStep_Text(t *testing.T) {
	path := writeGraph(t, t.TempDir(), "counter.hcl", counterHCL)

	out, err := execute(NewStepCommand(stepCmd("text").RootOptions), path, "--count", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "Graph: counter")
	assert.Contains(t, out, "=== Step 1 (pending ")
	assert.Contains(t, out, "=== Step 3 (pending ")
	assert.NotContains(t, out, "=== Step 4")
	assert.Contains(t, out, "  [1] Constant zero -> int:0")
	assert.Contains(t, out, "Status: ready")
	assert.Contains(t, out, "=== Nodes ===")
	assert.Contains(t, out, "  c (Carry) pending=")
	assert.Contains(t, out, "phase=looping")
}

func TestStep_StopsWhenCompleted(t *testing.T) {
	path := writeGraph(t, t.TempDir(), "sum.cue", sumCUE)

	out, err := execute(NewStepCommand(&RootOptions{Format: "json"}), path, "--one-shot", "-n", "10")
	require.NoError(t, err)

	report, cliErr := decodeStepReport(t, out)
	assert.Nil(t, cliErr)
	assert.Equal(t, "completed", report.Status)
	require.Len(t, report.Steps, 3)
	for i, s := range report.Steps {
		assert.Equal(t, int64(i+1), s.Step)
		assert.Equal(t, "fired", s.Result)
	}
	require.Len(t, report.Steps[1].Firings, 1)
	assert.Equal(t, "add", report.Steps[1].Firings[0].Node)
	assert.Equal(t, "int:15", report.Steps[1].Firings[0].Output)

	byID := map[string]NodeView{}
	for _, n := range report.Nodes {
		byID[n.ID] = n
	}
	assert.Equal(t, "int:15", byID["ret"].LastOutput)
	assert.Equal(t, []int{0, 0}, byID["add"].Pending)
	assert.Empty(t, byID["add"].CarryPhase)
}

func TestStep_NoProgress(t *testing.T) {
	path := writeGraph(t, t.TempDir(), "memory.hcl", memoryHCL)

	out, err := execute(NewStepCommand(&RootOptions{Format: "json"}), path,
		"--one-shot", "--input", "laddr=2", "--count", "10")
	require.NoError(t, err)

	report, _ := decodeStepReport(t, out)
	require.Len(t, report.Steps, 4)
	last := report.Steps[3]
	assert.Equal(t, "no_progress", last.Result)
	assert.Zero(t, last.Step)
	assert.Empty(t, last.Firings)

	// The store commits its write at the end of its step.
	var writes []CellReport
	for _, s := range report.Steps {
		writes = append(writes, s.Writes...)
	}
	assert.Equal(t, []CellReport{{Address: 1, Value: "int:42"}}, writes)
}

func TestStep_Failure(t *testing.T) {
	path := writeGraph(t, t.TempDir(), "two.cue", twoOutputsCUE)

	out, err := execute(NewStepCommand(&RootOptions{Format: "json"}), path, "--count", "5")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	report, cliErr := decodeStepReport(t, out)
	require.NotNil(t, cliErr)
	assert.Equal(t, ErrCodeRunFailed, cliErr.Code)
	assert.Equal(t, "failed", report.Status)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, "failed", report.Steps[1].Result)
	assert.Equal(t, int64(2), report.Steps[1].Step)
	assert.Len(t, report.Steps[1].Firings, 2)
}

func TestStep_FailureText(t *testing.T) {
	path := writeGraph(t, t.TempDir(), "two.cue", twoOutputsCUE)

	out, err := execute(NewStepCommand(&RootOptions{Format: "text"}), path, "--count", "5")
	require.Error(t, err)
	assert.Contains(t, out, "Status: failed")
	assert.Contains(t, out, mark(false)+" AMBIGUOUS_OUTPUT")
}

func TestStep_BadCount(t *testing.T) {
	path := writeGraph(t, t.TempDir(), "sum.cue", sumCUE)

	out, err := execute(NewStepCommand(&RootOptions{Format: "text"}), path, "--count", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "--count must be positive")
}
