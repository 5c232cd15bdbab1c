package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dfsim/internal/engine"
)

const sumCUE = `graph: {
	name: "sum"
	nodes: {
		a:   {kind: "Input", value: 5}
		ten: {kind: "Constant", value: 10}
		add: {kind: "BinaryOp", op: "+", inputs: ["a", "ten"]}
		ret: {kind: "Output", inputs: ["add"]}
	}
}
`

const counterHCL = `graph "counter" {
  node "zero" {
    kind  = "Constant"
    value = 0
  }
  node "limit" {
    kind  = "Constant"
    value = 3
  }
  node "one" {
    kind  = "Constant"
    value = 1
  }
  node "c" {
    kind   = "Carry"
    inputs = ["zero", "inc"]
  }
  node "lt" {
    kind   = "BinaryOp"
    op     = "<"
    inputs = ["c", "limit"]
  }
  node "again" {
    kind   = "TrueSteer"
    inputs = ["lt", "c"]
  }
  node "done" {
    kind   = "FalseSteer"
    inputs = ["lt", "c"]
  }
  node "inc" {
    kind   = "BinaryOp"
    op     = "+"
    inputs = ["again", "one"]
  }
  node "ret" {
    kind   = "Output"
    inputs = ["done"]
  }
}
`

const memoryHCL = `graph "memory" {
  node "addr" {
    kind  = "Constant"
    value = 1
  }
  node "val" {
    kind  = "Constant"
    value = 42
  }
  node "off" {
    kind  = "Constant"
    value = 0
  }
  node "st" {
    kind   = "Store"
    inputs = ["addr", "val", "off"]
  }
  node "laddr" {
    kind  = "Input"
    value = 1
  }
  node "ld" {
    kind   = "Load"
    inputs = ["laddr", "off", "st"]
  }
  node "ret" {
    kind   = "Output"
    inputs = ["ld"]
  }
}
`

const twoOutputsCUE = `graph: {
	name: "two_outputs"
	nodes: {
		x:  {kind: "Constant", value: 1}
		r1: {kind: "Output", inputs: ["x"]}
		r2: {kind: "Output", inputs: ["x"]}
	}
}
`

const noOutputCUE = `graph: {
	name: "no_output"
	nodes: {
		x: {kind: "Constant", value: 1}
	}
}
`

const badKindCUE = `graph: {
	name: "bad_kind"
	nodes: {
		x:   {kind: "Teleport"}
		ret: {kind: "Output", inputs: ["x"]}
	}
}
`

// writeGraph writes a graph source into dir and returns its path.
func writeGraph(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// storeRuns runs each graph with --db, assigning ids in order.
func storeRuns(t *testing.T, dbPath string, ids []string, runs ...[]string) {
	t.Helper()
	gen := engine.NewFixedGenerator(ids...)
	for _, args := range runs {
		opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}, RunIDs: gen}
		_, _ = execute(newRunCommand(opts), append([]string{"--db", dbPath}, args...)...)
	}
}
