package engine

import (
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dfsim/internal/ir"
	"github.com/roach88/dfsim/internal/queryir"
	"github.com/roach88/dfsim/internal/testutil"
)

func newState(t *testing.T, g ir.Graph, inputs map[string]ir.Value, opts ...Option) *State {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	st, err := New(g, inputs, opts...)
	require.NoError(t, err)
	return st
}

func runToEnd(t *testing.T, st *State) Outcome {
	t.Helper()
	out, err := st.Run(200)
	require.NoError(t, err)
	return out
}

func TestSum_ReturnsInputPlusTen(t *testing.T) {
	st := newState(t, testutil.SumGraph(), map[string]ir.Value{"a": ir.Int(5)})

	out := runToEnd(t, st)

	assert.Equal(t, StatusCompleted, out.Status)
	require.True(t, out.HasReturn)
	assert.Equal(t, ir.Int(15), out.Return)
	assert.Equal(t, 3, out.Steps)
	assert.Empty(t, st.Memory(), "no Load/Store, memory stays empty")
	assert.True(t, st.Completed())
}

func TestSum_OneShotSources(t *testing.T) {
	st := newState(t, testutil.SumGraph(), map[string]ir.Value{"a": ir.Int(5)}, WithOneShotSources())

	res, err := st.Step()
	require.NoError(t, err)
	assert.Equal(t, StepFired, res.Status)
	assert.Equal(t, []string{"a", "ten"}, res.Record.Fired())

	res, err = st.Step()
	require.NoError(t, err)
	assert.Equal(t, []string{"add"}, res.Record.Fired())

	res, err = st.Step()
	require.NoError(t, err)
	assert.Equal(t, []string{"ret"}, res.Record.Fired())
	assert.True(t, res.Record.Completed)
	assert.Equal(t, 0, res.PendingTokens)

	v, ok := st.ReturnValue()
	require.True(t, ok)
	assert.Equal(t, ir.Int(15), v)
}

func TestBranch_SelectsByComparison(t *testing.T) {
	tests := []struct {
		a    int64
		want ir.Value
	}{
		{15, ir.Int(15)},
		{5, ir.Int(10)},
		{10, ir.Int(10)},
	}
	for _, tt := range tests {
		st := newState(t, testutil.BranchGraph(), map[string]ir.Value{"a": ir.Int(tt.a)})
		out := runToEnd(t, st)
		require.Equal(t, StatusCompleted, out.Status, "a=%d", tt.a)
		assert.Equal(t, tt.want, out.Return, "a=%d", tt.a)
	}
}

func TestMemory_StoreThenLoad(t *testing.T) {
	st := newState(t, testutil.MemoryGraph(1), nil)

	out := runToEnd(t, st)

	require.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, ir.Int(42), out.Return)
	assert.Equal(t, []Cell{{Address: 1, Value: ir.Int(42)}}, st.Memory())
}

func TestMemory_LoadOfMissingAddressStalls(t *testing.T) {
	st := newState(t, testutil.MemoryGraph(2), nil, WithOneShotSources())

	out := runToEnd(t, st)

	assert.Equal(t, StatusStuck, out.Status)
	assert.False(t, out.LimitReached)
	assert.False(t, out.HasReturn)
	assert.Equal(t, 0, out.PendingTokens, "every token was consumed; the load simply produced nothing")
	assert.Equal(t, 3, out.Steps)

	ld := st.trace.FiringsOf("ld")
	require.Len(t, ld, 1)
	assert.False(t, ld[0].Produced())

	res, err := st.Step()
	require.NoError(t, err)
	assert.Equal(t, StepNoProgress, res.Status)
}

func TestMemory_LoadOfMissingAddressHitsBound(t *testing.T) {
	st := newState(t, testutil.MemoryGraph(2), nil)

	out, err := st.Run(25)
	require.NoError(t, err)

	assert.Equal(t, StatusStuck, out.Status)
	assert.True(t, out.LimitReached)
	assert.Equal(t, 25, out.Steps)
	assert.False(t, out.HasReturn)
	assert.True(t, IsStepsExceededError(out.Err()))
	assert.Equal(t, StatusReady, st.Status(), "the bound stops the driver, not the run")
}

func TestCounterLoop_ProducesFinalValueOnce(t *testing.T) {
	st := newState(t, testutil.CounterLoopGraph(3), nil)

	out := runToEnd(t, st)

	require.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, ir.Int(3), out.Return)
	assert.Equal(t, 17, out.Steps)

	produced := 0
	for _, f := range st.trace.FiringsOf("done") {
		if f.Produced() {
			produced++
		}
	}
	assert.Equal(t, 1, produced, "loop exit value is emitted exactly once")
	assert.Len(t, st.trace.FiringsOf("c"), 4, "carry forwards 0,1,2,3")
	assert.Len(t, st.trace.FiringsOf("ret"), 1)

	phase, ok := st.CarryPhase("c")
	require.True(t, ok)
	assert.Equal(t, "looping", phase)
}

func TestCounterLoop_NoFiringAfterCompletion(t *testing.T) {
	st := newState(t, testutil.CounterLoopGraph(3), nil)
	runToEnd(t, st)

	traceLen := len(st.Trace())
	outputs := st.Outputs()
	mem := st.Memory()
	ret, _ := st.ReturnValue()

	for i := 0; i < 3; i++ {
		res, err := st.Step()
		require.NoError(t, err)
		assert.Equal(t, StepAlreadyComplete, res.Status)
	}

	assert.Len(t, st.Trace(), traceLen)
	assert.Equal(t, outputs, st.Outputs())
	assert.Equal(t, mem, st.Memory())
	again, _ := st.ReturnValue()
	assert.Equal(t, ret, again)
}

func TestOneStepVisibility(t *testing.T) {
	g := testutil.CounterLoopGraph(3)
	st := newState(t, g, nil)
	runToEnd(t, st)

	producer := make(map[string]map[int]string)
	for _, e := range g.Edges {
		if producer[e.To] == nil {
			producer[e.To] = make(map[int]string)
		}
		producer[e.To][e.Slot] = e.From
	}

	firstProduced := make(map[string]int64)
	for _, rec := range st.Trace() {
		for _, f := range rec.Firings {
			for _, tok := range f.Inputs {
				src := producer[f.Node][tok.Slot]
				first, ok := firstProduced[src]
				require.True(t, ok, "step %d: %s consumed from %s before it produced", rec.Step, f.Node, src)
				assert.Less(t, first, rec.Step, "step %d: %s saw a same-step token", rec.Step, f.Node)
			}
		}
		for _, f := range rec.Firings {
			if _, seen := firstProduced[f.Node]; !seen && f.Produced() {
				firstProduced[f.Node] = rec.Step
			}
		}
	}
}

func TestArityConservation(t *testing.T) {
	g := testutil.BranchGraph()
	st := newState(t, g, map[string]ir.Value{"a": ir.Int(5)})

	for !st.Completed() {
		before := st.PendingCounts()
		res, err := st.Step()
		require.NoError(t, err)
		require.Equal(t, StepFired, res.Status)

		expected := make(map[string]int, len(before))
		for id, n := range before {
			expected[id] = n
		}
		for _, f := range res.Record.Firings {
			expected[f.Node] -= len(f.Inputs)
			if !f.Produced() {
				continue
			}
			for _, e := range g.Edges {
				if e.From == f.Node {
					expected[e.To]++
				}
			}
		}
		assert.Equal(t, expected, st.PendingCounts(), "step %d", res.Record.Step)
	}
}

func TestDeterminism_SameTraceHash(t *testing.T) {
	run := func() string {
		st := newState(t, testutil.CounterLoopGraph(4), nil)
		runToEnd(t, st)
		h, err := st.TraceHash()
		require.NoError(t, err)
		return h
	}
	assert.Equal(t, run(), run())
}

func TestMerge_ConsumesDeciderAndSelectedOnly(t *testing.T) {
	g := testutil.NewGraph("merge").
		Const("d", ir.Bool(true)).
		Const("x", ir.Int(1)).
		Const("y", ir.Int(2)).
		Merge("m", "d", "x", "y").
		Output("ret", "m").
		Build()
	st := newState(t, g, nil, WithOneShotSources())

	_, err := st.Step()
	require.NoError(t, err)
	res, err := st.Step()
	require.NoError(t, err)

	require.Equal(t, []string{"m"}, res.Record.Fired())
	f := res.Record.Firings[0]
	assert.Equal(t, []ir.Token{{Slot: 0, Value: ir.Bool(true)}, {Slot: 1, Value: ir.Int(1)}}, f.Inputs)
	assert.Equal(t, ir.Int(1), f.Output)
	assert.Equal(t, []int{0, 0, 1}, st.PendingBySlot("m"), "unselected value stays queued")

	out := runToEnd(t, st)
	assert.Equal(t, ir.Int(1), out.Return)
}

func TestSteer_SuppressesValue(t *testing.T) {
	g := testutil.NewGraph("steer").
		Const("no", ir.Int(0)).
		Const("v", ir.Text("x")).
		TrueSteer("ts", "no", "v").
		Output("ret", "ts").
		Build()
	st := newState(t, g, nil, WithOneShotSources())

	out := runToEnd(t, st)
	assert.Equal(t, StatusStuck, out.Status)
	_, ok := st.LastOutput("ts")
	assert.False(t, ok, "suppressed value is no token, not a zero")
}

func TestOrderAndInvariant_Select(t *testing.T) {
	base := func() *testutil.GraphBuilder {
		return testutil.NewGraph("seq").
			Const("x", ir.Int(1)).
			Const("y", ir.Int(2)).
			Const("z", ir.Int(3))
	}

	st := newState(t, base().Order("o", "x", "y", "z").Output("ret", "o").Build(), nil)
	assert.Equal(t, ir.Int(3), runToEnd(t, st).Return, "Order forwards its last input")

	st = newState(t, base().Invariant("i", "x", "y", "z").Output("ret", "i").Build(), nil)
	assert.Equal(t, ir.Int(1), runToEnd(t, st).Return, "Invariant forwards its first input")

	g := base().
		Node(ir.Node{ID: "o", Kind: ir.KindOrder, Select: ir.IntPtr(1)}, "x", "y", "z").
		Output("ret", "o").
		Build()
	st = newState(t, g, nil)
	assert.Equal(t, ir.Int(2), runToEnd(t, st).Return)
}

func TestStreamAndInputDefaults(t *testing.T) {
	g := testutil.NewGraph("defaults").
		Stream("s").
		Input("a", ir.Int(7)).
		Input("b", nil).
		Order("o", "s", "a", "b").
		Output("ret", "o", "s").
		Build()

	st := newState(t, g, nil)
	out := runToEnd(t, st)
	assert.Equal(t, ir.Int(0), out.Return, "unbound Input without default yields 0")

	a, ok := st.LastOutput("a")
	require.True(t, ok)
	assert.Equal(t, ir.Int(7), a)
	s, ok := st.LastOutput("s")
	require.True(t, ok)
	assert.Equal(t, ir.Bool(true), s)
}

func TestOutputWithoutProducers(t *testing.T) {
	g := testutil.NewGraph("void").Output("ret").Build()
	st := newState(t, g, nil)

	res, err := st.Step()
	require.NoError(t, err)
	assert.True(t, res.Record.Completed)

	_, ok := st.ReturnValue()
	assert.False(t, ok, "return value stays undefined")
	assert.Equal(t, StatusCompleted, st.Status())
}

func TestStore_InvalidAddressAcknowledgesFalse(t *testing.T) {
	g := testutil.NewGraph("bad-store").
		Const("addr", ir.Text("nowhere")).
		Const("val", ir.Int(9)).
		Const("off", ir.Int(0)).
		Store("st", "addr", "val", "off").
		Output("ret", "st").
		Build()
	st := newState(t, g, nil)

	out := runToEnd(t, st)
	assert.Equal(t, ir.Bool(false), out.Return)
	assert.Empty(t, st.Memory())
}

func TestLoad_InvalidFlagSkipsRead(t *testing.T) {
	g := testutil.NewGraph("skip").
		Const("addr", ir.Int(7)).
		Const("off", ir.Int(0)).
		Const("valid", ir.Bool(false)).
		Load("ld", "addr", "off", "valid").
		Output("ret", "ld").
		Build()
	st := newState(t, g, nil, WithMemory(map[int64]ir.Value{7: ir.Int(1)}), WithOneShotSources())

	out := runToEnd(t, st)
	assert.Equal(t, StatusStuck, out.Status)
	assert.False(t, out.HasReturn)
}

func TestWithMemory_SeedsEveryReset(t *testing.T) {
	g := testutil.NewGraph("seeded").
		Const("addr", ir.Int(5)).
		Const("off", ir.Int(2)).
		Const("valid", ir.Bool(true)).
		Load("ld", "addr", "off", "valid").
		Output("ret", "ld").
		Build()
	st := newState(t, g, nil, WithMemory(map[int64]ir.Value{7: ir.Text("seeded")}))

	assert.Equal(t, ir.Text("seeded"), runToEnd(t, st).Return)

	st.Reset()
	assert.Equal(t, []Cell{{Address: 7, Value: ir.Text("seeded")}}, st.Memory())
	assert.Equal(t, ir.Text("seeded"), runToEnd(t, st).Return)
}

func TestStoreWritesCommitAfterLoads(t *testing.T) {
	// Store and Load of the same address become enabled in the same step;
	// the Load must see memory as it was before the Store.
	g := testutil.NewGraph("race").
		Const("addr", ir.Int(3)).
		Const("off", ir.Int(0)).
		Const("val", ir.Int(99)).
		Const("valid", ir.Bool(true)).
		Store("st", "addr", "val", "off").
		Load("ld", "addr", "off", "valid").
		Output("ret", "ld").
		Build()
	st := newState(t, g, nil, WithMemory(map[int64]ir.Value{3: ir.Int(1)}))

	out := runToEnd(t, st)
	assert.Equal(t, ir.Int(1), out.Return, "load in step 2 reads the pre-step value")
	assert.Equal(t, []Cell{{Address: 3, Value: ir.Int(99)}}, st.Memory())
}

func TestAmbiguousOutputFailsRun(t *testing.T) {
	g := testutil.NewGraph("two-returns").
		Const("c", ir.Int(1)).
		Output("r1", "c").
		Output("r2", "c").
		Build()
	st := newState(t, g, nil)

	_, err := st.Step()
	require.NoError(t, err)
	_, err = st.Step()
	require.Error(t, err)
	assert.True(t, HasConfigCode(err, ErrCodeAmbiguousOutput))
	assert.Equal(t, StatusFailed, st.Status())

	rec, ok := st.LastRecord()
	require.True(t, ok)
	assert.Equal(t, int64(2), rec.Step)
	assert.Len(t, rec.Firings, 2)

	_, again := st.Step()
	assert.Equal(t, err, again, "a failed run keeps failing")

	_, err = st.Run(10)
	assert.True(t, IsConfigError(err))
}

func TestFloatOverflow_StallsAndTraceStaysEncodable(t *testing.T) {
	g := testutil.NewGraph("overflow").
		Input("x", ir.Float(1e308)).
		Const("y", ir.Float(1e308)).
		BinOp("add", ir.OpAdd, "x", "y").
		Output("ret", "add").
		Build()
	st := newState(t, g, nil, WithOneShotSources())

	out := runToEnd(t, st)
	assert.Equal(t, StatusStuck, out.Status)
	assert.False(t, out.HasReturn)

	fs := st.Firings(queryir.NodeEquals{Node: "add"})
	require.Len(t, fs, 1)
	assert.False(t, fs[0].Produced())

	h, err := st.TraceHash()
	require.NoError(t, err)
	assert.NotEmpty(t, h)

	res, err := Replay(g, nil, st.Trace(), WithOneShotSources(), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	assert.True(t, res.Identical)
}

func TestNew_RejectsNonFiniteBinding(t *testing.T) {
	_, err := New(testutil.SumGraph(), map[string]ir.Value{"a": ir.Float(math.Inf(-1))})
	require.Error(t, err)
	assert.True(t, HasConfigCode(err, ErrCodeBadBinding))

	st := newState(t, testutil.SumGraph(), nil)
	err = st.Rebind("a", ir.Float(math.NaN()))
	assert.True(t, HasConfigCode(err, ErrCodeBadBinding))
}

func TestRebind_ResetsAndReruns(t *testing.T) {
	st := newState(t, testutil.BranchGraph(), map[string]ir.Value{"a": ir.Int(15)})
	assert.Equal(t, ir.Int(15), runToEnd(t, st).Return)

	require.NoError(t, st.Rebind("a", ir.Int(5)))
	assert.Equal(t, StatusReady, st.Status())
	assert.Empty(t, st.Trace())
	assert.Equal(t, int64(0), st.StepCount())
	_, ok := st.ReturnValue()
	assert.False(t, ok)
	assert.Empty(t, st.Outputs())

	assert.Equal(t, ir.Int(10), runToEnd(t, st).Return)
	assert.Equal(t, map[string]ir.Value{"a": ir.Int(5)}, st.Bindings())
}

func TestRebind_RejectsNonInput(t *testing.T) {
	st := newState(t, testutil.BranchGraph(), nil)

	err := st.Rebind("ten", ir.Int(1))
	assert.True(t, HasConfigCode(err, ErrCodeBadBinding))
	err = st.Rebind("missing", ir.Int(1))
	assert.True(t, HasConfigCode(err, ErrCodeBadBinding))
	err = st.Rebind("a", nil)
	assert.True(t, HasConfigCode(err, ErrCodeBadBinding))
}

func TestNew_RejectsBadBindings(t *testing.T) {
	_, err := New(testutil.SumGraph(), map[string]ir.Value{"add": ir.Int(1), "nope": ir.Int(2)})
	require.Error(t, err)
	assert.Len(t, ConfigErrors(err), 2)
}

func TestNew_DeepCopiesGraph(t *testing.T) {
	g := testutil.SumGraph()
	st := newState(t, g, nil)

	g.Nodes[1].Literal = ir.Int(1000)
	g.Edges[0].Slot = 5

	assert.Equal(t, ir.Int(15), runToEnd(t, st).Return)
}

func TestRunContext_Cancelled(t *testing.T) {
	st := newState(t, testutil.CounterLoopGraph(3), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := st.RunContext(ctx, 100)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, out.Steps)
}

func TestStepNoProgressReportsPending(t *testing.T) {
	// The BinaryOp's rhs producer is a suppressed steer, so lhs tokens pile up.
	g := testutil.NewGraph("partial").
		Const("x", ir.Int(1)).
		Const("f", ir.Bool(false)).
		TrueSteer("ts", "f", "x").
		BinOp("add", ir.OpAdd, "x", "ts").
		Output("ret", "add").
		Build()
	st := newState(t, g, nil, WithOneShotSources())

	out := runToEnd(t, st)
	assert.Equal(t, StatusStuck, out.Status)
	assert.Equal(t, 1, out.PendingTokens, "deadlocked with partial data")
	assert.Equal(t, 1, st.Pending("add"))
	assert.Equal(t, []int{1, 0}, st.PendingBySlot("add"))
}

func TestRunConfig_SeededMemoryOneShot(t *testing.T) {
	cfg := RunConfig{
		Memory:   map[int64]ir.Value{2: ir.Int(7)},
		OneShot:  true,
		MaxSteps: 50,
	}
	st, err := cfg.NewState(testutil.MemoryGraph(2), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	out, err := st.Run(cfg.Limit())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, ir.Int(7), out.Return)
	assert.Equal(t, 4, out.Steps)

	loads := st.Firings(queryir.NodeEquals{Node: "ld"})
	require.Len(t, loads, 1)
	assert.Equal(t, int64(3), loads[0].Step)
	assert.Equal(t, ir.Int(7), loads[0].Output)
}

func TestRunConfig_Limit(t *testing.T) {
	assert.Equal(t, DefaultMaxSteps, RunConfig{}.Limit())
	assert.Equal(t, 12, RunConfig{MaxSteps: 12}.Limit())
	assert.Empty(t, RunConfig{}.Options())
	assert.Len(t, RunConfig{OneShot: true, Memory: map[int64]ir.Value{1: ir.Int(1)}}.Options(), 2)
}

func TestParseStatus(t *testing.T) {
	for _, st := range []Status{StatusReady, StatusStuck, StatusCompleted, StatusFailed} {
		got, err := ParseStatus(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	_, err := ParseStatus("paused")
	assert.Error(t, err)
}
