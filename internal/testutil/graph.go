package testutil

import "github.com/roach88/dfsim/internal/ir"

// GraphBuilder assembles graphs for tests. Producers are listed in slot
// order; edge slots are assigned from their position.
//
//	g := testutil.NewGraph("sum").
//		Input("a", ir.Int(5)).
//		Const("ten", ir.Int(10)).
//		BinOp("add", ir.OpAdd, "a", "ten").
//		Output("ret", "add").
//		Build()
type GraphBuilder struct {
	g ir.Graph
}

// NewGraph starts an empty graph.
func NewGraph(name string) *GraphBuilder {
	return &GraphBuilder{g: ir.Graph{Name: name, Edges: []ir.Edge{}}}
}

// Node adds a node of any kind fed by from, in slot order.
func (b *GraphBuilder) Node(n ir.Node, from ...string) *GraphBuilder {
	b.g.Nodes = append(b.g.Nodes, n)
	for slot, src := range from {
		b.g.Edges = append(b.g.Edges, ir.Edge{From: src, To: n.ID, Slot: slot})
	}
	return b
}

// Edge adds a raw edge, for graphs a test wants to be malformed.
func (b *GraphBuilder) Edge(from, to string, slot int) *GraphBuilder {
	b.g.Edges = append(b.g.Edges, ir.Edge{From: from, To: to, Slot: slot})
	return b
}

func (b *GraphBuilder) Const(id string, v ir.Value) *GraphBuilder {
	return b.Node(ir.Node{ID: id, Kind: ir.KindConstant, Literal: v})
}

// Input adds an Input node; def may be nil.
func (b *GraphBuilder) Input(id string, def ir.Value) *GraphBuilder {
	return b.Node(ir.Node{ID: id, Kind: ir.KindInput, Literal: def})
}

func (b *GraphBuilder) Stream(id string) *GraphBuilder {
	return b.Node(ir.Node{ID: id, Kind: ir.KindStream})
}

func (b *GraphBuilder) BinOp(id string, op ir.BinOp, lhs, rhs string) *GraphBuilder {
	return b.Node(ir.Node{ID: id, Kind: ir.KindBinaryOp, Op: op}, lhs, rhs)
}

func (b *GraphBuilder) TrueSteer(id, decider, value string) *GraphBuilder {
	return b.Node(ir.Node{ID: id, Kind: ir.KindTrueSteer}, decider, value)
}

func (b *GraphBuilder) FalseSteer(id, decider, value string) *GraphBuilder {
	return b.Node(ir.Node{ID: id, Kind: ir.KindFalseSteer}, decider, value)
}

func (b *GraphBuilder) Merge(id, decider, ifTrue, ifFalse string) *GraphBuilder {
	return b.Node(ir.Node{ID: id, Kind: ir.KindMerge}, decider, ifTrue, ifFalse)
}

func (b *GraphBuilder) Carry(id, initial, next string) *GraphBuilder {
	return b.Node(ir.Node{ID: id, Kind: ir.KindCarry}, initial, next)
}

func (b *GraphBuilder) Load(id, addr, offset, valid string) *GraphBuilder {
	return b.Node(ir.Node{ID: id, Kind: ir.KindLoad}, addr, offset, valid)
}

func (b *GraphBuilder) Store(id, addr, value, offset string) *GraphBuilder {
	return b.Node(ir.Node{ID: id, Kind: ir.KindStore}, addr, value, offset)
}

func (b *GraphBuilder) Output(id string, from ...string) *GraphBuilder {
	return b.Node(ir.Node{ID: id, Kind: ir.KindOutput}, from...)
}

func (b *GraphBuilder) Order(id string, from ...string) *GraphBuilder {
	return b.Node(ir.Node{ID: id, Kind: ir.KindOrder}, from...)
}

func (b *GraphBuilder) Invariant(id string, from ...string) *GraphBuilder {
	return b.Node(ir.Node{ID: id, Kind: ir.KindInvariant}, from...)
}

// Build returns a copy of the assembled graph.
func (b *GraphBuilder) Build() ir.Graph {
	return b.g.Clone()
}

// SumGraph computes a + 10 into a Return node.
func SumGraph() ir.Graph {
	return NewGraph("sum").
		Input("a", ir.Int(5)).
		Const("ten", ir.Int(10)).
		BinOp("add", ir.OpAdd, "a", "ten").
		Output("ret", "add").
		Build()
}

// BranchGraph returns a when a > 10, otherwise 10, through a steer pair
// and a Merge sharing the comparison as decider.
func BranchGraph() ir.Graph {
	return NewGraph("branch").
		Input("a", ir.Int(15)).
		Const("ten", ir.Int(10)).
		BinOp("gt", ir.OpGt, "a", "ten").
		TrueSteer("ts", "gt", "a").
		FalseSteer("fs", "gt", "ten").
		Merge("m", "gt", "ts", "fs").
		Output("ret", "m").
		Build()
}

// MemoryGraph stores 42 at address 1 and loads from loadAddr once the
// store has acknowledged.
func MemoryGraph(loadAddr int64) ir.Graph {
	return NewGraph("memory").
		Const("addr", ir.Int(1)).
		Const("val", ir.Int(42)).
		Const("off", ir.Int(0)).
		Store("st", "addr", "val", "off").
		Const("laddr", ir.Int(loadAddr)).
		Load("ld", "laddr", "off", "st").
		Output("ret", "ld").
		Build()
}

// CounterLoopGraph counts from 0 while the counter is below limit and
// returns the value that fails the test.
//
//	c = carry(0, c+1 while c < limit)
//	return c when !(c < limit)
func CounterLoopGraph(limit int64) ir.Graph {
	return NewGraph("counter").
		Const("zero", ir.Int(0)).
		Const("limit", ir.Int(limit)).
		Const("one", ir.Int(1)).
		Carry("c", "zero", "inc").
		BinOp("lt", ir.OpLt, "c", "limit").
		TrueSteer("again", "lt", "c").
		FalseSteer("done", "lt", "c").
		BinOp("inc", ir.OpAdd, "again", "one").
		Output("ret", "done").
		Build()
}
