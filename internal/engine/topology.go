package engine

import (
	"github.com/roach88/dfsim/internal/ir"
)

// SlotCount returns the number of input slots a node of kind k declares,
// given the number of edges feeding it. Output, Order and Invariant take
// one slot per producer; every other kind has a fixed scheme:
//
//	Constant, Input, Stream     0
//	BinaryOp                    2  (lhs, rhs)
//	TrueSteer, FalseSteer       2  (decider, value)
//	Carry                       2  (initial, next)
//	Merge                       3  (decider, if-true, if-false)
//	Load                        3  (address, offset, validity)
//	Store                       3  (address, value, offset)
func SlotCount(k ir.Kind, inDegree int) int {
	switch k {
	case ir.KindConstant, ir.KindInput, ir.KindStream:
		return 0
	case ir.KindBinaryOp, ir.KindTrueSteer, ir.KindFalseSteer, ir.KindCarry:
		return 2
	case ir.KindMerge, ir.KindLoad, ir.KindStore:
		return 3
	case ir.KindOutput, ir.KindOrder, ir.KindInvariant:
		return inDegree
	}
	return 0
}

// ValidateGraph checks g against the slot scheme of every operator kind.
// It returns every problem found, in node declaration order, so a caller
// can report them together. An empty result means New will accept g.
func ValidateGraph(g ir.Graph) []*ConfigError {
	var errs []*ConfigError

	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.ID == "" {
			errs = append(errs, configErr(ErrCodeInvalidNode, "", "node #%d has no id", i))
			continue
		}
		if _, dup := index[n.ID]; dup {
			errs = append(errs, configErr(ErrCodeDuplicateNode, n.ID, "node id declared more than once"))
			continue
		}
		index[n.ID] = i

		if !n.Kind.Valid() {
			errs = append(errs, configErr(ErrCodeUnknownKind, n.ID, "unknown operator kind %s", n.Kind))
			continue
		}
		switch n.Kind {
		case ir.KindBinaryOp:
			if !n.Op.Valid() {
				errs = append(errs, configErr(ErrCodeMissingOperator, n.ID, "BinaryOp needs an operator symbol"))
			}
		case ir.KindConstant:
			if n.Literal == nil {
				errs = append(errs, configErr(ErrCodeMissingLiteral, n.ID, "Constant needs a value"))
			}
		}
		if f, ok := n.Literal.(ir.Float); ok && !ir.IsFinite(float64(f)) {
			errs = append(errs, configErr(ErrCodeMissingLiteral, n.ID, "value %v is not a finite number", f))
		}
	}

	incoming := make(map[string][]ir.Edge)
	for _, e := range g.Edges {
		if _, ok := index[e.From]; !ok {
			errs = append(errs, configErr(ErrCodeDanglingEdge, e.To, "edge from unknown node %q", e.From))
			continue
		}
		if _, ok := index[e.To]; !ok {
			errs = append(errs, configErr(ErrCodeDanglingEdge, e.From, "edge to unknown node %q", e.To))
			continue
		}
		incoming[e.To] = append(incoming[e.To], e)
	}

	for i, n := range g.Nodes {
		if n.ID == "" || index[n.ID] != i || !n.Kind.Valid() {
			continue
		}
		in := incoming[n.ID]
		slots := SlotCount(n.Kind, len(in))

		filled := make([]int, slots)
		for _, e := range in {
			if e.Slot < 0 || e.Slot >= slots {
				errs = append(errs, configErr(ErrCodeSlotOutOfRange, n.ID,
					"edge from %q targets slot %d but %s has %d slots", e.From, e.Slot, n.Kind, slots))
				continue
			}
			filled[e.Slot]++
		}
		for slot, count := range filled {
			switch {
			case count == 0:
				errs = append(errs, configErr(ErrCodeSlotUnfilled, n.ID, "slot %d has no producer", slot))
			case count > 1:
				errs = append(errs, configErr(ErrCodeSlotDuplicate, n.ID, "slot %d has %d producers", slot, count))
			}
		}

		selectable := n.Kind == ir.KindOrder || n.Kind == ir.KindInvariant
		if selectable && len(in) == 0 {
			errs = append(errs, configErr(ErrCodeSlotUnfilled, n.ID, "%s needs at least one input", n.Kind))
		}
		if n.Select != nil {
			switch {
			case !selectable:
				errs = append(errs, configErr(ErrCodeBadSelect, n.ID, "select applies only to Order and Invariant"))
			case *n.Select < 0 || *n.Select >= slots:
				errs = append(errs, configErr(ErrCodeBadSelect, n.ID, "select %d outside %d slots", *n.Select, slots))
			}
		}
	}

	return errs
}

// nodeState is the runtime state of one node.
type nodeState struct {
	node  ir.Node
	slots []*tokenQueue

	// all lists every slot index; most kinds consume all of them.
	all []int

	// succ holds outgoing edges in edge declaration order, target the
	// consumer index for each.
	succ   []ir.Edge
	target []int

	sel   int
	phase carryPhase
	last  ir.Value
}

// buildNodes lays out runtime state for a validated graph.
func buildNodes(g ir.Graph) ([]*nodeState, map[string]int) {
	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		index[n.ID] = i
	}

	inDegree := make([]int, len(g.Nodes))
	for _, e := range g.Edges {
		inDegree[index[e.To]]++
	}

	nodes := make([]*nodeState, len(g.Nodes))
	for i, n := range g.Nodes {
		count := SlotCount(n.Kind, inDegree[i])
		ns := &nodeState{
			node:  n,
			slots: make([]*tokenQueue, count),
			all:   make([]int, count),
		}
		for s := range ns.slots {
			ns.slots[s] = newTokenQueue()
			ns.all[s] = s
		}
		switch {
		case n.Select != nil:
			ns.sel = *n.Select
		case n.Kind == ir.KindOrder && count > 0:
			ns.sel = count - 1
		}
		nodes[i] = ns
	}

	for _, e := range g.Edges {
		from := nodes[index[e.From]]
		from.succ = append(from.succ, e)
		from.target = append(from.target, index[e.To])
	}
	return nodes, index
}

// pending returns the number of tokens queued across all slots.
func (n *nodeState) pending() int {
	total := 0
	for _, q := range n.slots {
		total += q.Len()
	}
	return total
}

func (n *nodeState) reset() {
	for _, q := range n.slots {
		q.clear()
	}
	n.phase = carryInitial
	n.last = nil
}
