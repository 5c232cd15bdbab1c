package engine

import "github.com/roach88/dfsim/internal/ir"

// carryPhase is the loop-carried register state of a Carry node.
// Initial forwards the first token on slot 0 and moves to Looping;
// Looping forwards each token arriving on slot 1.
type carryPhase int

const (
	carryInitial carryPhase = iota
	carryLooping
)

func (p carryPhase) String() string {
	if p == carryLooping {
		return "looping"
	}
	return "initial"
}

// firingSlots returns the slots the node's next firing consumes.
// ready is false when any of them is empty.
//
// Merge reads the decider and only the slot it selects. Carry reads one slot
// chosen by its phase. Every other kind reads all of its slots, which for
// sources is none.
func (n *nodeState) firingSlots() (slots []int, ready bool) {
	switch n.node.Kind {
	case ir.KindMerge:
		decider, ok := n.slots[0].peek()
		if !ok {
			return nil, false
		}
		if ir.Truthy(decider) {
			return n.need(0, 1)
		}
		return n.need(0, 2)
	case ir.KindCarry:
		if n.phase == carryInitial {
			return n.need(0)
		}
		return n.need(1)
	default:
		return n.need(n.all...)
	}
}

func (n *nodeState) need(slots ...int) ([]int, bool) {
	for _, s := range slots {
		if n.slots[s].Len() == 0 {
			return nil, false
		}
	}
	return slots, true
}

// consume dequeues one token from each listed slot, in slot order.
func (n *nodeState) consume(slots []int) []ir.Token {
	if len(slots) == 0 {
		return nil
	}
	tokens := make([]ir.Token, len(slots))
	for i, s := range slots {
		v, _ := n.slots[s].pop()
		tokens[i] = ir.Token{Slot: s, Value: v}
	}
	return tokens
}

// fireResult is what one firing hands back to the step: an optional token
// and an optional memory write to commit at the end of the step.
type fireResult struct {
	out   ir.Value
	write *ir.MemoryWrite
}

// fire applies the node's operator to the consumed tokens. Memory is read
// as of the start of the step; writes are returned, never applied here.
func (s *State) fire(n *nodeState, in []ir.Token) fireResult {
	switch n.node.Kind {
	case ir.KindConstant:
		return fireResult{out: n.node.Literal}

	case ir.KindInput:
		return fireResult{out: s.boundValue(n.node)}

	case ir.KindStream:
		return fireResult{out: ir.Bool(true)}

	case ir.KindBinaryOp:
		v, ok := evalBinary(n.node.Op, in[0].Value, in[1].Value)
		if !ok {
			return fireResult{}
		}
		return fireResult{out: v}

	case ir.KindTrueSteer:
		if ir.Truthy(in[0].Value) {
			return fireResult{out: in[1].Value}
		}
		return fireResult{}

	case ir.KindFalseSteer:
		if !ir.Truthy(in[0].Value) {
			return fireResult{out: in[1].Value}
		}
		return fireResult{}

	case ir.KindMerge:
		// in[1] is whichever value slot the decider selected.
		return fireResult{out: in[1].Value}

	case ir.KindCarry:
		n.phase = carryLooping
		return fireResult{out: in[0].Value}

	case ir.KindLoad:
		if !ir.Truthy(in[2].Value) {
			return fireResult{}
		}
		addr, ok := effectiveAddress(in[0].Value, in[1].Value)
		if !ok {
			return fireResult{}
		}
		v, ok := s.memory.Load(addr)
		if !ok {
			return fireResult{}
		}
		return fireResult{out: v}

	case ir.KindStore:
		addr, ok := effectiveAddress(in[0].Value, in[2].Value)
		if !ok {
			return fireResult{out: ir.Bool(false)}
		}
		return fireResult{
			out:   ir.Bool(true),
			write: &ir.MemoryWrite{Node: n.node.ID, Address: addr, Value: in[1].Value},
		}

	case ir.KindOutput:
		if len(in) == 0 {
			return fireResult{}
		}
		return fireResult{out: in[0].Value}

	case ir.KindOrder, ir.KindInvariant:
		return fireResult{out: in[n.sel].Value}

	case ir.KindInvalid:
		return fireResult{}
	}
	return fireResult{}
}
