package ir

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Node is a single operator in a dataflow graph.
type Node struct {
	ID   string
	Kind Kind

	// Op is the operator symbol for BinaryOp nodes.
	Op BinOp

	// Literal is the Constant's value or the Input's default binding.
	Literal Value

	// Select is the slot forwarded by Order and Invariant nodes.
	// Nil means the kind default (Order: last slot, Invariant: slot 0).
	Select *int
}

// Edge carries tokens from a producer to one ordinal input slot of a consumer.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Slot int    `json:"slot"`
}

// Graph is the static description of a dataflow program.
// Node order is significant: it is the firing and recording order within a step.
type Graph struct {
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone returns a deep copy so that concurrent runs never share a model.
func (g Graph) Clone() Graph {
	out := Graph{
		Name:  g.Name,
		Nodes: make([]Node, len(g.Nodes)),
		Edges: slices.Clone(g.Edges),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n
		if n.Select != nil {
			sel := *n.Select
			out.Nodes[i].Select = &sel
		}
	}
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	return out
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Incoming returns the edges feeding id, ordered by slot.
func (g Graph) Incoming(id string) []Edge {
	var in []Edge
	for _, e := range g.Edges {
		if e.To == id {
			in = append(in, e)
		}
	}
	slices.SortStableFunc(in, func(a, b Edge) int { return a.Slot - b.Slot })
	return in
}

// IntPtr is a convenience for setting Node.Select.
func IntPtr(n int) *int {
	return &n
}

type nodeJSON struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Op      BinOp           `json:"op,omitempty"`
	Literal json.RawMessage `json:"literal,omitempty"`
	Select  *int            `json:"select,omitempty"`
}

// MarshalJSON implements json.Marshaler. Literals use the tagged Value form.
func (n Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{ID: n.ID, Kind: n.Kind, Op: n.Op, Select: n.Select}
	if n.Literal != nil {
		lit, err := MarshalValue(n.Literal)
		if err != nil {
			return nil, fmt.Errorf("node %q literal: %w", n.ID, err)
		}
		out.Literal = lit
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	var in nodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*n = Node{ID: in.ID, Kind: in.Kind, Op: in.Op, Select: in.Select}
	if len(in.Literal) > 0 {
		lit, err := UnmarshalValue(in.Literal)
		if err != nil {
			return fmt.Errorf("node %q literal: %w", in.ID, err)
		}
		n.Literal = lit
	}
	return nil
}
