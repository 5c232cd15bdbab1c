package compiler

import (
	"fmt"

	"github.com/roach88/dfsim/internal/ir"
)

// nodeDecl is a node as written in a graph description, before the kind
// and operator names are resolved. Both front ends produce these.
type nodeDecl struct {
	id      string
	kind    string
	op      string
	literal ir.Value
	sel     *int
	inputs  []string
}

// declError names the field of a declaration that failed to resolve.
type declError struct {
	field string
	msg   string
}

func (d nodeDecl) resolve() (ir.Node, *declError) {
	n := ir.Node{ID: d.id, Literal: d.literal, Select: d.sel}

	if d.kind == "" {
		return n, &declError{field: "kind", msg: "kind is required"}
	}
	kind, err := ir.ParseKind(d.kind)
	if err != nil {
		return n, &declError{field: "kind", msg: err.Error()}
	}
	n.Kind = kind

	if d.op != "" {
		if kind != ir.KindBinaryOp {
			return n, &declError{field: "op", msg: fmt.Sprintf("op applies only to BinaryOp, not %s", kind)}
		}
		op, err := ir.ParseBinOp(d.op)
		if err != nil {
			return n, &declError{field: "op", msg: err.Error()}
		}
		n.Op = op
	}

	if d.literal != nil && kind != ir.KindConstant && kind != ir.KindInput {
		return n, &declError{field: "value", msg: fmt.Sprintf("value applies only to Constant and Input, not %s", kind)}
	}
	return n, nil
}

// assemble builds the graph. The position of an id in a node's inputs
// list is the slot its edge targets. Edges are emitted in node order, then
// input order, which fixes successor delivery order.
func assemble(name string, nodes []ir.Node, decls []nodeDecl) ir.Graph {
	g := ir.Graph{Name: name, Nodes: nodes, Edges: []ir.Edge{}}
	for _, d := range decls {
		for slot, from := range d.inputs {
			g.Edges = append(g.Edges, ir.Edge{From: from, To: d.id, Slot: slot})
		}
	}
	return g
}
