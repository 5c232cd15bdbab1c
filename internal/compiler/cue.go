package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/dfsim/internal/ir"
)

// CompileGraph parses a CUE value into a Graph.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the graph struct itself, e.g.:
//
//	graph: {
//		name: "sum"
//		nodes: {
//			a:   {kind: "Input", value: 5}
//			ten: {kind: "Constant", value: 10}
//			add: {kind: "BinaryOp", op: "+", inputs: ["a", "ten"]}
//			ret: {kind: "Output", inputs: ["add"]}
//		}
//	}
//
// Node order is field declaration order. The index of a producer in
// inputs is the consumer slot it feeds.
func CompileGraph(v cue.Value) (ir.Graph, error) {
	if !v.Exists() {
		return ir.Graph{}, &CompileError{
			Field:   "graph",
			Message: "graph is required",
			Pos:     v.Pos(),
		}
	}
	if err := v.Err(); err != nil {
		return ir.Graph{}, formatCUEError(err)
	}

	var name string
	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		s, err := nameVal.String()
		if err != nil {
			return ir.Graph{}, formatCUEError(err)
		}
		name = s
	}

	nodesVal := v.LookupPath(cue.ParsePath("nodes"))
	if !nodesVal.Exists() {
		return ir.Graph{}, &CompileError{
			Field:   "nodes",
			Message: "nodes is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := nodesVal.Fields()
	if err != nil {
		return ir.Graph{}, formatCUEError(err)
	}

	var (
		nodes []ir.Node
		decls []nodeDecl
	)
	for iter.Next() {
		id := iter.Label()
		nodeVal := iter.Value()

		d, err := parseCUENode(id, nodeVal)
		if err != nil {
			return ir.Graph{}, err
		}
		n, derr := d.resolve()
		if derr != nil {
			return ir.Graph{}, &CompileError{
				Field:   "nodes." + id + "." + derr.field,
				Message: derr.msg,
				Pos:     nodeVal.Pos(),
			}
		}
		nodes = append(nodes, n)
		decls = append(decls, d)
	}

	return assemble(name, nodes, decls), nil
}

func parseCUENode(id string, v cue.Value) (nodeDecl, error) {
	d := nodeDecl{id: id}

	if kindVal := v.LookupPath(cue.ParsePath("kind")); kindVal.Exists() {
		s, err := kindVal.String()
		if err != nil {
			return d, formatCUEError(err)
		}
		d.kind = s
	}

	if opVal := v.LookupPath(cue.ParsePath("op")); opVal.Exists() {
		s, err := opVal.String()
		if err != nil {
			return d, formatCUEError(err)
		}
		d.op = s
	}

	if litVal := v.LookupPath(cue.ParsePath("value")); litVal.Exists() {
		lit, err := cueLiteral("nodes."+id+".value", litVal)
		if err != nil {
			return d, err
		}
		d.literal = lit
	}

	if selVal := v.LookupPath(cue.ParsePath("select")); selVal.Exists() {
		n, err := selVal.Int64()
		if err != nil {
			return d, formatCUEError(err)
		}
		sel := int(n)
		d.sel = &sel
	}

	if inVal := v.LookupPath(cue.ParsePath("inputs")); inVal.Exists() {
		list, err := inVal.List()
		if err != nil {
			return d, formatCUEError(err)
		}
		for list.Next() {
			from, err := list.Value().String()
			if err != nil {
				return d, formatCUEError(err)
			}
			d.inputs = append(d.inputs, from)
		}
	}

	return d, nil
}

// cueLiteral converts a concrete CUE scalar to a token value.
func cueLiteral(field string, v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Float(f), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Text(s), nil
	}
	return nil, &CompileError{
		Field:   field,
		Message: fmt.Sprintf("value must be a concrete int, float, bool or string, got %s", v.IncompleteKind()),
		Pos:     v.Pos(),
	}
}

// ParseCUEGraph compiles CUE source and extracts its top-level graph field.
func ParseCUEGraph(src []byte, filename string) (ir.Graph, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return ir.Graph{}, formatCUEError(err)
	}
	return CompileGraph(v.LookupPath(cue.ParsePath("graph")))
}

// LoadCUEGraph loads a single .cue file, or the CUE package in a directory.
func LoadCUEGraph(path string) (ir.Graph, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ir.Graph{}, fmt.Errorf("stat graph source: %w", err)
	}
	if !info.IsDir() {
		src, err := os.ReadFile(path)
		if err != nil {
			return ir.Graph{}, fmt.Errorf("read graph source: %w", err)
		}
		return ParseCUEGraph(src, path)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return ir.Graph{}, fmt.Errorf("no CUE instances loaded from %s", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return ir.Graph{}, formatCUEError(inst.Err)
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return ir.Graph{}, formatCUEError(err)
	}
	return CompileGraph(v.LookupPath(cue.ParsePath("graph")))
}
