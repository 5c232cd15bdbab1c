package compiler

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/roach88/dfsim/internal/ir"
)

// hclGraphFile is the top-level structure of an .hcl graph description:
//
//	graph "sum" {
//	  node "a" {
//	    kind  = "Input"
//	    value = 5
//	  }
//	  node "add" {
//	    kind   = "BinaryOp"
//	    op     = "+"
//	    inputs = ["a", "ten"]
//	  }
//	}
type hclGraphFile struct {
	Graphs []*hclGraph `hcl:"graph,block"`
}

type hclGraph struct {
	Name  string     `hcl:"name,label"`
	Nodes []*hclNode `hcl:"node,block"`
}

type hclNode struct {
	ID     string         `hcl:"id,label"`
	Kind   string         `hcl:"kind"`
	Op     string         `hcl:"op,optional"`
	Inputs []string       `hcl:"inputs,optional"`
	Select *int           `hcl:"select,optional"`
	Value  hcl.Expression `hcl:"value,optional"`
}

// ParseHCLGraph decodes HCL source holding exactly one graph block.
func ParseHCLGraph(src []byte, filename string) (ir.Graph, error) {
	return decodeHCLGraph(hclparse.NewParser().ParseHCL(src, filename))
}

// LoadHCLGraph parses and decodes a single .hcl graph file.
func LoadHCLGraph(path string) (ir.Graph, error) {
	return decodeHCLGraph(hclparse.NewParser().ParseHCLFile(path))
}

func decodeHCLGraph(file *hcl.File, diags hcl.Diagnostics) (ir.Graph, error) {
	if diags.HasErrors() {
		return ir.Graph{}, formatHCLDiags(diags)
	}

	var parsed hclGraphFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return ir.Graph{}, formatHCLDiags(diags)
	}
	if len(parsed.Graphs) != 1 {
		return ir.Graph{}, &CompileError{
			Field:   "graph",
			Message: fmt.Sprintf("expected exactly one graph block, found %d", len(parsed.Graphs)),
		}
	}
	hg := parsed.Graphs[0]

	nodes := make([]ir.Node, 0, len(hg.Nodes))
	decls := make([]nodeDecl, 0, len(hg.Nodes))
	for _, hn := range hg.Nodes {
		d := nodeDecl{
			id:     hn.ID,
			kind:   hn.Kind,
			op:     hn.Op,
			sel:    hn.Select,
			inputs: hn.Inputs,
		}

		if hn.Value != nil {
			lit, err := hclLiteral("nodes."+hn.ID+".value", hn.Value)
			if err != nil {
				return ir.Graph{}, err
			}
			d.literal = lit
		}

		n, derr := d.resolve()
		if derr != nil {
			rng := hn.Value.Range()
			return ir.Graph{}, &CompileError{
				Field:   "nodes." + hn.ID + "." + derr.field,
				Message: derr.msg,
				Range:   &rng,
			}
		}
		nodes = append(nodes, n)
		decls = append(decls, d)
	}

	return assemble(hg.Name, nodes, decls), nil
}

// hclLiteral evaluates a value expression without variables. A missing
// attribute evaluates to null and yields no literal.
func hclLiteral(field string, expr hcl.Expression) (ir.Value, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, formatHCLDiags(diags)
	}
	if val.IsNull() {
		return nil, nil
	}

	lit, err := ctyToValue(val)
	if err != nil {
		rng := expr.Range()
		return nil, &CompileError{Field: field, Message: err.Error(), Range: &rng}
	}
	return lit, nil
}

// ctyToValue maps a known primitive cty value onto a token value. Whole
// numbers that fit in 64 bits become Int, everything else Float.
func ctyToValue(val cty.Value) (ir.Value, error) {
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("value must be known at load time")
	}
	switch val.Type() {
	case cty.String:
		return ir.Text(val.AsString()), nil
	case cty.Bool:
		return ir.Bool(val.True()), nil
	case cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if n, acc := bf.Int64(); acc == big.Exact {
				return ir.Int(n), nil
			}
		}
		f, _ := bf.Float64()
		if !ir.IsFinite(f) {
			return nil, fmt.Errorf("number %s is out of float64 range", bf.Text('g', 10))
		}
		return ir.Float(f), nil
	}
	return nil, fmt.Errorf("value must be a number, bool or string, got %s", val.Type().FriendlyName())
}
