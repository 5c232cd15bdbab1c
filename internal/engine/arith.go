package engine

import (
	"cmp"
	"math"
	"strings"

	"github.com/roach88/dfsim/internal/ir"
)

// evalBinary applies op to lhs and rhs.
//
// Bool operands count as 0/1. Int with Int stays Int; any Float operand
// makes the result Float. Addition with a non-numeric operand concatenates
// the textual forms. Comparisons fall back to comparing textual forms when
// the operands are not both numeric or both Text. Every other undefined
// combination (non-numeric operand, division by zero, negative shift)
// reports false: the node stalls.
func evalBinary(op ir.BinOp, lhs, rhs ir.Value) (ir.Value, bool) {
	if lhs == nil || rhs == nil {
		return nil, false
	}
	if op.IsComparison() {
		return ir.Bool(evalCompare(op, lhs, rhs)), true
	}

	switch op {
	case ir.OpShl, ir.OpShr, ir.OpAnd, ir.OpOr, ir.OpXor:
		return evalBitwise(op, lhs, rhs)
	}

	a, okA := ir.Numeric(lhs)
	b, okB := ir.Numeric(rhs)
	if !okA || !okB {
		if op == ir.OpAdd {
			return ir.Text(lhs.String() + rhs.String()), true
		}
		return nil, false
	}

	ai, aInt := a.(ir.Int)
	bi, bInt := b.(ir.Int)
	if aInt && bInt {
		return evalInt(op, int64(ai), int64(bi))
	}
	return evalFloat(op, toFloat(a), toFloat(b))
}

func evalInt(op ir.BinOp, a, b int64) (ir.Value, bool) {
	switch op {
	case ir.OpAdd:
		return ir.Int(a + b), true
	case ir.OpSub:
		return ir.Int(a - b), true
	case ir.OpMul:
		return ir.Int(a * b), true
	case ir.OpDiv:
		if b == 0 {
			return nil, false
		}
		return ir.Int(a / b), true
	case ir.OpRem:
		if b == 0 {
			return nil, false
		}
		return ir.Int(a % b), true
	}
	return nil, false
}

// evalFloat reports false for NaN and infinite results, which have no
// canonical encoding in a trace.
func evalFloat(op ir.BinOp, a, b float64) (ir.Value, bool) {
	var r float64
	switch op {
	case ir.OpAdd:
		r = a + b
	case ir.OpSub:
		r = a - b
	case ir.OpMul:
		r = a * b
	case ir.OpDiv:
		if b == 0 {
			return nil, false
		}
		r = a / b
	case ir.OpRem:
		if b == 0 {
			return nil, false
		}
		r = math.Mod(a, b)
	default:
		return nil, false
	}
	if !ir.IsFinite(r) {
		return nil, false
	}
	return ir.Float(r), true
}

// evalBitwise truncates Float operands to integers.
func evalBitwise(op ir.BinOp, lhs, rhs ir.Value) (ir.Value, bool) {
	a, ok := ir.AsInt(lhs)
	if !ok {
		return nil, false
	}
	b, ok := ir.AsInt(rhs)
	if !ok {
		return nil, false
	}
	switch op {
	case ir.OpShl:
		if b < 0 {
			return nil, false
		}
		return ir.Int(a << uint64(b)), true
	case ir.OpShr:
		if b < 0 {
			return nil, false
		}
		return ir.Int(a >> uint64(b)), true
	case ir.OpAnd:
		return ir.Int(a & b), true
	case ir.OpOr:
		return ir.Int(a | b), true
	case ir.OpXor:
		return ir.Int(a ^ b), true
	}
	return nil, false
}

func evalCompare(op ir.BinOp, lhs, rhs ir.Value) bool {
	a, okA := ir.Numeric(lhs)
	b, okB := ir.Numeric(rhs)
	if okA && okB {
		ai, aInt := a.(ir.Int)
		bi, bInt := b.(ir.Int)
		if aInt && bInt {
			return ordered(op, cmp.Compare(ai, bi))
		}
		fa, fb := toFloat(a), toFloat(b)
		if math.IsNaN(fa) || math.IsNaN(fb) {
			return op == ir.OpNe
		}
		return ordered(op, cmp.Compare(fa, fb))
	}

	ta, textA := lhs.(ir.Text)
	tb, textB := rhs.(ir.Text)
	if textA && textB {
		return ordered(op, strings.Compare(string(ta), string(tb)))
	}
	return ordered(op, strings.Compare(lhs.String(), rhs.String()))
}

func ordered(op ir.BinOp, c int) bool {
	switch op {
	case ir.OpGt:
		return c > 0
	case ir.OpLt:
		return c < 0
	case ir.OpGe:
		return c >= 0
	case ir.OpLe:
		return c <= 0
	case ir.OpEq:
		return c == 0
	case ir.OpNe:
		return c != 0
	}
	return false
}

func toFloat(v ir.Value) float64 {
	switch n := v.(type) {
	case ir.Int:
		return float64(n)
	case ir.Float:
		return float64(n)
	}
	return 0
}
