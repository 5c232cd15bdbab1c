package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/dfsim/internal/ir"
)

func TestEvalBinary(t *testing.T) {
	tests := []struct {
		name string
		op   ir.BinOp
		lhs  ir.Value
		rhs  ir.Value
		want ir.Value // nil means no token
	}{
		{"int add", ir.OpAdd, ir.Int(5), ir.Int(10), ir.Int(15)},
		{"bool coerces", ir.OpAdd, ir.Bool(true), ir.Int(1), ir.Int(2)},
		{"mixed add is float", ir.OpAdd, ir.Int(1), ir.Float(0.5), ir.Float(1.5)},
		{"text add concatenates", ir.OpAdd, ir.Text("a"), ir.Int(1), ir.Text("a1")},
		{"text add keeps bool text", ir.OpAdd, ir.Bool(true), ir.Text("!"), ir.Text("true!")},
		{"sub", ir.OpSub, ir.Int(3), ir.Int(10), ir.Int(-7)},
		{"sub text stalls", ir.OpSub, ir.Text("a"), ir.Int(1), nil},
		{"mul", ir.OpMul, ir.Int(6), ir.Int(7), ir.Int(42)},
		{"div truncates", ir.OpDiv, ir.Int(7), ir.Int(2), ir.Int(3)},
		{"div by zero stalls", ir.OpDiv, ir.Int(7), ir.Int(0), nil},
		{"float div by zero stalls", ir.OpDiv, ir.Float(1), ir.Float(0), nil},
		{"float div", ir.OpDiv, ir.Float(1), ir.Int(4), ir.Float(0.25)},
		{"rem", ir.OpRem, ir.Int(7), ir.Int(3), ir.Int(1)},
		{"rem by zero stalls", ir.OpRem, ir.Int(7), ir.Bool(false), nil},
		{"float rem", ir.OpRem, ir.Float(7.5), ir.Int(2), ir.Float(1.5)},
		{"float add overflow stalls", ir.OpAdd, ir.Float(1e308), ir.Float(1e308), nil},
		{"float mul overflow stalls", ir.OpMul, ir.Float(-1e200), ir.Float(1e200), nil},
		{"float sub overflow stalls", ir.OpSub, ir.Float(-math.MaxFloat64), ir.Float(math.MaxFloat64), nil},
		{"rem of infinity stalls", ir.OpRem, ir.Float(math.Inf(1)), ir.Int(2), nil},
		{"largest finite sum", ir.OpAdd, ir.Float(math.MaxFloat64), ir.Int(0), ir.Float(math.MaxFloat64)},
		{"shl", ir.OpShl, ir.Int(1), ir.Int(4), ir.Int(16)},
		{"shr", ir.OpShr, ir.Int(-16), ir.Int(2), ir.Int(-4)},
		{"shl truncates float", ir.OpShl, ir.Float(3.9), ir.Int(1), ir.Int(6)},
		{"negative shift stalls", ir.OpShl, ir.Int(1), ir.Int(-1), nil},
		{"shift text stalls", ir.OpShr, ir.Text("8"), ir.Int(1), nil},
		{"and", ir.OpAnd, ir.Int(6), ir.Int(3), ir.Int(2)},
		{"or", ir.OpOr, ir.Int(6), ir.Int(3), ir.Int(7)},
		{"xor", ir.OpXor, ir.Int(6), ir.Int(3), ir.Int(5)},
		{"xor bools", ir.OpXor, ir.Bool(true), ir.Bool(true), ir.Int(0)},
		{"gt", ir.OpGt, ir.Int(15), ir.Int(10), ir.Bool(true)},
		{"gt equal", ir.OpGt, ir.Int(10), ir.Int(10), ir.Bool(false)},
		{"lt mixed", ir.OpLt, ir.Int(1), ir.Float(1.5), ir.Bool(true)},
		{"ge", ir.OpGe, ir.Int(2), ir.Int(2), ir.Bool(true)},
		{"le", ir.OpLe, ir.Int(3), ir.Int(2), ir.Bool(false)},
		{"eq across int and float", ir.OpEq, ir.Int(1), ir.Float(1), ir.Bool(true)},
		{"eq bool and int", ir.OpEq, ir.Bool(true), ir.Int(1), ir.Bool(true)},
		{"ne", ir.OpNe, ir.Int(1), ir.Int(2), ir.Bool(true)},
		{"text compare", ir.OpLt, ir.Text("apple"), ir.Text("banana"), ir.Bool(true)},
		{"text vs int falls back to text", ir.OpEq, ir.Text("5"), ir.Int(5), ir.Bool(true)},
		{"lexicographic fallback", ir.OpGt, ir.Text("9"), ir.Int(10), ir.Bool(true)},
		{"nan compares unequal", ir.OpEq, ir.Float(math.NaN()), ir.Float(math.NaN()), ir.Bool(false)},
		{"nan ne", ir.OpNe, ir.Float(math.NaN()), ir.Int(1), ir.Bool(true)},
		{"missing operand", ir.OpAdd, nil, ir.Int(1), nil},
		{"invalid operator", ir.OpInvalid, ir.Int(1), ir.Int(1), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := evalBinary(tt.op, tt.lhs, tt.rhs)
			if tt.want == nil {
				assert.False(t, ok, "expected a stall, got %v", got)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
