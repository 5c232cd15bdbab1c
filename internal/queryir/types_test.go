package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/dfsim/internal/ir"
)

func TestMatch(t *testing.T) {
	load := ir.Firing{Node: "ld", Kind: ir.KindLoad, Output: ir.Int(42)}
	stall := ir.Firing{Node: "ld", Kind: ir.KindLoad}
	add := ir.Firing{Node: "add", Kind: ir.KindBinaryOp, Output: ir.Int(1)}

	tests := []struct {
		name string
		pred Predicate
		step int64
		f    ir.Firing
		want bool
	}{
		{"nil matches all", nil, 1, add, true},
		{"node hit", NodeEquals{Node: "ld"}, 1, load, true},
		{"node miss", NodeEquals{Node: "ld"}, 1, add, false},
		{"kind hit", KindEquals{Kind: ir.KindBinaryOp}, 1, add, true},
		{"kind miss", KindEquals{Kind: ir.KindStore}, 1, add, false},
		{"range inside", StepRange{From: 2, To: 4}, 3, add, true},
		{"range lower edge", StepRange{From: 2, To: 4}, 2, add, true},
		{"range upper edge", StepRange{From: 2, To: 4}, 4, add, true},
		{"range below", StepRange{From: 2, To: 4}, 1, add, false},
		{"range above", StepRange{From: 2, To: 4}, 5, add, false},
		{"open upper", StepRange{From: 2}, 100, add, true},
		{"open lower", StepRange{To: 3}, 1, add, true},
		{"produced", Produced{Value: true}, 1, load, true},
		{"stalled", Produced{Value: false}, 1, stall, true},
		{"stalled miss", Produced{Value: false}, 1, load, false},
		{"empty and", And{}, 1, add, true},
		{"and hit", And{Predicates: []Predicate{NodeEquals{Node: "ld"}, Produced{Value: true}}}, 1, load, true},
		{"and miss", And{Predicates: []Predicate{NodeEquals{Node: "ld"}, Produced{Value: true}}}, 1, stall, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pred, tt.step, tt.f))
		})
	}
}

func TestConjoin(t *testing.T) {
	assert.Nil(t, Conjoin())
	assert.Nil(t, Conjoin(nil, nil))
	assert.Equal(t, NodeEquals{Node: "a"}, Conjoin(nil, NodeEquals{Node: "a"}))
	assert.Equal(t,
		And{Predicates: []Predicate{NodeEquals{Node: "a"}, Produced{Value: true}}},
		Conjoin(NodeEquals{Node: "a"}, nil, Produced{Value: true}))
}
