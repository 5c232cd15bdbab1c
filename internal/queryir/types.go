package queryir

import "github.com/roach88/dfsim/internal/ir"

// Predicate is a filter condition on a single firing.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select reads the firings of one run.
//
//	Select{
//	  Run: "0190...",
//	  Filter: And{Predicates: []Predicate{
//	    NodeEquals{Node: "ld"},
//	    StepRange{From: 2, To: 5},
//	  }},
//	}
//
// Limit caps the number of firings returned; 0 means no cap.
type Select struct {
	Run    string
	Filter Predicate
	Limit  int
}

// NodeEquals matches firings of one node.
type NodeEquals struct {
	Node string
}

func (NodeEquals) predicateNode() {}

// KindEquals matches firings of every node of one kind.
type KindEquals struct {
	Kind ir.Kind
}

func (KindEquals) predicateNode() {}

// StepRange matches firings in steps From..To inclusive.
// A zero bound is open.
type StepRange struct {
	From int64
	To   int64
}

func (StepRange) predicateNode() {}

// Produced matches firings that did (Value true) or did not emit a token.
type Produced struct {
	Value bool
}

func (Produced) predicateNode() {}

// And matches when every sub-predicate matches. An empty And matches all.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Match evaluates p against a firing recorded in step.
// A nil predicate matches everything.
func Match(p Predicate, step int64, f ir.Firing) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case NodeEquals:
		return f.Node == pred.Node
	case KindEquals:
		return f.Kind == pred.Kind
	case StepRange:
		if pred.From > 0 && step < pred.From {
			return false
		}
		if pred.To > 0 && step > pred.To {
			return false
		}
		return true
	case Produced:
		return f.Produced() == pred.Value
	case And:
		for _, sub := range pred.Predicates {
			if !Match(sub, step, f) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Conjoin builds an And from the non-nil predicates, collapsing the
// trivial cases: no predicates gives nil, one gives itself.
func Conjoin(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return And{Predicates: out}
}
