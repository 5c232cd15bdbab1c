package queryir

import "fmt"

// Validate checks a Select for filters that can never match or that a
// backend cannot translate. It returns every problem found.
//
// Validate is a pure function with no side effects.
func Validate(q Select) []error {
	v := &validator{}
	if q.Run == "" {
		v.addError("run id is required")
	}
	if q.Limit < 0 {
		v.addError("limit %d is negative", q.Limit)
	}
	v.validatePredicate(q.Filter)
	return v.errs
}

// validator accumulates errors during traversal.
type validator struct {
	errs []error
}

func (v *validator) addError(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

// validatePredicate recursively validates a predicate node.
func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		// no filter
	case NodeEquals:
		if pred.Node == "" {
			v.addError("node filter has an empty id")
		}
	case KindEquals:
		if !pred.Kind.Valid() {
			v.addError("kind filter has invalid kind %s", pred.Kind)
		}
	case StepRange:
		if pred.From < 0 || pred.To < 0 {
			v.addError("step range %d..%d has a negative bound", pred.From, pred.To)
		}
		if pred.From > 0 && pred.To > 0 && pred.From > pred.To {
			v.addError("step range %d..%d is empty", pred.From, pred.To)
		}
	case Produced:
	case And:
		for _, sub := range pred.Predicates {
			if sub == nil {
				v.addError("and contains a nil predicate")
				continue
			}
			v.validatePredicate(sub)
		}
	default:
		v.addError("unknown predicate type: %T", p)
	}
}
