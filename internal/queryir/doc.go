// Package queryir describes filters over recorded firings.
//
// A Select names a run and an optional Predicate tree. Backends (the SQL
// compiler in internal/querysql) translate it into a concrete query; the
// engine's in-memory trace can be filtered with Match directly, so a stored
// run and a live run answer the same question the same way.
//
// Predicate is a sealed interface using the marker method pattern:
//
//	switch p := pred.(type) {
//	case NodeEquals:
//	case KindEquals:
//	case StepRange:
//	case Produced:
//	case And:
//	}
//
// Only conjunction is supported. Results are always ordered by step, then
// by firing position within the step.
package queryir
