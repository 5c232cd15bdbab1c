// Package engine implements the dfsim token-firing scheduler.
//
// A State owns one run of a dataflow graph: per-slot token queues for every
// node, the memory store used by Load and Store, the trace, and the run's
// status. Callers drive it with Step (or Run) and observe it through the
// query methods; nothing in this package renders or prints.
//
// ARCHITECTURE:
//
// Bulk-Synchronous Step:
//  1. The enabled set is computed from queue state at the start of the step
//  2. Every enabled node fires once, in graph declaration order
//  3. Loads observe memory as of the start of the step
//  4. Store writes are committed after all firings, in declaration order
//  5. Produced tokens are enqueued onto successor slots last
//
// A token produced in step N is therefore visible to enablement in step N+1
// and never earlier. Firing order within a step is not observable.
//
// Termination:
// A step that fires an Output node completes the run. Further Step calls
// return StepAlreadyComplete and mutate nothing. A step in which no node is
// enabled reports StepNoProgress together with the number of tokens still
// queued.
//
// CRITICAL PATTERNS:
//
// Deterministic Scheduling:
// Nodes fire in declaration order, writes commit in declaration order, and
// step numbers come from a logical clock. Replaying a graph with the same
// bindings reproduces the trace hash exactly.
//
// Isolation:
// New deep-copies the graph. A State is not safe for concurrent use;
// concurrent runs each build their own State.
package engine
