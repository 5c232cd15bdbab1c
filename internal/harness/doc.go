// Package harness runs conformance scenarios against the dataflow engine.
//
// A scenario names a graph description, the configuration to run it under,
// and what the finished run must look like. The harness executes the graph
// on the real engine, persists the run to an in-memory store, reads the
// trace back, and checks it.
//
// # Scenario Format
//
//	name: memory_store_load
//	description: "a load ordered after a store reads the stored value"
//	graph: graphs/memory.hcl
//	inputs: { laddr: 1 }
//	memory: { 2: 7 }
//	one_shot: true
//	max_steps: 100
//	expect:
//	  status: completed
//	  return: 42
//	  steps: 4
//	  memory: { 1: 42 }
//	assertions:
//	  - type: fired_before
//	    nodes: [st, ld, ret]
//	  - type: firing_query
//	    query: { kind: Store }
//	    count: 1
//
// Unknown fields are rejected. The graph path is relative to the scenario.
//
// # Assertion Types
//
//   - fired_count: node fires exactly count times
//   - never_fired: node never fires
//   - fired_before: first firings happen in strictly increasing steps
//   - produced: node produces value at least once
//   - firing_query: a store query over the persisted trace matches count firings
//
// # Golden Traces
//
// Snapshot renders a run as canonical JSON. Tests compare it with
// testdata/golden/<name>.golden through goldie; RunSuite compares a
// scenario file with golden/<file>.golden beside it.
package harness
