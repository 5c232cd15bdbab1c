// Package store provides SQLite-backed durable storage for dfsim runs.
//
// A run is written once, in a single transaction, after it finishes:
//   - runs: graph, bindings, options, outcome and digests
//   - steps / firings / memory_writes: the full step trace
//   - memory_cells: the final memory snapshot
//
// # Deterministic Query Results
//
// All ordering uses logical sequence numbers, never timestamps. Runs are
// listed by seq; trace rows by (step, ord), where ord is the firing's
// position within its step. Firing queries are compiled from queryir by
// internal/querysql, so filters evaluate the same way against a stored run
// and a live engine.Recorder.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Graph and trace digests come from internal/ir/hash.go (RFC 8785 canonical
// JSON and SHA-256 with domain separation), so a reloaded run can be checked
// against its recorded hash.
package store
