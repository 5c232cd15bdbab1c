// Package ir provides the dataflow graph model and token value types.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Value is a sealed interface: Int, Float, Bool, Text
//   - Node order in a Graph is the deterministic firing order
//   - Digests use canonical JSON with domain-separated SHA-256
//   - Step numbers are logical, never wall-clock
package ir
