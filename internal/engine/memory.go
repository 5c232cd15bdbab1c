package engine

import (
	"maps"
	"slices"

	"github.com/roach88/dfsim/internal/ir"
)

// Cell is one populated memory address.
type Cell struct {
	Address int64
	Value   ir.Value
}

// Memory is the addressable store shared by the Load and Store nodes of one run.
// It is owned by a State, never shared across runs.
type Memory struct {
	cells map[int64]ir.Value
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{cells: make(map[int64]ir.Value)}
}

// Load returns the value at addr. A missing entry reports false.
func (m *Memory) Load(addr int64) (ir.Value, bool) {
	v, ok := m.cells[addr]
	return v, ok
}

// Store writes v at addr.
func (m *Memory) Store(addr int64, v ir.Value) {
	m.cells[addr] = v
}

// Len returns the number of populated addresses.
func (m *Memory) Len() int {
	return len(m.cells)
}

// Clear removes every entry.
func (m *Memory) Clear() {
	clear(m.cells)
}

// Seed writes every entry of image. Existing entries at other addresses remain.
func (m *Memory) Seed(image map[int64]ir.Value) {
	maps.Copy(m.cells, image)
}

// Snapshot returns the populated cells ordered by address.
func (m *Memory) Snapshot() []Cell {
	addrs := slices.Sorted(maps.Keys(m.cells))
	out := make([]Cell, len(addrs))
	for i, a := range addrs {
		out[i] = Cell{Address: a, Value: m.cells[a]}
	}
	return out
}

// effectiveAddress adds base and offset when both coerce to integers.
func effectiveAddress(base, offset ir.Value) (int64, bool) {
	b, ok := ir.AsInt(base)
	if !ok {
		return 0, false
	}
	o, ok := ir.AsInt(offset)
	if !ok {
		return 0, false
	}
	return b + o, true
}
