package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/roach88/dfsim/internal/ir"
	"github.com/roach88/dfsim/internal/queryir"
)

// DefaultMaxSteps is the default step bound for Run.
// It keeps a malformed or non-terminating graph from looping forever.
const DefaultMaxSteps = 1000

// Status is the lifecycle state of a run.
type Status int

const (
	// StatusReady means the run can take another step.
	StatusReady Status = iota
	// StatusStuck means the last step found nothing enabled.
	StatusStuck
	// StatusCompleted means an Output fired; the run is frozen.
	StatusCompleted
	// StatusFailed means a configuration error surfaced while firing.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusStuck:
		return "stuck"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, error) {
	for st := StatusReady; st <= StatusFailed; st++ {
		if st.String() == name {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown run status %q", name)
}

// StepStatus classifies the result of a single Step call.
type StepStatus int

const (
	// StepFired means at least one node fired.
	StepFired StepStatus = iota + 1
	// StepNoProgress means no node was enabled.
	StepNoProgress
	// StepAlreadyComplete means the run had completed before this call.
	StepAlreadyComplete
)

func (s StepStatus) String() string {
	switch s {
	case StepFired:
		return "fired"
	case StepNoProgress:
		return "no_progress"
	case StepAlreadyComplete:
		return "already_complete"
	}
	return "unknown"
}

// StepResult reports one Step call.
type StepResult struct {
	Status StepStatus

	// Record is the trace entry for a fired step.
	Record ir.StepRecord

	// PendingTokens is the number of tokens still queued after the call.
	// With StepNoProgress it separates a deadlock holding partial data
	// from an exhausted graph.
	PendingTokens int
}

// State is one run of a dataflow graph.
//
// INVARIANTS:
//   - graph is a private deep copy; node order never changes
//   - memory, queues and trace are reset together
//   - once status is StatusCompleted nothing is mutated until Reset
type State struct {
	graph    ir.Graph
	nodes    []*nodeState
	index    map[string]int
	bindings map[string]ir.Value
	seed     map[int64]ir.Value

	memory *Memory
	trace  *Recorder
	clock  *Clock

	status    Status
	ret       ir.Value
	hasReturn bool
	err       error

	oneShot bool
	logger  *slog.Logger
}

// Option configures a State.
type Option func(*State)

// WithLogger routes step logging to l instead of slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *State) {
		s.logger = l
	}
}

// WithMemory seeds memory with image at construction and on every reset.
func WithMemory(image map[int64]ir.Value) Option {
	return func(s *State) {
		s.seed = maps.Clone(image)
	}
}

// WithOneShotSources makes Constant, Input and Stream nodes fire only in the
// first step instead of every step. An acyclic graph then runs dry and
// reports StepNoProgress rather than running to the step bound.
func WithOneShotSources() Option {
	return func(s *State) {
		s.oneShot = true
	}
}

// New validates g, deep-copies it, and returns a fresh run with inputs bound.
// Inputs without a binding use their default literal, or Int(0).
//
// All configuration errors are returned joined; use ConfigErrors to list them.
func New(g ir.Graph, inputs map[string]ir.Value, opts ...Option) (*State, error) {
	if errs := ValidateGraph(g); len(errs) > 0 {
		return nil, joinConfigErrors(errs)
	}

	s := &State{
		graph:    g.Clone(),
		bindings: make(map[string]ir.Value, len(inputs)),
		memory:   NewMemory(),
		trace:    NewRecorder(),
		clock:    NewClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.nodes, s.index = buildNodes(s.graph)

	var errs []*ConfigError
	for _, id := range ir.SortedKeys(inputs) {
		if err := s.checkBinding(id, inputs[id]); err != nil {
			errs = append(errs, err)
			continue
		}
		s.bindings[id] = inputs[id]
	}
	if len(errs) > 0 {
		return nil, joinConfigErrors(errs)
	}

	s.Reset()
	return s, nil
}

func joinConfigErrors(errs []*ConfigError) error {
	list := make([]error, len(errs))
	for i, e := range errs {
		list[i] = e
	}
	return errors.Join(list...)
}

func (s *State) checkBinding(id string, v ir.Value) *ConfigError {
	i, ok := s.index[id]
	if !ok {
		return configErr(ErrCodeBadBinding, id, "binding for unknown node")
	}
	if s.nodes[i].node.Kind != ir.KindInput {
		return configErr(ErrCodeBadBinding, id, "binding for %s node, only Input nodes take bindings", s.nodes[i].node.Kind)
	}
	if v == nil {
		return configErr(ErrCodeBadBinding, id, "binding has no value")
	}
	if f, ok := v.(ir.Float); ok && !ir.IsFinite(float64(f)) {
		return configErr(ErrCodeBadBinding, id, "binding %v is not a finite number", f)
	}
	return nil
}

func (s *State) boundValue(n ir.Node) ir.Value {
	if v, ok := s.bindings[n.ID]; ok {
		return v
	}
	if n.Literal != nil {
		return n.Literal
	}
	return ir.Int(0)
}

// Reset discards all run state and restarts with the current bindings:
// memory is cleared then reseeded, queues and output caches emptied, Carry
// phases rewound, the trace and clock restarted.
func (s *State) Reset() {
	s.memory.Clear()
	s.memory.Seed(s.seed)
	for _, n := range s.nodes {
		n.reset()
	}
	s.trace.Reset()
	s.clock.Reset()
	s.status = StatusReady
	s.ret = nil
	s.hasReturn = false
	s.err = nil
}

// Rebind changes the value bound to an Input node and resets the run.
func (s *State) Rebind(id string, v ir.Value) error {
	if err := s.checkBinding(id, v); err != nil {
		return err
	}
	s.bindings[id] = v
	s.Reset()
	return nil
}

// enabled returns node indices that may fire this step, in declaration order,
// together with the slots each will consume.
func (s *State) enabled() ([]int, [][]int) {
	var idx []int
	var reads [][]int
	first := s.clock.Current() == 0
	for i, n := range s.nodes {
		if n.node.Kind.IsSource() && s.oneShot && !first {
			continue
		}
		slots, ok := n.firingSlots()
		if !ok {
			continue
		}
		idx = append(idx, i)
		reads = append(reads, slots)
	}
	return idx, reads
}

// Step fires every enabled node once and then publishes their tokens.
//
// A completed run returns StepAlreadyComplete without touching any state.
// A step with nothing enabled returns StepNoProgress and marks the run stuck.
// The only error is a configuration error found while firing, after which
// the run is failed and every later call returns the same error.
func (s *State) Step() (StepResult, error) {
	switch s.status {
	case StatusCompleted:
		return StepResult{Status: StepAlreadyComplete, PendingTokens: s.totalPending()}, nil
	case StatusFailed:
		return StepResult{}, s.err
	}

	enabled, reads := s.enabled()
	if len(enabled) == 0 {
		s.status = StatusStuck
		pending := s.totalPending()
		s.logger.Info("run stuck",
			"graph", s.graph.Name,
			"step", s.clock.Current(),
			"pending", pending,
		)
		return StepResult{Status: StepNoProgress, PendingTokens: pending}, nil
	}

	rec := ir.StepRecord{
		Step:    s.clock.Next(),
		Firings: make([]ir.Firing, 0, len(enabled)),
	}

	type emission struct {
		from int
		v    ir.Value
	}
	var emitted []emission
	var writes []ir.MemoryWrite
	var outputs []string
	var ret ir.Value

	for k, i := range enabled {
		n := s.nodes[i]
		in := n.consume(reads[k])
		res := s.fire(n, in)

		rec.Firings = append(rec.Firings, ir.Firing{
			Node:   n.node.ID,
			Kind:   n.node.Kind,
			Inputs: in,
			Output: res.out,
		})
		if res.write != nil {
			writes = append(writes, *res.write)
		}
		if res.out != nil {
			n.last = res.out
			emitted = append(emitted, emission{from: i, v: res.out})
		}
		if n.node.Kind == ir.KindOutput {
			outputs = append(outputs, n.node.ID)
			ret = res.out
		}
	}

	// Writes commit after every Load of this step has read.
	for _, w := range writes {
		s.memory.Store(w.Address, w.Value)
	}
	rec.Writes = writes

	for _, e := range emitted {
		from := s.nodes[e.from]
		for j, edge := range from.succ {
			s.nodes[from.target[j]].slots[edge.Slot].push(e.v)
		}
	}

	if len(outputs) > 1 {
		s.trace.Append(rec)
		s.status = StatusFailed
		s.err = configErr(ErrCodeAmbiguousOutput, outputs[0],
			"%d Output nodes fired in step %d: %v", len(outputs), rec.Step, outputs)
		s.logger.Error("run failed", "graph", s.graph.Name, "step", rec.Step, "error", s.err)
		return StepResult{}, s.err
	}
	if len(outputs) == 1 {
		rec.Completed = true
		s.status = StatusCompleted
		s.ret = ret
		s.hasReturn = ret != nil
	} else {
		s.status = StatusReady
	}
	s.trace.Append(rec)

	pending := s.totalPending()
	s.logger.Debug("step fired",
		"graph", s.graph.Name,
		"step", rec.Step,
		"fired", len(rec.Firings),
		"produced", len(emitted),
		"writes", len(writes),
		"pending", pending,
	)
	if rec.Completed {
		s.logger.Info("run completed",
			"graph", s.graph.Name,
			"steps", rec.Step,
			"return", valueAttr(s.ret),
		)
	}

	return StepResult{Status: StepFired, Record: rec, PendingTokens: pending}, nil
}

func valueAttr(v ir.Value) string {
	if v == nil {
		return "undefined"
	}
	return ir.TypeName(v) + ":" + v.String()
}

func (s *State) totalPending() int {
	total := 0
	for _, n := range s.nodes {
		total += n.pending()
	}
	return total
}

// Status returns the run's lifecycle state.
func (s *State) Status() Status {
	return s.status
}

// Err returns the configuration error that failed the run, if any.
func (s *State) Err() error {
	return s.err
}

// Completed reports whether an Output node has fired.
func (s *State) Completed() bool {
	return s.status == StatusCompleted
}

// ReturnValue returns the value consumed by the Output node.
// It reports false until completion, and after completion of an Output
// with no producers.
func (s *State) ReturnValue() (ir.Value, bool) {
	return s.ret, s.hasReturn
}

// StepCount returns the number of steps fired so far.
func (s *State) StepCount() int64 {
	return s.clock.Current()
}

// Pending returns the number of tokens queued on node id across its slots.
func (s *State) Pending(id string) int {
	i, ok := s.index[id]
	if !ok {
		return 0
	}
	return s.nodes[i].pending()
}

// PendingBySlot returns the queue length of each of node id's slots.
func (s *State) PendingBySlot(id string) []int {
	i, ok := s.index[id]
	if !ok {
		return nil
	}
	n := s.nodes[i]
	out := make([]int, len(n.slots))
	for j, q := range n.slots {
		out[j] = q.Len()
	}
	return out
}

// PendingCounts returns the queued token count of every node.
func (s *State) PendingCounts() map[string]int {
	out := make(map[string]int, len(s.nodes))
	for _, n := range s.nodes {
		out[n.node.ID] = n.pending()
	}
	return out
}

// PendingTokens returns the total number of queued tokens.
func (s *State) PendingTokens() int {
	return s.totalPending()
}

// LastOutput returns the most recent token node id produced.
func (s *State) LastOutput(id string) (ir.Value, bool) {
	i, ok := s.index[id]
	if !ok || s.nodes[i].last == nil {
		return nil, false
	}
	return s.nodes[i].last, true
}

// Outputs returns the last produced token of every node that has produced one.
func (s *State) Outputs() map[string]ir.Value {
	out := make(map[string]ir.Value)
	for _, n := range s.nodes {
		if n.last != nil {
			out[n.node.ID] = n.last
		}
	}
	return out
}

// Memory returns a snapshot of memory ordered by address.
func (s *State) Memory() []Cell {
	return s.memory.Snapshot()
}

// Trace returns a copy of the step records so far.
func (s *State) Trace() []ir.StepRecord {
	return s.trace.Records()
}

// LastRecord returns the most recently recorded step, including a step
// that failed.
func (s *State) LastRecord() (ir.StepRecord, bool) {
	return s.trace.Last()
}

// Firings returns the recorded firings matching p, in trace order.
func (s *State) Firings(p queryir.Predicate) []NodeFiring {
	return s.trace.Filter(p)
}

// TraceHash returns the canonical digest of the trace so far.
func (s *State) TraceHash() (string, error) {
	return s.trace.Hash()
}

// Graph returns a copy of the graph this run executes.
func (s *State) Graph() ir.Graph {
	return s.graph.Clone()
}

// Bindings returns a copy of the explicit Input bindings.
func (s *State) Bindings() map[string]ir.Value {
	return maps.Clone(s.bindings)
}

// CarryPhase returns "initial" or "looping" for a Carry node.
func (s *State) CarryPhase(id string) (string, bool) {
	i, ok := s.index[id]
	if !ok || s.nodes[i].node.Kind != ir.KindCarry {
		return "", false
	}
	return s.nodes[i].phase.String(), true
}
