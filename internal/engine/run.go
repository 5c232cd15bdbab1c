package engine

import (
	"context"

	"github.com/roach88/dfsim/internal/ir"
)

// Outcome summarizes a Run call.
type Outcome struct {
	Status Status

	// Steps is the number of steps fired during this call.
	Steps int

	// LimitReached is set when the step bound stopped the run. Status is
	// then StatusStuck even though nodes may still be enabled.
	LimitReached bool
	Limit        int

	PendingTokens int
	Return        ir.Value
	HasReturn     bool

	graph string
}

// Err converts a bounded-out run into a StepsExceededError. It returns nil
// for completed and genuinely stuck runs.
func (o Outcome) Err() error {
	if !o.LimitReached {
		return nil
	}
	return &StepsExceededError{Graph: o.graph, Steps: o.Steps, Limit: o.Limit, Pending: o.PendingTokens}
}

// RunConfig gathers everything besides the graph that determines a run.
// Two States built from the same graph and RunConfig produce identical traces.
type RunConfig struct {
	Inputs   map[string]ir.Value
	Memory   map[int64]ir.Value
	OneShot  bool
	MaxSteps int
}

// Options translates the config into State options. extra are appended.
func (c RunConfig) Options(extra ...Option) []Option {
	var opts []Option
	if len(c.Memory) > 0 {
		opts = append(opts, WithMemory(c.Memory))
	}
	if c.OneShot {
		opts = append(opts, WithOneShotSources())
	}
	return append(opts, extra...)
}

// NewState builds a State for g under this config.
func (c RunConfig) NewState(g ir.Graph, extra ...Option) (*State, error) {
	return New(g, c.Inputs, c.Options(extra...)...)
}

// Limit returns the effective step bound.
func (c RunConfig) Limit() int {
	if c.MaxSteps <= 0 {
		return DefaultMaxSteps
	}
	return c.MaxSteps
}

// Run steps until the run completes, stops making progress, or has fired
// maxSteps steps. A maxSteps of zero or less means DefaultMaxSteps.
func (s *State) Run(maxSteps int) (Outcome, error) {
	return s.RunContext(context.Background(), maxSteps)
}

// RunContext is Run with cancellation checked between steps.
func (s *State) RunContext(ctx context.Context, maxSteps int) (Outcome, error) {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return s.run(ctx, maxSteps)
}

func (s *State) run(ctx context.Context, maxSteps int) (Outcome, error) {
	out := Outcome{Limit: maxSteps, graph: s.graph.Name}
	quota := NewQuotaEnforcer(maxSteps)

	for {
		if err := ctx.Err(); err != nil {
			return s.finish(out), err
		}
		switch s.status {
		case StatusCompleted:
			return s.finish(out), nil
		case StatusFailed:
			return s.finish(out), s.err
		}

		if err := quota.Check(s.graph.Name); err != nil {
			out.LimitReached = true
			res := s.finish(out)
			res.Status = StatusStuck
			s.logger.Warn("step bound reached",
				"graph", s.graph.Name,
				"limit", maxSteps,
				"pending", res.PendingTokens,
			)
			return res, nil
		}

		res, err := s.Step()
		if err != nil {
			return s.finish(out), err
		}
		switch res.Status {
		case StepFired:
			out.Steps++
		case StepNoProgress, StepAlreadyComplete:
			return s.finish(out), nil
		}
	}
}

func (s *State) finish(out Outcome) Outcome {
	out.Status = s.status
	out.PendingTokens = s.totalPending()
	out.Return, out.HasReturn = s.ReturnValue()
	return out
}
