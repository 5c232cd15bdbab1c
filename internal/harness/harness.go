package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/dfsim/internal/compiler"
	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
	"github.com/roach88/dfsim/internal/store"
	"github.com/roach88/dfsim/internal/testutil"
)

// Harness executes scenarios against the real engine and checks the
// persisted run.
type Harness struct {
	store  *store.Store
	runIDs engine.RunIDGenerator
	logger *slog.Logger
}

// Run executes a scenario in a fresh in-memory store.
//
// Execution flow:
//  1. Load and validate the graph
//  2. Run it under the scenario's configuration
//  3. Persist the run, then read trace and memory back
//  4. Check the expect clause and evaluate assertions
//
// An error means the scenario could not be executed at all; a failing
// check is reported through Result.Pass and Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		runIDs: testutil.NewFixedRunIDGenerator(scenario.RunID),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return h.run(context.Background(), scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	g, err := compiler.LoadGraph(scenario.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}
	if verrs := compiler.Validate(g); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, e := range verrs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid graph %s: %s", g.Name, strings.Join(msgs, "; "))
	}

	cfg, err := scenario.RunConfig()
	if err != nil {
		return nil, err
	}
	state, err := cfg.NewState(g, engine.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	out, runErr := state.Run(cfg.Limit())
	var cfgErr *engine.ConfigError
	if runErr != nil && !errors.As(runErr, &cfgErr) {
		return nil, fmt.Errorf("run failed: %w", runErr)
	}

	id := h.runIDs.Generate()
	saved, err := h.store.SaveRun(ctx, id, state, out, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	result, err := h.readBack(ctx, saved)
	if err != nil {
		return nil, err
	}
	if cfgErr != nil {
		result.ErrorCode = string(cfgErr.Code)
	}

	h.logger.Info("scenario executed",
		"scenario", scenario.Name,
		"run_id", id,
		"status", result.Status,
		"steps", result.Steps,
	)

	checkExpect(result, scenario.Expect)

	actx := &AssertionContext{Store: h.store, Ctx: ctx, RunID: id}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// readBack builds the result from what the store holds, so every scenario
// also exercises the persistence round trip.
func (h *Harness) readBack(ctx context.Context, saved store.Run) (*Result, error) {
	run, err := h.store.ReadRun(ctx, saved.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read run: %w", err)
	}
	trace, err := h.store.ReadTrace(ctx, saved.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	memory, err := h.store.ReadMemory(ctx, saved.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory: %w", err)
	}

	result := NewResult()
	result.RunID = run.ID
	result.Status = run.Status.String()
	result.Return = run.Return
	result.Steps = run.Steps
	result.Pending = run.Pending
	result.LimitReached = run.LimitReached
	result.Memory = memory
	for _, rec := range trace {
		result.AddStep(rec)
	}

	hash, err := ir.TraceHash(trace)
	if err != nil {
		return nil, err
	}
	if hash != run.TraceHash {
		result.AddError(fmt.Sprintf("stored trace digest %s does not match recorded %s", hash, run.TraceHash))
	}
	return result, nil
}

func checkExpect(result *Result, expect ExpectClause) {
	if result.Status != expect.Status {
		result.AddError(fmt.Sprintf("expected status %s, got %s", expect.Status, result.Status))
	}

	if expect.Return != nil {
		want, err := ir.FromNative(expect.Return)
		switch {
		case err != nil:
			result.AddError(fmt.Sprintf("expect.return: %v", err))
		case !ir.Equal(want, result.Return):
			result.AddError(fmt.Sprintf("expected return %s, got %s", describe(want), describe(result.Return)))
		}
	}
	if expect.NoReturn && result.Return != nil {
		result.AddError(fmt.Sprintf("expected no return value, got %s", describe(result.Return)))
	}

	if expect.Steps != 0 && result.Steps != expect.Steps {
		result.AddError(fmt.Sprintf("expected %d steps, got %d", expect.Steps, result.Steps))
	}
	if expect.Pending != nil && result.Pending != *expect.Pending {
		result.AddError(fmt.Sprintf("expected %d pending tokens, got %d", *expect.Pending, result.Pending))
	}
	if expect.LimitReached != nil && result.LimitReached != *expect.LimitReached {
		result.AddError(fmt.Sprintf("expected limit_reached %t, got %t", *expect.LimitReached, result.LimitReached))
	}
	if expect.ErrorCode != "" && result.ErrorCode != expect.ErrorCode {
		result.AddError(fmt.Sprintf("expected error code %s, got %q", expect.ErrorCode, result.ErrorCode))
	}

	if len(expect.Memory) > 0 {
		want, err := convertCells("expect.memory", expect.Memory)
		if err != nil {
			result.AddError(err.Error())
			return
		}
		got := make(map[int64]ir.Value, len(result.Memory))
		for _, c := range result.Memory {
			got[c.Address] = c.Value
		}
		for _, addr := range sortedAddrs(want) {
			if v, ok := got[addr]; !ok || !ir.Equal(v, want[addr]) {
				result.AddError(fmt.Sprintf("expected memory @%d = %s, got %s", addr, describe(want[addr]), describe(v)))
			}
		}
	}
}

// describe renders a value with its type tag, e.g. int:15.
func describe(v ir.Value) string {
	if v == nil {
		return "undefined"
	}
	return ir.TypeName(v) + ":" + v.String()
}
