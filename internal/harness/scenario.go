package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
)

// Scenario is one conformance case: a graph, the configuration it runs
// under, and what the run must look like afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Graph is the graph description to run (.cue, .hcl, .json or a CUE
	// package directory). Relative paths resolve against the scenario file.
	Graph string `yaml:"graph"`

	// Inputs binds Input nodes by id. Unbound inputs use their literal.
	Inputs map[string]any `yaml:"inputs,omitempty"`

	// Memory seeds cells before the first step.
	Memory map[int64]any `yaml:"memory,omitempty"`

	MaxSteps int  `yaml:"max_steps,omitempty"`
	OneShot  bool `yaml:"one_shot,omitempty"`

	// RunID names the persisted run. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	Expect ExpectClause `yaml:"expect"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ExpectClause describes how the run ended. Unset fields are not checked.
type ExpectClause struct {
	// Status is the final run status: completed, stuck or failed.
	Status string `yaml:"status"`

	Return   any  `yaml:"return,omitempty"`
	NoReturn bool `yaml:"no_return,omitempty"`

	Steps        int64 `yaml:"steps,omitempty"`
	Pending      *int  `yaml:"pending,omitempty"`
	LimitReached *bool `yaml:"limit_reached,omitempty"`

	// ErrorCode is the configuration error a failed run must report.
	ErrorCode string `yaml:"error_code,omitempty"`

	// Memory is a subset match against the final memory image.
	Memory map[int64]any `yaml:"memory,omitempty"`
}

// Assertion checks the trace of a finished run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Node is the subject of fired_count, never_fired and produced.
	Node string `yaml:"node,omitempty"`

	// Nodes lists the nodes fired_before expects in first-firing order.
	Nodes []string `yaml:"nodes,omitempty"`

	// Count is the expected number of firings (fired_count, firing_query).
	Count int `yaml:"count,omitempty"`

	// Value is the token produced must see.
	Value any `yaml:"value,omitempty"`

	// Query filters the persisted firings for firing_query.
	Query *FiringQuery `yaml:"query,omitempty"`
}

// FiringQuery is the YAML form of a trace query against the run store.
type FiringQuery struct {
	Node     string `yaml:"node,omitempty"`
	Kind     string `yaml:"kind,omitempty"`
	From     int64  `yaml:"from,omitempty"`
	To       int64  `yaml:"to,omitempty"`
	Produced *bool  `yaml:"produced,omitempty"`
}

// Assertion type constants.
const (
	AssertFiredCount  = "fired_count"
	AssertNeverFired  = "never_fired"
	AssertFiredBefore = "fired_before"
	AssertProduced    = "produced"
	AssertFiringQuery = "firing_query"
)

// GraphNotFoundError is returned when a scenario references a graph
// description that does not exist.
type GraphNotFoundError struct {
	Scenario     string
	GraphPath    string
	ResolvedPath string
}

// Error implements the error interface.
func (e *GraphNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q references graph %q which does not exist (resolved to: %s)",
		e.Scenario, e.GraphPath, e.ResolvedPath)
}

// LoadScenario reads a scenario YAML file. Unknown fields are rejected so
// typos surface as errors, and the graph path is resolved relative to the
// scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Graph != "" && !filepath.IsAbs(scenario.Graph) {
		scenario.Graph = filepath.Join(filepath.Dir(path), scenario.Graph)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// RunConfig converts the scenario's bindings and options for the engine.
func (s *Scenario) RunConfig() (engine.RunConfig, error) {
	cfg := engine.RunConfig{OneShot: s.OneShot, MaxSteps: s.MaxSteps}

	if len(s.Inputs) > 0 {
		cfg.Inputs = make(map[string]ir.Value, len(s.Inputs))
		for id, raw := range s.Inputs {
			v, err := ir.FromNative(raw)
			if err != nil {
				return engine.RunConfig{}, fmt.Errorf("inputs.%s: %w", id, err)
			}
			cfg.Inputs[id] = v
		}
	}

	if len(s.Memory) > 0 {
		image, err := convertCells("memory", s.Memory)
		if err != nil {
			return engine.RunConfig{}, err
		}
		cfg.Memory = image
	}
	return cfg, nil
}

func convertCells(field string, cells map[int64]any) (map[int64]ir.Value, error) {
	image := make(map[int64]ir.Value, len(cells))
	for addr, raw := range cells {
		v, err := ir.FromNative(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%d: %w", field, addr, err)
		}
		image[addr] = v
	}
	return image, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Graph == "" {
		return fmt.Errorf("graph is required")
	}
	if _, err := os.Stat(s.Graph); os.IsNotExist(err) {
		return &GraphNotFoundError{Scenario: s.Name, GraphPath: filepath.Base(s.Graph), ResolvedPath: s.Graph}
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}
	if _, err := s.RunConfig(); err != nil {
		return err
	}

	if s.Expect.Status == "" {
		return fmt.Errorf("expect.status is required")
	}
	if _, err := engine.ParseStatus(s.Expect.Status); err != nil {
		return fmt.Errorf("expect.status: %w", err)
	}
	if s.Expect.Return != nil && s.Expect.NoReturn {
		return fmt.Errorf("expect: return and no_return are mutually exclusive")
	}
	if s.Expect.ErrorCode != "" && s.Expect.Status != engine.StatusFailed.String() {
		return fmt.Errorf("expect.error_code requires status %q", engine.StatusFailed)
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFiredCount:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for fired_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for fired_count", index)
		}
	case AssertNeverFired:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for never_fired", index)
		}
	case AssertFiredBefore:
		if len(a.Nodes) < 2 {
			return fmt.Errorf("assertions[%d]: fired_before needs at least two nodes", index)
		}
	case AssertProduced:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for produced", index)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for produced", index)
		}
	case AssertFiringQuery:
		if a.Query == nil {
			return fmt.Errorf("assertions[%d]: query is required for firing_query", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for firing_query", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
