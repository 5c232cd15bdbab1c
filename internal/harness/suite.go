package harness

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// SuiteResult summarizes running every scenario under a directory.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`

	// Scenarios lists every scenario in run order.
	Scenarios []ScenarioOutcome `json:"scenarios"`
}

// ScenarioOutcome is the pass/fail line for one scenario file.
type ScenarioOutcome struct {
	ScenarioPath string `json:"scenario_path"`
	Name         string `json:"name,omitempty"`
	Pass         bool   `json:"pass"`
}

// ScenarioFailure names a scenario that did not pass and why.
type ScenarioFailure struct {
	ScenarioPath string   `json:"scenario_path"`
	Name         string   `json:"name,omitempty"`
	Errors       []string `json:"errors"`
}

// GoldenMode selects how RunSuite treats golden files next to scenarios.
type GoldenMode int

const (
	// GoldenCompare checks runs against existing golden files and skips
	// scenarios that have none.
	GoldenCompare GoldenMode = iota
	// GoldenUpdate rewrites golden files from the current runs.
	GoldenUpdate
)

// DiscoverScenarios returns the .yaml and .yml files under dir, sorted.
// A non-empty filter is a glob matched against the file name without its
// extension.
func DiscoverScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// GoldenPath returns where a scenario file's golden trace lives:
// a golden/ directory beside it, named after the file.
func GoldenPath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// RunSuite loads and runs every scenario under dir.
func RunSuite(dir, filter string, mode GoldenMode) (*SuiteResult, error) {
	files, err := DiscoverScenarios(dir, filter)
	if err != nil {
		return nil, err
	}

	res := &SuiteResult{Total: len(files), Scenarios: make([]ScenarioOutcome, 0, len(files))}
	for _, path := range files {
		name, errs := runScenarioFile(path, mode)
		res.Scenarios = append(res.Scenarios, ScenarioOutcome{ScenarioPath: path, Name: name, Pass: len(errs) == 0})
		if len(errs) == 0 {
			res.Passed++
			continue
		}
		res.Failed++
		res.Failures = append(res.Failures, ScenarioFailure{ScenarioPath: path, Name: name, Errors: errs})
	}
	return res, nil
}

func runScenarioFile(path string, mode GoldenMode) (string, []string) {
	scenario, err := LoadScenario(path)
	if err != nil {
		return "", []string{fmt.Sprintf("failed to load scenario: %v", err)}
	}
	result, err := Run(scenario)
	if err != nil {
		return scenario.Name, []string{fmt.Sprintf("scenario execution failed: %v", err)}
	}

	errs := result.Errors
	data, err := Snapshot(scenario.Name, result)
	if err != nil {
		return scenario.Name, append(errs, fmt.Sprintf("snapshot: %v", err))
	}

	golden := GoldenPath(path)
	switch mode {
	case GoldenUpdate:
		if err := os.MkdirAll(filepath.Dir(golden), 0o755); err != nil {
			return scenario.Name, append(errs, fmt.Sprintf("failed to create golden directory: %v", err))
		}
		if err := os.WriteFile(golden, data, 0o644); err != nil {
			return scenario.Name, append(errs, fmt.Sprintf("failed to write golden file: %v", err))
		}
	case GoldenCompare:
		want, err := os.ReadFile(golden)
		switch {
		case os.IsNotExist(err):
			// assertions only
		case err != nil:
			errs = append(errs, fmt.Sprintf("failed to read golden file: %v", err))
		case !bytes.Equal(want, data):
			errs = append(errs, "trace does not match golden file (run with --update to regenerate)")
		}
	}
	return scenario.Name, errs
}
