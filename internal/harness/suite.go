package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// SuiteResult summarises a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a failed scenario.
type ScenarioFailure struct {
	Scenario     string   `json:"scenario,omitempty"`
	ScenarioPath string   `json:"scenario_path"`
	Errors       []string `json:"errors"`
}

// RunDir runs every *.yaml scenario in dir.
//
// For each file:
// 1. Load and validate the scenario
// 2. Run it via Run
// 3. Compare its snapshot with golden/<name>.golden next to it, if present
// 4. Collect the outcome
//
// A file that fails to load or run counts as a failed scenario; the
// returned error is for a directory holding no scenarios only.
func RunDir(ctx context.Context, dir string, opts Options) (*SuiteResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios (*.yaml) in %s", dir)
	}
	slices.Sort(paths)

	result := &SuiteResult{}
	for _, path := range paths {
		result.TotalScenarios++

		name, errs := runFile(ctx, path, opts)
		if len(errs) > 0 {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario:     name,
				ScenarioPath: path,
				Errors:       errs,
			})
			continue
		}
		result.Passed++
	}
	return result, nil
}

// UpdateGoldens runs every scenario in dir and writes its snapshot to
// golden/<name>.golden, returning the names written. A scenario failing
// its own expectations stops the update before its golden is written.
func UpdateGoldens(ctx context.Context, dir string, opts Options) ([]string, error) {
	scenarios, err := LoadScenarios(dir)
	if err != nil {
		return nil, err
	}

	goldenDir := filepath.Join(dir, "golden")
	if err := os.MkdirAll(goldenDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create golden directory: %w", err)
	}

	var written []string
	for _, scenario := range scenarios {
		res, err := Run(ctx, scenario, opts)
		if err != nil {
			return written, fmt.Errorf("%s: %w", scenario.Name, err)
		}
		if !res.Pass {
			return written, fmt.Errorf("%s: scenario fails: %v", scenario.Name, res.Errors)
		}
		data, err := Snapshot(scenario.Name, res)
		if err != nil {
			return written, fmt.Errorf("%s: %w", scenario.Name, err)
		}
		if err := os.WriteFile(filepath.Join(goldenDir, scenario.Name+".golden"), data, 0644); err != nil {
			return written, fmt.Errorf("failed to write golden file: %w", err)
		}
		written = append(written, scenario.Name)
	}
	return written, nil
}

func runFile(ctx context.Context, path string, opts Options) (string, []string) {
	scenario, err := LoadScenario(path)
	if err != nil {
		return "", []string{fmt.Sprintf("failed to load scenario: %v", err)}
	}

	res, err := Run(ctx, scenario, opts)
	if err != nil {
		return scenario.Name, []string{fmt.Sprintf("scenario execution failed: %v", err)}
	}
	if !res.Pass {
		return scenario.Name, res.Errors
	}

	golden := filepath.Join(filepath.Dir(path), "golden", scenario.Name+".golden")
	want, err := os.ReadFile(golden)
	if errors.Is(err, fs.ErrNotExist) {
		return scenario.Name, nil
	}
	if err != nil {
		return scenario.Name, []string{fmt.Sprintf("read golden: %v", err)}
	}

	got, err := Snapshot(scenario.Name, res)
	if err != nil {
		return scenario.Name, []string{fmt.Sprintf("snapshot: %v", err)}
	}
	if !bytes.Equal(got, want) {
		return scenario.Name, []string{fmt.Sprintf("trace differs from %s", golden)}
	}
	return scenario.Name, nil
}
