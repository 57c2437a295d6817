package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDir_Testdata(t *testing.T) {
	result, err := RunDir(context.Background(), "testdata", Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, result.TotalScenarios)
	assert.Equal(t, 5, result.Passed, "failures: %+v", result.Failures)
	assert.Zero(t, result.Failed)
}

func TestRunDir_CollectsFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "golden"), 0755))

	writeScenario(t, dir, "a_passes.yaml", `
name: passes
description: "Counts an empty table"
flow:
  - op: count
    table: notes
    expect:
      count: 0
`)
	writeScenario(t, dir, "b_fails.yaml", `
name: fails
description: "Expects a record that is not there"
flow:
  - op: count
    table: notes
    expect:
      count: 1
`)
	writeScenario(t, dir, "c_broken.yaml", `
name: broken
flow: []
`)
	writeScenario(t, dir, "d_stale_golden.yaml", `
name: stale
description: "Trace differs from the golden file"
flow:
  - op: count
    table: notes
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "stale.golden"), []byte("{}\n"), 0644))

	result, err := RunDir(context.Background(), dir, Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalScenarios)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 3, result.Failed)
	require.Len(t, result.Failures, 3)

	assert.Equal(t, "fails", result.Failures[0].Scenario)
	assert.Contains(t, result.Failures[0].Errors[0], "count: expected 1, got 0")

	assert.Empty(t, result.Failures[1].Scenario)
	assert.Contains(t, result.Failures[1].Errors[0], "failed to load scenario")

	assert.Equal(t, "stale", result.Failures[2].Scenario)
	assert.Contains(t, result.Failures[2].Errors[0], "trace differs from")
}

func TestUpdateGoldens(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "one.yaml", `
name: one
description: "Adds a contact"
flow:
  - op: add
    table: contacts
    as: a
    record: { name: A }
`)

	written, err := UpdateGoldens(context.Background(), dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, written)

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "one.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"target": "contacts"`)
	assert.Contains(t, string(golden), `"rec-0001"`)

	result, err := RunDir(context.Background(), dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Passed)

	writeScenario(t, dir, "two.yaml", `
name: two
description: "Fails its own expectation"
flow:
  - op: count
    table: contacts
    expect: { count: 3 }
`)
	_, err = UpdateGoldens(context.Background(), dir, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "two: scenario fails")
	assert.NoFileExists(t, filepath.Join(dir, "golden", "two.golden"))
}

func TestRunDir_EmptyDirectory(t *testing.T) {
	_, err := RunDir(context.Background(), t.TempDir(), Options{})
	assert.Error(t, err)
}

func TestSnapshot_MatchesGoldenFile(t *testing.T) {
	scenario, err := LoadScenario("testdata/tasks_by_contact.yaml")
	require.NoError(t, err)
	result, err := Run(context.Background(), scenario, Options{})
	require.NoError(t, err)

	got, err := Snapshot(scenario.Name, result)
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join("testdata", "golden", scenario.Name+".golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}
