package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioDir holds the checked-in scenarios, relative to this package.
const scenarioDir = "../../testdata/scenarios"

// TestScenarios runs every checked-in scenario and compares its trace with
// the golden file of the same name.
func TestScenarios(t *testing.T) {
	paths, err := Discover(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := filepath.Base(path)
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err, "failed to load scenario from %s", path)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "expectations failed: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestScenarioA_OneBatchForTheWindow(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "scenario_a_coalesce.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "%v", result.Errors)

	dispatches := result.Dispatches()
	require.Len(t, dispatches, 1)
	assert.Len(t, dispatches[0].Ops, 2)
	assert.Equal(t, "a", dispatches[0].Ops[0].Name)
	assert.Equal(t, "b", dispatches[0].Ops[1].Name)
}

func TestScenarioC_RetransmitsExactly(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "scenario_c_transient_requeue.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "%v", result.Errors)

	dispatches := result.Dispatches()
	require.Len(t, dispatches, 2)
	assert.Equal(t, dispatches[0].Ops, dispatches[1].Ops[:2], "retransmission starts with the failed batch")
	assert.NotEqual(t, dispatches[0].Batch, dispatches[1].Batch)
}

func TestScenarioB_ExternalChangeOnce(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "scenario_b_external_change.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "%v", result.Errors)

	external := 0
	for _, ev := range result.Trace {
		if ev.Type == EventState && ev.Kind == "external_change" {
			external++
		}
	}
	assert.Equal(t, 1, external)
	assert.NotContains(t, result.State, "wasModified")
	assert.EqualValues(t, 5, result.State["gold"])
}
