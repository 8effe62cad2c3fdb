package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synq/internal/testutil"
)

const (
	testScenariosDir = "../../testdata/scenarios"
	testGoldenDir    = "../harness/testdata/golden"
)

func TestScenarioCommand_MatchesGolden(t *testing.T) {
	out, _, err := execute(t, testutil.NewScriptedTransport(), "", "scenario", testScenariosDir, "--golden", testGoldenDir)
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ scenario_a_coalesce")
	assert.Contains(t, out, "✓ definitive_rejection_discards")
	assert.Contains(t, out, "Scenario Summary: 6 passed, 0 failed, 6 total")
}

func TestScenarioCommand_Filter(t *testing.T) {
	out, _, err := execute(t, testutil.NewScriptedTransport(), "", "--format", "json",
		"scenario", testScenariosDir, "--golden", testGoldenDir, "--filter", "scenario_*")
	require.NoError(t, err, out)

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 4, result.Passed)
}

func TestScenarioCommand_UpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()

	_, _, err := execute(t, testutil.NewScriptedTransport(), "",
		"scenario", testScenariosDir, "--golden", dir, "--filter", "scenario_c_*", "--update")
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(dir, "scenario_c_transient_requeue.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(testGoldenDir, "scenario_c_transient_requeue.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))
}

func TestScenarioCommand_GoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scenario_a_coalesce.golden"), []byte("{}"), 0644))

	out, _, err := execute(t, testutil.NewScriptedTransport(), "",
		"scenario", testScenariosDir, "--golden", dir, "--filter", "scenario_a_*")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ scenario_a_coalesce")
	assert.Contains(t, out, "does not match golden file")
}

func TestScenarioCommand_MissingDir(t *testing.T) {
	_, _, err := execute(t, testutil.NewScriptedTransport(), "", "scenario", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScenarioCommand_Empty(t *testing.T) {
	out, _, err := execute(t, testutil.NewScriptedTransport(), "", "scenario", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}
