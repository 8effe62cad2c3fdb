package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	scenarioPath := filepath.Join(dir, "test.yaml")

	content := `
name: test_scenario
description: "Test scenario for validation"
policy: coalesce
debounce: 3s
setup:
  online: false
  fields:
    gold: 1
steps:
  - log:
      - op: score
        params:
          task: t1
  - advance: 3s
  - respond:
      outcome: definitive
      status: 400
  - expect:
      queue: []
      fetching: false
`
	require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

	scenario, err := LoadScenario(scenarioPath)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "coalesce", scenario.Policy)
	assert.Equal(t, "3s", scenario.Debounce)
	assert.False(t, scenario.Setup.online())
	assert.True(t, scenario.Setup.authenticated())
	require.Len(t, scenario.Steps, 4)
	require.Len(t, scenario.Steps[0].Log, 1)
	assert.Equal(t, "score", scenario.Steps[0].Log[0].Op)
	assert.Equal(t, "t1", scenario.Steps[0].Log[0].Params["task"])
	assert.Equal(t, 400, scenario.Steps[2].Respond.Status)
	require.NotNil(t, scenario.Steps[3].Expect)
	assert.NotNil(t, scenario.Steps[3].Expect.Queue, "an empty list is still checked")
	assert.Empty(t, scenario.Steps[3].Expect.Queue)
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nsteps:\n  - flush: true\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nsteps:\n  - flush: true\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			content: "name: n\ndescription: d\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown field",
			content: "name: n\ndescription: d\nstep:\n  - flush: true\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "unknown policy",
			content: "name: n\ndescription: d\npolicy: eager\nsteps:\n  - flush: true\n",
			wantErr: "eager",
		},
		{
			name:    "bad debounce",
			content: "name: n\ndescription: d\ndebounce: soon\nsteps:\n  - flush: true\n",
			wantErr: "positive duration",
		},
		{
			name:    "empty step",
			content: "name: n\ndescription: d\nsteps:\n  - {}\n",
			wantErr: "no action set",
		},
		{
			name:    "two actions",
			content: "name: n\ndescription: d\nsteps:\n  - flush: true\n    undo: true\n",
			wantErr: "more than one action",
		},
		{
			name:    "operation without name",
			content: "name: n\ndescription: d\nsteps:\n  - log:\n      - params: {a: 1}\n",
			wantErr: "op is required",
		},
		{
			name:    "bad advance",
			content: "name: n\ndescription: d\nsteps:\n  - advance: later\n",
			wantErr: "not a duration",
		},
		{
			name:    "unknown outcome",
			content: "name: n\ndescription: d\nsteps:\n  - respond: {outcome: maybe}\n",
			wantErr: "unknown outcome",
		},
		{
			name:    "definitive without status",
			content: "name: n\ndescription: d\nsteps:\n  - respond: {outcome: definitive}\n",
			wantErr: "status >= 400",
		},
		{
			name:    "fields without credentials",
			content: "name: n\ndescription: d\nsetup:\n  authenticated: false\n  fields: {gold: 1}\nsteps:\n  - flush: true\n",
			wantErr: "authenticated client",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	paths, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, paths)

	_, err = Discover(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
