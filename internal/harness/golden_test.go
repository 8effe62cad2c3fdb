package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synq/internal/ir"
)

func TestMarshalTrace_OmitsEmptyMembers(t *testing.T) {
	result := NewResult()
	result.Trace = []TraceEvent{
		{Type: EventDispatch, Step: 1, Batch: "batch-1", Ops: []ir.Operation{{Name: "a", Params: map[string]any{"id": "x"}}}},
		{Type: EventReply, Step: 2, Batch: "batch-1", Outcome: OutcomeDefinitive, Status: 400},
		{Type: EventNotify, Step: 2, Kind: "persistent", Message: "Task not found"},
	}

	data, err := MarshalTrace("sample", result)
	require.NoError(t, err)

	expected := `{"scenario_name":"sample","trace":[` +
		`{"batch":"batch-1","ops":[{"op":"a","params":{"id":"x"}}],"step":1,"type":"dispatch"},` +
		`{"batch":"batch-1","outcome":"definitive","status":400,"step":2,"type":"reply"},` +
		`{"kind":"persistent","message":"Task not found","step":2,"type":"notify"}]}`
	assert.Equal(t, expected, string(data))
}

func TestMarshalTrace_Deterministic(t *testing.T) {
	scenario := &Scenario{
		Name:        "deterministic",
		Description: "Same scenario, same bytes",
		Steps: []Step{
			{Log: []OperationSpec{{Op: "a"}, {Op: "b", Body: map[string]any{"z": 1, "a": 2}}}},
			{Flush: true},
			{Respond: &Respond{Outcome: OutcomeTransient}},
			{Flush: true},
			{Respond: &Respond{Outcome: OutcomeModified, Fields: map[string]any{"gold": 2}}},
		},
	}

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, 2, first.Count(EventDispatch))
}

func TestAssertGolden_EmptyTrace(t *testing.T) {
	// testdata/golden/empty_trace.golden holds the trace of a scenario
	// that never reaches the transport.
	scenario := &Scenario{
		Name:        "empty_trace",
		Description: "Undo before the window expires",
		Steps: []Step{
			{Log: []OperationSpec{{Op: "a"}}},
			{Undo: true},
			{Advance: "1m"},
		},
	}

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count(EventDispatch))
}
