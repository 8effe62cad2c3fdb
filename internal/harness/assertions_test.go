package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synq/internal/ir"
	"github.com/roach88/synq/internal/state"
)

func TestCompareNames(t *testing.T) {
	ops := []ir.Operation{{Name: "a"}, ir.FetchOperation()}

	assert.Nil(t, compareNames("queue", nil, ops), "nil expectation is skipped")
	assert.Nil(t, compareNames("queue", []string{"a", "<fetch>"}, ops))

	err := compareNames("queue", []string{"a"}, ops)
	require.NotNil(t, err)
	assert.Equal(t, "queue: expected [a], got [a <fetch>]", err.Error())

	assert.NotNil(t, compareNames("sent", []string{}, ops))
	assert.Nil(t, compareNames("sent", []string{}, nil))
}

func TestCompareBool(t *testing.T) {
	yes := true
	assert.Nil(t, compareBool("fetching", nil, false))
	assert.Nil(t, compareBool("fetching", &yes, true))
	err := compareBool("fetching", &yes, false)
	require.NotNil(t, err)
	assert.Equal(t, "fetching: expected true, got false", err.Error())
}

func TestComparePaths(t *testing.T) {
	st := state.New()
	require.NoError(t, st.Merge(map[string]any{
		"gold":  float64(5),
		"stats": map[string]any{"gp": 10, "class": "rogue"},
	}))

	errs := comparePaths("state", map[string]any{
		"gold":        5,
		"stats.gp":    10.0,
		"stats.class": "rogue",
	}, st)
	assert.Empty(t, errs, "numbers compare by value")

	errs = comparePaths("state", map[string]any{
		"gold":     6,
		"stats.hp": 50,
	}, st)
	require.Len(t, errs, 2)
	assert.Equal(t, "state.gold: expected 6, got 5", errs[0].Error())
	assert.Equal(t, "state.stats.hp: expected 50, got absent", errs[1].Error())
}

func TestSameValue_Nested(t *testing.T) {
	assert.True(t, sameValue(
		map[string]any{"a": []any{1, "x"}},
		map[string]any{"a": []any{float64(1), "x"}},
	))
	assert.False(t, sameValue(map[string]any{"a": 1}, map[string]any{"a": 2}))
}
