package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationDigest_Stable(t *testing.T) {
	a := Operation{Name: "update", Body: map[string]any{"x": 1, "y": "z"}}
	b := Operation{Name: "update", Body: map[string]any{"y": "z", "x": float64(1)}}

	da, err := OperationDigest(a)
	require.NoError(t, err)
	db, err := OperationDigest(b)
	require.NoError(t, err)

	assert.Equal(t, da, db, "key order and number representation must not change the digest")
	assert.Len(t, da, 64)
}

func TestOperationDigest_DiffersByName(t *testing.T) {
	a, err := OperationDigest(Operation{Name: "a"})
	require.NoError(t, err)
	b, err := OperationDigest(Operation{Name: "b"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBatchDigest_OrderSensitive(t *testing.T) {
	a := Operation{Name: "a"}
	b := Operation{Name: "b"}

	ab, err := BatchDigest([]Operation{a, b})
	require.NoError(t, err)
	ba, err := BatchDigest([]Operation{b, a})
	require.NoError(t, err)

	assert.NotEqual(t, ab, ba)
}

func TestShortDigest(t *testing.T) {
	assert.Len(t, ShortDigest(Operation{Name: "a"}), 12)
	assert.Equal(t, "invalid", ShortDigest(Operation{Name: "a", Body: map[string]any{"f": func() {}}}))
}
