package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns one fresh instance of every KV implementation.
func backends(t *testing.T) map[string]KV {
	t.Helper()

	sqlite, err := Open(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)

	bdg, err := NewBadgerStore(filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)

	all := map[string]KV{
		DriverSQLite: sqlite,
		DriverBadger: bdg,
		DriverMemory: NewMemoryStore(),
	}
	t.Cleanup(func() {
		for _, kv := range all {
			kv.Close()
		}
	})
	return all
}

func TestKV_Contract(t *testing.T) {
	ctx := context.Background()

	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := kv.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok, "absent key must report ok=false")

			require.NoError(t, kv.Set(ctx, "user", []byte(`{"_v":1}`)))
			require.NoError(t, kv.Set(ctx, "settings", []byte(`{}`)))

			got, ok, err := kv.Get(ctx, "user")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, `{"_v":1}`, string(got))

			require.NoError(t, kv.Set(ctx, "user", []byte(`{"_v":2}`)))
			got, _, err = kv.Get(ctx, "user")
			require.NoError(t, err)
			assert.Equal(t, `{"_v":2}`, string(got), "set must overwrite")

			require.NoError(t, kv.Clear(ctx))
			_, ok, err = kv.Get(ctx, "user")
			require.NoError(t, err)
			assert.False(t, ok, "clear must remove every key")
			_, ok, err = kv.Get(ctx, "settings")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf))
	buf[0] = 'x'

	got, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 1, s.Len())
}

func TestOpenDriver(t *testing.T) {
	kv, err := OpenDriver(DriverMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, kv)

	_, err = OpenDriver(DriverSQLite, "")
	assert.Error(t, err)

	_, err = OpenDriver("redis", "x")
	assert.ErrorContains(t, err, "unknown storage driver")

	kv, err = OpenDriver(DriverBadger, filepath.Join(t.TempDir(), "b"))
	require.NoError(t, err)
	assert.NoError(t, kv.Close())
}

func TestBadgerStore_InMemory(t *testing.T) {
	s, err := NewBadgerStore("", WithBadgerInMemory())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(context.Background(), "k", []byte("v")))
	got, ok, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(got))

	_, err = NewBadgerStore(t.TempDir(), WithBadgerValueLogFileSize(0))
	assert.Error(t, err)
}
