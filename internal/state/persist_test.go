package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synq/internal/ir"
	"github.com/roach88/synq/internal/store"
)

func TestPersister_RoundTrip(t *testing.T) {
	for _, codecName := range []string{CodecJSON, CodecMsgpack} {
		t.Run(codecName, func(t *testing.T) {
			ctx := context.Background()
			codec, err := CodecByName(codecName)
			require.NoError(t, err)
			p := NewPersister(store.NewMemoryStore(), WithCodec(codec))

			src := New()
			require.NoError(t, src.Merge(map[string]any{
				"_v":    float64(12),
				"gold":  float64(5),
				"stats": map[string]any{"hp": float64(50)},
			}))
			require.NoError(t, p.SaveState(ctx, src))

			dst := New()
			ok, err := p.LoadState(ctx, dst)
			require.NoError(t, err)
			require.True(t, ok)

			assert.Equal(t, int64(12), dst.Version())
			hp, _ := dst.GetPath("stats.hp")
			assert.Equal(t, float64(50), hp)

			settings := DefaultSettings()
			settings.Auth = Auth{ID: "u", Token: "t"}
			settings.Online = true
			settings.Sync.Queue = []ir.Operation{{Name: "score", Params: map[string]any{"n": float64(1)}}}
			require.NoError(t, p.SaveSettings(ctx, settings))

			got, ok, err := p.LoadSettings(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, settings, got)
		})
	}
}

func TestPersister_LoadSettingsResetsFetching(t *testing.T) {
	ctx := context.Background()
	p := NewPersister(store.NewMemoryStore())

	st := DefaultSettings()
	st.Fetching = true
	st.Sync.Sent = []ir.Operation{{Name: "a"}}
	require.NoError(t, p.SaveSettings(ctx, st))

	got, ok, err := p.LoadSettings(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Fetching, "a crash mid-flight must not wedge the engine")
	assert.Equal(t, []ir.Operation{{Name: "a"}}, got.Sync.Sent)
}

func TestPersister_RestoreWritesDefaults(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	p := NewPersister(kv)

	s := New()
	st, err := p.Restore(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), st)

	_, ok, err := kv.Get(ctx, DefaultSettingsKey)
	require.NoError(t, err)
	assert.True(t, ok, "defaults must be persisted on first start")

	_, ok, err = kv.Get(ctx, DefaultUserKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersister_LoadStateStripsTransient(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, DefaultUserKey, []byte(`{"_v":3,"ops":{},"fns":{},"gold":1}`)))

	s := New()
	ok, err := NewPersister(kv).LoadState(ctx, s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"_v": int64(3), "gold": float64(1)}, s.Snapshot())
}

func TestPersister_Clear(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	p := NewPersister(kv, WithKeys("u", "s"))

	require.NoError(t, p.SaveSettings(ctx, DefaultSettings()))
	require.NoError(t, p.SaveState(ctx, New()))
	assert.Equal(t, 2, kv.Len())

	require.NoError(t, p.Clear(ctx))
	assert.Equal(t, 0, kv.Len())
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c.Name())

	_, err = CodecByName("xml")
	assert.Error(t, err)
}
