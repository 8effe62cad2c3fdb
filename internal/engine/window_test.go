package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synq/internal/ir"
	"github.com/roach88/synq/internal/state"
	"github.com/roach88/synq/internal/testutil"
	"github.com/roach88/synq/internal/transport"
)

func TestParseWindowPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    WindowPolicy
		wantErr bool
	}{
		{"", WindowCommit, false},
		{"commit", WindowCommit, false},
		{"coalesce", WindowCoalesce, false},
		{"batch", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWindowPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "commit", WindowCommit.String())
	assert.Equal(t, "coalesce", WindowCoalesce.String())
}

func TestWindow_GenerationsInvalidateOldTimers(t *testing.T) {
	s := testutil.NewManualScheduler(time.Time{})
	w := window{sched: s, delay: time.Second}

	var fired []uint64
	fire := func(gen uint64) { fired = append(fired, gen) }

	w.open(0, fire)
	first := w.gen
	w.rearm(fire)
	assert.False(t, w.current(first), "re-arming retires the old generation")
	assert.True(t, w.current(w.gen))

	w.shift(2)
	assert.Equal(t, 2, w.mark)

	assert.True(t, w.cancel())
	assert.False(t, w.cancel())
	assert.Equal(t, 0, w.mark)
	w.shift(2)
	assert.Equal(t, 0, w.mark, "a closed window has no mark")

	s.Advance(time.Minute)
	assert.Empty(t, fired, "stopped timers never fire")
}

func TestUndo_RestoresStateAndDropsRecords(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	f.attachOps(map[string]any{"stats": map[string]any{"hp": 50.0}})

	require.NoError(t, f.eng.Set(map[string]any{"stats.hp": 10.0}))
	f.settle()
	hp, _ := f.st.GetPath("stats.hp")
	assert.Equal(t, 10.0, hp, "the mutation is applied optimistically")
	assert.Equal(t, []string{"update"}, names(f.status().Queue))

	require.NoError(t, f.eng.Undo())
	s := f.status()

	hp, _ = f.st.GetPath("stats.hp")
	assert.Equal(t, 50.0, hp)
	assert.Empty(t, s.Queue)
	assert.False(t, s.WindowArmed)
	assert.Contains(t, f.stateEvents(), state.EventReloaded)

	f.advance(testDebounce)
	assert.Len(t, f.tr.Calls(), 1, "only the initial fetch was ever sent")
}

// P6: a second undo changes nothing.
func TestUndo_Idempotent(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	f.attachOps(map[string]any{"gold": 5.0})

	require.NoError(t, f.eng.Set(map[string]any{"gold": 1.0}))
	require.NoError(t, f.eng.Undo())
	f.settle()
	once := f.st.Snapshot()
	onceStatus := f.status()

	require.NoError(t, f.eng.Undo())
	f.settle()
	assert.Equal(t, once, f.st.Snapshot())
	assert.Equal(t, onceStatus.Queue, f.status().Queue)
}

func TestUndo_AfterWindowClosedIsNoop(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	f.attachOps(nil)
	f.goOffline()
	require.NoError(t, f.eng.Set(map[string]any{"gold": 1.0}))
	f.advance(testDebounce)

	require.NoError(t, f.eng.Undo())
	f.settle()

	gold, _ := f.st.Get("gold")
	assert.Equal(t, 1.0, gold)
	assert.Equal(t, []string{"update"}, names(f.status().Queue))
}

// Under the commit policy only the latest action is undoable; the previous
// one is already committed.
func TestUndo_CommitPolicyKeepsEarlierAction(t *testing.T) {
	f := newFixture(t, fixtureConfig{policy: WindowCommit})
	f.attachOps(nil)
	f.goOffline()

	require.NoError(t, f.eng.Set(map[string]any{"a": 1.0}))
	require.NoError(t, f.eng.Set(map[string]any{"b": 2.0}))
	require.NoError(t, f.eng.Undo())
	f.settle()

	a, okA := f.st.Get("a")
	_, okB := f.st.Get("b")
	assert.True(t, okA)
	assert.Equal(t, 1.0, a)
	assert.False(t, okB)
	assert.Len(t, f.status().Queue, 1)
}

// Under the coalesce policy undo reverts the whole burst.
func TestUndo_CoalescePolicyRevertsBurst(t *testing.T) {
	f := newFixture(t, fixtureConfig{policy: WindowCoalesce})
	f.attachOps(nil)
	f.goOffline()

	require.NoError(t, f.eng.Set(map[string]any{"a": 1.0}))
	require.NoError(t, f.eng.Set(map[string]any{"b": 2.0}))
	require.NoError(t, f.eng.Undo())
	f.settle()

	_, okA := f.st.Get("a")
	_, okB := f.st.Get("b")
	assert.False(t, okA)
	assert.False(t, okB)
	assert.Empty(t, f.status().Queue)
}

// A transient failure puts records in front of the window's; undo must
// still drop only the window's records.
func TestUndo_AfterRequeueKeepsRetransmission(t *testing.T) {
	f := newFixture(t, fixtureConfig{policy: WindowCommit})
	f.log(op("a"))
	f.log(op("b"))
	require.Len(t, f.tr.Calls(), 1)

	f.tr.Last().Resolve(testutil.Fail(transport.Transient(errNetwork)))
	f.settle()
	assert.Equal(t, []string{"a", "b"}, names(f.status().Queue))

	require.NoError(t, f.eng.Undo())
	assert.Equal(t, []string{"a"}, names(f.status().Queue))
}

func TestUndo_TransmittedRecordsStay(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	f.log(op("a"))
	require.NoError(t, f.eng.Flush())
	require.NoError(t, f.eng.Undo())

	s := f.status()
	assert.Equal(t, []string{"a"}, names(s.Sent))
	assert.Len(t, f.tr.Calls(), 1)
}

func TestRecord_FatalOperationIsNotLogged(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	f.attachOps(map[string]any{"flat": "x"})

	// Setting a path through a scalar fails with a 400.
	require.NoError(t, f.eng.Set(map[string]any{"flat.inner": 1.0}))
	s := f.status()

	assert.Empty(t, s.Queue)
	assert.False(t, s.WindowArmed)
	require.Len(t, f.notes.Messages(), 1)
}

func TestSet_BeforeAttachLogsRawUpdate(t *testing.T) {
	f := newFixture(t, fixtureConfig{offline: true})
	require.NoError(t, f.eng.Set(map[string]any{"gold": 1.0}))

	s := f.status()
	require.Len(t, s.Queue, 1)
	assert.Equal(t, ir.Operation{Name: "update", Body: map[string]any{"gold": 1.0}}, s.Queue[0])
	_, ok := f.st.Get("gold")
	assert.False(t, ok, "no local apply without attached operations")
}
