package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualScheduler_DefaultStart(t *testing.T) {
	s := NewManualScheduler(time.Time{})
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), s.Now())
}

func TestManualScheduler_FiresOnlyDueTimers(t *testing.T) {
	s := NewManualScheduler(time.Time{})
	var got []string
	s.AfterFunc(3*time.Second, func() { got = append(got, "late") })
	s.AfterFunc(time.Second, func() { got = append(got, "early") })

	assert.Equal(t, 1, s.Advance(2*time.Second))
	assert.Equal(t, []string{"early"}, got)
	assert.Equal(t, 1, s.Pending())

	assert.Equal(t, 1, s.Advance(time.Second))
	assert.Equal(t, []string{"early", "late"}, got)
	assert.Equal(t, 0, s.Pending())
}

func TestManualScheduler_SameDeadlineKeepsRegistrationOrder(t *testing.T) {
	s := NewManualScheduler(time.Time{})
	var got []int
	for i := 1; i <= 3; i++ {
		s.AfterFunc(time.Second, func() { got = append(got, i) })
	}
	s.Advance(time.Second)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestManualScheduler_Stop(t *testing.T) {
	s := NewManualScheduler(time.Time{})
	fired := false
	timer := s.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	assert.Equal(t, 0, s.Advance(time.Minute))
	assert.False(t, fired)
}

func TestManualScheduler_StopAfterFire(t *testing.T) {
	s := NewManualScheduler(time.Time{})
	timer := s.AfterFunc(time.Second, func() {})
	s.Advance(time.Second)
	assert.False(t, timer.Stop())
}

func TestManualScheduler_NowTracksAdvance(t *testing.T) {
	s := NewManualScheduler(time.Time{})
	start := s.Now()
	var at time.Time
	s.AfterFunc(time.Second, func() { at = s.Now() })

	s.Advance(5 * time.Second)
	assert.Equal(t, start.Add(time.Second), at, "timer observes its own deadline")
	assert.Equal(t, start.Add(5*time.Second), s.Now())
}
