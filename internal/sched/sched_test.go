package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystem_AfterFuncRuns(t *testing.T) {
	done := make(chan struct{})
	System{}.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestSystem_StopPreventsRun(t *testing.T) {
	fired := make(chan struct{}, 1)
	timer := System{}.AfterFunc(time.Hour, func() { fired <- struct{}{} })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports the timer as already stopped")
	assert.Empty(t, fired)
}
