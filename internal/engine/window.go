package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/synq/internal/sched"
	"github.com/roach88/synq/internal/state"
)

// DefaultDebounce is the length of the undo window.
const DefaultDebounce = 5 * time.Second

// WindowPolicy decides what a log call does when the window is already armed.
type WindowPolicy int

const (
	// WindowCommit flushes the records of the armed window before logging
	// the new ones, so only the latest action is ever undoable. Two actions
	// inside one window leave as two batches; use WindowCoalesce to send
	// them together.
	WindowCommit WindowPolicy = iota + 1
	// WindowCoalesce re-arms the window and keeps accumulating, so a burst
	// of actions travels as one batch and undo reverts the whole burst.
	WindowCoalesce
)

// Policy names accepted by ParseWindowPolicy.
const (
	PolicyCommit   = "commit"
	PolicyCoalesce = "coalesce"
)

func (p WindowPolicy) String() string {
	switch p {
	case WindowCommit:
		return PolicyCommit
	case WindowCoalesce:
		return PolicyCoalesce
	default:
		return fmt.Sprintf("WindowPolicy(%d)", int(p))
	}
}

// ParseWindowPolicy converts a configured policy name.
func ParseWindowPolicy(name string) (WindowPolicy, error) {
	switch name {
	case PolicyCommit, "":
		return WindowCommit, nil
	case PolicyCoalesce:
		return WindowCoalesce, nil
	default:
		return 0, fmt.Errorf("unknown window policy %q (want %s or %s)", name, PolicyCommit, PolicyCoalesce)
	}
}

// window is the debounce/undo window. While armed, the records logged since
// it opened sit at queue positions [mark, len(queue)) and may be undone.
//
// A timer that fires after the window was cancelled or re-armed carries a
// stale generation and is ignored. Owned by the Run loop.
type window struct {
	sched sched.Scheduler
	delay time.Duration

	timer sched.Timer
	gen   uint64
	armed bool
	mark  int
}

// open records mark and arms the timer. fire is called from the timer
// goroutine with the generation it was armed with.
func (w *window) open(mark int, fire func(gen uint64)) {
	w.mark = mark
	w.rearm(fire)
}

// rearm restarts the timer without moving the mark.
func (w *window) rearm(fire func(gen uint64)) {
	w.stopTimer()
	w.gen++
	gen := w.gen
	w.armed = true
	w.timer = w.sched.AfterFunc(w.delay, func() { fire(gen) })
}

// cancel disarms the window. Returns whether it was armed.
func (w *window) cancel() bool {
	was := w.armed
	w.stopTimer()
	w.gen++
	w.armed = false
	w.mark = 0
	return was
}

// current reports whether gen belongs to the armed window.
func (w *window) current(gen uint64) bool {
	return w.armed && gen == w.gen
}

// shift moves the mark after n records were put back in front of the queue.
func (w *window) shift(n int) {
	if w.armed {
		w.mark += n
	}
}

func (w *window) stopTimer() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Undo reverts the records logged since the window opened: the timer is
// cancelled, the state reloaded from its checkpoint and the records dropped
// from the queue. Outside an armed window Undo does nothing; once records
// are transmitted they cannot be taken back.
func (e *Engine) Undo() error {
	return e.post(EventTypeCommand, "undo", e.undo)
}

func (e *Engine) undo() {
	if !e.win.armed {
		slog.Debug("undo ignored: window closed")
		return
	}
	mark := e.win.mark
	e.win.cancel()

	dropped := e.mq.QueueLen() - mark
	e.mq.TruncateQueue(mark)

	loaded, err := e.persist.LoadState(e.ctx, e.st)
	switch {
	case err != nil:
		slog.Error("undo reload failed", "error", err)
	case !loaded:
		slog.Warn("undo found no stored state to reload")
	}
	e.saveSettings()

	slog.Info("undo", "dropped", dropped, "queued", e.mq.QueueLen())
	e.st.Emit(state.EventReloaded)
}
