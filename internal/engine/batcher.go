package engine

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/roach88/synq/internal/ir"
	"github.com/roach88/synq/internal/transport"
)

// Log appends records to the queue behind the debounce window. It returns
// once the command is posted; ErrStopped means the loop is gone.
func (e *Engine) Log(records ...ir.Operation) error {
	records = ir.CloneOperations(records)
	return e.post(EventTypeCommand, "log", func() {
		e.logRecords(records, nil, nil)
	})
}

// LogWith appends records and flushes immediately, bypassing the window.
// cb receives the outcome of the batch carrying the records.
func (e *Engine) LogWith(cb Callback, records ...ir.Operation) error {
	if cb == nil {
		cb = func(error) {}
	}
	records = ir.CloneOperations(records)
	return e.post(EventTypeCommand, "log_urgent", func() {
		e.logRecords(records, nil, cb)
	})
}

// LogUrgent is LogWith that blocks until the batch resolves or ctx ends.
func (e *Engine) LogUrgent(ctx context.Context, records ...ir.Operation) error {
	records = ir.CloneOperations(records)
	return e.await(ctx, "log_urgent", func(cb Callback) {
		e.logRecords(records, nil, cb)
	})
}

// Record implements ops.Sink. apply runs on the loop after the window has
// committed or checkpointed, so Undo restores the state from before it.
func (e *Engine) Record(op ir.Operation, apply func() bool) {
	op = op.Clone()
	if err := e.post(EventTypeCommand, "record:"+op.String(), func() {
		e.logRecords([]ir.Operation{op}, apply, nil)
	}); err != nil {
		slog.Warn("operation dropped, engine stopped", "op", op.String())
	}
}

// Flush closes the window and attempts a batch now.
func (e *Engine) Flush() error {
	return e.post(EventTypeCommand, "flush", func() {
		e.flush()
	})
}

// FlushWait is Flush that waits for the records logged so far to resolve.
func (e *Engine) FlushWait(ctx context.Context) error {
	return e.await(ctx, "flush", func(cb Callback) {
		e.flush(cb)
	})
}

// logRecords is the window entry point. Runs on the loop.
func (e *Engine) logRecords(records []ir.Operation, apply func() bool, cb Callback) {
	committed := false
	if e.win.armed && e.policy == WindowCommit {
		e.flush()
		committed = true
	}
	coalescing := e.win.armed

	// Checkpoint the pre-mutation state so Undo can restore it.
	if cb == nil && !coalescing && !committed {
		e.saveState()
	}

	if apply != nil && !apply() {
		return
	}

	mark := e.mq.QueueLen()
	e.mq.Enqueue(records...)
	slog.Debug("records logged",
		"count", len(records),
		"queued", e.mq.QueueLen(),
		"urgent", cb != nil,
		"digests", digestList(records),
	)

	switch {
	case cb != nil:
		e.flush(cb)
	case coalescing:
		e.win.rearm(e.windowExpired)
	default:
		e.win.open(mark, e.windowExpired)
	}
}

// windowExpired is called from the scheduler's goroutine.
func (e *Engine) windowExpired(gen uint64) {
	err := e.post(EventTypeTimer, "window", func() {
		if !e.win.current(gen) {
			slog.Debug("stale window expiry ignored", "gen", gen)
			return
		}
		e.flush()
	})
	if err != nil {
		slog.Debug("window expired after engine stopped")
	}
}

// flush closes the window, attempts a batch and persists.
func (e *Engine) flush(waiters ...Callback) {
	e.win.cancel()
	e.syncQueue(waiters...)
	e.save()
}

// syncQueue dispatches the queue if every precondition holds. Waiters are
// resolved now when nothing can be sent, or attached to the batch.
func (e *Engine) syncQueue(waiters ...Callback) {
	switch {
	case !e.auth.Present():
		slog.Warn("sync refused: not authenticated", "queued", e.mq.QueueLen())
		e.notifier.PushPersistent(ErrUnauthenticated.Message)
		resolve(waiters, ErrUnauthenticated)
	case e.fetching:
		// The in-flight batch resolves first; the waiters ride the next one.
		e.deferred = append(e.deferred, waiters...)
	case e.mq.QueueLen() == 0:
		resolve(waiters, nil)
	case !e.online:
		slog.Debug("sync skipped: offline", "queued", e.mq.QueueLen())
		resolve(waiters, ErrOffline)
	default:
		e.dispatch(waiters)
	}
}

func (e *Engine) dispatch(waiters []Callback) {
	e.fetching = true
	records := e.mq.BeginBatch()
	e.win.cancel()

	fl := &inflight{
		id:      e.ids.Generate(),
		seq:     e.clock.Next(),
		size:    len(records),
		waiters: waiters,
	}
	e.inflight = fl

	batch := transport.Batch{
		ID:        fl.id,
		Ops:       records,
		Timestamp: e.sched.Now(),
		Version:   e.st.Version(),
		BuildTag:  e.buildTag,
	}

	slog.Info("batch dispatched",
		"batch_id", fl.id,
		"seq", fl.seq,
		"ops", fl.size,
		"version", batch.Version,
		"digest", batchDigest(records),
	)

	id := fl.id
	e.transport.Submit(e.ctx, batch, func(resp *transport.Response, err error) {
		if postErr := e.post(EventTypeReply, "reply", func() {
			e.resolveBatch(id, resp, err)
		}); postErr != nil {
			slog.Warn("reply dropped, engine stopped", "batch_id", id)
		}
	})
}

// resolveBatch handles the transport outcome for batch id.
func (e *Engine) resolveBatch(id string, resp *transport.Response, err error) {
	fl := e.inflight
	if fl == nil || fl.id != id {
		slog.Warn("stale reply ignored", "batch_id", id)
		return
	}
	e.inflight = nil
	e.fetching = false

	switch {
	case err == nil:
		e.onSuccess(fl, resp)
	case transport.IsUnreadable(err):
		e.onUnreadable(fl, err)
	case transport.IsDefinitive(err):
		e.onRejected(fl, transport.AsFailure(err))
	default:
		e.onTransient(fl, err)
	}
}

func (e *Engine) onSuccess(fl *inflight, resp *transport.Response) {
	if resp == nil {
		resp = &transport.Response{}
	}

	queued := e.mq.QueueLen()
	e.mq.Acknowledge()
	if queued == 0 {
		e.reconcile(resp)
		e.save()
	} else {
		// Local changes are newer than the response; merging would clobber them.
		slog.Info("reconciliation skipped: queue not empty", "batch_id", fl.id, "queued", queued)
		e.saveSettings()
	}

	slog.Info("batch applied", "batch_id", fl.id, "seq", fl.seq, "ops", fl.size, "version", e.st.Version())
	resolve(fl.waiters, nil)
	e.afterBatch(nil)
}

func (e *Engine) onRejected(fl *inflight, f *transport.Failure) {
	slog.Error("batch rejected",
		"batch_id", fl.id,
		"seq", fl.seq,
		"ops", fl.size,
		"status", f.Status,
		"discarded", fl.size+e.mq.QueueLen(),
		"error", f,
	)
	e.notifier.PushPersistent(f.UserMessage())

	e.mq.Discard()
	e.win.cancel()

	err := newRejectedError(fl.id, f)
	if f.Status == http.StatusUnauthorized {
		e.reset()
	} else {
		e.save()
	}

	resolve(fl.waiters, err)
	e.afterBatch(err)
}

// onUnreadable acknowledges a batch the authority accepted without a usable
// reply. Nothing is merged; records queued behind it still go out.
func (e *Engine) onUnreadable(fl *inflight, cause error) {
	e.mq.Acknowledge()
	slog.Warn("batch accepted, reply unreadable",
		"batch_id", fl.id,
		"seq", fl.seq,
		"ops", fl.size,
		"queued", e.mq.QueueLen(),
		"error", cause,
	)
	e.saveSettings()

	resolve(fl.waiters, nil)
	e.afterBatch(nil)
}

func (e *Engine) onTransient(fl *inflight, cause error) {
	n := e.mq.Requeue()
	e.win.shift(n)
	slog.Warn("batch not delivered, requeued",
		"batch_id", fl.id,
		"seq", fl.seq,
		"ops", n,
		"queued", e.mq.QueueLen(),
		"error", cause,
	)
	e.saveSettings()

	err := newTransientError(fl.id, cause)
	resolve(fl.waiters, err)
	e.afterBatch(err)
}

// afterBatch settles callers deferred behind the resolved batch. After a
// success it sends what queued up meanwhile, unless a window still holds it.
func (e *Engine) afterBatch(outcome error) {
	waiters := e.deferred
	e.deferred = nil

	if outcome != nil {
		resolve(waiters, outcome)
	} else if len(waiters) > 0 || (e.mq.QueueLen() > 0 && !e.win.armed) {
		e.syncQueue(waiters...)
		e.saveSettings()
	}

	e.notifyIdle()
}

// digestList renders record digests only when a handler takes the record.
type digestList []ir.Operation

func (d digestList) LogValue() slog.Value {
	out := make([]string, len(d))
	for i, op := range d {
		out[i] = ir.ShortDigest(op)
	}
	return slog.AnyValue(out)
}

func batchDigest(records []ir.Operation) string {
	d, err := ir.BatchDigest(records)
	if err != nil {
		return "invalid"
	}
	return d[:12]
}
