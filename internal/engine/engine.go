package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/synq/internal/ir"
	"github.com/roach88/synq/internal/notify"
	"github.com/roach88/synq/internal/ops"
	"github.com/roach88/synq/internal/sched"
	"github.com/roach88/synq/internal/state"
	"github.com/roach88/synq/internal/transport"
)

// Callback receives the outcome of the batch that carried a caller's
// records: nil on success, a *SyncError otherwise. Callbacks run on the
// loop goroutine and must not call blocking Engine methods.
type Callback func(error)

// Engine is the single-writer sync engine event loop.
//
// Every buffer mutation, timer expiry and transport reply is processed by
// the Run goroutine in FIFO order. External callers post command events;
// only query methods (Status, Barrier) and the explicitly blocking variants
// wait for the loop.
//
// Thread-safety model:
//   - Log, LogWith, Record, Undo, Flush, SetOnline, Sync, Set: safe from any
//     goroutine, including subscribers and callbacks; they never block
//   - LogUrgent, FlushWait, Authenticate, Reset, Shutdown, Status, Barrier:
//     safe from any goroutine except the loop itself
//   - Run: must be called from exactly one goroutine
type Engine struct {
	st        *state.State
	persist   *state.Persister
	transport transport.Transport
	notifier  notify.Notifier
	catalog   ops.Catalog
	ids       BatchIDGenerator
	clock     *Clock
	sched     sched.Scheduler
	policy    WindowPolicy
	buildTag  string
	mobile    bool

	queue   *eventQueue
	running atomic.Bool

	// ctx scopes storage and transport calls made from the loop. It is
	// never cancelled by Run's context: an in-flight request runs to
	// completion.
	ctx context.Context

	// Owned by the Run goroutine.
	mq       *mutationQueue
	win      window
	auth     state.Auth
	online   bool
	fetching bool
	inflight *inflight
	deferred []Callback
	idle     []chan struct{}
}

// inflight is the batch currently awaiting a reply.
type inflight struct {
	id      string
	seq     int64
	size    int
	waiters []Callback
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithScheduler sets the time source for the window (default sched.System).
func WithScheduler(s sched.Scheduler) Option {
	return func(e *Engine) {
		if s != nil {
			e.sched = s
		}
	}
}

// WithDebounce sets the window length (default DefaultDebounce).
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.win.delay = d
		}
	}
}

// WithWindowPolicy selects commit or coalesce behavior (default WindowCommit).
func WithWindowPolicy(p WindowPolicy) Option {
	return func(e *Engine) {
		if p != 0 {
			e.policy = p
		}
	}
}

// WithBatchIDs sets the batch id generator (default UUIDv7Generator).
func WithBatchIDs(g BatchIDGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.ids = g
		}
	}
}

// WithNotifier sets where user-facing messages go (default notify.Discard).
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithCatalog sets the domain operations attached after the first
// reconciliation (default ops.Builtin).
func WithCatalog(c ops.Catalog) Option {
	return func(e *Engine) {
		if c != nil {
			e.catalog = c
		}
	}
}

// WithMobile routes operation failures to persistent notifications.
func WithMobile(mobile bool) Option {
	return func(e *Engine) {
		e.mobile = mobile
	}
}

// WithBuildTag sets the client build tag sent with every batch.
func WithBuildTag(tag string) Option {
	return func(e *Engine) {
		e.buildTag = tag
	}
}

// New creates an Engine around the shared state, its persister and a
// transport. Call Restore before Run to pick up persisted settings.
func New(st *state.State, p *state.Persister, tr transport.Transport, opts ...Option) *Engine {
	e := &Engine{
		st:        st,
		persist:   p,
		transport: tr,
		notifier:  notify.Discard{},
		catalog:   ops.Builtin(),
		ids:       UUIDv7Generator{},
		clock:     NewClock(),
		sched:     sched.System{},
		policy:    WindowCommit,
		queue:     newEventQueue(),
		ctx:       context.Background(),
		mq:        newMutationQueue(nil, nil),
		win:       window{delay: DefaultDebounce},
	}

	for _, opt := range opts {
		opt(e)
	}
	e.win.sched = e.sched

	return e
}

// State returns the shared state handle.
func (e *Engine) State() *state.State {
	return e.st
}

// Restore loads persisted settings and state. Must be called before Run.
// Stored credentials are applied to the transport; the caller decides when
// to Start.
func (e *Engine) Restore(ctx context.Context) error {
	if e.running.Load() {
		return errors.New("restore: engine already running")
	}
	settings, err := e.persist.Restore(ctx, e.st)
	if err != nil {
		return err
	}
	e.mq = newMutationQueue(settings.Sync.Queue, settings.Sync.Sent)
	e.auth = settings.Auth
	e.online = settings.Online
	e.fetching = false
	e.clock = NewClockAt(settings.Batches)
	if e.auth.Present() {
		e.transport.SetCredentials(e.auth.ID, e.auth.Token)
	}

	slog.Info("engine restored",
		"queued", e.mq.QueueLen(),
		"sent", e.mq.SentLen(),
		"online", e.online,
		"authenticated", e.auth.Present(),
		"version", e.st.Version(),
		"batches", settings.Batches,
	)
	return nil
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop is called.
//
// On exit every event still queued is dropped, and callbacks still waiting
// on a batch receive ErrStopped.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	defer e.drain()

	slog.Info("engine starting", "window", e.policy.String(), "debounce", e.win.delay)

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			e.processEvent(event)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			return ctx.Err()

		case <-e.queue.Wait():
			if e.queue.Closed() && e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the event queue, which causes Run to return.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) processEvent(ev Event) {
	if ev.Run != nil {
		ev.Run()
	}
	if ev.done != nil {
		close(ev.done)
	}
	slog.Debug("event processed", "type", ev.Type.String(), "name", ev.Name)
}

// drain runs once the loop has exited.
func (e *Engine) drain() {
	e.queue.Close()
	for {
		ev, ok := e.queue.TryDequeue()
		if !ok {
			break
		}
		if ev.done != nil {
			close(ev.done)
		}
	}

	e.win.cancel()
	if fl := e.inflight; fl != nil {
		e.inflight = nil
		resolve(fl.waiters, ErrStopped)
	}
	deferred := e.deferred
	e.deferred = nil
	resolve(deferred, ErrStopped)
	e.notifyIdle()
}

// post enqueues fn for the loop without waiting.
func (e *Engine) post(t EventType, name string, fn func()) error {
	if !e.queue.Enqueue(Event{Type: t, Name: name, Run: fn}) {
		return ErrStopped
	}
	return nil
}

// do runs fn on the loop and waits for it.
func (e *Engine) do(ctx context.Context, name string, fn func()) error {
	ran := false
	done := make(chan struct{})
	ev := Event{
		Type: EventTypeCommand,
		Name: name,
		Run: func() {
			fn()
			ran = true
		},
		done: done,
	}
	if !e.queue.Enqueue(ev) {
		return ErrStopped
	}

	select {
	case <-done:
		if !ran {
			return ErrStopped
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await posts a command whose fn hands a Callback to the batcher, then
// waits for that callback.
func (e *Engine) await(ctx context.Context, name string, fn func(cb Callback)) error {
	result := make(chan error, 1)
	cb := func(err error) { result <- err }
	if err := e.post(EventTypeCommand, name, func() { fn(cb) }); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Barrier waits until every event posted before it has been processed.
func (e *Engine) Barrier(ctx context.Context) error {
	return e.do(ctx, "barrier", func() {})
}

// Settle waits until the loop is idle, including events posted while
// earlier ones ran (synchronous transport replies, re-armed timers).
func (e *Engine) Settle(ctx context.Context) error {
	for {
		idle := false
		if err := e.do(ctx, "settle", func() { idle = e.queue.Len() == 0 }); err != nil {
			return err
		}
		if idle {
			return nil
		}
	}
}

// Status is a point-in-time view of the sync bookkeeping.
type Status struct {
	Queue         []ir.Operation
	Sent          []ir.Operation
	Fetching      bool
	Online        bool
	Authenticated bool
	WindowArmed   bool
	Version       int64
	InFlight      string
	Batches       int64
}

// Status returns a snapshot taken on the loop.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var s Status
	err := e.do(ctx, "status", func() {
		s.Queue, s.Sent = e.mq.Snapshot()
		s.Fetching = e.fetching
		s.Online = e.online
		s.Authenticated = e.auth.Present()
		s.WindowArmed = e.win.armed
		s.Version = e.st.Version()
		s.Batches = e.clock.Current()
		if e.inflight != nil {
			s.InFlight = e.inflight.id
		}
	})
	return s, err
}

// settings assembles the persisted form of the loop-owned bookkeeping.
func (e *Engine) settings() state.Settings {
	queue, sent := e.mq.Snapshot()
	return state.Settings{
		Auth:     e.auth,
		Sync:     state.SyncBuffers{Queue: queue, Sent: sent},
		Fetching: e.fetching,
		Online:   e.online,
		Batches:  e.clock.Current(),
	}
}

// save persists both snapshots. Failures are logged; the in-memory copy
// stays authoritative.
func (e *Engine) save() {
	e.saveState()
	e.saveSettings()
}

func (e *Engine) saveState() {
	if err := e.persist.SaveState(e.ctx, e.st); err != nil {
		slog.Error("persist state failed", "error", err)
	}
}

func (e *Engine) saveSettings() {
	if err := e.persist.SaveSettings(e.ctx, e.settings()); err != nil {
		slog.Error("persist settings failed", "error", err)
	}
}

// notifyIdle releases Shutdown waiters once nothing is in flight.
func (e *Engine) notifyIdle() {
	if e.fetching {
		return
	}
	for _, ch := range e.idle {
		close(ch)
	}
	e.idle = nil
}

func resolve(waiters []Callback, err error) {
	for _, cb := range waiters {
		if cb != nil {
			cb(err)
		}
	}
}
