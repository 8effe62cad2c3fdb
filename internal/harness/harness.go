package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/synq/internal/engine"
	"github.com/roach88/synq/internal/ir"
	"github.com/roach88/synq/internal/notify"
	"github.com/roach88/synq/internal/state"
	"github.com/roach88/synq/internal/store"
	"github.com/roach88/synq/internal/testutil"
	"github.com/roach88/synq/internal/transport"
)

// Credentials applied to authenticated scenarios.
const (
	ScenarioUserID = "scenario-user"
	ScenarioToken  = "scenario-token"
)

// stepTimeout bounds how long a single step may wait for the engine.
const stepTimeout = 10 * time.Second

// Harness is the scenario execution engine.
// It runs one engine against a scripted transport and a manual clock, and
// records everything the engine does into an ordered trace.
type Harness struct {
	engine    *engine.Engine
	state     *state.State
	persist   *state.Persister
	transport *testutil.ScriptedTransport
	sched     *testutil.ManualScheduler
	logger    *slog.Logger

	mu      sync.Mutex
	step    int
	tracing bool
	trace   []TraceEvent
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store. Batch ids come from a
// sequential generator, so traces are reproducible.
//
// Execution flow:
// 1. Seed settings and start the engine loop
// 2. Run the initial fetch when setup provides fields
// 3. Execute steps, settling the loop after each
// 4. Return result with pass/fail, trace, and errors
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context bounding the whole run.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h := &Harness{
		state:     state.New(),
		persist:   state.NewPersister(store.NewMemoryStore()),
		transport: testutil.NewScriptedTransport(),
		sched:     testutil.NewManualScheduler(time.Time{}),
		logger:    slog.Default().With("scenario", scenario.Name),
	}

	policy, err := engine.ParseWindowPolicy(scenario.Policy)
	if err != nil {
		return nil, err
	}
	debounce := engine.DefaultDebounce
	if scenario.Debounce != "" {
		if debounce, err = time.ParseDuration(scenario.Debounce); err != nil {
			return nil, fmt.Errorf("debounce: %w", err)
		}
	}

	settings := state.DefaultSettings()
	if scenario.Setup.authenticated() {
		settings.Auth = state.Auth{ID: ScenarioUserID, Token: ScenarioToken}
	}
	settings.Online = scenario.Setup.online() || scenario.Setup.Fields != nil
	if err := h.persist.SaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}

	h.engine = engine.New(h.state, h.persist, &tracingTransport{h: h, next: h.transport},
		engine.WithScheduler(h.sched),
		engine.WithDebounce(debounce),
		engine.WithWindowPolicy(policy),
		engine.WithBatchIDs(engine.NewSequentialGenerator("batch")),
		engine.WithNotifier(&tracingNotifier{h: h}),
		engine.WithMobile(scenario.Mobile),
		engine.WithBuildTag("scenario"),
	)
	if err := h.engine.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	if err := h.setup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	h.state.Subscribe(func(ev state.Event) {
		h.record(TraceEvent{Type: EventState, Kind: ev.Kind.String()})
	})
	h.mu.Lock()
	h.tracing = true
	h.mu.Unlock()

	result := NewResult()
	for i := range scenario.Steps {
		h.mu.Lock()
		h.step = i + 1
		h.mu.Unlock()

		if err := h.execute(ctx, &scenario.Steps[i], result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	h.mu.Lock()
	result.Trace = append(result.Trace, h.trace...)
	h.mu.Unlock()
	result.State = h.state.Snapshot()

	h.logger.Debug("scenario finished", "pass", result.Pass, "events", len(result.Trace))
	return result, nil
}

// setup runs the untraced initial fetch and applies the starting connectivity.
func (h *Harness) setup(ctx context.Context, s Setup) error {
	if s.Fields != nil {
		h.transport.Script(testutil.Succeed(s.Fields))
		if err := h.engine.LogUrgent(ctx, ir.FetchOperation()); err != nil {
			return fmt.Errorf("initial fetch: %w", err)
		}
	}
	if !s.online() {
		if err := h.engine.SetOnline(false); err != nil {
			return err
		}
	}
	return h.settle(ctx)
}

// execute runs one step and settles the loop.
func (h *Harness) execute(ctx context.Context, st *Step, result *Result) error {
	var err error
	switch {
	case st.Log != nil:
		err = h.engine.Log(operations(st.Log)...)
	case st.Urgent != nil:
		err = h.engine.LogWith(h.callback(), operations(st.Urgent)...)
	case st.Invoke != nil:
		err = h.state.Invoke(st.Invoke.Op, st.Invoke.Request(), nil)
	case st.Set != nil:
		err = h.engine.Set(st.Set)
	case st.Advance != "":
		var d time.Duration
		if d, err = time.ParseDuration(st.Advance); err == nil {
			h.sched.Advance(d)
		}
	case st.Online != nil:
		err = h.engine.SetOnline(*st.Online)
	case st.Respond != nil:
		err = h.respond(st.Respond)
	case st.Undo:
		err = h.engine.Undo()
	case st.Flush:
		err = h.engine.Flush()
	case st.Sync:
		err = h.engine.Sync()
	case st.Reset:
		err = h.engine.Reset(ctx)
	case st.Expect != nil:
		if err = h.settle(ctx); err != nil {
			return err
		}
		for _, msg := range h.check(ctx, st.Expect) {
			result.AddError(fmt.Sprintf("step %d: %s", h.currentStep(), msg))
		}
		return nil
	}
	if err != nil {
		return err
	}
	return h.settle(ctx)
}

// respond resolves the oldest pending batch with the described outcome.
func (h *Harness) respond(r *Respond) error {
	call := h.transport.Pending()
	if call == nil {
		return errors.New("respond: no batch in flight")
	}

	ev := TraceEvent{Type: EventReply, Batch: call.Batch.ID, Outcome: r.Outcome}
	var outcome testutil.Outcome
	switch r.Outcome {
	case OutcomeSuccess:
		outcome = testutil.Succeed(r.Fields)
	case OutcomeModified:
		outcome = testutil.Modified(r.Fields)
	case OutcomeTransient:
		msg := r.Message
		if msg == "" {
			msg = "network unreachable"
		}
		outcome = testutil.Fail(transport.Transient(errors.New(msg)))
	case OutcomeDefinitive:
		f := transport.Definitive(r.Status, r.Message)
		f.NeedRefresh = r.NeedRefresh
		outcome = testutil.Fail(f)
		ev.Status = r.Status
	default:
		return fmt.Errorf("respond: unknown outcome %q", r.Outcome)
	}

	h.record(ev)
	call.Resolve(outcome)
	return nil
}

// callback returns an engine callback that traces its outcome.
func (h *Harness) callback() engine.Callback {
	return func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			var se *engine.SyncError
			if errors.As(err, &se) {
				outcome = string(se.Code)
			}
		}
		h.record(TraceEvent{Type: EventCallback, Outcome: outcome})
	}
}

func (h *Harness) settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	return h.engine.Settle(ctx)
}

func (h *Harness) record(ev TraceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.tracing {
		return
	}
	ev.Step = h.step
	h.trace = append(h.trace, ev)
}

func (h *Harness) currentStep() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.step
}

func operations(specs []OperationSpec) []ir.Operation {
	out := make([]ir.Operation, len(specs))
	for i, s := range specs {
		out[i] = s.Operation()
	}
	return out
}

// tracingTransport records every submission before handing it on.
type tracingTransport struct {
	h    *Harness
	next transport.Transport
}

func (t *tracingTransport) Submit(ctx context.Context, b transport.Batch, reply transport.Reply) {
	t.h.record(TraceEvent{Type: EventDispatch, Batch: b.ID, Ops: ir.CloneOperations(b.Ops)})
	t.next.Submit(ctx, b, reply)
}

func (t *tracingTransport) SetCredentials(id, token string) {
	t.next.SetCredentials(id, token)
}

// tracingNotifier turns notifications into trace events.
type tracingNotifier struct {
	h *Harness
}

func (n *tracingNotifier) PushTransient(message string) {
	n.h.record(TraceEvent{Type: EventNotify, Kind: string(notify.KindTransient), Message: message})
}

func (n *tracingNotifier) PushPersistent(message string) {
	n.h.record(TraceEvent{Type: EventNotify, Kind: string(notify.KindPersistent), Message: message})
}
