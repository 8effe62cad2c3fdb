package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/synq/internal/ir"
	"github.com/roach88/synq/internal/state"
)

// UpdateOperation is the builtin operation Set routes through.
const UpdateOperation = "update"

// Authenticate applies credentials, marks the client online and forces a
// full refetch. It blocks until the fetch resolves or ctx ends.
func (e *Engine) Authenticate(ctx context.Context, id, token string) error {
	if id == "" || token == "" {
		e.notifier.PushPersistent(ErrMissingCredentials.Message)
		return ErrMissingCredentials
	}
	return e.await(ctx, "authenticate", func(cb Callback) {
		e.authenticate(state.Auth{ID: id, Token: token}, cb)
	})
}

// Start authenticates with the restored credentials without waiting for
// the fetch. Returns ErrUnauthenticated when none are stored.
func (e *Engine) Start(ctx context.Context) error {
	var auth state.Auth
	if err := e.do(ctx, "start", func() { auth = e.auth }); err != nil {
		return err
	}
	if !auth.Present() {
		return ErrUnauthenticated
	}
	return e.post(EventTypeCommand, "authenticate", func() {
		e.authenticate(auth, func(err error) {
			if err != nil {
				slog.Warn("initial fetch did not complete", "error", err)
			}
		})
	})
}

func (e *Engine) authenticate(auth state.Auth, cb Callback) {
	e.auth = auth
	e.transport.SetCredentials(auth.ID, auth.Token)
	e.online = true
	if e.st.Version() != 0 {
		e.st.DecrementVersion()
	}
	slog.Info("authenticated", "user", auth.ID, "version", e.st.Version())
	e.logRecords([]ir.Operation{ir.FetchOperation()}, nil, cb)
}

// Sync forces a refetch of the full state through the window.
func (e *Engine) Sync() error {
	return e.post(EventTypeCommand, "sync", func() {
		e.st.DecrementVersion()
		e.logRecords([]ir.Operation{ir.FetchOperation()}, nil, nil)
	})
}

// Set applies dotted-path updates through the attached update operation.
// Before operations are attached the update is logged without a local
// mutation and the authority's response brings it back.
func (e *Engine) Set(updates map[string]any) error {
	req := ir.Request{Body: updates}
	err := e.st.Invoke(UpdateOperation, req, nil)
	if err == nil {
		return nil
	}
	slog.Debug("update logged without local apply", "reason", err)
	return e.Log(ir.NewOperation(UpdateOperation, req))
}

// Reset wipes storage, the state and the sync bookkeeping. Callbacks still
// waiting on a batch receive ErrReset; a reply for that batch is ignored.
func (e *Engine) Reset(ctx context.Context) error {
	return e.do(ctx, "reset", e.reset)
}

func (e *Engine) reset() {
	e.win.cancel()
	e.mq.Discard()
	e.fetching = false
	e.online = false
	e.auth = state.Auth{}
	e.transport.SetCredentials("", "")

	if err := e.persist.Clear(e.ctx); err != nil {
		slog.Error("reset storage failed", "error", err)
	}
	e.st.Reset()

	waiters := e.deferred
	e.deferred = nil
	if fl := e.inflight; fl != nil {
		e.inflight = nil
		waiters = append(fl.waiters, waiters...)
	}
	resolve(waiters, ErrReset)

	slog.Info("engine reset")
	e.st.Emit(state.EventReset)
	e.notifyIdle()
}

// Shutdown is the teardown hook: it flushes whatever is pending, waits for
// the in-flight batch to resolve or ctx to end, persists and stops the loop.
func (e *Engine) Shutdown(ctx context.Context) error {
	idle := make(chan struct{})
	err := e.do(ctx, "shutdown", func() {
		e.win.cancel()
		if e.auth.Present() {
			e.syncQueue()
		}
		e.save()
		e.idle = append(e.idle, idle)
		e.notifyIdle()
	})
	if err != nil {
		return err
	}

	select {
	case <-idle:
	case <-ctx.Done():
		slog.Warn("shutdown before in-flight batch resolved", "error", ctx.Err())
	}

	// Persist the outcome of the batch we waited for.
	saveErr := e.do(ctx, "persist", e.save)
	e.Stop()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return saveErr
}

// Lifecycle lets the process register teardown work.
type Lifecycle interface {
	OnTeardown(fn func(context.Context) error)
}

// RegisterTeardown arranges for Shutdown to run when l tears down.
func (e *Engine) RegisterTeardown(l Lifecycle) {
	l.OnTeardown(e.Shutdown)
}
