// Package ops adapts domain operations for the sync engine.
//
// A domain operation mutates the local state optimistically and describes
// the same mutation to the authority, which replays it. Wrap turns a raw
// operation into a state.OpFunc that, when called without a callback,
// forwards the operation into the engine's log.
package ops

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/synq/internal/ir"
	"github.com/roach88/synq/internal/notify"
	"github.com/roach88/synq/internal/state"
)

// Func is a raw domain operation. It applies req to st and returns an error
// when the operation cannot be applied. Return an *Error to attach a status.
type Func func(st *state.State, req ir.Request) error

// Catalog maps operation names to raw operations.
type Catalog map[string]Func

// Error is a domain operation failure with an HTTP-like status.
//
// Codes below 400 are friendly messages ("Your pet has hatched!"): they are
// shown to the user and the operation is still logged. Codes of 400 and
// above are real failures.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewError creates an Error.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sink is where wrapped operations forward invocations that have no
// explicit callback. Record must call apply exactly once, at the point the
// local mutation may happen, and log op only if apply returns true.
type Sink interface {
	Record(op ir.Operation, apply func() bool)
}

// Options controls how wrapped operations report failures.
type Options struct {
	Notifier notify.Notifier
	// Mobile routes failures to persistent notifications instead of
	// transient ones.
	Mobile bool
}

// Wrap returns the adapted form of fn under name.
//
// With an explicit callback the raw operation runs and its error is handed
// to the callback; nothing is logged, the caller owns the follow-up. Without
// a callback, the sink decides when the mutation runs; failures are reported
// through the notifier and the operation is logged unless its error is fatal
// (no code, or code >= 400).
func Wrap(name string, fn Func, st *state.State, sink Sink, opts Options) state.OpFunc {
	n := opts.Notifier
	if n == nil {
		n = notify.Discard{}
	}

	return func(req ir.Request, cb func(error)) {
		if cb != nil {
			cb(fn(st, req))
			return
		}

		sink.Record(ir.NewOperation(name, req), func() bool {
			err := fn(st, req)
			if err == nil {
				return true
			}
			message := err.Error()
			var opErr *Error
			if errors.As(err, &opErr) {
				message = opErr.Message
			}
			slog.Debug("operation reported", "op", name, "message", message)
			if opts.Mobile {
				n.PushPersistent(message)
			} else {
				n.PushTransient(message)
			}
			return !Fatal(err)
		})
	}
}

// Fatal reports whether err prevents the operation from being logged.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	var opErr *Error
	if !errors.As(err, &opErr) {
		return true
	}
	return opErr.Code == 0 || opErr.Code >= 400
}

// WrapAll wraps every operation in the catalog.
func WrapAll(c Catalog, st *state.State, sink Sink, opts Options) map[string]state.OpFunc {
	out := make(map[string]state.OpFunc, len(c))
	for name, fn := range c {
		out[name] = Wrap(name, fn, st, sink, opts)
	}
	return out
}
