package engine

import (
	"log/slog"
	"maps"

	"github.com/roach88/synq/internal/ops"
	"github.com/roach88/synq/internal/state"
	"github.com/roach88/synq/internal/transport"
)

// wasModifiedKey is stripped from responses even if a transport forgot to.
const wasModifiedKey = "wasModified"

// reconcile merges a success response into the shared state, in place.
// Runs on the loop, only when the queue is empty.
func (e *Engine) reconcile(resp *transport.Response) {
	fields := maps.Clone(resp.Fields)
	modified := resp.WasModified
	if v, ok := fields[wasModifiedKey]; ok {
		delete(fields, wasModifiedKey)
		if b, ok := v.(bool); ok && b {
			modified = true
		}
	}

	if modified {
		slog.Info("authority reports external change", "version", e.st.Version())
		e.st.Emit(state.EventExternalChange)
	}

	if err := e.st.Merge(fields); err != nil {
		slog.Error("merge response failed", "error", err)
	}

	if !e.st.OpsAttached() {
		e.st.AttachOps(ops.WrapAll(e.catalog, e.st, e, ops.Options{
			Notifier: e.notifier,
			Mobile:   e.mobile,
		}))
		slog.Debug("operations attached", "count", len(e.catalog))
	}

	e.st.Emit(state.EventSynced)
}
