package engine

import "log/slog"

// SetOnline records the connectivity reported by the caller. Going online
// attempts a batch at once; going offline only stops future dispatches.
// An in-flight request is left to resolve on its own.
func (e *Engine) SetOnline(online bool) error {
	return e.post(EventTypeCommand, "set_online", func() {
		if e.online == online {
			slog.Debug("connectivity unchanged", "online", online)
		} else {
			slog.Info("connectivity changed", "online", online)
		}
		e.online = online
		if online {
			e.syncQueue()
		}
		e.saveSettings()
	})
}
