// Package engine implements the synq mutation-queue sync engine.
//
// The engine buffers local mutations as operation records, holds them in a
// debounce window during which the latest action can be undone, transmits
// them in version-stamped batches and reconciles the authority's response
// into the shared state in place.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// One goroutine runs Engine.Run and owns the sync buffers, the window, the
// connectivity flag and the fetching flag. Public calls, window expiries
// and transport replies are all events on one FIFO queue, so the buffers
// are never touched concurrently and test runs are reproducible.
//
// Batch lifecycle:
//  1. Log appends to the queue and (re)arms the window
//  2. window expiry, Flush, an urgent log or SetOnline(true) dispatches
//     the whole queue as one batch: queue moves to sent, fetching is set
//  3. the reply is posted back to the loop:
//     success drains sent and merges the response only if nothing was
//     queued meanwhile; a definitive failure discards both buffers; a
//     transient failure puts sent back in front of the queue
//
// At most one batch is in flight. queue and sent are disjoint, and their
// concatenation always holds the unacknowledged records in log order.
package engine
