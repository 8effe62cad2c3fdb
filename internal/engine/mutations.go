package engine

import "github.com/roach88/synq/internal/ir"

// mutationQueue holds the two sync buffers: queue (logged, not yet
// transmitted) and sent (the batch in flight). The buffers are disjoint and
// their concatenation sent ++ queue is the full list of unacknowledged
// operations in log order.
//
// Owned by the Run loop; not safe for concurrent use.
type mutationQueue struct {
	queue []ir.Operation
	sent  []ir.Operation
}

func newMutationQueue(queue, sent []ir.Operation) *mutationQueue {
	return &mutationQueue{
		queue: ir.CloneOperations(queue),
		sent:  ir.CloneOperations(sent),
	}
}

// Enqueue appends ops to the queue.
func (m *mutationQueue) Enqueue(ops ...ir.Operation) {
	for _, op := range ops {
		m.queue = append(m.queue, op.Clone())
	}
}

// BeginBatch moves every queued operation to sent and returns a copy of the
// batch. The caller must not begin a batch while one is in flight.
func (m *mutationQueue) BeginBatch() []ir.Operation {
	m.sent = append(m.sent, m.queue...)
	m.queue = nil
	return ir.CloneOperations(m.sent)
}

// Acknowledge drops the in-flight batch after the authority applied it.
func (m *mutationQueue) Acknowledge() {
	m.sent = nil
}

// Requeue puts the in-flight batch back in front of the queue, preserving
// order. Returns the number of operations moved.
func (m *mutationQueue) Requeue() int {
	n := len(m.sent)
	if n == 0 {
		return 0
	}
	m.queue = append(m.sent, m.queue...)
	m.sent = nil
	return n
}

// Discard drops both buffers.
func (m *mutationQueue) Discard() {
	m.queue = nil
	m.sent = nil
}

// TruncateQueue drops queued operations past position n.
func (m *mutationQueue) TruncateQueue(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(m.queue) {
		clear(m.queue[n:])
		m.queue = m.queue[:n]
	}
}

// QueueLen returns the number of operations awaiting transmission.
func (m *mutationQueue) QueueLen() int { return len(m.queue) }

// SentLen returns the number of operations in flight.
func (m *mutationQueue) SentLen() int { return len(m.sent) }

// Snapshot returns copies of both buffers.
func (m *mutationQueue) Snapshot() (queue, sent []ir.Operation) {
	return ir.CloneOperations(m.queue), ir.CloneOperations(m.sent)
}
