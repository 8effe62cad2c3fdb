package testutil

import (
	"context"
	"sync"

	"github.com/roach88/synq/internal/ir"
	"github.com/roach88/synq/internal/transport"
)

// Outcome is a scripted transport result.
type Outcome struct {
	Response transport.Response
	Err      error
}

// Succeed builds a successful outcome carrying fields.
func Succeed(fields map[string]any) Outcome {
	return Outcome{Response: transport.Response{Fields: fields}}
}

// Modified builds a successful outcome flagged as externally modified.
func Modified(fields map[string]any) Outcome {
	return Outcome{Response: transport.Response{Fields: fields, WasModified: true}}
}

// Fail builds a failed outcome.
func Fail(err error) Outcome {
	return Outcome{Err: err}
}

// Call is one batch submitted to a ScriptedTransport.
type Call struct {
	Batch transport.Batch

	mu       sync.Mutex
	reply    transport.Reply
	resolved bool
}

// Resolve delivers outcome to the submitter. Only the first call has effect.
func (c *Call) Resolve(o Outcome) bool {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return false
	}
	c.resolved = true
	reply := c.reply
	c.mu.Unlock()

	if o.Err != nil {
		reply(nil, o.Err)
		return true
	}
	resp := o.Response
	reply(&resp, nil)
	return true
}

// Resolved reports whether the call has been answered.
func (c *Call) Resolved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved
}

// Operations returns the names of the submitted operations in order.
func (c *Call) Operations() []string {
	names := make([]string, len(c.Batch.Ops))
	for i, op := range c.Batch.Ops {
		names[i] = op.String()
	}
	return names
}

// ScriptedTransport records submitted batches. Queued outcomes are
// delivered synchronously from Submit; without one the call stays pending
// until the test resolves it.
//
// Thread-safety: all methods are safe for concurrent use.
type ScriptedTransport struct {
	mu       sync.Mutex
	calls    []*Call
	script   []Outcome
	id       string
	token    string
	credSets int
}

var _ transport.Transport = (*ScriptedTransport)(nil)

// NewScriptedTransport returns a transport that holds every batch until told otherwise.
func NewScriptedTransport() *ScriptedTransport {
	return &ScriptedTransport{}
}

// Script queues outcomes for upcoming submissions.
func (t *ScriptedTransport) Script(outcomes ...Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, outcomes...)
}

// Submit implements transport.Transport.
func (t *ScriptedTransport) Submit(_ context.Context, b transport.Batch, reply transport.Reply) {
	b.Ops = ir.CloneOperations(b.Ops)
	call := &Call{Batch: b, reply: reply}

	t.mu.Lock()
	t.calls = append(t.calls, call)
	var next *Outcome
	if len(t.script) > 0 {
		o := t.script[0]
		t.script = t.script[1:]
		next = &o
	}
	t.mu.Unlock()

	if next != nil {
		call.Resolve(*next)
	}
}

// SetCredentials implements transport.Transport.
func (t *ScriptedTransport) SetCredentials(id, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.id, t.token = id, token
	t.credSets++
}

// Credentials returns the last credentials applied.
func (t *ScriptedTransport) Credentials() (string, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id, t.token
}

// Calls returns every submission so far.
func (t *ScriptedTransport) Calls() []*Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Call(nil), t.calls...)
}

// Last returns the most recent submission, or nil.
func (t *ScriptedTransport) Last() *Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.calls) == 0 {
		return nil
	}
	return t.calls[len(t.calls)-1]
}

// Pending returns the oldest unresolved submission, or nil.
func (t *ScriptedTransport) Pending() *Call {
	t.mu.Lock()
	calls := append([]*Call(nil), t.calls...)
	t.mu.Unlock()
	for _, c := range calls {
		if !c.Resolved() {
			return c
		}
	}
	return nil
}
