package harness

import "github.com/roach88/synq/internal/ir"

// Trace event types.
const (
	EventDispatch = "dispatch"
	EventReply    = "reply"
	EventCallback = "callback"
	EventNotify   = "notify"
	EventState    = "state"
)

// TraceEvent is one observable effect of a scenario, in the order the
// engine produced it. Step is the 1-based index of the step running when
// the event occurred.
type TraceEvent struct {
	Type  string `json:"type"`
	Step  int    `json:"step"`
	Batch string `json:"batch,omitempty"`
	// Ops is the transmitted batch (dispatch).
	Ops []ir.Operation `json:"ops,omitempty"`
	// Outcome is the reply outcome (reply) or "ok"/error code (callback).
	Outcome string `json:"outcome,omitempty"`
	// Status is the HTTP status of a definitive reply.
	Status int `json:"status,omitempty"`
	// Kind is the notification kind (notify) or state event kind (state).
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expectation matched.
	Pass bool `json:"pass"`

	// Trace contains every observed event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final snapshot of the local state.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Count returns how many events of type typ the trace holds.
func (r *Result) Count(typ string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// Dispatches returns the dispatch events in order.
func (r *Result) Dispatches() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventDispatch {
			out = append(out, ev)
		}
	}
	return out
}
