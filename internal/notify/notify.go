// Package notify delivers user-visible messages produced by the sync engine.
//
// The engine never consumes a return value from a notifier; delivery is
// fire-and-forget.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Notifier is the notification collaborator.
//
// PushTransient shows a short-lived message (a toast). PushPersistent shows a
// message that stays until the user dismisses it.
type Notifier interface {
	PushTransient(message string)
	PushPersistent(message string)
}

// SlogNotifier writes notifications to a structured logger. It is the
// default notifier for the command-line client.
type SlogNotifier struct {
	logger *slog.Logger
}

// NewSlogNotifier creates a notifier writing to logger; nil uses slog.Default().
func NewSlogNotifier(logger *slog.Logger) *SlogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogNotifier{logger: logger}
}

func (n *SlogNotifier) PushTransient(message string) {
	n.logger.LogAttrs(context.Background(), slog.LevelInfo, message, slog.String("notification", "transient"))
}

func (n *SlogNotifier) PushPersistent(message string) {
	n.logger.LogAttrs(context.Background(), slog.LevelWarn, message, slog.String("notification", "persistent"))
}

// Kind distinguishes recorded notifications.
type Kind string

const (
	KindTransient  Kind = "transient"
	KindPersistent Kind = "persistent"
)

// Message is one recorded notification.
type Message struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Recorder keeps every notification in order. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) PushTransient(message string) {
	r.push(KindTransient, message)
}

func (r *Recorder) PushPersistent(message string) {
	r.push(KindPersistent, message)
}

func (r *Recorder) push(kind Kind, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Kind: kind, Text: text})
}

// Messages returns a copy of the recorded notifications.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Reset drops all recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}

// Discard drops every notification.
type Discard struct{}

func (Discard) PushTransient(string)  {}
func (Discard) PushPersistent(string) {}
