package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/synq/internal/ir"
)

// VersionKey is the wire name of the version counter.
const VersionKey = "_v"

// ErrUnknownOperation is returned by Invoke for names with no attached operation.
var ErrUnknownOperation = errors.New("unknown operation")

// ErrOperationsDetached is returned by Invoke before operations are attached.
var ErrOperationsDetached = errors.New("operations not attached yet")

// EventKind identifies a state notification.
type EventKind int

const (
	// EventExternalChange fires when the authority reports that another
	// client modified the state. It fires before the merge.
	EventExternalChange EventKind = iota + 1
	// EventSynced fires after every reconciliation that was applied.
	EventSynced
	// EventReloaded fires after the state was reloaded from storage (undo).
	EventReloaded
	// EventReset fires after the state was wiped.
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventExternalChange:
		return "external_change"
	case EventSynced:
		return "synced"
	case EventReloaded:
		return "reloaded"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered to subscribers.
type Event struct {
	Kind    EventKind
	Version int64
}

// OpFunc is an attached domain operation. A nil callback means the result is
// routed into the sync log by the wrapper that produced the OpFunc.
type OpFunc func(req ir.Request, cb func(error))

// State is the shared, in-place-mutated user state.
//
// Thread-safety: all methods are safe for concurrent use. Subscribers are
// invoked without the lock held, on the goroutine that emitted the event.
type State struct {
	mu      sync.RWMutex
	version int64
	fields  map[string]any
	ops     map[string]OpFunc

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// New creates an empty state at version 0.
func New() *State {
	return &State{
		fields: make(map[string]any),
		subs:   make(map[int]func(Event)),
	}
}

// Version returns the version counter.
func (s *State) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetVersion overwrites the version counter.
func (s *State) SetVersion(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// DecrementVersion lowers the version counter by one so the authority
// considers the client stale and answers with the full state.
func (s *State) DecrementVersion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version--
}

// Get returns a copy of a top-level field.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.fields[key]
	return deepCopy(v), ok
}

// Set overwrites a top-level field. Setting VersionKey updates the version.
func (s *State) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(key, value)
}

// Update runs fn with exclusive access to the field map. fn must not retain
// the map or call other State methods.
func (s *State) Update(fn func(fields map[string]any) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.fields)
}

// Merge overwrites fields one by one. The container is never replaced.
func (s *State) Merge(fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if err := s.setLocked(k, fields[k]); err != nil {
			return err
		}
	}
	return nil
}

// Replace swaps the contents for fields, keeping the same container and the
// attached operations. Keys absent from fields are removed.
func (s *State) Replace(fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.fields)
	s.version = 0
	for k, v := range fields {
		if err := s.setLocked(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Reset wipes fields, version and attached operations.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.fields)
	s.version = 0
	s.ops = nil
}

func (s *State) setLocked(key string, value any) error {
	if key == VersionKey {
		v, err := toInt64(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", VersionKey, err)
		}
		s.version = v
		return nil
	}
	if isTransient(key) {
		return nil
	}
	s.fields[key] = value
	return nil
}

// Snapshot returns a deep copy of the fields with the version under
// VersionKey. Transient fields are never part of a snapshot.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.fields)+1)
	for k, v := range s.fields {
		out[k] = deepCopy(v)
	}
	out[VersionKey] = s.version
	return out
}

// MarshalJSON encodes the snapshot.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// AttachOps installs the wrapped domain operations. Attaching twice replaces
// the previous set.
func (s *State) AttachOps(ops map[string]OpFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = maps.Clone(ops)
}

// OpsAttached reports whether AttachOps has been called since the last Reset.
func (s *State) OpsAttached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops != nil
}

// OpNames returns the attached operation names in sorted order.
func (s *State) OpNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.ops))
}

// Invoke runs an attached operation by name.
func (s *State) Invoke(name string, req ir.Request, cb func(error)) error {
	s.mu.RLock()
	ops := s.ops
	op, ok := s.ops[name]
	s.mu.RUnlock()

	if ops == nil {
		return ErrOperationsDetached
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	op(req, cb)
	return nil
}

// Subscribe registers fn for every future event and returns a function that
// removes the subscription.
func (s *State) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// Emit delivers an event to every subscriber in subscription order.
func (s *State) Emit(kind EventKind) {
	ev := Event{Kind: kind, Version: s.Version()}

	s.subMu.Lock()
	ids := slices.Sorted(maps.Keys(s.subs))
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// toInt64 converts decoded JSON/msgpack numbers.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
