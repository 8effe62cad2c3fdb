package ir

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Operation describes one intended mutation of the user's state.
//
// The engine never interprets Name or the argument maps; they are opaque
// to everything but the remote authority. The authority's historical field
// name for the operation name is "op", hence the JSON tag.
//
// Operations are values and must be treated as immutable once logged. Use
// Clone before handing one to code that may mutate the maps.
type Operation struct {
	Name   string         `json:"op,omitempty" msgpack:"op,omitempty"`
	Params map[string]any `json:"params,omitempty" msgpack:"params,omitempty"`
	Query  map[string]any `json:"query,omitempty" msgpack:"query,omitempty"`
	Body   map[string]any `json:"body,omitempty" msgpack:"body,omitempty"`
}

// Request carries the arguments of a domain operation invocation.
// Logging a request produces an Operation with the same maps.
type Request struct {
	Params map[string]any
	Query  map[string]any
	Body   map[string]any
}

// NewOperation builds an Operation from an operation name and its request.
func NewOperation(name string, req Request) Operation {
	return Operation{
		Name:   name,
		Params: req.Params,
		Query:  req.Query,
		Body:   req.Body,
	}
}

// FetchOperation returns the empty operation. Logging it changes nothing on
// the authority but forces a round trip that returns the current state.
func FetchOperation() Operation {
	return Operation{}
}

// IsFetch reports whether op is the empty fetch operation.
func (op Operation) IsFetch() bool {
	return op.Name == "" && len(op.Params) == 0 && len(op.Query) == 0 && len(op.Body) == 0
}

// Clone returns a copy of op whose top-level maps are not shared.
func (op Operation) Clone() Operation {
	return Operation{
		Name:   op.Name,
		Params: maps.Clone(op.Params),
		Query:  maps.Clone(op.Query),
		Body:   maps.Clone(op.Body),
	}
}

// String renders the operation for logs.
func (op Operation) String() string {
	if op.IsFetch() {
		return "<fetch>"
	}
	return op.Name
}

// MarshalOperations encodes a batch as the JSON array the authority expects.
// A nil batch is encoded as an empty array, never null.
func MarshalOperations(ops []Operation) ([]byte, error) {
	if ops == nil {
		ops = []Operation{}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("marshal operations: %w", err)
	}
	return data, nil
}

// CloneOperations copies a slice of operations. The result never aliases ops.
func CloneOperations(ops []Operation) []Operation {
	out := make([]Operation, len(ops))
	for i, op := range ops {
		out[i] = op.Clone()
	}
	return out
}
