// Package transport carries operation batches to the remote authority.
//
// A Transport submits one batch at a time on behalf of the engine and
// reports the outcome through a Reply. Outcomes are a *Response on success
// or an error; errors the engine must act on are *Failure values that say
// whether the failure is definitive (the authority rejected the request) or
// transient (no definitive answer, the client is effectively offline).
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/synq/internal/ir"
)

// Batch is one outbound request.
type Batch struct {
	// ID correlates logs on both ends. Not interpreted by the authority.
	ID string
	// Ops is the full sent buffer, in order.
	Ops []ir.Operation
	// Timestamp is the client wall clock at dispatch.
	Timestamp time.Time
	// Version is the client's version counter.
	Version int64
	// BuildTag identifies the client build.
	BuildTag string
}

// Response is a successful reply. Fields are merged into the local state.
type Response struct {
	Fields      map[string]any
	WasModified bool
}

// Reply receives the outcome of Submit. It is called exactly once, possibly
// on another goroutine.
type Reply func(*Response, error)

// Transport is the transport collaborator.
type Transport interface {
	// Submit dispatches b and arranges for reply to be called with the
	// outcome. It must not block on the network.
	Submit(ctx context.Context, b Batch, reply Reply)
	// SetCredentials attaches the identity/secret pair to later requests.
	SetCredentials(id, token string)
}

// Class separates failures the engine retries from failures it discards.
type Class int

const (
	// ClassTransient means no definitive answer was received.
	ClassTransient Class = iota + 1
	// ClassDefinitive means the authority rejected the request.
	ClassDefinitive
	// ClassUnreadable means the authority accepted the request but its
	// reply could not be decoded.
	ClassUnreadable
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassDefinitive:
		return "definitive"
	case ClassUnreadable:
		return "unreadable"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// User-facing messages for definitive failures.
const (
	MessageNeedRefresh = "The site has been updated and the page needs to refresh. The last action has not been recorded, please refresh and try again."
	MessageGeneric     = "Something went wrong, please refresh your browser or upgrade the mobile app"
)

// Failure is a failed submission.
type Failure struct {
	Class Class
	// Status is the HTTP status, 0 when none was received.
	Status int
	// Message is the authority's explanation, if any.
	Message string
	// NeedRefresh is set when the authority requires a newer client.
	NeedRefresh bool
	// Err is the underlying error, if any.
	Err error
}

func (f *Failure) Error() string {
	switch {
	case f.Status != 0 && f.Message != "":
		return fmt.Sprintf("%s failure (status %d): %s", f.Class, f.Status, f.Message)
	case f.Status != 0:
		return fmt.Sprintf("%s failure (status %d)", f.Class, f.Status)
	case f.Err != nil:
		return fmt.Sprintf("%s failure: %v", f.Class, f.Err)
	default:
		return fmt.Sprintf("%s failure: %s", f.Class, f.Message)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// UserMessage is the text shown to the user for a definitive failure.
func (f *Failure) UserMessage() string {
	switch {
	case f.NeedRefresh:
		return MessageNeedRefresh
	case f.Message != "":
		return f.Message
	default:
		return MessageGeneric
	}
}

// Transient builds a transient failure around err.
func Transient(err error) *Failure {
	return &Failure{Class: ClassTransient, Err: err}
}

// Definitive builds a definitive failure.
func Definitive(status int, message string) *Failure {
	return &Failure{Class: ClassDefinitive, Status: status, Message: message}
}

// IsDefinitive reports whether err is a definitive failure.
func IsDefinitive(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Class == ClassDefinitive
}

// Unreadable builds the failure for an accepted request whose reply could
// not be decoded.
func Unreadable(status int, err error) *Failure {
	return &Failure{Class: ClassUnreadable, Status: status, Err: err}
}

// IsUnreadable reports whether err is an accepted request with an
// undecodable reply.
func IsUnreadable(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Class == ClassUnreadable
}

// Classify returns the class of err. Errors that are not *Failure values are
// transient: without a status there is no definitive answer.
func Classify(err error) Class {
	var f *Failure
	if errors.As(err, &f) {
		return f.Class
	}
	return ClassTransient
}

// AsFailure converts any error to a *Failure, wrapping unknown errors as
// transient.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return Transient(err)
}
