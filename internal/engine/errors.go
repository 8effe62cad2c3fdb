package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/synq/internal/transport"
)

// SyncError reports why a flush did not reach a successful reconciliation.
// Completion callbacks receive one on every outcome except success.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	// BatchID identifies the affected batch, if one was dispatched.
	BatchID string

	// Err is the underlying transport failure, if any.
	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeUnauthenticated indicates no credentials have been applied.
	ErrCodeUnauthenticated SyncErrorCode = "UNAUTHENTICATED"

	// ErrCodeMissingCredentials indicates Authenticate got an empty id or token.
	ErrCodeMissingCredentials SyncErrorCode = "MISSING_CREDENTIALS"

	// ErrCodeOffline indicates the flush was skipped because the client is offline.
	ErrCodeOffline SyncErrorCode = "OFFLINE"

	// ErrCodeTransient indicates the batch did not reach the authority and was requeued.
	ErrCodeTransient SyncErrorCode = "TRANSIENT"

	// ErrCodeRejected indicates the authority refused the batch and it was discarded.
	ErrCodeRejected SyncErrorCode = "REJECTED"

	// ErrCodeReset indicates the engine was reset before the batch resolved.
	ErrCodeReset SyncErrorCode = "RESET"

	// ErrCodeStopped indicates the engine loop is no longer running.
	ErrCodeStopped SyncErrorCode = "STOPPED"
)

// Sentinels for errors.Is. Matching compares codes only.
var (
	ErrUnauthenticated    = &SyncError{Code: ErrCodeUnauthenticated, Message: "Not authenticated, can't sync, go to settings first."}
	ErrMissingCredentials = &SyncError{Code: ErrCodeMissingCredentials, Message: "Please enter your ID and Token in settings."}
	ErrOffline            = &SyncError{Code: ErrCodeOffline, Message: "offline, operations stay queued"}
	ErrReset              = &SyncError{Code: ErrCodeReset, Message: "engine reset"}
	ErrStopped            = &SyncError{Code: ErrCodeStopped, Message: "engine stopped"}
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.BatchID != "" {
		return fmt.Sprintf("%s: %s (batch=%s)", e.Code, e.Message, e.BatchID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying transport failure.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is matches any SyncError with the same code.
func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	return ok && t.Code == e.Code
}

// IsTransient returns true if the operations are still queued and a later
// flush may deliver them.
func IsTransient(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeTransient || se.Code == ErrCodeOffline
	}
	return false
}

// IsRejected returns true if the authority refused the batch.
func IsRejected(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeRejected
	}
	return false
}

// IsUnauthenticated returns true if the flush needs credentials first.
func IsUnauthenticated(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeUnauthenticated || se.Code == ErrCodeMissingCredentials
	}
	return false
}

// newTransientError wraps a transient transport failure for batchID.
func newTransientError(batchID string, err error) *SyncError {
	return &SyncError{
		Code:    ErrCodeTransient,
		Message: "batch not delivered, requeued",
		BatchID: batchID,
		Err:     err,
	}
}

// newRejectedError wraps a definitive failure for batchID.
func newRejectedError(batchID string, f *transport.Failure) *SyncError {
	return &SyncError{
		Code:    ErrCodeRejected,
		Message: f.UserMessage(),
		BatchID: batchID,
		Err:     f,
	}
}
