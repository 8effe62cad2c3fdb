// Package sched abstracts wall-clock time and delayed execution so the
// debounce window can be driven by a fake clock in tests.
package sched

import "time"

// Timer is a cancellable scheduled call.
type Timer interface {
	// Stop cancels the call. Returns false if it already ran or was stopped.
	Stop() bool
}

// Scheduler runs functions after a delay and reports the current time.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

// System is the Scheduler backed by package time.
type System struct{}

var _ Scheduler = System{}

func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (System) Now() time.Time {
	return time.Now()
}
