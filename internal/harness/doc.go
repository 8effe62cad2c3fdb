// Package harness runs YAML sync scenarios against a real engine.
//
// A scenario seeds the client (credentials, connectivity, an optional
// initial fetch), then executes steps one at a time: logging records,
// moving the manual clock, pushing connectivity changes, answering the
// oldest in-flight batch and checking the bookkeeping. The transport is
// scripted and batch ids are sequential, so a run is fully reproducible.
//
// Everything the engine does is recorded into an ordered trace of
// dispatch, reply, callback, notify and state events. Traces are compared
// against golden files rendered as canonical JSON:
//
//	go test ./internal/harness -update
//
// regenerates testdata/golden after an intentional behavior change.
package harness
