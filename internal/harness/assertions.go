package harness

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/synq/internal/ir"
	"github.com/roach88/synq/internal/state"
)

// ExpectationError describes a single mismatch found by an expect step.
type ExpectationError struct {
	Field    string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// check evaluates exp against the live engine and storage. It returns one
// message per mismatch.
func (h *Harness) check(ctx context.Context, exp *Expectation) []string {
	var errs []*ExpectationError

	status, err := h.engine.Status(ctx)
	if err != nil {
		return []string{fmt.Sprintf("status: %v", err)}
	}

	errs = appendIf(errs, compareNames("queue", exp.Queue, status.Queue))
	errs = appendIf(errs, compareNames("sent", exp.Sent, status.Sent))
	errs = appendIf(errs, compareBool("fetching", exp.Fetching, status.Fetching))
	errs = appendIf(errs, compareBool("online", exp.Online, status.Online))
	errs = appendIf(errs, compareBool("window_armed", exp.WindowArmed, status.WindowArmed))
	if exp.Calls != nil && *exp.Calls != len(h.transport.Calls()) {
		errs = append(errs, &ExpectationError{
			Field:    "calls",
			Expected: fmt.Sprint(*exp.Calls),
			Actual:   fmt.Sprint(len(h.transport.Calls())),
		})
	}
	if exp.Version != nil && *exp.Version != status.Version {
		errs = append(errs, &ExpectationError{
			Field:    "version",
			Expected: fmt.Sprint(*exp.Version),
			Actual:   fmt.Sprint(status.Version),
		})
	}
	errs = append(errs, comparePaths("state", exp.State, h.state)...)
	for _, path := range exp.Absent {
		if v, ok := h.state.GetPath(path); ok {
			errs = append(errs, &ExpectationError{Field: "state." + path, Expected: "absent", Actual: render(v)})
		}
	}

	if exp.Stored != nil {
		errs = append(errs, h.checkStored(ctx, exp.Stored)...)
	}

	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

// checkStored compares what a restarted process would load.
func (h *Harness) checkStored(ctx context.Context, exp *StoredExpectation) []*ExpectationError {
	var errs []*ExpectationError

	settings, ok, err := h.persist.LoadSettings(ctx)
	switch {
	case err != nil:
		return []*ExpectationError{{Field: "stored", Expected: "loadable settings", Actual: err.Error()}}
	case !ok:
		return []*ExpectationError{{Field: "stored", Expected: "saved settings", Actual: "none"}}
	}
	errs = appendIf(errs, compareNames("stored.queue", exp.Queue, settings.Sync.Queue))
	errs = appendIf(errs, compareNames("stored.sent", exp.Sent, settings.Sync.Sent))

	if len(exp.State) > 0 {
		stored := state.New()
		if _, err := h.persist.LoadState(ctx, stored); err != nil {
			return append(errs, &ExpectationError{Field: "stored.state", Expected: "loadable state", Actual: err.Error()})
		}
		errs = append(errs, comparePaths("stored.state", exp.State, stored)...)
	}
	return errs
}

func appendIf(errs []*ExpectationError, e *ExpectationError) []*ExpectationError {
	if e == nil {
		return errs
	}
	return append(errs, e)
}

// compareNames checks operation names in order. A nil expectation is skipped.
func compareNames(field string, expected []string, actual []ir.Operation) *ExpectationError {
	if expected == nil {
		return nil
	}
	got := make([]string, len(actual))
	for i, op := range actual {
		got[i] = op.String()
	}
	if slices.Equal(expected, got) {
		return nil
	}
	return &ExpectationError{
		Field:    field,
		Expected: "[" + strings.Join(expected, " ") + "]",
		Actual:   "[" + strings.Join(got, " ") + "]",
	}
}

func compareBool(field string, expected *bool, actual bool) *ExpectationError {
	if expected == nil || *expected == actual {
		return nil
	}
	return &ExpectationError{Field: field, Expected: fmt.Sprint(*expected), Actual: fmt.Sprint(actual)}
}

// comparePaths checks dotted paths in sorted order. Values are compared by
// their canonical JSON, so 5 and 5.0 are equal.
func comparePaths(field string, expected map[string]any, st *state.State) []*ExpectationError {
	var errs []*ExpectationError
	for _, path := range slices.Sorted(maps.Keys(expected)) {
		want := expected[path]
		got, ok := st.GetPath(path)
		if !ok {
			errs = append(errs, &ExpectationError{Field: field + "." + path, Expected: render(want), Actual: "absent"})
			continue
		}
		if !sameValue(want, got) {
			errs = append(errs, &ExpectationError{Field: field + "." + path, Expected: render(want), Actual: render(got)})
		}
	}
	return errs
}

func sameValue(a, b any) bool {
	ca, errA := ir.MarshalCanonical(a)
	cb, errB := ir.MarshalCanonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

func render(v any) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
