package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/synq/internal/engine"
	"github.com/roach88/synq/internal/ir"
)

// Scenario defines a sync conformance scenario.
// A scenario drives one engine through a list of steps against a scripted
// transport and a manual clock, and checks the bookkeeping along the way.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy is the window policy: "commit" (default) or "coalesce".
	Policy string `yaml:"policy,omitempty"`

	// Debounce is the window length. Defaults to engine.DefaultDebounce.
	Debounce string `yaml:"debounce,omitempty"`

	// Mobile routes operation failures to persistent notifications.
	Mobile bool `yaml:"mobile,omitempty"`

	// Setup establishes the client before the first step.
	Setup Setup `yaml:"setup,omitempty"`

	// Steps run in order. Each step does exactly one thing.
	Steps []Step `yaml:"steps"`
}

// Setup describes the client at the start of a scenario.
type Setup struct {
	// Online defaults to true.
	Online *bool `yaml:"online,omitempty"`

	// Authenticated defaults to true.
	Authenticated *bool `yaml:"authenticated,omitempty"`

	// Fields, when present, are returned by an initial fetch so the state
	// is populated and operations are attached. The fetch is not traced.
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Step is one scenario action. Exactly one field may be set.
type Step struct {
	// Log appends operations behind the window.
	Log []OperationSpec `yaml:"log,omitempty"`

	// Urgent appends operations and flushes at once; the outcome is traced
	// as a callback event.
	Urgent []OperationSpec `yaml:"urgent,omitempty"`

	// Invoke calls an attached operation without a callback.
	Invoke *OperationSpec `yaml:"invoke,omitempty"`

	// Set applies dotted-path updates.
	Set map[string]any `yaml:"set,omitempty"`

	// Advance moves the manual clock, e.g. "5s".
	Advance string `yaml:"advance,omitempty"`

	// Online pushes a connectivity change.
	Online *bool `yaml:"online,omitempty"`

	// Respond resolves the oldest pending batch.
	Respond *Respond `yaml:"respond,omitempty"`

	Undo  bool `yaml:"undo,omitempty"`
	Flush bool `yaml:"flush,omitempty"`
	Sync  bool `yaml:"sync,omitempty"`
	Reset bool `yaml:"reset,omitempty"`

	// Expect checks the bookkeeping without changing it.
	Expect *Expectation `yaml:"expect,omitempty"`
}

// OperationSpec is the YAML form of an operation record.
type OperationSpec struct {
	Op     string         `yaml:"op"`
	Params map[string]any `yaml:"params,omitempty"`
	Query  map[string]any `yaml:"query,omitempty"`
	Body   map[string]any `yaml:"body,omitempty"`
}

// Operation converts o to a record.
func (o OperationSpec) Operation() ir.Operation {
	return ir.Operation{Name: o.Op, Params: o.Params, Query: o.Query, Body: o.Body}
}

// Request returns the arguments of o as an invocation request.
func (o OperationSpec) Request() ir.Request {
	return ir.Request{Params: o.Params, Query: o.Query, Body: o.Body}
}

// Respond describes the outcome delivered for a pending batch.
type Respond struct {
	// Outcome is one of success, modified, transient, definitive.
	Outcome string `yaml:"outcome"`

	// Fields is the response body for success and modified.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Status is the HTTP status for definitive failures.
	Status int `yaml:"status,omitempty"`

	// Message is the authority's message (definitive) or the network
	// error text (transient).
	Message string `yaml:"message,omitempty"`

	// NeedRefresh marks a definitive failure asking for a newer client.
	NeedRefresh bool `yaml:"need_refresh,omitempty"`
}

// Outcome names.
const (
	OutcomeSuccess    = "success"
	OutcomeModified   = "modified"
	OutcomeTransient  = "transient"
	OutcomeDefinitive = "definitive"
)

// Expectation checks the engine after a step. Unset fields are not checked.
// Queue and sent list operation names; the fetch operation is "<fetch>".
type Expectation struct {
	Queue       []string `yaml:"queue,omitempty"`
	Sent        []string `yaml:"sent,omitempty"`
	Fetching    *bool    `yaml:"fetching,omitempty"`
	Online      *bool    `yaml:"online,omitempty"`
	WindowArmed *bool    `yaml:"window_armed,omitempty"`
	Calls       *int     `yaml:"calls,omitempty"`
	Version     *int64   `yaml:"version,omitempty"`

	// State maps dotted paths to expected values.
	State map[string]any `yaml:"state,omitempty"`

	// Absent lists dotted paths that must not be set.
	Absent []string `yaml:"absent,omitempty"`

	// Stored compares the persisted buffers instead of the live ones.
	Stored *StoredExpectation `yaml:"stored,omitempty"`
}

// StoredExpectation checks what a restarted process would load.
type StoredExpectation struct {
	Queue []string `yaml:"queue,omitempty"`
	Sent  []string `yaml:"sent,omitempty"`
	// State maps dotted paths to expected persisted values.
	State map[string]any `yaml:"state,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Discover returns the scenario files in dir, sorted by name.
func Discover(dir string) ([]string, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("scenario directory: %w", err)
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := engine.ParseWindowPolicy(s.Policy); err != nil {
		return err
	}
	if s.Debounce != "" {
		if d, err := time.ParseDuration(s.Debounce); err != nil || d <= 0 {
			return fmt.Errorf("debounce %q must be a positive duration", s.Debounce)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Setup.Fields != nil && !s.Setup.authenticated() {
		return fmt.Errorf("setup: fields need an authenticated client")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks that exactly one action is set and that it is well formed.
func validateStep(index int, st *Step) error {
	actions := st.actions()
	switch len(actions) {
	case 0:
		return fmt.Errorf("steps[%d]: no action set", index)
	case 1:
	default:
		return fmt.Errorf("steps[%d]: more than one action set: %v", index, actions)
	}

	switch actions[0] {
	case "log", "urgent":
		ops := st.Log
		if actions[0] == "urgent" {
			ops = st.Urgent
		}
		for j, op := range ops {
			if op.Op == "" {
				return fmt.Errorf("steps[%d].%s[%d]: op is required", index, actions[0], j)
			}
		}
	case "invoke":
		if st.Invoke.Op == "" {
			return fmt.Errorf("steps[%d].invoke: op is required", index)
		}
	case "advance":
		if d, err := time.ParseDuration(st.Advance); err != nil || d < 0 {
			return fmt.Errorf("steps[%d].advance: %q is not a duration", index, st.Advance)
		}
	case "respond":
		switch st.Respond.Outcome {
		case OutcomeSuccess, OutcomeModified, OutcomeTransient:
		case OutcomeDefinitive:
			if st.Respond.Status < 400 {
				return fmt.Errorf("steps[%d].respond: definitive needs a status >= 400", index)
			}
		default:
			return fmt.Errorf("steps[%d].respond: unknown outcome %q", index, st.Respond.Outcome)
		}
	}
	return nil
}

// actions lists the names of the fields set on the step.
func (st *Step) actions() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(st.Log != nil, "log")
	add(st.Urgent != nil, "urgent")
	add(st.Invoke != nil, "invoke")
	add(st.Set != nil, "set")
	add(st.Advance != "", "advance")
	add(st.Online != nil, "online")
	add(st.Respond != nil, "respond")
	add(st.Undo, "undo")
	add(st.Flush, "flush")
	add(st.Sync, "sync")
	add(st.Reset, "reset")
	add(st.Expect != nil, "expect")
	return out
}

func (s Setup) online() bool {
	return s.Online == nil || *s.Online
}

func (s Setup) authenticated() bool {
	return s.Authenticated == nil || *s.Authenticated
}
