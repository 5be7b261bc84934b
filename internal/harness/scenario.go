package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stategraph/internal/fault"
)

// Scenario is a scripted run of the graph and governance layer.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Policy is an optional inline CUE policy. Empty means the defaults.
	Policy string `yaml:"policy,omitempty"`

	// Setup steps establish initial state and must all succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps are checked against their expect clauses.
	Flow []Step `yaml:"flow"`

	// Assertions check the trace and the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action performed by one agent.
type Step struct {
	// Agent performing the step. Defaults to system.
	Agent string `yaml:"agent,omitempty"`

	// Do is the action name, e.g. "propose" or "vote".
	Do string `yaml:"do"`

	// Args are the action arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect, when set, overrides the default "must succeed" check.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause describes how a flow step must turn out.
type ExpectClause struct {
	// Error is the fault kind the step must fail with, e.g. INVALID_STATE.
	Error string `yaml:"error,omitempty"`

	// Result is a subset of the fields the step must produce.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion checks the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Action and Args select trace steps (trace_contains, trace_count).
	Action string         `yaml:"action,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`

	// Actions is the expected order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number of matches (trace_count, event_count).
	Count int `yaml:"count,omitempty"`

	// Proposal selects a proposal (proposal_state).
	Proposal int64 `yaml:"proposal,omitempty"`

	// Node selects a node (node_state). Absent requires it not to exist.
	Node   string `yaml:"node,omitempty"`
	Absent bool   `yaml:"absent,omitempty"`

	// Agent selects a track record (reputation) or filters events.
	Agent string `yaml:"agent,omitempty"`

	// Operation filters events (event_count).
	Operation string `yaml:"operation,omitempty"`

	// Expect is a subset of the selected record's fields.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains    = "trace_contains"
	AssertTraceOrder       = "trace_order"
	AssertTraceCount       = "trace_count"
	AssertProposalState    = "proposal_state"
	AssertNodeState        = "node_state"
	AssertReputation       = "reputation"
	AssertEventCount       = "event_count"
	AssertReplayConsistent = "replay_consistent"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos such as "assertion:" fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is only allowed in flow steps", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.Do == "" {
		return fmt.Errorf("do is required")
	}
	if _, ok := actions[step.Do]; !ok {
		return fmt.Errorf("unknown action %q", step.Do)
	}
	if e := step.Expect; e != nil {
		if e.Error != "" && e.Result != nil {
			return fmt.Errorf("expect: error and result are mutually exclusive")
		}
		if e.Error != "" && !knownKind(e.Error) {
			return fmt.Errorf("expect: unknown error kind %q", e.Error)
		}
	}
	return nil
}

func knownKind(k string) bool {
	switch fault.Kind(k) {
	case fault.NotFound, fault.InvalidState, fault.InvalidInput, fault.Persistence:
		return true
	}
	return false
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("action is required for trace_contains")
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("actions list is required for trace_order")
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("action is required for trace_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for trace_count")
		}
	case AssertProposalState:
		if a.Proposal <= 0 {
			return fmt.Errorf("proposal is required for proposal_state")
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("expect is required for proposal_state")
		}
	case AssertNodeState:
		if a.Node == "" {
			return fmt.Errorf("node is required for node_state")
		}
		if a.Absent == (len(a.Expect) > 0) {
			return fmt.Errorf("node_state needs exactly one of absent or expect")
		}
	case AssertReputation:
		if a.Agent == "" {
			return fmt.Errorf("agent is required for reputation")
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("expect is required for reputation")
		}
	case AssertEventCount:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for event_count")
		}
	case AssertReplayConsistent:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
