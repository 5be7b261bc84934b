package harness

// Step outcomes recorded in the trace. Failed steps record the fault kind.
const (
	OutcomeOK = "ok"
)

// Scenario phases.
const (
	PhaseSetup = "setup"
	PhaseFlow  = "flow"
)

// TraceEvent is one executed step.
type TraceEvent struct {
	Step    int            `json:"step"`
	Phase   string         `json:"phase"`
	Agent   string         `json:"agent,omitempty"`
	Action  string         `json:"action"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome string         `json:"outcome"`
	Result  map[string]any `json:"result,omitempty"`
}

// Succeeded reports whether the step completed without error.
func (e TraceEvent) Succeeded() bool {
	return e.Outcome == OutcomeOK
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists setup and flow steps in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
