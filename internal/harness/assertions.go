package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/value"
)

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %v -> %s\n", ev.Step, ev.Agent, ev.Action, ev.Args, ev.Outcome)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(ctx, h, result.Trace, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(ctx context.Context, h *Harness, trace []TraceEvent, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(trace, a)
	case AssertTraceCount:
		return assertTraceCount(trace, a)
	case AssertProposalState:
		return h.assertProposalState(ctx, a)
	case AssertNodeState:
		return h.assertNodeState(ctx, a)
	case AssertReputation:
		return h.assertReputation(ctx, a)
	case AssertEventCount:
		return h.assertEventCount(ctx, a)
	case AssertReplayConsistent:
		return h.assertReplayConsistent(ctx)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertTraceContains looks for a successful step with the action whose args
// include a.Args.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Action == a.Action && ev.Succeeded() && len(matchSubset("args", a.Args, ev.Args)) == 0 {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", a.Action, a.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrences of the actions appear
// in order. Other steps may run in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if _, seen := positions[ev.Action]; !seen {
			positions[ev.Action] = i + 1
		}
	}

	for _, action := range a.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Actions); i++ {
		prev, cur := a.Actions[i-1], a.Actions[i]
		if positions[prev] >= positions[cur] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], cur, positions[cur]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount counts steps with the action, failed ones included.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Action == a.Action {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertProposalState(ctx context.Context, a Assertion) error {
	p, ok, err := h.gov.Proposals.Get(ctx, a.Proposal)
	if err != nil {
		return err
	}
	if !ok {
		return &AssertionError{
			Type:     AssertProposalState,
			Expected: fmt.Sprintf("proposal %d", a.Proposal),
			Actual:   "not found",
		}
	}
	actual := map[string]any{
		"status":    string(p.Status),
		"proposer":  string(p.Proposer),
		"operation": string(p.Operation),
		"target":    p.Target.String(),
		"payload":   value.ToAny(p.Payload),
		"rationale": p.Rationale,
		"executed":  p.ExecutedAt != nil,
	}
	return subsetError(AssertProposalState, fmt.Sprintf("proposal %d", p.ID), a.Expect, actual)
}

func (h *Harness) assertNodeState(ctx context.Context, a Assertion) error {
	n, ok, err := h.store.GetNode(ctx, a.Node)
	if err != nil {
		return err
	}
	if a.Absent {
		if ok {
			return &AssertionError{
				Type:     AssertNodeState,
				Expected: fmt.Sprintf("node %s absent", a.Node),
				Actual:   fmt.Sprintf("node exists with kind %s", n.Kind),
			}
		}
		return nil
	}
	if !ok {
		return &AssertionError{
			Type:     AssertNodeState,
			Expected: fmt.Sprintf("node %s", a.Node),
			Actual:   "not found",
		}
	}
	actual := map[string]any{
		"kind":     string(n.Kind),
		"content":  value.ToAny(n.Content),
		"metadata": value.ToAny(n.Metadata),
	}
	return subsetError(AssertNodeState, "node "+n.ID, a.Expect, actual)
}

func (h *Harness) assertReputation(ctx context.Context, a Assertion) error {
	agent, err := schema.ParseAgentID(a.Agent)
	if err != nil {
		return err
	}
	r, err := h.gov.Reputation.Lookup(ctx, agent)
	if err != nil {
		return err
	}
	actual := map[string]any{
		"score":         r.Score,
		"total_votes":   r.TotalVotes,
		"correct_votes": r.CorrectVotes,
		"accuracy":      r.Accuracy(),
	}
	return subsetError(AssertReputation, "reputation of "+a.Agent, a.Expect, actual)
}

func (h *Harness) assertEventCount(ctx context.Context, a Assertion) error {
	filter := schema.EventFilter{}
	if a.Agent != "" {
		agent, err := schema.ParseAgentID(a.Agent)
		if err != nil {
			return err
		}
		filter.Agent = agent
	}
	if a.Operation != "" {
		op, err := schema.ParseOperation(a.Operation)
		if err != nil {
			return err
		}
		filter.Operation = op
	}
	if a.Node != "" {
		target := schema.NodeTarget(a.Node)
		filter.Target = &target
	}
	events, err := h.store.GetEvents(ctx, filter, 0)
	if err != nil {
		return err
	}
	if len(events) != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d events (agent=%q operation=%q node=%q)", a.Count, a.Agent, a.Operation, a.Node),
			Actual:   fmt.Sprintf("%d events", len(events)),
		}
	}
	return nil
}

func (h *Harness) assertReplayConsistent(ctx context.Context) error {
	report, err := h.store.Verify(ctx)
	if err != nil {
		return err
	}
	if !report.OK() {
		return &AssertionError{
			Type:     AssertReplayConsistent,
			Expected: "event log replays to the live graph",
			Actual:   fmt.Sprintf("%+v", report),
		}
	}
	return nil
}

func subsetError(typ, subject string, expected, actual map[string]any) error {
	diffs := matchSubset("", expected, actual)
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%s matching %v", subject, expected),
		Actual:   strings.Join(diffs, "; "),
	}
}

// matchSubset reports every field of expected that actual lacks or holds a
// different value for. Nested objects are matched as subsets too; numbers
// compare by value, so 2 and 2.0 are equal.
func matchSubset(path string, expected, actual map[string]any) []string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var diffs []string
	for _, k := range keys {
		p := k
		if path != "" {
			p = path + "." + k
		}
		want := expected[k]
		got, ok := actual[k]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: missing (want %v)", p, want))
			continue
		}
		if wantObj, ok := want.(map[string]any); ok {
			gotObj, ok := got.(map[string]any)
			if !ok {
				diffs = append(diffs, fmt.Sprintf("%s: want object, got %v", p, got))
				continue
			}
			diffs = append(diffs, matchSubset(p, wantObj, gotObj)...)
			continue
		}
		if !equalAny(want, got) {
			diffs = append(diffs, fmt.Sprintf("%s: want %v, got %v", p, want, got))
		}
	}
	return diffs
}

func equalAny(a, b any) bool {
	av, err := value.FromAny(a)
	if err != nil {
		return false
	}
	bv, err := value.FromAny(b)
	if err != nil {
		return false
	}
	return value.Equal(av, bv)
}
