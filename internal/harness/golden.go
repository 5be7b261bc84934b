package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/stategraph/internal/value"
)

// TraceSnapshot is the golden representation of a run.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
}

// Canonical encodes the snapshot as canonical JSON so byte comparison is
// stable across runs.
func (s TraceSnapshot) Canonical() ([]byte, error) {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"step":    ev.Step,
			"phase":   ev.Phase,
			"agent":   ev.Agent,
			"action":  ev.Action,
			"outcome": ev.Outcome,
		}
		if len(ev.Args) > 0 {
			m["args"] = ev.Args
		}
		if len(ev.Result) > 0 {
			m["result"] = ev.Result
		}
		trace[i] = m
	}
	v, err := value.FromAny(map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
	})
	if err != nil {
		return nil, err
	}
	return value.MarshalCanonical(v)
}

// RunWithGolden runs the scenario and compares its trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()
	result, err := Run(context.Background(), s)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, s.Name, result)
}

// AssertGolden compares an existing result's trace with a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()
	data, err := TraceSnapshot{ScenarioName: name, Trace: result.Trace}.Canonical()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
