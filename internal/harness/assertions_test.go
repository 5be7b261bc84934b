package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Step: 1, Agent: "claude", Action: "propose", Args: map[string]any{"operation": "create"}, Outcome: OutcomeOK},
		{Step: 2, Agent: "llama", Action: "vote", Args: map[string]any{"proposal": 1, "decision": "approve"}, Outcome: OutcomeOK},
		{Step: 3, Agent: "llama", Action: "execute", Args: map[string]any{"proposal": 1}, Outcome: "INVALID_STATE"},
		{Step: 4, Agent: "user", Action: "vote", Args: map[string]any{"proposal": 1, "decision": "approve"}, Outcome: OutcomeOK},
		{Step: 5, Agent: "system", Action: "execute", Args: map[string]any{"proposal": 1}, Outcome: OutcomeOK},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "vote", Args: map[string]any{"decision": "approve"}}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "vote", Args: map[string]any{"proposal": 1.0}}),
		"numbers compare by value")

	err := assertTraceContains(trace, Assertion{Action: "vote", Args: map[string]any{"decision": "reject"}})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "Full trace:")
	assert.Contains(t, err.Error(), "[3] llama execute")
}

func TestAssertTraceContains_IgnoresFailedSteps(t *testing.T) {
	trace := sampleTrace()[:3]
	err := assertTraceContains(trace, Assertion{Action: "execute"})
	assert.Error(t, err)
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"propose", "vote", "execute"}}))

	err := assertTraceOrder(trace, Assertion{Actions: []string{"execute", "propose"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute (pos 3) should be before propose (pos 1)")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"propose", "withdraw"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing action: withdraw")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "vote", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "execute", Count: 2}), "failed steps count")
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "withdraw", Count: 0}))

	err := assertTraceCount(trace, Assertion{Action: "vote", Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 occurrences of vote")
	assert.Contains(t, err.Error(), "Actual: 2 occurrences")
}

func TestMatchSubset(t *testing.T) {
	actual := map[string]any{
		"status":  "approved",
		"score":   2.0,
		"votes":   int64(3),
		"content": map[string]any{"text": "x", "tags": []any{"a", "b"}},
	}

	tests := []struct {
		name     string
		expected map[string]any
		diffs    []string
	}{
		{"empty", nil, nil},
		{"equal scalars", map[string]any{"status": "approved", "score": 2, "votes": 3}, nil},
		{"nested subset", map[string]any{"content": map[string]any{"text": "x"}}, nil},
		{"arrays compare whole", map[string]any{"content": map[string]any{"tags": []any{"a", "b"}}}, nil},
		{"mismatch", map[string]any{"status": "rejected"}, []string{"r.status: want rejected, got approved"}},
		{"missing", map[string]any{"owner": "ops"}, []string{"r.owner: missing (want ops)"}},
		{"nested mismatch", map[string]any{"content": map[string]any{"text": "y"}}, []string{"r.content.text: want y, got x"}},
		{"not an object", map[string]any{"status": map[string]any{"a": 1}}, []string{"r.status: want object, got approved"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.diffs, matchSubset("r", tt.expected, actual))
		})
	}
}

func TestTraceSnapshot_Canonical(t *testing.T) {
	snap := TraceSnapshot{
		ScenarioName: "s",
		Trace: []TraceEvent{{
			Step:    1,
			Phase:   PhaseFlow,
			Agent:   "user",
			Action:  "vote",
			Args:    map[string]any{"proposal": 1, "decision": "approve"},
			Outcome: OutcomeOK,
			Result:  map[string]any{"resolved": false},
		}},
	}
	data, err := snap.Canonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"s","trace":[{"action":"vote","agent":"user","args":{"decision":"approve","proposal":1},"outcome":"ok","phase":"flow","result":{"resolved":false},"step":1}]}`,
		string(data))
}
