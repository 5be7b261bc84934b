package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func requirePass(t *testing.T, res *Result) {
	t.Helper()
	require.True(t, res.Pass, "scenario failed:\n%s", strings.Join(res.Errors, "\n"))
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{
		"approve_and_execute",
		"rejection_and_reputation",
		"capability_modes",
		"expiry",
	} {
		t.Run(name, func(t *testing.T) {
			res, err := Run(context.Background(), loadTestScenario(t, name))
			require.NoError(t, err)
			requirePass(t, res)
		})
	}
}

func TestRunWithGolden_ApproveAndExecute(t *testing.T) {
	res, err := RunWithGolden(t, loadTestScenario(t, "approve_and_execute"))
	require.NoError(t, err)
	requirePass(t, res)
}

func TestRun_IsDeterministic(t *testing.T) {
	s := loadTestScenario(t, "rejection_and_reputation")

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	second, err := Run(context.Background(), s)
	require.NoError(t, err)

	a, err := TraceSnapshot{ScenarioName: s.Name, Trace: first.Trace}.Canonical()
	require.NoError(t, err)
	b, err := TraceSnapshot{ScenarioName: s.Name, Trace: second.Trace}.Canonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_TraceRecordsOutcomes(t *testing.T) {
	res, err := Run(context.Background(), loadTestScenario(t, "capability_modes"))
	require.NoError(t, err)

	require.Len(t, res.Trace, 15)
	assert.Equal(t, PhaseSetup, res.Trace[0].Phase)
	assert.Equal(t, "system", res.Trace[0].Agent)
	assert.Equal(t, map[string]any{"agent": "module:watcher", "mode": "observer"}, res.Trace[0].Result)

	watcher := res.Trace[3]
	assert.Equal(t, PhaseFlow, watcher.Phase)
	assert.Equal(t, "module:watcher", watcher.Agent)
	assert.Equal(t, "INVALID_STATE", watcher.Outcome)
	assert.False(t, watcher.Succeeded())
	assert.Nil(t, watcher.Result)
}

func TestRun_FailedExpectationsAreReported(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_expectations
description: "every expectation here is wrong"
flow:
  - agent: user
    do: create_node
    args: { kind: task, content: "x" }
  - agent: claude
    do: propose
    args: { operation: create, target: "new:task", payload: "x" }
    expect:
      result: { status: approved }
  - agent: llama
    do: vote
    args: { proposal: 1, decision: approve }
    expect:
      error: NOT_FOUND
assertions:
  - type: proposal_state
    proposal: 1
    expect: { status: rejected }
  - type: node_state
    node: id-0001
    expect: { kind: task }
  - type: trace_count
    action: vote
    count: 2
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, res.Pass)
	require.Len(t, res.Errors, 6)
	assert.Contains(t, res.Errors[0], "flow[0] create_node: unexpected error")
	assert.Contains(t, res.Errors[0], "must submit a proposal")
	assert.Contains(t, res.Errors[1], "result.status: want approved, got pending")
	assert.Contains(t, res.Errors[2], "expected NOT_FOUND, got ok")
	assert.Contains(t, res.Errors[3], "status: want rejected, got pending")
	assert.Contains(t, res.Errors[4], "not found")
	assert.Contains(t, res.Errors[5], "2 occurrences of vote")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: broken_setup
description: "setup must succeed"
setup:
  - agent: user
    do: create_node
    args: { kind: task, content: "x" }
flow:
  - do: expire
assertions:
  - type: replay_consistent
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0] create_node")
	assert.Contains(t, err.Error(), "must submit a proposal")
}

func TestRun_MalformedArgsAbort(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_args
description: "vote without a proposal id"
flow:
  - do: vote
    args: { decision: approve }
assertions:
  - type: replay_consistent
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required arg "proposal"`)
}

func TestRun_InvalidPolicy(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_policy
description: "policy violates the schema"
policy: |
  strategy: {kind: "plurality"}
flow:
  - do: expire
assertions:
  - type: replay_consistent
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario policy")
}

func TestRun_DecayAndCleanup(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: decay_cleanup
description: "decay scales scores; cleanup drops old resolved proposals"
flow:
  - agent: claude
    do: propose
    args: { operation: create, target: "new:task", payload: "t" }
  - agent: llama
    do: vote
    args: { proposal: 1, decision: approve }
  - agent: user
    do: vote
    args: { proposal: 1, decision: approve }
  - do: decay
    args: { factor: 0.5 }
    expect:
      result: { decayed: 2 }
  - do: cleanup
    args: { older_than: "30d" }
    expect:
      result: { deleted: 0 }
  - do: advance
    args: { by: "31d" }
  - do: cleanup
    args: { older_than: "30d" }
    expect:
      result: { deleted: 1 }
  - do: execute
    args: { proposal: 1 }
    expect:
      error: NOT_FOUND
assertions:
  - type: reputation
    agent: llama
    expect: { score: 0.5, total_votes: 1, correct_votes: 1 }
  - type: trace_contains
    action: cleanup
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	requirePass(t, res)
}
