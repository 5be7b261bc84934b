package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "approve_and_execute.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "approve_and_execute", s.Name)
	assert.Len(t, s.Setup, 1)
	assert.Len(t, s.Flow, 10)
	assert.Equal(t, "claude", s.Flow[0].Agent)
	assert.Equal(t, "propose", s.Flow[0].Do)
	assert.Equal(t, "new:insight", s.Flow[0].Args["target"])
	require.NotNil(t, s.Flow[1].Expect)
	assert.Equal(t, "INVALID_STATE", s.Flow[1].Expect.Error)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: tiny
description: "one step"
flow:
  - do: expire
assertions:
  - type: replay_consistent
`), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Empty(t, s.Flow[0].Agent, "agent defaults at run time")
}

func TestParseScenario_Rejects(t *testing.T) {
	const flow = `
flow:
  - do: expire
`
	const assertions = `
assertions:
  - type: replay_consistent
`
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing name", "description: d" + flow + assertions, "name is required"},
		{"missing description", "name: n" + flow + assertions, "description is required"},
		{"empty flow", "name: n\ndescription: d\nflow: []" + assertions, "flow list is required"},
		{"no assertions", "name: n\ndescription: d" + flow, "assertions list is required"},
		{"unknown field", "name: n\ndescription: d\nassertion: []" + flow + assertions, "field assertion not found"},
		{"unknown action", "name: n\ndescription: d\nflow:\n  - do: merge" + assertions, `unknown action "merge"`},
		{"missing do", "name: n\ndescription: d\nflow:\n  - agent: user" + assertions, "do is required"},
		{
			"unknown error kind",
			"name: n\ndescription: d\nflow:\n  - do: expire\n    expect: {error: BOOM}" + assertions,
			`unknown error kind "BOOM"`,
		},
		{
			"error and result",
			"name: n\ndescription: d\nflow:\n  - do: expire\n    expect: {error: NOT_FOUND, result: {expired: 0}}" + assertions,
			"mutually exclusive",
		},
		{
			"expect in setup",
			"name: n\ndescription: d\nsetup:\n  - do: expire\n    expect: {result: {expired: 0}}" + flow + assertions,
			"only allowed in flow steps",
		},
		{
			"unknown assertion",
			"name: n\ndescription: d" + flow + "\nassertions:\n  - type: final_state",
			`unknown assertion type "final_state"`,
		},
		{
			"node_state needs one of absent or expect",
			"name: n\ndescription: d" + flow + "\nassertions:\n  - type: node_state\n    node: id-0001",
			"exactly one of absent or expect",
		},
		{
			"proposal_state without proposal",
			"name: n\ndescription: d" + flow + "\nassertions:\n  - type: proposal_state\n    expect: {status: pending}",
			"proposal is required",
		},
		{
			"trace_order without actions",
			"name: n\ndescription: d" + flow + "\nassertions:\n  - type: trace_order",
			"actions list is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestActions_Sorted(t *testing.T) {
	names := Actions()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "propose")
	assert.Contains(t, names, "set_capabilities")
	assert.Len(t, names, len(actions))
}
