// Package harness runs governance scenarios against a fresh store.
//
// A scenario is a YAML file that drives the graph and the governance layer
// through a sequence of steps, each attributed to an agent, and then checks
// the trace and the final state.
//
// # Scenario Format
//
//	name: approve_insight
//	description: "Two approvals create the proposed node"
//	policy: |
//	  strategy: kind: "unanimous"
//	setup:
//	  - agent: system
//	    do: create_node
//	    args: { kind: project, content: { name: "stategraph" } }
//	flow:
//	  - agent: claude
//	    do: propose
//	    args: { operation: create, target: "new:insight", payload: { text: "x" } }
//	  - agent: llama
//	    do: vote
//	    args: { proposal: 1, decision: approve }
//	    expect:
//	      result: { resolved: false }
//	  - agent: llama
//	    do: execute
//	    args: { proposal: 1 }
//	    expect:
//	      error: INVALID_STATE
//	assertions:
//	  - type: proposal_state
//	    proposal: 1
//	    expect: { status: pending }
//
// A step without an expect clause must succeed. An expect clause names
// either the fault kind the step must fail with, or a subset of the result
// fields it must produce.
//
// # Actions
//
//   - create_node, update_node, delete_node, create_edge, delete_edge
//   - propose, vote, withdraw, execute, expire, cleanup
//   - register, unregister, set_capabilities, decay, advance
//
// # Assertion Types
//
//   - trace_contains: a step with the action (and args subset) ran
//   - trace_order: steps ran in the given action order
//   - trace_count: an action ran exactly N times
//   - proposal_state: a proposal's fields match
//   - node_state: a node's fields match, or the node is absent
//   - reputation: an agent's track record matches
//   - event_count: the event log holds N events for an agent and operation
//   - replay_consistent: replaying the event log reproduces the graph
//
// # Deterministic Testing
//
// Every run uses an in-memory database, a step clock starting at
// testutil.Epoch and sequential ids ("id-0001", ...), so traces are
// identical across runs and can be compared against golden files.
package harness
