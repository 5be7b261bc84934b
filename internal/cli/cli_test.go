package cli

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/store"
)

func TestNode_DirectWriteReadUpdateDelete(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "--agent", "system", "node", "create", "project", `{"name":"stategraph"}`, "--meta", `{"owner":"ops"}`)
	assert.Equal(t, strings.Join([]string{
		"id-0001 [project]",
		`  content:  {"name":"stategraph"}`,
		`  metadata: {"owner":"ops"}`,
		"  created:  2026-01-01 00:00:00",
		"  updated:  2026-01-01 00:00:00",
		"",
	}, "\n"), out)

	var got nodeView
	env.runJSON(t, &got, "node", "get", "id-0001")
	assert.Equal(t, map[string]any{"name": "stategraph"}, got.Content)
	assert.Equal(t, map[string]any{"owner": "ops"}, got.Metadata)

	env.mustRun(t, "--agent", "system", "node", "update", "id-0001", `{"name":"stategraph","stage":"beta"}`)

	history := env.mustRun(t, "history", "id-0001")
	assert.Contains(t, history, "#1 CREATE node:id-0001 by system")
	assert.Contains(t, history, "#2 UPDATE node:id-0001 by system")
	assert.Contains(t, history, "changed: stage")

	out = env.mustRun(t, "--agent", "system", "node", "delete", "id-0001")
	assert.Equal(t, "Deleted node id-0001\n", out)

	e, code := env.errorResponse(t, "node", "get", "id-0001")
	assert.Equal(t, CodeNotFound, e.Code)
	assert.Equal(t, ExitFailure, code)

	// History survives deletion.
	var events eventList
	env.runJSON(t, &events, "history", "id-0001")
	require.Len(t, events.Events, 3)
	assert.Equal(t, schema.OpDelete, events.Events[2].Operation)
}

func TestNode_PlainTextContent(t *testing.T) {
	env := newCLIEnv(t)

	var got nodeView
	env.runJSON(t, &got, "--agent", "system", "node", "create", "task", "buy milk")
	assert.Equal(t, "buy milk", got.Content)

	env.runJSON(t, &got, "--agent", "system", "node", "create", "task", "42")
	assert.Equal(t, float64(42), got.Content, "JSON text is parsed")
}

func TestNode_ProposalAndObserverModesRefused(t *testing.T) {
	env := newCLIEnv(t)

	res := env.run(t, "node", "create", "task", "x")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
	assert.True(t, IsReported(res.err))
	assert.Contains(t, res.stderr, "Error [E_INVALID_STATE]")
	assert.Contains(t, res.stderr, "must submit a proposal")

	env.mustRun(t, "agent", "register", "watcher", "--mode", "observer")
	e, _ := env.errorResponse(t, "--agent", "module:watcher", "node", "create", "task", "x")
	assert.Equal(t, CodeInvalidState, e.Code)
	assert.Contains(t, e.Message, "observer")
}

func TestEdgesAndNeighbors(t *testing.T) {
	env := newCLIEnv(t)
	for _, content := range []string{"a", "b", "c"} {
		env.mustRun(t, "--agent", "system", "node", "create", "task", content)
	}

	out := env.mustRun(t, "--agent", "system", "edge", "create", "id-0001", "id-0002", "--kind", "blocks", "--weight", "0.5")
	assert.Equal(t, "id-0004  id-0001 -[blocks]-> id-0002 (weight 0.5)\n", out)
	env.mustRun(t, "--agent", "system", "edge", "create", "id-0002", "id-0003", "--kind", "part-of")

	var edges []schema.Edge
	env.runJSON(t, &edges, "edge", "list", "--node", "id-0002")
	assert.Len(t, edges, 2)

	var one, two nodeList
	env.runJSON(t, &one, "neighbors", "id-0001")
	env.runJSON(t, &two, "neighbors", "id-0001", "--depth", "2")
	assert.Len(t, one, 1)
	assert.Len(t, two, 2)

	e, _ := env.errorResponse(t, "--agent", "system", "edge", "create", "id-0001", "missing")
	assert.Equal(t, CodeNotFound, e.Code)

	e, _ = env.errorResponse(t, "--agent", "system", "edge", "create", "id-0001", "id-0002", "--kind", "likes")
	assert.Equal(t, CodeInvalidInput, e.Code)

	out = env.mustRun(t, "--agent", "system", "edge", "delete", "id-0004")
	assert.Equal(t, "Deleted edge id-0004\n", out)
}

func TestEdgeCreate_DefaultKind(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "--agent", "system", "node", "create", "task", "a")
	env.mustRun(t, "--agent", "system", "node", "create", "task", "b")

	var e schema.Edge
	env.runJSON(t, &e, "--agent", "system", "edge", "create", "id-0001", "id-0002")
	assert.Equal(t, schema.EdgeRelatedTo, e.Kind)

	var edges []schema.Edge
	env.runJSON(t, &edges, "edge", "list")
	assert.Len(t, edges, 1, "list without --kind is unfiltered")
	env.runJSON(t, &edges, "edge", "list", "--kind", "blocks")
	assert.Empty(t, edges)

	resp, _ := env.errorResponse(t, "--agent", "system", "edge", "create", "id-0001", "missing")
	assert.Equal(t, CodeNotFound, resp.Code)
}

func TestGovernanceFlow_Golden(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun(t, "--agent", "claude", "proposal", "create", "create", "new:insight", `{"text":"cache reads"}`,
		"--rationale", "faster lookups")

	var b strings.Builder
	b.WriteString(env.mustRun(t, "proposal", "list"))
	b.WriteString(env.mustRun(t, "--agent", "llama", "proposal", "approve", "1", "--reason", "agreed"))
	b.WriteString(env.mustRun(t, "--agent", "user", "proposal", "approve", "1"))
	b.WriteString(env.mustRun(t, "proposal", "votes", "1"))
	b.WriteString(env.mustRun(t, "agent", "leaderboard"))
	assertGolden(t, "governance_flow", b.String())

	var exec executionView
	env.runJSON(t, &exec, "proposal", "execute", "1")
	require.NotNil(t, exec.Node)
	assert.Equal(t, schema.NodeInsight, exec.Node.Kind)
	assert.Equal(t, map[string]any{"text": "cache reads"}, exec.Node.Content)
	assert.NotNil(t, exec.Proposal.ExecutedAt)

	var events eventList
	env.runJSON(t, &events, "events", "--by", "claude")
	require.Len(t, events.Events, 1, "execution is attributed to the proposer")
	assert.Equal(t, schema.OpCreate, events.Events[0].Operation)

	e, code := env.errorResponse(t, "proposal", "execute", "1")
	assert.Equal(t, CodeInvalidState, e.Code)
	assert.Equal(t, ExitFailure, code)

	e, _ = env.errorResponse(t, "--agent", "system", "proposal", "reject", "1")
	assert.Equal(t, CodeInvalidState, e.Code)
	assert.Contains(t, e.Message, "already resolved")
}

func TestProposal_VoteWithExecute(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "--agent", "system", "node", "create", "task", `{"title":"draft"}`)
	env.mustRun(t, "--agent", "claude", "proposal", "create", "update", "node:id-0001", `{"title":"final"}`)

	env.mustRun(t, "--agent", "llama", "proposal", "vote", "1", "approve")
	out := env.mustRun(t, "--agent", "user", "proposal", "vote", "1", "approve", "--execute")
	assert.Contains(t, out, "Proposal #1 approved")
	assert.Contains(t, out, "Executed proposal #1 (update node:id-0001)")

	var got nodeView
	env.runJSON(t, &got, "node", "get", "id-0001")
	assert.Equal(t, map[string]any{"title": "final"}, got.Content)
}

func TestProposal_RejectedAndWithdrawn(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "--agent", "claude", "proposal", "create", "create", "new:task", `"one"`)
	env.mustRun(t, "--agent", "claude", "proposal", "create", "create", "new:task", `"two"`)

	env.mustRun(t, "--agent", "llama", "proposal", "reject", "1")
	out := env.mustRun(t, "--agent", "user", "proposal", "reject", "1", "--reason", "duplicate")
	assert.Contains(t, out, "Proposal #1 rejected")

	e, code := env.errorResponse(t, "--agent", "llama", "proposal", "withdraw", "2")
	assert.Equal(t, CodeInvalidState, e.Code)
	assert.Equal(t, ExitFailure, code)

	var p proposalView
	env.runJSON(t, &p, "--agent", "claude", "proposal", "withdraw", "2")
	assert.Equal(t, schema.StatusWithdrawn, p.Status)

	var pending proposalList
	env.runJSON(t, &pending, "proposal", "list")
	assert.Empty(t, pending)

	var all proposalList
	env.runJSON(t, &all, "proposal", "list", "--all")
	assert.Len(t, all, 2)

	var rejected proposalList
	env.runJSON(t, &rejected, "proposal", "list", "--status", "rejected")
	require.Len(t, rejected, 1)
	assert.Equal(t, int64(1), rejected[0].ID)

	var lb leaderboardView
	env.runJSON(t, &lb, "agent", "leaderboard")
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, 1.0, lb.Entries[0].Score)
}

func TestProposal_InputErrors(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"bad operation", []string{"proposal", "create", "merge", "new:task"}, CodeInvalidInput},
		{"bad target", []string{"proposal", "create", "create", "task"}, CodeInvalidInput},
		{"bad id", []string{"proposal", "show", "abc"}, CodeInvalidInput},
		{"missing proposal", []string{"proposal", "show", "99"}, CodeNotFound},
		{"bad decision", []string{"proposal", "vote", "1", "maybe"}, CodeInvalidInput},
		{"bad duration", []string{"proposal", "cleanup", "--older-than", "soon"}, CodeInvalidInput},
		{"status and all", []string{"proposal", "list", "--all", "--status", "pending"}, CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := env.errorResponse(t, tt.args...)
			assert.Equal(t, tt.code, e.Code, e.Message)
		})
	}
}

func TestProposal_ExpireAndCleanup(t *testing.T) {
	env := newCLIEnv(t)
	policy := writePolicy(t, `proposal_expiry: "1d"`+"\n")

	env.mustRun(t, "--agent", "claude", "proposal", "create", "create", "new:task", `"stale"`)
	env.clock.Advance(48 * time.Hour)

	var candidates proposalList
	env.runJSON(t, &candidates, "--policy", policy, "proposal", "expire", "--dry-run")
	assert.Len(t, candidates, 1)

	out := env.mustRun(t, "--policy", policy, "proposal", "expire")
	assert.Equal(t, "Expired 1 proposals\n", out)
	out = env.mustRun(t, "--policy", policy, "proposal", "expire")
	assert.Equal(t, "Expired 0 proposals\n", out)

	env.clock.Advance(48 * time.Hour)
	out = env.mustRun(t, "proposal", "cleanup", "--older-than", "1d")
	assert.Equal(t, "Deleted 1 resolved proposals\n", out)
}

func TestAgentList_Golden(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "agent", "register", "watcher", "--mode", "observer", "--description", "file watcher")
	env.mustRun(t, "agent", "register", "indexer", "--mode", "direct")
	env.mustRun(t, "agent", "unregister", "indexer")

	assertGolden(t, "agent_list", env.mustRun(t, "agent", "list", "--all"))
}

func TestAgentRegister_DefaultMode(t *testing.T) {
	env := newCLIEnv(t)

	var view agentView
	env.runJSON(t, &view, "agent", "register", "summarizer")
	assert.Equal(t, schema.ModeProposal, view.Capabilities.Mode)
	assert.True(t, view.Capabilities.CanVote)

	env.runJSON(t, &view, "agent", "set", "module:summarizer", "--weight", "3")
	assert.Equal(t, schema.ModeProposal, view.Capabilities.Mode, "set without --mode keeps the mode")
	assert.Equal(t, 3.0, view.Capabilities.VoteWeight)
}

func TestAgent_SetShowAndReputationCommands(t *testing.T) {
	env := newCLIEnv(t)

	var view agentView
	env.runJSON(t, &view, "agent", "set", "claude", "--mode", "direct", "--weight", "2")
	assert.Equal(t, schema.ModeDirect, view.Capabilities.Mode)
	assert.Equal(t, 2.0, view.Capabilities.VoteWeight)
	assert.True(t, view.Capabilities.CanVote)

	env.runJSON(t, &view, "agent", "show", "claude")
	assert.Equal(t, schema.ModeDirect, view.Capabilities.Mode)

	e, _ := env.errorResponse(t, "agent", "set", "claude")
	assert.Equal(t, CodeInvalidInput, e.Code)
	e, _ = env.errorResponse(t, "agent", "set", "claude", "--weight", "-1")
	assert.Equal(t, CodeInvalidInput, e.Code)
	e, _ = env.errorResponse(t, "agent", "set", "module:ghost", "--mode", "direct")
	assert.Equal(t, CodeNotFound, e.Code)

	// Earn some reputation, then decay and reset it.
	env.mustRun(t, "--agent", "llama", "proposal", "create", "create", "new:task", `"x"`)
	env.mustRun(t, "--agent", "claude", "proposal", "approve", "1")
	env.mustRun(t, "--agent", "user", "proposal", "approve", "1")

	out := env.mustRun(t, "agent", "decay", "0.5")
	assert.Equal(t, "Decayed 2 reputation records by 0.5\n", out)
	env.runJSON(t, &view, "agent", "show", "user")
	assert.Equal(t, 0.5, view.Reputation.Score)
	assert.Equal(t, int64(1), view.Reputation.TotalVotes)

	e, _ = env.errorResponse(t, "agent", "decay", "1.5")
	assert.Equal(t, CodeInvalidInput, e.Code)

	env.mustRun(t, "agent", "reset", "user")
	env.runJSON(t, &view, "agent", "show", "user")
	assert.Zero(t, view.Reputation.Score)

	out = env.mustRun(t, "agent", "reset", "--all")
	assert.Equal(t, "Reset 2 reputation records\n", out)
}

func TestPolicy_OverridesCapabilitiesAndDisablesRuntimeChanges(t *testing.T) {
	env := newCLIEnv(t)
	policy := writePolicy(t, `
allow_runtime_changes: false
capabilities: {
	user: {mode: "direct"}
}
`)

	var n nodeView
	env.runJSON(t, &n, "--policy", policy, "node", "create", "context", "allowed by policy")
	assert.Equal(t, schema.NodeContext, n.Kind)

	e, _ := env.errorResponse(t, "--policy", policy, "agent", "set", "llama", "--mode", "direct")
	assert.Equal(t, CodeInvalidState, e.Code)

	e, code := env.errorResponse(t, "--policy", filepath.Join(t.TempDir(), "missing.cue"), "node", "list")
	assert.Equal(t, CodeInvalidInput, e.Code)
	assert.Equal(t, ExitCommandError, code)
}

func TestExportImport_RoundTrip(t *testing.T) {
	src := newCLIEnv(t)
	src.mustRun(t, "--agent", "system", "node", "create", "project", `{"name":"stategraph"}`)
	src.mustRun(t, "--agent", "system", "node", "create", "task", `{"title":"ship"}`)
	src.mustRun(t, "--agent", "system", "edge", "create", "id-0002", "id-0001", "--kind", "part_of")

	dir := t.TempDir()
	for _, name := range []string{"graph.json", "graph.yaml", "graph.ndjson"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			out := src.mustRun(t, "export", "-o", path)
			assert.Contains(t, out, "Exported 2 nodes")

			dst := newCLIEnv(t)
			e, _ := dst.errorResponse(t, "import", path)
			assert.Equal(t, CodeInvalidState, e.Code, "user is not direct")

			var res importView
			dst.runJSON(t, &res, "--agent", "system", "import", path)
			assert.Equal(t, 2, res.Nodes)
			if name == "graph.ndjson" {
				assert.Zero(t, res.Edges)
			} else {
				assert.Equal(t, 1, res.Edges)
			}

			dst.runJSON(t, &res, "--agent", "system", "import", path, "--skip-existing")
			assert.Zero(t, res.Nodes)
			assert.Zero(t, res.Edges)
			if name == "graph.ndjson" {
				assert.Equal(t, 2, res.Skipped)
			} else {
				assert.Equal(t, 3, res.Skipped)
			}

			var got nodeView
			dst.runJSON(t, &got, "node", "get", "id-0001")
			assert.Equal(t, map[string]any{"name": "stategraph"}, got.Content)

			out = dst.mustRun(t, "db", "verify")
			assert.Contains(t, out, "OK:")
		})
	}
}

func TestExport_ToStdout(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "--agent", "system", "node", "create", "task", `"t"`)

	out := env.mustRun(t, "export", "--doc", "ndjson")
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, `"id":"id-0001"`)

	e, _ := env.errorResponse(t, "export", "--doc", "xml")
	assert.Equal(t, CodeInvalidInput, e.Code)
}

func TestDB_StatsVerifyAndMetrics(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "--agent", "system", "node", "create", "task", `"a"`)
	env.mustRun(t, "--agent", "claude", "proposal", "create", "delete", "node:id-0001")

	var stats store.Stats
	env.runJSON(t, &stats, "db", "stats")
	assert.Equal(t, int64(1), stats.Nodes)
	assert.Equal(t, int64(1), stats.Events)
	assert.Equal(t, int64(1), stats.PendingProposals)

	var report verifyView
	env.runJSON(t, &report, "db", "verify")
	assert.True(t, report.OK)
	assert.Equal(t, 1, report.Events)

	out := env.mustRun(t, "metrics")
	assert.Contains(t, out, "# TYPE stategraph_entities gauge")
	assert.Contains(t, out, `stategraph_entities{kind="nodes"} 1`)
	assert.Contains(t, out, `stategraph_entities{kind="pending_proposals"} 1`)
}
