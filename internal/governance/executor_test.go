package governance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/value"
)

func approve(t *testing.T, env testEnv, id int64) {
	t.Helper()
	ctx := context.Background()
	for _, a := range []schema.AgentID{schema.User, schema.Llama} {
		_, err := env.gov.Voting.CastVote(ctx, id, a, schema.Approve, "")
		require.NoError(t, err)
	}
}

func TestExecute_CreateAttributedToProposer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())
	p := env.propose(t, schema.Claude)

	_, err := env.gov.Executor.Execute(ctx, p.ID)
	assert.True(t, fault.IsInvalidState(err), "pending proposals cannot run")

	approve(t, env, p.ID)
	res, err := env.gov.Executor.Execute(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Node)
	assert.Equal(t, schema.NodeInsight, res.Node.Kind)
	assert.NotNil(t, res.Proposal.ExecutedAt)

	events, err := env.store.History(ctx, res.Node.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, schema.Claude, events[0].Agent)

	_, err = env.gov.Executor.Execute(ctx, p.ID)
	assert.True(t, fault.IsInvalidState(err))
	assert.ErrorContains(t, err, "already executed")
}

func TestExecute_LinkAndUnlink(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())
	a, err := env.store.CreateNode(ctx, schema.User, schema.NodeContext, value.String("a"), nil)
	require.NoError(t, err)
	b, err := env.store.CreateNode(ctx, schema.User, schema.NodeContext, value.String("b"), nil)
	require.NoError(t, err)

	link, err := env.gov.Proposals.Submit(ctx, Draft{
		Proposer:  schema.Claude,
		Operation: schema.OpLink,
		Target:    schema.ProposalTarget{Kind: schema.TargetNode, ID: a.ID},
		Payload:   value.Object{"to": value.String(b.ID), "kind": value.String("enables"), "weight": value.Float(0.75)},
	})
	require.NoError(t, err)
	approve(t, env, link.ID)

	res, err := env.gov.Executor.Execute(ctx, link.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Edge)
	assert.Equal(t, a.ID, res.Edge.From)
	assert.Equal(t, b.ID, res.Edge.To)
	require.NotNil(t, res.Edge.Weight)
	assert.Equal(t, 0.75, *res.Edge.Weight)

	unlink, err := env.gov.Proposals.Submit(ctx, Draft{
		Proposer:  schema.Claude,
		Operation: schema.OpUnlink,
		Target:    schema.ProposalTarget{Kind: schema.TargetEdge, ID: res.Edge.ID},
	})
	require.NoError(t, err)
	approve(t, env, unlink.ID)
	_, err = env.gov.Executor.Execute(ctx, unlink.ID)
	require.NoError(t, err)

	_, ok, err := env.store.GetEdge(ctx, res.Edge.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecute_FailureReleasesClaim(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())
	p, err := env.gov.Proposals.Submit(ctx, Draft{
		Proposer:  schema.Claude,
		Operation: schema.OpUpdate,
		Target:    schema.ProposalTarget{Kind: schema.TargetNode, ID: "missing"},
		Payload:   value.String("new text"),
	})
	require.NoError(t, err)
	approve(t, env, p.ID)

	_, err = env.gov.Executor.Execute(ctx, p.ID)
	assert.True(t, fault.IsNotFound(err))

	got, _, err := env.gov.Proposals.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ExecutedAt, "claim released after failure")
}

func TestParseLinkPayload(t *testing.T) {
	got, err := ParseLinkPayload(value.Object{"to": value.String("n2"), "kind": value.String("related-to"), "weight": value.Int(2)})
	require.NoError(t, err)
	assert.Equal(t, "n2", got.To)
	require.NotNil(t, got.Weight)
	assert.Equal(t, 2.0, *got.Weight)

	_, err = ParseLinkPayload(value.String("n2"))
	assert.Error(t, err)
	_, err = ParseLinkPayload(value.Object{"to": value.String("n2"), "kind": value.String("enables"), "weight": value.String("heavy")})
	assert.Error(t, err)
}
