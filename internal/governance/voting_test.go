package governance

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

func TestCastVote_QuorumApprovesAndCreditsVoters(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultSettings())
	p := env.propose(t, schema.Claude)

	res, err := env.gov.Voting.CastVote(ctx, p.ID, schema.User, schema.Approve, "agreed")
	require.NoError(t, err)
	assert.Equal(t, Undecided, res.Outcome)
	assert.False(t, res.Resolved)
	assert.Equal(t, schema.StatusPending, res.Proposal.Status)

	res, err = env.gov.Voting.CastVote(ctx, p.ID, schema.Llama, schema.Approve, "")
	require.NoError(t, err)
	assert.Equal(t, Approved, res.Outcome)
	assert.True(t, res.Resolved)
	assert.Equal(t, schema.StatusApproved, res.Proposal.Status)
	assert.NotNil(t, res.Proposal.ResolvedAt)
	assert.Equal(t, 2, res.Tally.Approvals)
	assert.InDelta(t, 2.0, res.Tally.ApproveWeight, 1e-9)

	for _, voter := range []schema.AgentID{schema.User, schema.Llama} {
		r, ok, err := env.gov.Reputation.Get(ctx, voter)
		require.NoError(t, err)
		require.True(t, ok, voter)
		assert.Equal(t, int64(1), r.TotalVotes)
		assert.Equal(t, int64(1), r.CorrectVotes)
		assert.InDelta(t, 1.0, r.Score, 1e-9)
	}

	_, err = env.gov.Voting.CastVote(ctx, p.ID, schema.System, schema.Reject, "")
	assert.True(t, fault.IsInvalidState(err), "vote on resolved proposal: %v", err)
}

func TestCastVote_IncorrectVoterPenalizedAndFloored(t *testing.T) {
	ctx := context.Background()
	settings := DefaultSettings()
	settings.Strategy = StrategyConfig{Kind: "simple_majority", Quorum: 3}
	env := newTestEnv(t, settings)
	p := env.propose(t, schema.Claude)

	_, err := env.gov.Voting.CastVote(ctx, p.ID, schema.User, schema.Reject, "")
	require.NoError(t, err)
	_, err = env.gov.Voting.CastVote(ctx, p.ID, schema.Llama, schema.Approve, "")
	require.NoError(t, err)
	_, err = env.gov.Voting.CastVote(ctx, p.ID, schema.Claude, schema.Abstain, "")
	require.NoError(t, err)
	res, err := env.gov.Voting.CastVote(ctx, p.ID, schema.System, schema.Approve, "")
	require.NoError(t, err)
	require.True(t, res.Resolved)
	assert.Equal(t, 1, res.Tally.Abstentions)

	user, _, err := env.gov.Reputation.Get(ctx, schema.User)
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.TotalVotes)
	assert.Equal(t, int64(0), user.CorrectVotes)
	assert.Equal(t, 0.0, user.Score)

	_, ok, err := env.gov.Reputation.Get(ctx, schema.Claude)
	require.NoError(t, err)
	assert.False(t, ok, "abstentions do not touch reputation")
}

func TestCastVote_ReplacesEarlierVote(t *testing.T) {
	ctx := context.Background()
	settings := DefaultSettings()
	settings.Strategy = StrategyConfig{Kind: "simple_majority", Quorum: 3}
	env := newTestEnv(t, settings)
	p := env.propose(t, schema.Claude)

	first, err := env.gov.Voting.CastVote(ctx, p.ID, schema.User, schema.Approve, "")
	require.NoError(t, err)
	assert.False(t, first.Replaced)

	second, err := env.gov.Voting.CastVote(ctx, p.ID, schema.User, schema.Reject, "changed my mind")
	require.NoError(t, err)
	assert.True(t, second.Replaced)
	assert.Equal(t, first.Vote.Seq, second.Vote.Seq)
	assert.Equal(t, 0, second.Tally.Approvals)
	assert.Equal(t, 1, second.Tally.Rejections)

	votes, err := env.gov.Voting.Votes(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, schema.Reject, votes[0].Decision)
	assert.Equal(t, "changed my mind", votes[0].Reason)
}

func TestCastVote_ConcurrentVotersResolveExactlyOnce(t *testing.T) {
	ctx := context.Background()
	rec := &countingRecorder{}
	clockEnv := newTestEnv(t, DefaultSettings())
	gov, err := New(clockEnv.store, DefaultSettings(), WithRecorder(rec))
	require.NoError(t, err)

	var voters []schema.AgentID
	for i := 0; i < 8; i++ {
		m, err := gov.Registry.RegisterModule(ctx, fmt.Sprintf("voter%d", i), schema.ModeProposal, "")
		require.NoError(t, err)
		voters = append(voters, m.Agent())
	}
	p, err := gov.Proposals.Submit(ctx, Draft{
		Proposer:  schema.Claude,
		Operation: schema.OpCreate,
		Target:    schema.ProposalTarget{Kind: schema.TargetNode, NewKind: schema.NodeContext},
		Payload:   nil,
	})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		resolved int
		late     int
	)
	for _, voter := range voters {
		wg.Add(1)
		go func(voter schema.AgentID) {
			defer wg.Done()
			res, err := gov.Voting.CastVote(ctx, p.ID, voter, schema.Approve, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				assert.True(t, fault.IsInvalidState(err), "unexpected error: %v", err)
				late++
			case res.Resolved:
				resolved++
			}
		}(voter)
	}
	wg.Wait()

	assert.Equal(t, 1, resolved)
	assert.Equal(t, 6, late)
	assert.Equal(t, 1, rec.resolved[schema.StatusApproved])

	got, ok, err := gov.Proposals.Get(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, schema.StatusApproved, got.Status)

	var credited int64
	for _, voter := range voters {
		r, ok, err := gov.Reputation.Get(ctx, voter)
		require.NoError(t, err)
		if ok {
			credited += r.CorrectVotes
		}
	}
	assert.Equal(t, int64(2), credited)
}

func TestCastVote_CapabilityChecks(t *testing.T) {
	ctx := context.Background()
	settings := DefaultSettings()
	settings.AllowSelfVote = false
	settings.Capabilities = []schema.Capabilities{
		{Agent: schema.Llama, Mode: schema.ModeObserver},
	}
	env := newTestEnv(t, settings)
	p := env.propose(t, schema.Claude)

	_, err := env.gov.Voting.CastVote(ctx, p.ID, schema.Claude, schema.Approve, "")
	assert.True(t, fault.IsInvalidState(err))
	assert.ErrorContains(t, err, "own proposal")

	_, err = env.gov.Voting.CastVote(ctx, p.ID, schema.Llama, schema.Approve, "")
	assert.True(t, fault.IsInvalidState(err))
	assert.ErrorContains(t, err, "lacks vote capability")

	_, err = env.gov.Voting.CastVote(ctx, p.ID, schema.ModuleAgent("ghost"), schema.Approve, "")
	assert.True(t, fault.IsInvalidState(err), "unregistered module is a non-voting observer: %v", err)

	_, err = env.gov.Voting.CastVote(ctx, p.ID, schema.User, "maybe", "")
	assert.True(t, fault.IsInvalidInput(err))

	_, err = env.gov.Voting.CastVote(ctx, 999, schema.User, schema.Approve, "")
	assert.True(t, fault.IsNotFound(err))
}

func TestCastVote_WeightsAndScaling(t *testing.T) {
	ctx := context.Background()
	settings := DefaultSettings()
	settings.Strategy = StrategyConfig{Kind: "weighted_quorum", Threshold: 3}
	settings.Scaling = ReputationScaling{Enabled: true, Bonus: 1, MinVotes: 1}
	env := newTestEnv(t, settings)
	require.NoError(t, env.gov.Capabilities.Set(ctx, schema.Capabilities{
		Agent: schema.User, Mode: schema.ModeDirect, CanVote: true, VoteWeight: 2,
	}))

	first := env.propose(t, schema.Claude)
	res, err := env.gov.Voting.CastVote(ctx, first.ID, schema.User, schema.Approve, "")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Tally.ApproveWeight, 1e-9, "no scaling before min votes")
	res, err = env.gov.Voting.CastVote(ctx, first.ID, schema.Llama, schema.Approve, "")
	require.NoError(t, err)
	require.True(t, res.Resolved)

	second := env.propose(t, schema.Claude)
	res, err = env.gov.Voting.CastVote(ctx, second.ID, schema.User, schema.Approve, "")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, res.Tally.ApproveWeight, 1e-9, "accuracy 1 doubles weight with bonus 1")
	assert.True(t, res.Resolved)
}

func TestTally_UnknownProposal(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	_, err := env.gov.Voting.Tally(context.Background(), 42)
	assert.True(t, fault.IsNotFound(err))
	_, err = env.gov.Voting.Votes(context.Background(), 42)
	assert.True(t, fault.IsNotFound(err))
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	var k keyedMutex
	unlock := k.lock(1)
	unlock2 := k.lock(2)
	assert.Len(t, k.locks, 2)
	unlock()
	unlock2()
	assert.Empty(t, k.locks)
}
