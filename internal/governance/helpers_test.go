package governance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/store"
	"github.com/roach88/stategraph/internal/testutil"
	"github.com/roach88/stategraph/internal/value"
)

type testEnv struct {
	gov   *Governance
	store *store.Store
	clock *testutil.StepClock
}

func newTestEnv(t *testing.T, settings Settings) testEnv {
	t.Helper()
	clock := testutil.NewStepClock(testutil.Epoch, time.Second)
	st, err := store.Open(filepath.Join(t.TempDir(), "gov.db"),
		store.WithClock(clock.Now),
		store.WithIDGenerator(testutil.NewSequentialIDs("id").Next),
	)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	gov, err := New(st, settings)
	require.NoError(t, err)
	return testEnv{gov: gov, store: st, clock: clock}
}

func (e testEnv) propose(t *testing.T, proposer schema.AgentID) schema.Proposal {
	t.Helper()
	p, err := e.gov.Proposals.Submit(context.Background(), Draft{
		Proposer:  proposer,
		Operation: schema.OpCreate,
		Target:    schema.ProposalTarget{Kind: schema.TargetNode, NewKind: schema.NodeInsight},
		Payload:   value.Object{"text": value.String("cache invalidation is hard")},
		Rationale: "worth remembering",
	})
	require.NoError(t, err)
	return p
}

type countingRecorder struct {
	submitted int
	resolved  map[schema.ProposalStatus]int
	votes     int
}

func (r *countingRecorder) ProposalSubmitted(schema.Operation) { r.submitted++ }

func (r *countingRecorder) ProposalResolved(s schema.ProposalStatus) {
	if r.resolved == nil {
		r.resolved = map[schema.ProposalStatus]int{}
	}
	r.resolved[s]++
}

func (r *countingRecorder) VoteCast(schema.VoteDecision) { r.votes++ }
