package metrics

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stategraph/internal/governance"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/store"
	"github.com/roach88/stategraph/internal/value"
)

func TestCollector_CountsStoreAndGovernance(t *testing.T) {
	ctx := context.Background()
	c := New()

	st, err := store.Open(filepath.Join(t.TempDir(), "m.db"), store.WithEventHook(c.EventHook()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	gov, err := governance.New(st, governance.DefaultSettings(), governance.WithRecorder(c))
	require.NoError(t, err)

	n, err := st.CreateNode(ctx, schema.System, schema.NodeProject, value.String("stategraph"), nil)
	require.NoError(t, err)
	_, err = st.UpdateNode(ctx, schema.System, n.ID, value.String("stategraph v2"), nil)
	require.NoError(t, err)

	p, err := gov.Proposals.Submit(ctx, governance.Draft{
		Proposer:  schema.Claude,
		Operation: schema.OpDelete,
		Target:    schema.ProposalTarget{Kind: schema.TargetNode, ID: n.ID},
	})
	require.NoError(t, err)
	for _, voter := range []schema.AgentID{schema.User, schema.Llama} {
		_, err := gov.Voting.CastVote(ctx, p.ID, voter, schema.Approve, "")
		require.NoError(t, err)
	}
	_, err = gov.Executor.Execute(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(c.eventsAppended.WithLabelValues("create", "node")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.eventsAppended.WithLabelValues("update", "node")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.eventsAppended.WithLabelValues("delete", "node")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.proposalsSubmitted.WithLabelValues("delete")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.proposalsResolved.WithLabelValues("approved")))
	assert.Equal(t, 2.0, promtest.ToFloat64(c.votesCast.WithLabelValues("approve")))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	c.ObserveStats(stats)
	assert.Equal(t, 3.0, promtest.ToFloat64(c.entities.WithLabelValues("events")))
	assert.Equal(t, 0.0, promtest.ToFloat64(c.entities.WithLabelValues("nodes")))
}

func TestCollector_WriteText(t *testing.T) {
	c := New()
	c.VoteCast(schema.Reject)
	c.ProposalResolved(schema.StatusExpired)

	var buf bytes.Buffer
	require.NoError(t, c.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, "# TYPE stategraph_votes_cast_total counter")
	assert.Contains(t, out, `stategraph_votes_cast_total{decision="reject"} 1`)
	assert.Contains(t, out, `stategraph_proposals_resolved_total{status="expired"} 1`)
}

var _ governance.Recorder = (*Collector)(nil)
