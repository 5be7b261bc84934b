package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/testutil"
	"github.com/roach88/stategraph/internal/value"
)

// createTestStore creates a store in a temp directory with a step clock
// and sequential ids.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithClock(testutil.NewStepClock(testutil.Epoch, time.Second).Now),
		WithIDGenerator(testutil.NewSequentialIDs("id").Next),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustNode(t *testing.T, s *Store, kind schema.NodeKind, content value.Value) schema.Node {
	t.Helper()
	n, err := s.CreateNode(context.Background(), schema.User, kind, content, nil)
	require.NoError(t, err)
	return n
}

func mustEdge(t *testing.T, s *Store, from, to string, kind schema.EdgeKind) schema.Edge {
	t.Helper()
	e, err := s.CreateEdge(context.Background(), schema.User, from, to, kind, nil)
	require.NoError(t, err)
	return e
}

func mustProposal(t *testing.T, s *Store, proposer schema.AgentID) schema.Proposal {
	t.Helper()
	p, err := s.CreateProposal(context.Background(), schema.Proposal{
		Proposer:  proposer,
		Operation: schema.OpCreate,
		Target:    schema.ProposalTarget{Kind: schema.TargetNode, NewKind: schema.NodeInsight},
		Payload:   value.Object{"x": value.Int(1)},
	})
	require.NoError(t, err)
	return p
}
