package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/value"
)

// GraphState is the node and edge set reconstructed from an event log.
type GraphState struct {
	Nodes   map[string]schema.Node
	Edges   map[string]schema.Edge
	LastSeq int64
}

// Replay rebuilds graph state by applying each event's after-snapshot in
// order. Events must be in ascending seq order; a gap or reordering is an
// error because the result would not match the store.
func Replay(events []schema.Event) (GraphState, error) {
	state := GraphState{
		Nodes: map[string]schema.Node{},
		Edges: map[string]schema.Edge{},
	}
	for _, ev := range events {
		if ev.Seq <= state.LastSeq {
			return GraphState{}, fmt.Errorf("replay: event %d out of order after %d", ev.Seq, state.LastSeq)
		}
		state.LastSeq = ev.Seq

		switch ev.Target.Kind {
		case schema.TargetNode:
			if ev.After == nil {
				delete(state.Nodes, ev.Target.ID)
				continue
			}
			n, err := schema.NodeFromSnapshot(ev.After)
			if err != nil {
				return GraphState{}, fmt.Errorf("replay: event %d: %w", ev.Seq, err)
			}
			state.Nodes[n.ID] = n
		case schema.TargetEdge:
			if ev.After == nil {
				delete(state.Edges, ev.Target.ID)
				continue
			}
			e, err := schema.EdgeFromSnapshot(ev.After)
			if err != nil {
				return GraphState{}, fmt.Errorf("replay: event %d: %w", ev.Seq, err)
			}
			state.Edges[e.ID] = e
		default:
			return GraphState{}, fmt.Errorf("replay: event %d: unknown target kind %q", ev.Seq, ev.Target.Kind)
		}
	}
	return state, nil
}

// VerifyReport lists the differences between the live tables and the state
// replayed from the event log. An empty report means they agree.
type VerifyReport struct {
	Events       int      `json:"events" yaml:"events"`
	MissingNodes []string `json:"missing_nodes,omitempty" yaml:"missing_nodes,omitempty"`
	ExtraNodes   []string `json:"extra_nodes,omitempty" yaml:"extra_nodes,omitempty"`
	ChangedNodes []string `json:"changed_nodes,omitempty" yaml:"changed_nodes,omitempty"`
	MissingEdges []string `json:"missing_edges,omitempty" yaml:"missing_edges,omitempty"`
	ExtraEdges   []string `json:"extra_edges,omitempty" yaml:"extra_edges,omitempty"`
}

// OK reports whether the log and the tables agree.
func (r VerifyReport) OK() bool {
	return len(r.MissingNodes) == 0 && len(r.ExtraNodes) == 0 && len(r.ChangedNodes) == 0 &&
		len(r.MissingEdges) == 0 && len(r.ExtraEdges) == 0
}

// Verify replays the whole event log and compares the result with the
// node and edge tables. "Missing" entries exist in the replay but not in
// the tables; "extra" entries exist only in the tables.
func (s *Store) Verify(ctx context.Context) (VerifyReport, error) {
	events, err := s.GetEvents(ctx, schema.EventFilter{}, 0)
	if err != nil {
		return VerifyReport{}, err
	}
	replayed, err := Replay(events)
	if err != nil {
		return VerifyReport{}, err
	}
	nodes, err := s.ListNodes(ctx, "", 0)
	if err != nil {
		return VerifyReport{}, err
	}
	edges, err := s.ListEdges(ctx, "", 0)
	if err != nil {
		return VerifyReport{}, err
	}

	report := VerifyReport{Events: len(events)}
	live := map[string]bool{}
	for _, n := range nodes {
		live[n.ID] = true
		want, ok := replayed.Nodes[n.ID]
		if !ok {
			report.ExtraNodes = append(report.ExtraNodes, n.ID)
			continue
		}
		if !value.Equal(want.Snapshot(), n.Snapshot()) {
			report.ChangedNodes = append(report.ChangedNodes, n.ID)
		}
	}
	for id := range replayed.Nodes {
		if !live[id] {
			report.MissingNodes = append(report.MissingNodes, id)
		}
	}

	liveEdges := map[string]bool{}
	for _, e := range edges {
		liveEdges[e.ID] = true
		if _, ok := replayed.Edges[e.ID]; !ok {
			report.ExtraEdges = append(report.ExtraEdges, e.ID)
		}
	}
	for id := range replayed.Edges {
		if !liveEdges[id] {
			report.MissingEdges = append(report.MissingEdges, id)
		}
	}

	slices.Sort(report.MissingNodes)
	slices.Sort(report.MissingEdges)
	return report, nil
}
