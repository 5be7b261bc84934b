// Package graph is the direct-write path into the store. Every mutation is
// gated by the agent's capability record: only Direct agents write here,
// Proposal agents are sent to governance and Observers are refused.
package graph

import (
	"context"
	"log/slog"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/value"
)

// Store is the subset of the store the facade writes through.
type Store interface {
	CreateNode(ctx context.Context, agent schema.AgentID, kind schema.NodeKind, content value.Value, metadata value.Object) (schema.Node, error)
	UpdateNode(ctx context.Context, agent schema.AgentID, id string, content value.Value, metadata value.Object) (schema.Node, error)
	DeleteNode(ctx context.Context, agent schema.AgentID, id string) (schema.Node, error)
	CreateEdge(ctx context.Context, agent schema.AgentID, from, to string, kind schema.EdgeKind, weight *float64) (schema.Edge, error)
	DeleteEdge(ctx context.Context, agent schema.AgentID, id string) (schema.Edge, error)
}

// Capabilities resolves an agent's effective capability record.
type Capabilities interface {
	Get(ctx context.Context, agent schema.AgentID) (schema.Capabilities, error)
}

// Indexer is notified after a node write commits. Index failures are
// logged and never undo the write.
type Indexer interface {
	IndexNode(ctx context.Context, n schema.Node) error
	RemoveNode(ctx context.Context, id string) error
}

// Graph is the capability-gated write facade.
type Graph struct {
	store    Store
	caps     Capabilities
	indexers []Indexer
	logger   *slog.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithIndexer adds an index kept in step with node writes.
func WithIndexer(ix Indexer) Option {
	return func(g *Graph) { g.indexers = append(g.indexers, ix) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

// New creates a facade over st gated by caps.
func New(st Store, caps Capabilities, opts ...Option) *Graph {
	g := &Graph{store: st, caps: caps, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateNode creates a node as agent.
func (g *Graph) CreateNode(ctx context.Context, agent schema.AgentID, kind schema.NodeKind, content value.Value, metadata value.Object) (schema.Node, error) {
	if err := g.authorize(ctx, "create node", agent); err != nil {
		return schema.Node{}, err
	}
	n, err := g.store.CreateNode(ctx, agent, kind, content, metadata)
	if err != nil {
		return schema.Node{}, err
	}
	g.index(ctx, n)
	return n, nil
}

// UpdateNode replaces a node's content as agent. nil metadata keeps the
// current metadata.
func (g *Graph) UpdateNode(ctx context.Context, agent schema.AgentID, id string, content value.Value, metadata value.Object) (schema.Node, error) {
	if err := g.authorize(ctx, "update node", agent); err != nil {
		return schema.Node{}, err
	}
	n, err := g.store.UpdateNode(ctx, agent, id, content, metadata)
	if err != nil {
		return schema.Node{}, err
	}
	g.index(ctx, n)
	return n, nil
}

// DeleteNode deletes a node as agent. Edges that reference it are kept.
func (g *Graph) DeleteNode(ctx context.Context, agent schema.AgentID, id string) (schema.Node, error) {
	if err := g.authorize(ctx, "delete node", agent); err != nil {
		return schema.Node{}, err
	}
	n, err := g.store.DeleteNode(ctx, agent, id)
	if err != nil {
		return schema.Node{}, err
	}
	for _, ix := range g.indexers {
		if err := ix.RemoveNode(ctx, n.ID); err != nil {
			g.logger.Warn("index remove failed", "node", n.ID, "error", err)
		}
	}
	return n, nil
}

// CreateEdge links two existing nodes as agent.
func (g *Graph) CreateEdge(ctx context.Context, agent schema.AgentID, from, to string, kind schema.EdgeKind, weight *float64) (schema.Edge, error) {
	if err := g.authorize(ctx, "create edge", agent); err != nil {
		return schema.Edge{}, err
	}
	return g.store.CreateEdge(ctx, agent, from, to, kind, weight)
}

// DeleteEdge removes an edge as agent.
func (g *Graph) DeleteEdge(ctx context.Context, agent schema.AgentID, id string) (schema.Edge, error) {
	if err := g.authorize(ctx, "delete edge", agent); err != nil {
		return schema.Edge{}, err
	}
	return g.store.DeleteEdge(ctx, agent, id)
}

// authorize fails before any write unless agent holds Direct capability.
func (g *Graph) authorize(ctx context.Context, op string, agent schema.AgentID) error {
	if err := agent.Validate(); err != nil {
		return fault.InvalidInputf(op, "%v", err)
	}
	caps, err := g.caps.Get(ctx, agent)
	if err != nil {
		return err
	}
	switch caps.Mode {
	case schema.ModeDirect:
		return nil
	case schema.ModeProposal:
		g.logger.Debug("direct write refused", "agent", agent, "op", op, "mode", caps.Mode)
		return fault.InvalidStatef(op, "agent %s must submit a proposal (capability mode proposal)", agent)
	default:
		g.logger.Debug("direct write refused", "agent", agent, "op", op, "mode", caps.Mode)
		return fault.InvalidStatef(op, "agent %s is an observer and cannot mutate the graph", agent)
	}
}

func (g *Graph) index(ctx context.Context, n schema.Node) {
	for _, ix := range g.indexers {
		if err := ix.IndexNode(ctx, n); err != nil {
			g.logger.Warn("index update failed", "node", n.ID, "error", err)
		}
	}
}
