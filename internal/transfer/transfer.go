package transfer

import (
	"context"
	"fmt"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

// Source is what Export reads from.
type Source interface {
	ListNodes(ctx context.Context, kind schema.NodeKind, limit int) ([]schema.Node, error)
	ListEdges(ctx context.Context, kind schema.EdgeKind, limit int) ([]schema.Edge, error)
	GetEvents(ctx context.Context, filter schema.EventFilter, limit int) ([]schema.Event, error)
}

// Sink is what Import writes to.
type Sink interface {
	InsertNode(ctx context.Context, agent schema.AgentID, n schema.Node) (schema.Node, error)
	InsertEdge(ctx context.Context, agent schema.AgentID, e schema.Edge) (schema.Edge, error)
	GetNode(ctx context.Context, id string) (schema.Node, bool, error)
	GetEdge(ctx context.Context, id string) (schema.Edge, bool, error)
}

// ExportOptions selects what goes into a document.
type ExportOptions struct {
	Kind   schema.NodeKind // empty exports every kind
	Edges  bool
	Events bool
}

// Export reads the graph into a document.
func Export(ctx context.Context, src Source, opts ExportOptions) (Document, error) {
	doc := Document{Version: DocumentVersion, Nodes: []NodeRecord{}}

	nodes, err := src.ListNodes(ctx, opts.Kind, 0)
	if err != nil {
		return Document{}, err
	}
	for _, n := range nodes {
		doc.Nodes = append(doc.Nodes, nodeRecord(n))
	}

	if opts.Edges {
		edges, err := src.ListEdges(ctx, "", 0)
		if err != nil {
			return Document{}, err
		}
		for _, e := range edges {
			doc.Edges = append(doc.Edges, edgeRecord(e))
		}
	}

	if opts.Events {
		events, err := src.GetEvents(ctx, schema.EventFilter{}, 0)
		if err != nil {
			return Document{}, err
		}
		for _, ev := range events {
			doc.Events = append(doc.Events, eventRecord(ev))
		}
	}
	return doc, nil
}

// ImportOptions controls Import.
type ImportOptions struct {
	Agent        schema.AgentID
	SkipExisting bool
}

// ImportResult counts what Import wrote.
type ImportResult struct {
	Nodes   int `json:"nodes" yaml:"nodes"`
	Edges   int `json:"edges" yaml:"edges"`
	Skipped int `json:"skipped" yaml:"skipped"`
}

// Import inserts the document's nodes, then its edges, keeping their ids.
// Every record is decoded before the first write, so a malformed document
// imports nothing. Each record is its own transaction; after a persistence
// failure, re-running with SkipExisting completes the import.
func Import(ctx context.Context, sink Sink, doc Document, opts ImportOptions) (ImportResult, error) {
	const op = "import"
	if err := opts.Agent.Validate(); err != nil {
		return ImportResult{}, fault.InvalidInputf(op, "%v", err)
	}

	nodes := make([]schema.Node, 0, len(doc.Nodes))
	for i, r := range doc.Nodes {
		n, err := r.node()
		if err != nil {
			return ImportResult{}, fault.InvalidInputf(op, "nodes[%d]: %v", i, err)
		}
		nodes = append(nodes, n)
	}
	edges := make([]schema.Edge, 0, len(doc.Edges))
	for i, r := range doc.Edges {
		e, err := r.edge()
		if err != nil {
			return ImportResult{}, fault.InvalidInputf(op, "edges[%d]: %v", i, err)
		}
		edges = append(edges, e)
	}

	var res ImportResult
	for _, n := range nodes {
		if opts.SkipExisting {
			if _, ok, err := sink.GetNode(ctx, n.ID); err != nil {
				return res, err
			} else if ok {
				res.Skipped++
				continue
			}
		}
		if _, err := sink.InsertNode(ctx, opts.Agent, n); err != nil {
			return res, fmt.Errorf("import node %s: %w", n.ID, err)
		}
		res.Nodes++
	}
	for _, e := range edges {
		if opts.SkipExisting {
			if _, ok, err := sink.GetEdge(ctx, e.ID); err != nil {
				return res, err
			} else if ok {
				res.Skipped++
				continue
			}
		}
		if _, err := sink.InsertEdge(ctx, opts.Agent, e); err != nil {
			return res, fmt.Errorf("import edge %s: %w", e.ID, err)
		}
		res.Edges++
	}
	return res, nil
}
