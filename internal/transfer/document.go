// Package transfer moves graph contents in and out of a store as JSON,
// YAML or NDJSON documents.
package transfer

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/value"
)

// DocumentVersion is written into every export and checked on import.
const DocumentVersion = 1

// Format is a document encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatNDJSON Format = "ndjson"
)

// ParseFormat accepts json, yaml (or yml) and ndjson.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "ndjson", "jsonl":
		return FormatNDJSON, nil
	}
	return "", fmt.Errorf("unknown format %q (valid: json, yaml, ndjson)", s)
}

// Document is the exported form of a graph. Content and metadata are plain
// data so both encoders render them natively.
type Document struct {
	Version int           `json:"version" yaml:"version"`
	Nodes   []NodeRecord  `json:"nodes" yaml:"nodes"`
	Edges   []EdgeRecord  `json:"edges,omitempty" yaml:"edges,omitempty"`
	Events  []EventRecord `json:"events,omitempty" yaml:"events,omitempty"`
}

// NodeRecord is one exported node.
type NodeRecord struct {
	ID        string         `json:"id" yaml:"id"`
	Kind      string         `json:"kind" yaml:"kind"`
	Content   any            `json:"content" yaml:"content"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
}

// EdgeRecord is one exported edge.
type EdgeRecord struct {
	ID        string    `json:"id" yaml:"id"`
	From      string    `json:"from" yaml:"from"`
	To        string    `json:"to" yaml:"to"`
	Kind      string    `json:"kind" yaml:"kind"`
	Weight    *float64  `json:"weight,omitempty" yaml:"weight,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// EventRecord is one exported event. Events are exported for audit only;
// import journals its own events.
type EventRecord struct {
	Seq       int64     `json:"seq" yaml:"seq"`
	Agent     string    `json:"agent" yaml:"agent"`
	Operation string    `json:"operation" yaml:"operation"`
	Target    string    `json:"target" yaml:"target"`
	Before    any       `json:"before,omitempty" yaml:"before,omitempty"`
	After     any       `json:"after,omitempty" yaml:"after,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

func nodeRecord(n schema.Node) NodeRecord {
	r := NodeRecord{
		ID:        n.ID,
		Kind:      string(n.Kind),
		Content:   value.ToAny(n.Content),
		CreatedAt: n.CreatedAt.UTC(),
		UpdatedAt: n.UpdatedAt.UTC(),
	}
	if len(n.Metadata) > 0 {
		r.Metadata, _ = value.ToAny(n.Metadata).(map[string]any)
	}
	return r
}

func (r NodeRecord) node() (schema.Node, error) {
	if r.ID == "" {
		return schema.Node{}, fmt.Errorf("node without id")
	}
	kind, err := schema.ParseNodeKind(r.Kind)
	if err != nil {
		return schema.Node{}, fmt.Errorf("node %s: %w", r.ID, err)
	}
	content, err := value.FromAny(r.Content)
	if err != nil {
		return schema.Node{}, fmt.Errorf("node %s content: %w", r.ID, err)
	}
	meta := value.Object{}
	if r.Metadata != nil {
		mv, err := value.FromAny(r.Metadata)
		if err != nil {
			return schema.Node{}, fmt.Errorf("node %s metadata: %w", r.ID, err)
		}
		meta = mv.(value.Object)
	}
	return schema.Node{
		ID:        r.ID,
		Kind:      kind,
		Content:   content,
		Metadata:  meta,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func edgeRecord(e schema.Edge) EdgeRecord {
	return EdgeRecord{
		ID:        e.ID,
		From:      e.From,
		To:        e.To,
		Kind:      string(e.Kind),
		Weight:    e.Weight,
		CreatedAt: e.CreatedAt.UTC(),
	}
}

func (r EdgeRecord) edge() (schema.Edge, error) {
	if r.ID == "" {
		return schema.Edge{}, fmt.Errorf("edge without id")
	}
	kind, err := schema.ParseEdgeKind(r.Kind)
	if err != nil {
		return schema.Edge{}, fmt.Errorf("edge %s: %w", r.ID, err)
	}
	return schema.Edge{
		ID:        r.ID,
		From:      r.From,
		To:        r.To,
		Kind:      kind,
		Weight:    r.Weight,
		CreatedAt: r.CreatedAt,
	}, nil
}

func eventRecord(ev schema.Event) EventRecord {
	r := EventRecord{
		Seq:       ev.Seq,
		Agent:     string(ev.Agent),
		Operation: string(ev.Operation),
		Target:    ev.Target.String(),
		Timestamp: ev.Timestamp.UTC(),
	}
	if ev.Before != nil {
		r.Before = value.ToAny(ev.Before)
	}
	if ev.After != nil {
		r.After = value.ToAny(ev.After)
	}
	return r
}
