package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/stategraph/internal/value"
)

// Node is a vertex of the knowledge graph. ID and Kind never change after
// creation; updates replace Content (and optionally Metadata).
type Node struct {
	ID        string       `json:"id" yaml:"id"`
	Kind      NodeKind     `json:"kind" yaml:"kind"`
	Content   value.Value  `json:"content" yaml:"content"`
	Metadata  value.Object `json:"metadata" yaml:"metadata"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" yaml:"updated_at"`
}

// UnmarshalJSON decodes a node, keeping Content as a value tree.
func (n *Node) UnmarshalJSON(data []byte) error {
	type alias Node
	var raw struct {
		alias
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Node(raw.alias)
	n.Content = value.Null{}
	if len(raw.Content) > 0 {
		v, err := value.Parse(raw.Content)
		if err != nil {
			return fmt.Errorf("node content: %w", err)
		}
		n.Content = v
	}
	return nil
}

// Edge is a directed, typed relationship between two node ids.
// Edges reference nodes but do not own them: deleting a node leaves its
// edges in place.
type Edge struct {
	ID        string    `json:"id" yaml:"id"`
	From      string    `json:"from" yaml:"from"`
	To        string    `json:"to" yaml:"to"`
	Kind      EdgeKind  `json:"kind" yaml:"kind"`
	Weight    *float64  `json:"weight,omitempty" yaml:"weight,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Other returns the endpoint of e opposite to id.
func (e Edge) Other(id string) string {
	if e.From == id {
		return e.To
	}
	return e.From
}

const snapshotTime = time.RFC3339Nano

// Snapshot encodes n as the object stored in event before/after fields.
func (n Node) Snapshot() value.Object {
	content := n.Content
	if content == nil {
		content = value.Null{}
	}
	meta := n.Metadata
	if meta == nil {
		meta = value.Object{}
	}
	return value.Object{
		"id":         value.String(n.ID),
		"kind":       value.String(n.Kind),
		"content":    content,
		"metadata":   meta,
		"created_at": value.String(n.CreatedAt.UTC().Format(snapshotTime)),
		"updated_at": value.String(n.UpdatedAt.UTC().Format(snapshotTime)),
	}
}

// NodeFromSnapshot decodes a node snapshot written by Node.Snapshot.
func NodeFromSnapshot(v value.Value) (Node, error) {
	obj, ok := v.(value.Object)
	if !ok {
		return Node{}, fmt.Errorf("node snapshot: expected object, got %s", value.KindOf(v))
	}
	var n Node
	var err error
	if n.ID, err = stringField(obj, "id"); err != nil {
		return Node{}, err
	}
	kind, err := stringField(obj, "kind")
	if err != nil {
		return Node{}, err
	}
	n.Kind = NodeKind(kind)
	n.Content = obj.Get("content")
	if n.Content == nil {
		n.Content = value.Null{}
	}
	if meta, ok := obj.Get("metadata").(value.Object); ok {
		n.Metadata = meta
	} else {
		n.Metadata = value.Object{}
	}
	if n.CreatedAt, err = timeField(obj, "created_at"); err != nil {
		return Node{}, err
	}
	if n.UpdatedAt, err = timeField(obj, "updated_at"); err != nil {
		return Node{}, err
	}
	return n, nil
}

// Snapshot encodes e as the object stored in event before/after fields.
func (e Edge) Snapshot() value.Object {
	obj := value.Object{
		"id":         value.String(e.ID),
		"from":       value.String(e.From),
		"to":         value.String(e.To),
		"kind":       value.String(e.Kind),
		"created_at": value.String(e.CreatedAt.UTC().Format(snapshotTime)),
	}
	if e.Weight != nil {
		obj["weight"] = value.Float(*e.Weight)
	}
	return obj
}

// EdgeFromSnapshot decodes an edge snapshot written by Edge.Snapshot.
func EdgeFromSnapshot(v value.Value) (Edge, error) {
	obj, ok := v.(value.Object)
	if !ok {
		return Edge{}, fmt.Errorf("edge snapshot: expected object, got %s", value.KindOf(v))
	}
	var e Edge
	var err error
	if e.ID, err = stringField(obj, "id"); err != nil {
		return Edge{}, err
	}
	if e.From, err = stringField(obj, "from"); err != nil {
		return Edge{}, err
	}
	if e.To, err = stringField(obj, "to"); err != nil {
		return Edge{}, err
	}
	kind, err := stringField(obj, "kind")
	if err != nil {
		return Edge{}, err
	}
	e.Kind = EdgeKind(kind)
	switch w := obj.Get("weight").(type) {
	case value.Float:
		f := float64(w)
		e.Weight = &f
	case value.Int:
		f := float64(w)
		e.Weight = &f
	}
	if e.CreatedAt, err = timeField(obj, "created_at"); err != nil {
		return Edge{}, err
	}
	return e, nil
}

func stringField(obj value.Object, key string) (string, error) {
	s, ok := obj.Get(key).(value.String)
	if !ok {
		return "", fmt.Errorf("snapshot field %q: expected string", key)
	}
	return string(s), nil
}

func timeField(obj value.Object, key string) (time.Time, error) {
	s, err := stringField(obj, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(snapshotTime, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("snapshot field %q: %w", key, err)
	}
	return t, nil
}
