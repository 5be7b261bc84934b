package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/stategraph/internal/value"
)

// TargetKind says whether an event or proposal addresses a node or an edge.
type TargetKind string

const (
	TargetNode TargetKind = "node"
	TargetEdge TargetKind = "edge"
)

// Target identifies the entity an event touched.
type Target struct {
	Kind TargetKind `json:"kind" yaml:"kind"`
	ID   string     `json:"id" yaml:"id"`
}

func (t Target) String() string {
	return string(t.Kind) + ":" + t.ID
}

// NodeTarget returns the target of a node event.
func NodeTarget(id string) Target { return Target{Kind: TargetNode, ID: id} }

// EdgeTarget returns the target of an edge event.
func EdgeTarget(id string) Target { return Target{Kind: TargetEdge, ID: id} }

// Event is the immutable journal record of one store mutation.
// Events are created only by the store, inside the same transaction as the
// entity write, and are never updated or deleted.
type Event struct {
	Seq       int64       `json:"seq" yaml:"seq"`
	Agent     AgentID     `json:"agent" yaml:"agent"`
	Operation Operation   `json:"operation" yaml:"operation"`
	Target    Target      `json:"target" yaml:"target"`
	Before    value.Value `json:"before,omitempty" yaml:"before,omitempty"`
	After     value.Value `json:"after,omitempty" yaml:"after,omitempty"`
	Timestamp time.Time   `json:"timestamp" yaml:"timestamp"`
}

// EventFilter narrows an event query. Zero fields match everything.
type EventFilter struct {
	Agent     AgentID
	Operation Operation
	Target    *Target
	Since     time.Time // inclusive
	Until     time.Time // exclusive
}

// ChangedKeys lists the top-level content keys that differ between an
// event's before and after node snapshots, in sorted order. Non-object
// content reports the single pseudo-key "content" when it changed.
func (e Event) ChangedKeys() []string {
	return Diff(snapshotContent(e.Before), snapshotContent(e.After))
}

// Diff lists the top-level keys whose values differ between two content
// values, in sorted order.
func Diff(before, after value.Value) []string {
	bo, bok := before.(value.Object)
	ao, aok := after.(value.Object)
	if !bok || !aok {
		if value.Equal(before, after) {
			return nil
		}
		return []string{"content"}
	}

	keys := value.Object{}
	for k := range bo {
		keys[k] = value.Null{}
	}
	for k := range ao {
		keys[k] = value.Null{}
	}
	var changed []string
	for _, k := range keys.SortedKeys() {
		b, inB := bo[k]
		a, inA := ao[k]
		if inB != inA || !value.Equal(b, a) {
			changed = append(changed, k)
		}
	}
	return changed
}

func snapshotContent(v value.Value) value.Value {
	obj, ok := v.(value.Object)
	if !ok {
		return nil
	}
	return obj.Get("content")
}

// Describe renders a one-line summary used by history displays.
func (e Event) Describe() string {
	return fmt.Sprintf("[%s] #%d %s %s by %s",
		e.Timestamp.UTC().Format("2006-01-02 15:04:05"), e.Seq,
		strings.ToUpper(string(e.Operation)), e.Target, e.Agent)
}
