package schema

import (
	"fmt"
	"strings"
)

// NodeKind is the fixed enumeration of node categories.
type NodeKind string

const (
	NodeConversation NodeKind = "conversation"
	NodeProject      NodeKind = "project"
	NodeInsight      NodeKind = "insight"
	NodeTask         NodeKind = "task"
	NodeContext      NodeKind = "context"
	NodeModule       NodeKind = "module"
	NodeAgent        NodeKind = "agent"
)

// NodeKinds lists every node kind in declaration order.
func NodeKinds() []NodeKind {
	return []NodeKind{NodeConversation, NodeProject, NodeInsight, NodeTask, NodeContext, NodeModule, NodeAgent}
}

// Valid reports whether k is a known node kind.
func (k NodeKind) Valid() bool {
	for _, known := range NodeKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ParseNodeKind parses a node kind case-insensitively.
func ParseNodeKind(s string) (NodeKind, error) {
	k := NodeKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown node kind %q", s)
	}
	return k, nil
}

// EdgeKind is the fixed enumeration of relationship categories.
type EdgeKind string

const (
	EdgeReferences  EdgeKind = "references"
	EdgeDerivedFrom EdgeKind = "derived_from"
	EdgeRelatedTo   EdgeKind = "related_to"
	EdgePartOf      EdgeKind = "part_of"
	EdgeBlocks      EdgeKind = "blocks"
	EdgeEnables     EdgeKind = "enables"
	EdgeSupersedes  EdgeKind = "supersedes"
)

// EdgeKinds lists every edge kind in declaration order.
func EdgeKinds() []EdgeKind {
	return []EdgeKind{EdgeReferences, EdgeDerivedFrom, EdgeRelatedTo, EdgePartOf, EdgeBlocks, EdgeEnables, EdgeSupersedes}
}

// Valid reports whether k is a known edge kind.
func (k EdgeKind) Valid() bool {
	for _, known := range EdgeKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ParseEdgeKind parses an edge kind; "derived-from" and "derived_from" are
// both accepted.
func ParseEdgeKind(s string) (EdgeKind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	k := EdgeKind(norm)
	if !k.Valid() {
		return "", fmt.Errorf("unknown edge kind %q", s)
	}
	return k, nil
}

// Operation is the kind of store mutation an event or proposal describes.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpLink   Operation = "link"
	OpUnlink Operation = "unlink"
)

// Operations lists every operation.
func Operations() []Operation {
	return []Operation{OpCreate, OpUpdate, OpDelete, OpLink, OpUnlink}
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	for _, known := range Operations() {
		if op == known {
			return true
		}
	}
	return false
}

// ParseOperation parses an operation name case-insensitively.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	if !op.Valid() {
		return "", fmt.Errorf("unknown operation %q (valid: create, update, delete, link, unlink)", s)
	}
	return op, nil
}
