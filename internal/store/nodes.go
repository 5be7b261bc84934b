package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/value"
)

// CreateNode inserts a node with a fresh id and journals a create event
// carrying the new node as its after-snapshot.
func (s *Store) CreateNode(ctx context.Context, agent schema.AgentID, kind schema.NodeKind, content value.Value, metadata value.Object) (schema.Node, error) {
	now := s.Now()
	n := schema.Node{
		ID:        s.newID(),
		Kind:      kind,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.insertNode(ctx, "create node", agent, n)
}

// InsertNode inserts a fully formed node, keeping its id and timestamps.
// Used by import; fails with InvalidInput if the id is already taken.
func (s *Store) InsertNode(ctx context.Context, agent schema.AgentID, n schema.Node) (schema.Node, error) {
	if n.ID == "" {
		return schema.Node{}, fault.InvalidInputf("insert node", "node id is required")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.Now()
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	return s.insertNode(ctx, "insert node", agent, n)
}

func (s *Store) insertNode(ctx context.Context, op string, agent schema.AgentID, n schema.Node) (schema.Node, error) {
	if agent == "" {
		return schema.Node{}, fault.InvalidInputf(op, "agent is required")
	}
	if !n.Kind.Valid() {
		return schema.Node{}, fault.InvalidInputf(op, "unknown node kind %q", n.Kind)
	}
	if n.Content == nil {
		n.Content = value.Null{}
	}
	if n.Metadata == nil {
		n.Metadata = value.Object{}
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()

	content, err := encodeValue(n.Content)
	if err != nil {
		return schema.Node{}, fault.InvalidInputf(op, "content is not encodable: %v", err)
	}
	meta, err := encodeValue(n.Metadata)
	if err != nil {
		return schema.Node{}, fault.InvalidInputf(op, "metadata is not encodable: %v", err)
	}

	var ev schema.Event
	err = s.withTx(ctx, op, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (id, kind, content, metadata, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, n.ID, string(n.Kind), content, meta, encodeTime(n.CreatedAt), encodeTime(n.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert node: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("insert node: rows affected: %w", err)
		} else if affected == 0 {
			return fault.InvalidInputf(op, "node %s already exists", n.ID)
		}

		ev, err = s.appendEvent(ctx, tx, schema.Event{
			Agent:     agent,
			Operation: schema.OpCreate,
			Target:    schema.NodeTarget(n.ID),
			After:     n.Snapshot(),
			Timestamp: n.CreatedAt,
		})
		return err
	})
	if err != nil {
		return schema.Node{}, err
	}
	s.notify(ev)
	return n, nil
}

// UpdateNode replaces a node's content. A nil metadata keeps the current
// metadata. The event records the node before and after the write; both
// are read and written inside one transaction so concurrent updates each
// see the other's result as their before-snapshot.
func (s *Store) UpdateNode(ctx context.Context, agent schema.AgentID, id string, content value.Value, metadata value.Object) (schema.Node, error) {
	const op = "update node"
	if agent == "" {
		return schema.Node{}, fault.InvalidInputf(op, "agent is required")
	}
	if content == nil {
		content = value.Null{}
	}
	encContent, err := encodeValue(content)
	if err != nil {
		return schema.Node{}, fault.InvalidInputf(op, "content is not encodable: %v", err)
	}
	if metadata != nil {
		if _, err := encodeValue(metadata); err != nil {
			return schema.Node{}, fault.InvalidInputf(op, "metadata is not encodable: %v", err)
		}
	}

	var (
		updated schema.Node
		ev      schema.Event
	)
	err = s.withTx(ctx, op, func(tx *sql.Tx) error {
		before, ok, err := getNode(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fault.NotFoundf(op, "node %s not found", id)
		}

		updated = before
		updated.Content = content
		if metadata != nil {
			updated.Metadata = metadata
		}
		updated.UpdatedAt = s.Now()
		encMeta, err := encodeValue(updated.Metadata)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE nodes SET content = ?, metadata = ?, updated_at = ? WHERE id = ?
		`, encContent, encMeta, encodeTime(updated.UpdatedAt), id); err != nil {
			return fmt.Errorf("update node: %w", err)
		}

		ev, err = s.appendEvent(ctx, tx, schema.Event{
			Agent:     agent,
			Operation: schema.OpUpdate,
			Target:    schema.NodeTarget(id),
			Before:    before.Snapshot(),
			After:     updated.Snapshot(),
			Timestamp: updated.UpdatedAt,
		})
		return err
	})
	if err != nil {
		return schema.Node{}, err
	}
	s.notify(ev)
	return updated, nil
}

// DeleteNode removes a node and journals its last state as the
// before-snapshot. Edges touching the node are left in place.
func (s *Store) DeleteNode(ctx context.Context, agent schema.AgentID, id string) (schema.Node, error) {
	const op = "delete node"
	if agent == "" {
		return schema.Node{}, fault.InvalidInputf(op, "agent is required")
	}

	var (
		deleted schema.Node
		ev      schema.Event
	)
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		n, ok, err := getNode(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fault.NotFoundf(op, "node %s not found", id)
		}
		deleted = n

		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete node: %w", err)
		}

		ev, err = s.appendEvent(ctx, tx, schema.Event{
			Agent:     agent,
			Operation: schema.OpDelete,
			Target:    schema.NodeTarget(id),
			Before:    n.Snapshot(),
			Timestamp: s.Now(),
		})
		return err
	})
	if err != nil {
		return schema.Node{}, err
	}
	s.notify(ev)
	return deleted, nil
}

// GetNode looks up a node. Absence is reported by ok=false, not an error.
func (s *Store) GetNode(ctx context.Context, id string) (n schema.Node, ok bool, err error) {
	n, ok, err = getNode(ctx, s.db, id)
	if err != nil {
		return schema.Node{}, false, fault.Persist("get node", err)
	}
	return n, ok, nil
}

// ListNodes returns nodes in creation order, optionally restricted to one
// kind. limit <= 0 means no limit.
func (s *Store) ListNodes(ctx context.Context, kind schema.NodeKind, limit int) ([]schema.Node, error) {
	query := `SELECT id, kind, content, metadata, created_at, updated_at FROM nodes`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fault.Persist("list nodes", fmt.Errorf("query nodes: %w", err))
	}
	defer rows.Close()

	nodes := []schema.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fault.Persist("list nodes", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Persist("list nodes", fmt.Errorf("iterate nodes: %w", err))
	}
	return nodes, nil
}

func getNode(ctx context.Context, q querier, id string) (schema.Node, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, kind, content, metadata, created_at, updated_at FROM nodes WHERE id = ?
	`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Node{}, false, nil
	}
	if err != nil {
		return schema.Node{}, false, err
	}
	return n, true, nil
}

func scanNode(row rowScanner) (schema.Node, error) {
	var (
		n                 schema.Node
		kind, content, md string
		created, updated  int64
	)
	if err := row.Scan(&n.ID, &kind, &content, &md, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.Node{}, err
		}
		return schema.Node{}, fmt.Errorf("scan node: %w", err)
	}
	n.Kind = schema.NodeKind(kind)
	n.CreatedAt = decodeTime(created)
	n.UpdatedAt = decodeTime(updated)

	var err error
	if n.Content, err = decodeValue(content); err != nil {
		return schema.Node{}, fmt.Errorf("node %s content: %w", n.ID, err)
	}
	if n.Metadata, err = decodeObject(md); err != nil {
		return schema.Node{}, fmt.Errorf("node %s metadata: %w", n.ID, err)
	}
	return n, nil
}
