package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

// appendEvent journals ev inside tx and returns it with Seq assigned.
// Callers write the entity in the same transaction, so either both become
// visible or neither does.
func (s *Store) appendEvent(ctx context.Context, tx *sql.Tx, ev schema.Event) (schema.Event, error) {
	before, err := encodeSnapshot(ev.Before)
	if err != nil {
		return schema.Event{}, err
	}
	after, err := encodeSnapshot(ev.After)
	if err != nil {
		return schema.Event{}, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO events (agent, operation, target_kind, target_id, before, after, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		string(ev.Agent),
		string(ev.Operation),
		string(ev.Target.Kind),
		ev.Target.ID,
		before,
		after,
		encodeTime(ev.Timestamp),
	)
	if err != nil {
		return schema.Event{}, fmt.Errorf("append event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return schema.Event{}, fmt.Errorf("append event: last insert id: %w", err)
	}
	ev.Seq = seq
	return ev, nil
}

// GetEvents returns events matching filter in ascending seq order.
// With limit > 0 only the most recent limit matches are returned (still
// ascending); limit <= 0 returns every match.
func (s *Store) GetEvents(ctx context.Context, filter schema.EventFilter, limit int) ([]schema.Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.Agent != "" {
		where = append(where, "agent = ?")
		args = append(args, string(filter.Agent))
	}
	if filter.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, string(filter.Operation))
	}
	if filter.Target != nil {
		where = append(where, "target_kind = ? AND target_id = ?")
		args = append(args, string(filter.Target.Kind), filter.Target.ID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, encodeTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, encodeTime(filter.Until))
	}

	query := `SELECT seq, agent, operation, target_kind, target_id, before, after, ts FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fault.Persist("get events", fmt.Errorf("query events: %w", err))
	}
	defer rows.Close()

	events := []schema.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fault.Persist("get events", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Persist("get events", fmt.Errorf("iterate events: %w", err))
	}

	slices.Reverse(events)
	return events, nil
}

// History returns the events that touched a node, oldest first.
func (s *Store) History(ctx context.Context, nodeID string, limit int) ([]schema.Event, error) {
	target := schema.NodeTarget(nodeID)
	return s.GetEvents(ctx, schema.EventFilter{Target: &target}, limit)
}

// CountEvents returns the length of the event log.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fault.Persist("count events", err)
	}
	return n, nil
}

func scanEvent(row rowScanner) (schema.Event, error) {
	var (
		ev               schema.Event
		agent, op, tkind string
		before, after    sql.NullString
		ts               int64
	)
	if err := row.Scan(&ev.Seq, &agent, &op, &tkind, &ev.Target.ID, &before, &after, &ts); err != nil {
		return schema.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Agent = schema.AgentID(agent)
	ev.Operation = schema.Operation(op)
	ev.Target.Kind = schema.TargetKind(tkind)
	ev.Timestamp = decodeTime(ts)

	var err error
	if ev.Before, err = decodeSnapshot(before); err != nil {
		return schema.Event{}, fmt.Errorf("event %d before: %w", ev.Seq, err)
	}
	if ev.After, err = decodeSnapshot(after); err != nil {
		return schema.Event{}, fmt.Errorf("event %d after: %w", ev.Seq, err)
	}
	return ev, nil
}
