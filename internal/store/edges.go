package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

// CreateEdge links two existing nodes and journals a link event.
func (s *Store) CreateEdge(ctx context.Context, agent schema.AgentID, from, to string, kind schema.EdgeKind, weight *float64) (schema.Edge, error) {
	e := schema.Edge{
		ID:        s.newID(),
		From:      from,
		To:        to,
		Kind:      kind,
		Weight:    weight,
		CreatedAt: s.Now(),
	}
	return s.insertEdge(ctx, "create edge", agent, e, true)
}

// InsertEdge inserts a fully formed edge, keeping its id. Endpoints are not
// checked, so an exported dangling edge imports unchanged.
func (s *Store) InsertEdge(ctx context.Context, agent schema.AgentID, e schema.Edge) (schema.Edge, error) {
	if e.ID == "" {
		return schema.Edge{}, fault.InvalidInputf("insert edge", "edge id is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.Now()
	}
	return s.insertEdge(ctx, "insert edge", agent, e, false)
}

func (s *Store) insertEdge(ctx context.Context, op string, agent schema.AgentID, e schema.Edge, checkEndpoints bool) (schema.Edge, error) {
	if agent == "" {
		return schema.Edge{}, fault.InvalidInputf(op, "agent is required")
	}
	if !e.Kind.Valid() {
		return schema.Edge{}, fault.InvalidInputf(op, "unknown edge kind %q", e.Kind)
	}
	if e.From == "" || e.To == "" {
		return schema.Edge{}, fault.InvalidInputf(op, "edge endpoints are required")
	}
	if e.Weight != nil && (math.IsNaN(*e.Weight) || math.IsInf(*e.Weight, 0)) {
		return schema.Edge{}, fault.InvalidInputf(op, "edge weight must be finite")
	}
	e.CreatedAt = e.CreatedAt.UTC()

	var ev schema.Event
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		if checkEndpoints {
			for _, id := range []string{e.From, e.To} {
				_, ok, err := getNode(ctx, tx, id)
				if err != nil {
					return err
				}
				if !ok {
					return fault.NotFoundf(op, "endpoint node %s not found", id)
				}
			}
		}

		var weight sql.NullFloat64
		if e.Weight != nil {
			weight = sql.NullFloat64{Float64: *e.Weight, Valid: true}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO edges (id, from_id, to_id, kind, weight, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, e.ID, e.From, e.To, string(e.Kind), weight, encodeTime(e.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("insert edge: rows affected: %w", err)
		} else if affected == 0 {
			return fault.InvalidInputf(op, "edge %s already exists", e.ID)
		}

		ev, err = s.appendEvent(ctx, tx, schema.Event{
			Agent:     agent,
			Operation: schema.OpLink,
			Target:    schema.EdgeTarget(e.ID),
			After:     e.Snapshot(),
			Timestamp: e.CreatedAt,
		})
		return err
	})
	if err != nil {
		return schema.Edge{}, err
	}
	s.notify(ev)
	return e, nil
}

// DeleteEdge removes an edge and journals an unlink event.
func (s *Store) DeleteEdge(ctx context.Context, agent schema.AgentID, id string) (schema.Edge, error) {
	const op = "delete edge"
	if agent == "" {
		return schema.Edge{}, fault.InvalidInputf(op, "agent is required")
	}

	var (
		deleted schema.Edge
		ev      schema.Event
	)
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		e, ok, err := getEdge(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fault.NotFoundf(op, "edge %s not found", id)
		}
		deleted = e

		if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete edge: %w", err)
		}

		ev, err = s.appendEvent(ctx, tx, schema.Event{
			Agent:     agent,
			Operation: schema.OpUnlink,
			Target:    schema.EdgeTarget(id),
			Before:    e.Snapshot(),
			Timestamp: s.Now(),
		})
		return err
	})
	if err != nil {
		return schema.Edge{}, err
	}
	s.notify(ev)
	return deleted, nil
}

// GetEdge looks up an edge. Absence is reported by ok=false.
func (s *Store) GetEdge(ctx context.Context, id string) (e schema.Edge, ok bool, err error) {
	e, ok, err = getEdge(ctx, s.db, id)
	if err != nil {
		return schema.Edge{}, false, fault.Persist("get edge", err)
	}
	return e, ok, nil
}

// EdgesFrom returns the edges leaving id, including edges whose target
// node no longer exists.
func (s *Store) EdgesFrom(ctx context.Context, id string) ([]schema.Edge, error) {
	edges, err := queryEdges(ctx, s.db, `WHERE from_id = ?`, 0, id)
	if err != nil {
		return nil, fault.Persist("edges from", err)
	}
	return edges, nil
}

// EdgesTo returns the edges arriving at id.
func (s *Store) EdgesTo(ctx context.Context, id string) ([]schema.Edge, error) {
	edges, err := queryEdges(ctx, s.db, `WHERE to_id = ?`, 0, id)
	if err != nil {
		return nil, fault.Persist("edges to", err)
	}
	return edges, nil
}

// ListEdges returns edges in creation order, optionally of one kind.
func (s *Store) ListEdges(ctx context.Context, kind schema.EdgeKind, limit int) ([]schema.Edge, error) {
	where := ``
	var args []any
	if kind != "" {
		where = `WHERE kind = ?`
		args = append(args, string(kind))
	}
	edges, err := queryEdges(ctx, s.db, where, limit, args...)
	if err != nil {
		return nil, fault.Persist("list edges", err)
	}
	return edges, nil
}

// Neighbors returns the distinct nodes reachable from id within depth hops,
// following edges in either direction. The start node is excluded, depth 0
// returns an empty set, and edges whose far endpoint was deleted are
// skipped. All reads share one transaction, so the walk sees a single
// consistent graph.
func (s *Store) Neighbors(ctx context.Context, id string, depth int) ([]schema.Node, error) {
	const op = "neighbors"
	if depth < 0 {
		return nil, fault.InvalidInputf(op, "depth must be >= 0, got %d", depth)
	}
	result := []schema.Node{}
	if depth == 0 {
		return result, nil
	}

	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		visited := map[string]bool{id: true}
		frontier := []string{id}

		for hop := 0; hop < depth && len(frontier) > 0; hop++ {
			var next []string
			for _, current := range frontier {
				edges, err := queryEdges(ctx, tx, `WHERE from_id = ? OR to_id = ?`, 0, current, current)
				if err != nil {
					return err
				}
				for _, e := range edges {
					other := e.Other(current)
					if visited[other] {
						continue
					}
					visited[other] = true

					n, ok, err := getNode(ctx, tx, other)
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
					result = append(result, n)
					next = append(next, other)
				}
			}
			frontier = next
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func getEdge(ctx context.Context, q querier, id string) (schema.Edge, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, from_id, to_id, kind, weight, created_at FROM edges WHERE id = ?
	`, id)
	e, err := scanEdge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Edge{}, false, nil
	}
	if err != nil {
		return schema.Edge{}, false, err
	}
	return e, true, nil
}

// queryEdges runs a filtered edge query in creation order.
// limit <= 0 means no limit.
func queryEdges(ctx context.Context, q querier, where string, limit int, args ...any) ([]schema.Edge, error) {
	query := `SELECT id, from_id, to_id, kind, weight, created_at FROM edges ` + where +
		` ORDER BY created_at ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	edges := []schema.Edge{}
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return edges, nil
}

func scanEdge(row rowScanner) (schema.Edge, error) {
	var (
		e       schema.Edge
		kind    string
		weight  sql.NullFloat64
		created int64
	)
	if err := row.Scan(&e.ID, &e.From, &e.To, &kind, &weight, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.Edge{}, err
		}
		return schema.Edge{}, fmt.Errorf("scan edge: %w", err)
	}
	e.Kind = schema.EdgeKind(kind)
	e.CreatedAt = decodeTime(created)
	if weight.Valid {
		w := weight.Float64
		e.Weight = &w
	}
	return e, nil
}
