package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

// GetCapabilities returns the stored record for agent. ok=false means no
// explicit record exists and the caller should apply its default.
func (s *Store) GetCapabilities(ctx context.Context, agent schema.AgentID) (c schema.Capabilities, ok bool, err error) {
	c, ok, err = getCapabilities(ctx, s.db, agent)
	if err != nil {
		return schema.Capabilities{}, false, fault.Persist("get capabilities", err)
	}
	return c, ok, nil
}

// PutCapabilities stores c, replacing any earlier record for the agent.
func (s *Store) PutCapabilities(ctx context.Context, c schema.Capabilities) error {
	return s.withTx(ctx, "put capabilities", func(tx *sql.Tx) error {
		return putCapabilities(ctx, tx, c)
	})
}

// ListCapabilities returns every explicit record, ordered by agent.
func (s *Store) ListCapabilities(ctx context.Context) ([]schema.Capabilities, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent, mode, can_vote, vote_weight FROM capabilities ORDER BY agent ASC
	`)
	if err != nil {
		return nil, fault.Persist("list capabilities", fmt.Errorf("query capabilities: %w", err))
	}
	defer rows.Close()

	out := []schema.Capabilities{}
	for rows.Next() {
		c, err := scanCapabilities(rows)
		if err != nil {
			return nil, fault.Persist("list capabilities", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Persist("list capabilities", fmt.Errorf("iterate capabilities: %w", err))
	}
	return out, nil
}

func putCapabilities(ctx context.Context, tx *sql.Tx, c schema.Capabilities) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO capabilities (agent, mode, can_vote, vote_weight)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent) DO UPDATE SET
			mode = excluded.mode,
			can_vote = excluded.can_vote,
			vote_weight = excluded.vote_weight
	`, string(c.Agent), string(c.Mode), c.CanVote, c.VoteWeight)
	if err != nil {
		return fmt.Errorf("upsert capabilities: %w", err)
	}
	return nil
}

func getCapabilities(ctx context.Context, q querier, agent schema.AgentID) (schema.Capabilities, bool, error) {
	c, err := scanCapabilities(q.QueryRowContext(ctx, `
		SELECT agent, mode, can_vote, vote_weight FROM capabilities WHERE agent = ?
	`, string(agent)))
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Capabilities{}, false, nil
	}
	if err != nil {
		return schema.Capabilities{}, false, err
	}
	return c, true, nil
}

func scanCapabilities(row rowScanner) (schema.Capabilities, error) {
	var (
		c           schema.Capabilities
		agent, mode string
	)
	if err := row.Scan(&agent, &mode, &c.CanVote, &c.VoteWeight); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.Capabilities{}, err
		}
		return schema.Capabilities{}, fmt.Errorf("scan capabilities: %w", err)
	}
	c.Agent = schema.AgentID(agent)
	c.Mode = schema.CapabilityMode(mode)
	return c, nil
}
