package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

// GetReputation looks up an agent's record. Absence is reported by ok=false.
func (s *Store) GetReputation(ctx context.Context, agent schema.AgentID) (r schema.Reputation, ok bool, err error) {
	r, ok, err = getReputation(ctx, s.db, agent)
	if err != nil {
		return schema.Reputation{}, false, fault.Persist("get reputation", err)
	}
	return r, ok, nil
}

// EnsureReputation returns the agent's record, creating a zero record if
// none exists.
func (s *Store) EnsureReputation(ctx context.Context, agent schema.AgentID) (schema.Reputation, error) {
	var r schema.Reputation
	err := s.withTx(ctx, "ensure reputation", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reputations (agent, score, total_votes, correct_votes, updated_at)
			VALUES (?, 0, 0, 0, ?)
			ON CONFLICT(agent) DO NOTHING
		`, string(agent), encodeTime(s.Now())); err != nil {
			return fmt.Errorf("insert reputation: %w", err)
		}
		var err error
		r, _, err = getReputation(ctx, tx, agent)
		return err
	})
	return r, err
}

// ListReputations returns every tracked record, ordered by agent.
func (s *Store) ListReputations(ctx context.Context) ([]schema.Reputation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent, score, total_votes, correct_votes, updated_at
		FROM reputations ORDER BY agent ASC
	`)
	if err != nil {
		return nil, fault.Persist("list reputations", fmt.Errorf("query reputations: %w", err))
	}
	defer rows.Close()

	out := []schema.Reputation{}
	for rows.Next() {
		r, err := scanReputation(rows)
		if err != nil {
			return nil, fault.Persist("list reputations", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Persist("list reputations", fmt.Errorf("iterate reputations: %w", err))
	}
	return out, nil
}

// DecayReputations multiplies every score by factor. Vote counts are not
// touched. The factor is folded into each record's decay multiplier, which
// later resolutions apply to the recomputed score. The caller validates the
// factor range.
func (s *Store) DecayReputations(ctx context.Context, factor float64) (int64, error) {
	var n int64
	err := s.withTx(ctx, "decay reputations", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE reputations SET score = score * ?, decay = decay * ?, updated_at = ?
		`, factor, factor, encodeTime(s.Now()))
		if err != nil {
			return fmt.Errorf("decay reputations: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// ResetReputation sets an agent's record back to zero, creating it if needed.
func (s *Store) ResetReputation(ctx context.Context, agent schema.AgentID) (schema.Reputation, error) {
	now := s.Now()
	err := s.withTx(ctx, "reset reputation", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reputations (agent, score, total_votes, correct_votes, updated_at)
			VALUES (?, 0, 0, 0, ?)
			ON CONFLICT(agent) DO UPDATE SET
				score = 0, total_votes = 0, correct_votes = 0, decay = 1,
				updated_at = excluded.updated_at
		`, string(agent), encodeTime(now))
		return err
	})
	if err != nil {
		return schema.Reputation{}, err
	}
	return schema.Reputation{Agent: agent, UpdatedAt: now}, nil
}

// ResetAllReputations zeroes every tracked record.
func (s *Store) ResetAllReputations(ctx context.Context) (int64, error) {
	var n int64
	err := s.withTx(ctx, "reset reputations", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE reputations SET score = 0, total_votes = 0, correct_votes = 0, decay = 1, updated_at = ?
		`, encodeTime(s.Now()))
		if err != nil {
			return fmt.Errorf("reset reputations: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// applyReputationDelta records one resolved vote and recomputes the score
// from the updated counts: decay * curve(correct, total).
func applyReputationDelta(ctx context.Context, tx *sql.Tx, d ReputationDelta, now time.Time) error {
	var total, correct int64
	decay := 1.0
	err := tx.QueryRowContext(ctx, `
		SELECT total_votes, correct_votes, decay FROM reputations WHERE agent = ?
	`, string(d.Agent)).Scan(&total, &correct, &decay)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read reputation for %s: %w", d.Agent, err)
	}

	total++
	if d.Correct {
		correct++
	}
	score := decay * d.Curve.Score(correct, total)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reputations (agent, score, total_votes, correct_votes, decay, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent) DO UPDATE SET
			score = excluded.score,
			total_votes = excluded.total_votes,
			correct_votes = excluded.correct_votes,
			updated_at = excluded.updated_at
	`, string(d.Agent), score, total, correct, decay, encodeTime(now))
	if err != nil {
		return fmt.Errorf("apply reputation for %s: %w", d.Agent, err)
	}
	return nil
}

func getReputation(ctx context.Context, q querier, agent schema.AgentID) (schema.Reputation, bool, error) {
	r, err := scanReputation(q.QueryRowContext(ctx, `
		SELECT agent, score, total_votes, correct_votes, updated_at
		FROM reputations WHERE agent = ?
	`, string(agent)))
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Reputation{}, false, nil
	}
	if err != nil {
		return schema.Reputation{}, false, err
	}
	return r, true, nil
}

func scanReputation(row rowScanner) (schema.Reputation, error) {
	var (
		r       schema.Reputation
		agent   string
		updated int64
	)
	if err := row.Scan(&agent, &r.Score, &r.TotalVotes, &r.CorrectVotes, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.Reputation{}, err
		}
		return schema.Reputation{}, fmt.Errorf("scan reputation: %w", err)
	}
	r.Agent = schema.AgentID(agent)
	r.UpdatedAt = decodeTime(updated)
	return r, nil
}
