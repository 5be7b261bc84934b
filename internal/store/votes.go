package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

// CastVote records v as the voter's effective vote on a pending proposal.
// A second vote from the same voter replaces decision, reason and time but
// keeps the seq of the first cast. replaced reports whether an earlier vote
// existed. The pending check and the write share a transaction.
func (s *Store) CastVote(ctx context.Context, v schema.Vote) (stored schema.Vote, replaced bool, err error) {
	const op = "cast vote"
	v.CastAt = s.Now()

	err = s.withTx(ctx, op, func(tx *sql.Tx) error {
		p, ok, err := getProposal(ctx, tx, v.ProposalID)
		if err != nil {
			return err
		}
		if !ok {
			return fault.NotFoundf(op, "proposal %d not found", v.ProposalID)
		}
		if p.Status != schema.StatusPending {
			return fault.InvalidStatef(op, "proposal already resolved (status %s)", p.Status)
		}

		var existing int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM votes WHERE proposal_id = ? AND voter = ?
		`, v.ProposalID, string(v.Voter)).Scan(&existing); err != nil {
			return fmt.Errorf("check vote: %w", err)
		}
		replaced = existing > 0

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO votes (proposal_id, voter, decision, reason, cast_at, seq)
			VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM votes WHERE proposal_id = ?))
			ON CONFLICT(proposal_id, voter) DO UPDATE SET
				decision = excluded.decision,
				reason = excluded.reason,
				cast_at = excluded.cast_at
		`, v.ProposalID, string(v.Voter), string(v.Decision), v.Reason, encodeTime(v.CastAt), v.ProposalID); err != nil {
			return fmt.Errorf("upsert vote: %w", err)
		}

		return tx.QueryRowContext(ctx, `
			SELECT seq FROM votes WHERE proposal_id = ? AND voter = ?
		`, v.ProposalID, string(v.Voter)).Scan(&v.Seq)
	})
	if err != nil {
		return schema.Vote{}, false, err
	}
	return v, replaced, nil
}

// Votes returns the effective votes on a proposal in first-cast order.
func (s *Store) Votes(ctx context.Context, proposalID int64) ([]schema.Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT proposal_id, voter, decision, reason, cast_at, seq
		FROM votes WHERE proposal_id = ?
		ORDER BY seq ASC
	`, proposalID)
	if err != nil {
		return nil, fault.Persist("get votes", fmt.Errorf("query votes: %w", err))
	}
	defer rows.Close()

	votes := []schema.Vote{}
	for rows.Next() {
		var (
			v               schema.Vote
			voter, decision string
			cast            int64
		)
		if err := rows.Scan(&v.ProposalID, &voter, &decision, &v.Reason, &cast, &v.Seq); err != nil {
			return nil, fault.Persist("get votes", fmt.Errorf("scan vote: %w", err))
		}
		v.Voter = schema.AgentID(voter)
		v.Decision = schema.VoteDecision(decision)
		v.CastAt = decodeTime(cast)
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Persist("get votes", fmt.Errorf("iterate votes: %w", err))
	}
	return votes, nil
}
