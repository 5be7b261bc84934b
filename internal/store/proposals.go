package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/value"
)

// ScoreCurve turns a voting record into a score: Correct points per correct
// vote plus Incorrect points per incorrect vote, floored at zero once over
// the whole record. The result depends only on the counts, so with
// Correct >= Incorrect it never falls as accuracy rises at a fixed volume.
type ScoreCurve struct {
	Correct   float64
	Incorrect float64
}

// Score returns the undecayed score for correct out of total votes.
func (c ScoreCurve) Score(correct, total int64) float64 {
	return max(0, float64(correct)*c.Correct+float64(total-correct)*c.Incorrect)
}

// ReputationDelta is the effect of one resolution on one voter's record.
type ReputationDelta struct {
	Agent   schema.AgentID
	Correct bool
	Curve   ScoreCurve
}

// CreateProposal inserts p as a pending proposal and returns it with its
// id and creation time assigned. Ids come from an AUTOINCREMENT column and
// are never reused, even after cleanup.
func (s *Store) CreateProposal(ctx context.Context, p schema.Proposal) (schema.Proposal, error) {
	const op = "create proposal"
	payload, err := encodeValue(p.Payload)
	if err != nil {
		return schema.Proposal{}, fault.InvalidInputf(op, "payload is not encodable: %v", err)
	}
	if p.Payload == nil {
		p.Payload = value.Null{}
	}
	p.Status = schema.StatusPending
	p.CreatedAt = s.Now()
	p.ResolvedAt = nil
	p.ExecutedAt = nil

	err = s.withTx(ctx, op, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO proposals
			(proposer, operation, target_kind, target_id, new_kind, payload, rationale, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			string(p.Proposer),
			string(p.Operation),
			string(p.Target.Kind),
			p.Target.ID,
			string(p.Target.NewKind),
			payload,
			p.Rationale,
			string(p.Status),
			encodeTime(p.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert proposal: %w", err)
		}
		p.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert proposal: last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return schema.Proposal{}, err
	}
	return p, nil
}

// GetProposal looks up a proposal. Absence is reported by ok=false.
func (s *Store) GetProposal(ctx context.Context, id int64) (p schema.Proposal, ok bool, err error) {
	p, ok, err = getProposal(ctx, s.db, id)
	if err != nil {
		return schema.Proposal{}, false, fault.Persist("get proposal", err)
	}
	return p, ok, nil
}

// ListProposals returns proposals in id order, optionally restricted to
// one status.
func (s *Store) ListProposals(ctx context.Context, status schema.ProposalStatus) ([]schema.Proposal, error) {
	query := proposalColumns
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fault.Persist("list proposals", fmt.Errorf("query proposals: %w", err))
	}
	defer rows.Close()

	proposals := []schema.Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fault.Persist("list proposals", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Persist("list proposals", fmt.Errorf("iterate proposals: %w", err))
	}
	return proposals, nil
}

// WithdrawProposal moves a pending proposal to withdrawn.
func (s *Store) WithdrawProposal(ctx context.Context, id int64) (schema.Proposal, error) {
	return s.transition(ctx, "withdraw proposal", id, schema.StatusWithdrawn, nil)
}

// ResolveProposal moves a pending proposal to approved or rejected and
// applies deltas to the voters' reputation records in the same
// transaction. The status change is a conditional update on
// status='pending', so across any number of concurrent callers exactly one
// succeeds; the others get resolved=false and nothing is written.
func (s *Store) ResolveProposal(ctx context.Context, id int64, status schema.ProposalStatus, deltas []ReputationDelta) (p schema.Proposal, resolved bool, err error) {
	const op = "resolve proposal"
	if status != schema.StatusApproved && status != schema.StatusRejected {
		return schema.Proposal{}, false, fault.InvalidInputf(op, "resolution must be approved or rejected, got %q", status)
	}
	p, err = s.transition(ctx, op, id, status, deltas)
	if fault.IsInvalidState(err) {
		return p, false, nil
	}
	if err != nil {
		return schema.Proposal{}, false, err
	}
	return p, true, nil
}

// transition flips a pending proposal to a terminal status. It reports
// NotFound for unknown ids and InvalidState (with the current proposal) when
// the proposal is no longer pending.
func (s *Store) transition(ctx context.Context, op string, id int64, status schema.ProposalStatus, deltas []ReputationDelta) (schema.Proposal, error) {
	var out schema.Proposal
	now := s.Now()
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE proposals SET status = ?, resolved_at = ?
			WHERE id = ? AND status = 'pending'
		`, string(status), encodeTime(now), id)
		if err != nil {
			return fmt.Errorf("update proposal: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update proposal: rows affected: %w", err)
		}

		p, ok, err := getProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fault.NotFoundf(op, "proposal %d not found", id)
		}
		out = p
		if affected == 0 {
			return fault.InvalidStatef(op, "proposal already resolved (status %s)", p.Status)
		}

		for _, d := range deltas {
			if err := applyReputationDelta(ctx, tx, d, now); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// ExpireProposals moves every pending proposal created before cutoff to
// expired and returns how many changed. Running it again with the same
// cutoff changes nothing.
func (s *Store) ExpireProposals(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.withTx(ctx, "expire proposals", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE proposals SET status = 'expired', resolved_at = ?
			WHERE status = 'pending' AND created_at < ?
		`, encodeTime(s.Now()), encodeTime(cutoff))
		if err != nil {
			return fmt.Errorf("expire proposals: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// CleanupProposals permanently removes terminal proposals resolved before
// cutoff, together with their votes. Pending proposals are never touched.
func (s *Store) CleanupProposals(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.withTx(ctx, "cleanup proposals", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM votes WHERE proposal_id IN (
				SELECT id FROM proposals
				WHERE status != 'pending' AND resolved_at IS NOT NULL AND resolved_at < ?
			)
		`, encodeTime(cutoff)); err != nil {
			return fmt.Errorf("delete votes: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			DELETE FROM proposals
			WHERE status != 'pending' AND resolved_at IS NOT NULL AND resolved_at < ?
		`, encodeTime(cutoff))
		if err != nil {
			return fmt.Errorf("delete proposals: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// ClaimExecution marks an approved proposal as executed. It returns
// claimed=false when the proposal was already executed, so at most one
// caller ever applies a proposal.
func (s *Store) ClaimExecution(ctx context.Context, id int64) (claimed bool, err error) {
	err = s.withTx(ctx, "claim execution", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE proposals SET executed_at = ?
			WHERE id = ? AND status = 'approved' AND executed_at IS NULL
		`, encodeTime(s.Now()), id)
		if err != nil {
			return fmt.Errorf("claim execution: %w", err)
		}
		n, err := res.RowsAffected()
		claimed = n == 1
		return err
	})
	return claimed, err
}

// ReleaseExecution clears a claim whose operation failed to apply, so the
// proposal can be executed again.
func (s *Store) ReleaseExecution(ctx context.Context, id int64) error {
	return s.withTx(ctx, "release execution", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE proposals SET executed_at = NULL WHERE id = ?`, id)
		return err
	})
}

const proposalColumns = `
	SELECT id, proposer, operation, target_kind, target_id, new_kind, payload,
	       rationale, status, created_at, resolved_at, executed_at
	FROM proposals`

func getProposal(ctx context.Context, q querier, id int64) (schema.Proposal, bool, error) {
	p, err := scanProposal(q.QueryRowContext(ctx, proposalColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Proposal{}, false, nil
	}
	if err != nil {
		return schema.Proposal{}, false, err
	}
	return p, true, nil
}

func scanProposal(row rowScanner) (schema.Proposal, error) {
	var (
		p                                   schema.Proposal
		proposer, op, tkind, newKind, state string
		payload                             string
		created                             int64
		resolved, executed                  sql.NullInt64
	)
	err := row.Scan(&p.ID, &proposer, &op, &tkind, &p.Target.ID, &newKind, &payload,
		&p.Rationale, &state, &created, &resolved, &executed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.Proposal{}, err
		}
		return schema.Proposal{}, fmt.Errorf("scan proposal: %w", err)
	}
	p.Proposer = schema.AgentID(proposer)
	p.Operation = schema.Operation(op)
	p.Target.Kind = schema.TargetKind(tkind)
	p.Target.NewKind = schema.NodeKind(newKind)
	p.Status = schema.ProposalStatus(state)
	p.CreatedAt = decodeTime(created)
	p.ResolvedAt = decodeOptionalTime(resolved)
	p.ExecutedAt = decodeOptionalTime(executed)
	if p.Payload, err = decodeValue(payload); err != nil {
		return schema.Proposal{}, fmt.Errorf("proposal %d payload: %w", p.ID, err)
	}
	return p, nil
}
