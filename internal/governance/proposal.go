package governance

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/store"
	"github.com/roach88/stategraph/internal/value"
)

type proposalStore interface {
	CreateProposal(ctx context.Context, p schema.Proposal) (schema.Proposal, error)
	GetProposal(ctx context.Context, id int64) (schema.Proposal, bool, error)
	ListProposals(ctx context.Context, status schema.ProposalStatus) ([]schema.Proposal, error)
	WithdrawProposal(ctx context.Context, id int64) (schema.Proposal, error)
	ResolveProposal(ctx context.Context, id int64, status schema.ProposalStatus, deltas []store.ReputationDelta) (schema.Proposal, bool, error)
	ExpireProposals(ctx context.Context, cutoff time.Time) (int64, error)
	CleanupProposals(ctx context.Context, cutoff time.Time) (int64, error)
	Now() time.Time
}

// Draft is a proposal as submitted, before an id and status are assigned.
type Draft struct {
	Proposer  schema.AgentID
	Operation schema.Operation
	Target    schema.ProposalTarget
	Payload   value.Value
	Rationale string
}

// ProposalManager owns the proposal lifecycle.
type ProposalManager struct {
	store    proposalStore
	caps     *CapabilityConfig
	expiry   time.Duration
	recorder Recorder
	logger   *slog.Logger
}

// NewProposalManager creates a manager. expiry <= 0 disables ExpireOld.
func NewProposalManager(st proposalStore, caps *CapabilityConfig, expiry time.Duration, rec Recorder, logger *slog.Logger) *ProposalManager {
	if rec == nil {
		rec = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProposalManager{store: st, caps: caps, expiry: expiry, recorder: rec, logger: logger}
}

// Submit validates d, then stores it as a pending proposal with a fresh id.
// Observer agents cannot propose.
func (m *ProposalManager) Submit(ctx context.Context, d Draft) (schema.Proposal, error) {
	const op = "submit proposal"
	if err := d.Proposer.Validate(); err != nil {
		return schema.Proposal{}, fault.InvalidInputf(op, "%v", err)
	}
	if err := checkDraft(op, d); err != nil {
		m.logger.Debug("proposal rejected", "proposer", d.Proposer, "error", err)
		return schema.Proposal{}, err
	}

	caps, err := m.caps.Get(ctx, d.Proposer)
	if err != nil {
		return schema.Proposal{}, err
	}
	if caps.Mode == schema.ModeObserver {
		return schema.Proposal{}, fault.InvalidStatef(op, "observer agents cannot submit proposals")
	}

	p, err := m.store.CreateProposal(ctx, schema.Proposal{
		Proposer:  d.Proposer,
		Operation: d.Operation,
		Target:    d.Target,
		Payload:   d.Payload,
		Rationale: d.Rationale,
	})
	if err != nil {
		return schema.Proposal{}, err
	}
	m.recorder.ProposalSubmitted(p.Operation)
	m.logger.Info("proposal submitted",
		"id", p.ID,
		"proposer", p.Proposer,
		"operation", p.Operation,
		"target", p.Target.String(),
	)
	return p, nil
}

// Withdraw moves a pending proposal to withdrawn.
func (m *ProposalManager) Withdraw(ctx context.Context, id int64) (schema.Proposal, error) {
	p, err := m.store.WithdrawProposal(ctx, id)
	if err != nil {
		return schema.Proposal{}, err
	}
	m.recorder.ProposalResolved(p.Status)
	m.logger.Info("proposal withdrawn", "id", id)
	return p, nil
}

// Get looks up a proposal. Absence is reported by ok=false.
func (m *ProposalManager) Get(ctx context.Context, id int64) (schema.Proposal, bool, error) {
	return m.store.GetProposal(ctx, id)
}

// Pending returns the pending proposals in id order.
func (m *ProposalManager) Pending(ctx context.Context) ([]schema.Proposal, error) {
	return m.store.ListProposals(ctx, schema.StatusPending)
}

// All returns every retained proposal in id order.
func (m *ProposalManager) All(ctx context.Context) ([]schema.Proposal, error) {
	return m.store.ListProposals(ctx, "")
}

// List returns the proposals with the given status; "" means all.
func (m *ProposalManager) List(ctx context.Context, status schema.ProposalStatus) ([]schema.Proposal, error) {
	return m.store.ListProposals(ctx, status)
}

// Expiry returns the configured expiry horizon.
func (m *ProposalManager) Expiry() time.Duration {
	return m.expiry
}

// ExpiryCandidates lists the pending proposals ExpireOld would expire now.
func (m *ProposalManager) ExpiryCandidates(ctx context.Context) ([]schema.Proposal, error) {
	if m.expiry <= 0 {
		return []schema.Proposal{}, nil
	}
	cutoff := m.store.Now().Add(-m.expiry)
	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}
	out := []schema.Proposal{}
	for _, p := range pending {
		if p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

// ExpireOld moves pending proposals older than the expiry horizon to
// expired. Running it twice in a row expires nothing the second time.
func (m *ProposalManager) ExpireOld(ctx context.Context) (int64, error) {
	if m.expiry <= 0 {
		return 0, nil
	}
	n, err := m.store.ExpireProposals(ctx, m.store.Now().Add(-m.expiry))
	if err != nil {
		return 0, err
	}
	for i := int64(0); i < n; i++ {
		m.recorder.ProposalResolved(schema.StatusExpired)
	}
	if n > 0 {
		m.logger.Info("proposals expired", "count", n, "expiry", m.expiry)
	}
	return n, nil
}

// CleanupCandidates lists the terminal proposals Cleanup(retention) would
// remove now.
func (m *ProposalManager) CleanupCandidates(ctx context.Context, retention time.Duration) ([]schema.Proposal, error) {
	cutoff := m.store.Now().Add(-retention)
	all, err := m.All(ctx)
	if err != nil {
		return nil, err
	}
	out := []schema.Proposal{}
	for _, p := range all {
		if p.Status.Terminal() && p.ResolvedAt != nil && p.ResolvedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Cleanup permanently removes terminal proposals resolved more than
// retention ago, with their votes. Pending proposals are never removed.
func (m *ProposalManager) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention < 0 {
		return 0, fault.InvalidInputf("cleanup proposals", "retention must be >= 0, got %s", retention)
	}
	n, err := m.store.CleanupProposals(ctx, m.store.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	m.logger.Info("proposals cleaned up", "count", n, "retention", retention)
	return n, nil
}

// resolve flips a pending proposal to approved or rejected and applies the
// reputation deltas atomically with it. It is the only path to those two
// statuses. resolved is false when another caller got there first.
func (m *ProposalManager) resolve(ctx context.Context, id int64, outcome Outcome, deltas []store.ReputationDelta) (schema.Proposal, bool, error) {
	status, ok := outcome.Status()
	if !ok {
		return schema.Proposal{}, false, fault.InvalidInputf("resolve proposal", "outcome %s is not a resolution", outcome)
	}
	p, resolved, err := m.store.ResolveProposal(ctx, id, status, deltas)
	if err != nil || !resolved {
		return p, resolved, err
	}
	m.recorder.ProposalResolved(status)
	m.logger.Info("proposal resolved", "id", id, "status", status, "voters", len(deltas))
	return p, true, nil
}

// checkDraft enforces the target form each operation needs, and the link
// payload shape.
func checkDraft(op string, d Draft) error {
	if !d.Operation.Valid() {
		return fault.InvalidInputf(op, "unknown operation %q", d.Operation)
	}
	t := d.Target
	switch d.Operation {
	case schema.OpCreate:
		if !t.IsNew() || !t.NewKind.Valid() {
			return fault.InvalidInputf(op, "create needs a new:<kind> target, got %s", t)
		}
	case schema.OpUpdate, schema.OpDelete:
		if t.Kind != schema.TargetNode || t.ID == "" {
			return fault.InvalidInputf(op, "%s needs a node:<id> target, got %s", d.Operation, t)
		}
	case schema.OpLink:
		if t.Kind != schema.TargetNode || t.ID == "" {
			return fault.InvalidInputf(op, "link needs the source node as a node:<id> target, got %s", t)
		}
		if _, err := ParseLinkPayload(d.Payload); err != nil {
			return fault.InvalidInputf(op, "%v", err)
		}
	case schema.OpUnlink:
		if t.Kind != schema.TargetEdge || t.ID == "" {
			return fault.InvalidInputf(op, "unlink needs an edge:<id> target, got %s", t)
		}
	}
	if d.Payload != nil {
		if _, err := value.MarshalCanonical(d.Payload); err != nil {
			return fault.InvalidInputf(op, "payload is not encodable: %v", err)
		}
	}
	return nil
}
