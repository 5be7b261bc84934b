package governance

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

type voteStore interface {
	GetProposal(ctx context.Context, id int64) (schema.Proposal, bool, error)
	CastVote(ctx context.Context, v schema.Vote) (schema.Vote, bool, error)
	Votes(ctx context.Context, proposalID int64) ([]schema.Vote, error)
}

// CoordinatorConfig carries the voting policy knobs.
type CoordinatorConfig struct {
	Scaling       ReputationScaling
	AllowSelfVote bool
}

// VoteResult reports what a cast vote did.
type VoteResult struct {
	Vote     schema.Vote     `json:"vote" yaml:"vote"`
	Replaced bool            `json:"replaced" yaml:"replaced"`
	Tally    Tally           `json:"tally" yaml:"tally"`
	Outcome  Outcome         `json:"outcome" yaml:"outcome"`
	Resolved bool            `json:"resolved" yaml:"resolved"`
	Proposal schema.Proposal `json:"proposal" yaml:"proposal"`
}

// Coordinator records votes and resolves proposals once the strategy
// decides. Votes on the same proposal are serialized in-process; across
// processes the store's conditional status update keeps resolution
// exactly-once.
type Coordinator struct {
	store     voteStore
	proposals *ProposalManager
	caps      *CapabilityConfig
	rep       *ReputationTracker
	strategy  Strategy
	cfg       CoordinatorConfig
	recorder  Recorder
	logger    *slog.Logger
	locks     keyedMutex
}

// NewCoordinator creates a coordinator.
func NewCoordinator(
	st voteStore,
	proposals *ProposalManager,
	caps *CapabilityConfig,
	rep *ReputationTracker,
	strategy Strategy,
	cfg CoordinatorConfig,
	rec Recorder,
	logger *slog.Logger,
) *Coordinator {
	if rec == nil {
		rec = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:     st,
		proposals: proposals,
		caps:      caps,
		rep:       rep,
		strategy:  strategy,
		cfg:       cfg,
		recorder:  rec,
		logger:    logger,
	}
}

// Strategy returns the strategy in effect.
func (c *Coordinator) Strategy() Strategy {
	return c.strategy
}

// CastVote records voter's decision on a pending proposal, replacing any
// earlier vote from the same voter, then re-evaluates the tally and
// resolves the proposal if the strategy decides.
func (c *Coordinator) CastVote(ctx context.Context, proposalID int64, voter schema.AgentID, decision schema.VoteDecision, reason string) (VoteResult, error) {
	const op = "cast vote"
	if err := voter.Validate(); err != nil {
		return VoteResult{}, fault.InvalidInputf(op, "%v", err)
	}
	decision, err := schema.ParseVoteDecision(string(decision))
	if err != nil {
		return VoteResult{}, fault.InvalidInputf(op, "%v", err)
	}

	unlock := c.locks.lock(proposalID)
	defer unlock()

	p, ok, err := c.store.GetProposal(ctx, proposalID)
	if err != nil {
		return VoteResult{}, err
	}
	if !ok {
		return VoteResult{}, fault.NotFoundf(op, "proposal %d not found", proposalID)
	}
	if p.Status != schema.StatusPending {
		return VoteResult{}, fault.InvalidStatef(op, "proposal %d already resolved (status %s)", p.ID, p.Status)
	}
	if !c.cfg.AllowSelfVote && voter == p.Proposer {
		return VoteResult{}, fault.InvalidStatef(op, "agent %s cannot vote on its own proposal", voter)
	}
	caps, err := c.caps.Get(ctx, voter)
	if err != nil {
		return VoteResult{}, err
	}
	if caps.Mode == schema.ModeObserver || !caps.CanVote {
		return VoteResult{}, fault.InvalidStatef(op, "agent %s lacks vote capability", voter)
	}

	stored, replaced, err := c.store.CastVote(ctx, schema.Vote{
		ProposalID: proposalID,
		Voter:      voter,
		Decision:   decision,
		Reason:     reason,
	})
	if err != nil {
		return VoteResult{}, err
	}
	c.recorder.VoteCast(decision)
	c.logger.Info("vote cast",
		"proposal", proposalID,
		"voter", voter,
		"decision", decision,
		"replaced", replaced,
	)

	tally, counted, err := c.tally(ctx, proposalID)
	if err != nil {
		return VoteResult{}, err
	}
	res := VoteResult{
		Vote:     stored,
		Replaced: replaced,
		Tally:    tally,
		Outcome:  c.strategy.Evaluate(tally),
		Proposal: p,
	}
	if res.Outcome == Undecided {
		return res, nil
	}

	resolvedP, resolved, err := c.proposals.resolve(ctx, proposalID, res.Outcome, c.rep.deltas(counted, res.Outcome))
	if err != nil {
		return VoteResult{}, err
	}
	res.Resolved = resolved
	if resolved {
		res.Proposal = resolvedP
	} else if cur, ok, err := c.store.GetProposal(ctx, proposalID); err == nil && ok {
		// Another process resolved it between our vote and our update.
		res.Proposal = cur
	}
	return res, nil
}

// Votes returns the effective votes on a proposal, in first-cast order.
func (c *Coordinator) Votes(ctx context.Context, proposalID int64) ([]schema.Vote, error) {
	if _, err := c.requireProposal(ctx, "list votes", proposalID); err != nil {
		return nil, err
	}
	return c.store.Votes(ctx, proposalID)
}

// Tally computes the current weighted count for a proposal.
func (c *Coordinator) Tally(ctx context.Context, proposalID int64) (Tally, error) {
	if _, err := c.requireProposal(ctx, "tally votes", proposalID); err != nil {
		return Tally{}, err
	}
	t, _, err := c.tally(ctx, proposalID)
	return t, err
}

func (c *Coordinator) requireProposal(ctx context.Context, op string, id int64) (schema.Proposal, error) {
	p, ok, err := c.store.GetProposal(ctx, id)
	if err != nil {
		return schema.Proposal{}, err
	}
	if !ok {
		return schema.Proposal{}, fault.NotFoundf(op, "proposal %d not found", id)
	}
	return p, nil
}

// tally weighs each stored vote by the voter's current capabilities and
// reputation. Votes from agents that have since lost the vote capability
// are left out, both of the count and of reputation updates.
func (c *Coordinator) tally(ctx context.Context, proposalID int64) (Tally, []schema.Vote, error) {
	votes, err := c.store.Votes(ctx, proposalID)
	if err != nil {
		return Tally{}, nil, err
	}
	t := Tally{ProposalID: proposalID}
	counted := make([]schema.Vote, 0, len(votes))
	for _, v := range votes {
		caps, err := c.caps.Get(ctx, v.Voter)
		if err != nil {
			return Tally{}, nil, err
		}
		if caps.Mode == schema.ModeObserver || !caps.CanVote {
			continue
		}
		weight := caps.VoteWeight
		if c.cfg.Scaling.Enabled {
			r, err := c.rep.Lookup(ctx, v.Voter)
			if err != nil {
				return Tally{}, nil, err
			}
			weight = c.cfg.Scaling.Apply(weight, r)
		}
		t.add(v.Decision, weight)
		counted = append(counted, v)
	}
	return t, counted, nil
}

// keyedMutex hands out one mutex per proposal id and drops it once no
// caller holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id int64) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*refMutex)
	}
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
