package governance

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/store"
)

type reputationStore interface {
	GetReputation(ctx context.Context, agent schema.AgentID) (schema.Reputation, bool, error)
	EnsureReputation(ctx context.Context, agent schema.AgentID) (schema.Reputation, error)
	ListReputations(ctx context.Context) ([]schema.Reputation, error)
	DecayReputations(ctx context.Context, factor float64) (int64, error)
	ResetReputation(ctx context.Context, agent schema.AgentID) (schema.Reputation, error)
	ResetAllReputations(ctx context.Context) (int64, error)
}

// ScorePolicy is the reputation curve. An agent with c correct votes out of
// n scores decay * max(0, c*Correct + (n-c)*Incorrect), where decay is the
// product of every decay factor applied since the last reset. Correct must
// not be below Incorrect, so at a fixed volume a more accurate agent never
// scores lower.
type ScorePolicy struct {
	Correct   float64 `json:"correct" yaml:"correct" validate:"gtefield=Incorrect"`
	Incorrect float64 `json:"incorrect" yaml:"incorrect"`
}

// DefaultScorePolicy rewards a correct vote with +1 and penalizes an
// incorrect one with -0.5.
func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{Correct: 1.0, Incorrect: -0.5}
}

// Score returns the undecayed score for correct out of total votes.
func (p ScorePolicy) Score(correct, total int64) float64 {
	return p.curve().Score(correct, total)
}

func (p ScorePolicy) curve() store.ScoreCurve {
	return store.ScoreCurve{Correct: p.Correct, Incorrect: p.Incorrect}
}

// ReputationScaling optionally scales a voter's weight by their accuracy:
// weight * (1 + Bonus*accuracy), once the voter has MinVotes resolved votes.
type ReputationScaling struct {
	Enabled  bool    `json:"enabled" yaml:"enabled"`
	Bonus    float64 `json:"bonus" yaml:"bonus" validate:"gte=0"`
	MinVotes int64   `json:"min_votes" yaml:"min_votes" validate:"gte=0"`
}

// Apply returns the scaled weight for a voter with reputation r. It scales
// by accuracy rather than score: accuracy is bounded to [0, 1] and ignores
// decay, so Bonus caps the boost and sheer vote volume cannot buy weight.
func (s ReputationScaling) Apply(weight float64, r schema.Reputation) float64 {
	if !s.Enabled || r.TotalVotes < s.MinVotes {
		return weight
	}
	return weight * (1 + s.Bonus*r.Accuracy())
}

// Leaderboard orderings.
const (
	SortByScore    = "score"
	SortByAccuracy = "accuracy"
	SortByVotes    = "votes"
)

// ReputationTracker reads and maintains voting track records. Records are
// only updated by resolution, inside the same transaction as the status
// change.
type ReputationTracker struct {
	store  reputationStore
	policy ScorePolicy
	logger *slog.Logger
}

// NewReputationTracker creates a tracker.
func NewReputationTracker(st reputationStore, policy ScorePolicy, logger *slog.Logger) *ReputationTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReputationTracker{store: st, policy: policy, logger: logger}
}

// Get returns agent's record. ok is false if the agent never voted.
func (t *ReputationTracker) Get(ctx context.Context, agent schema.AgentID) (schema.Reputation, bool, error) {
	return t.store.GetReputation(ctx, agent)
}

// GetOrCreate returns agent's record, creating a zero record if needed.
func (t *ReputationTracker) GetOrCreate(ctx context.Context, agent schema.AgentID) (schema.Reputation, error) {
	if err := agent.Validate(); err != nil {
		return schema.Reputation{}, fault.InvalidInputf("get reputation", "%v", err)
	}
	return t.store.EnsureReputation(ctx, agent)
}

// Lookup returns agent's record or a zero record. It never writes.
func (t *ReputationTracker) Lookup(ctx context.Context, agent schema.AgentID) (schema.Reputation, error) {
	r, ok, err := t.store.GetReputation(ctx, agent)
	if err != nil {
		return schema.Reputation{}, err
	}
	if !ok {
		return schema.Reputation{Agent: agent}, nil
	}
	return r, nil
}

// Leaderboard returns records sorted descending by the given key, ties
// broken by agent. limit <= 0 returns all.
func (t *ReputationTracker) Leaderboard(ctx context.Context, sortBy string, limit int) ([]schema.Reputation, error) {
	var key func(schema.Reputation) float64
	switch sortBy {
	case "", SortByScore:
		key = func(r schema.Reputation) float64 { return r.Score }
	case SortByAccuracy:
		key = schema.Reputation.Accuracy
	case SortByVotes:
		key = func(r schema.Reputation) float64 { return float64(r.TotalVotes) }
	default:
		return nil, fault.InvalidInputf("leaderboard", "unknown sort %q (valid: score, accuracy, votes)", sortBy)
	}

	all, err := t.store.ListReputations(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(all, func(a, b schema.Reputation) int {
		ka, kb := key(a), key(b)
		switch {
		case ka > kb:
			return -1
		case ka < kb:
			return 1
		}
		return strings.Compare(string(a.Agent), string(b.Agent))
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ApplyDecayAll multiplies every score by factor. Vote counts are kept.
func (t *ReputationTracker) ApplyDecayAll(ctx context.Context, factor float64) (int64, error) {
	if factor < 0 || factor > 1 {
		return 0, fault.InvalidInputf("decay reputation", "decay factor must be between 0 and 1, got %v", factor)
	}
	n, err := t.store.DecayReputations(ctx, factor)
	if err != nil {
		return 0, err
	}
	t.logger.Info("reputation decayed", "factor", factor, "agents", n)
	return n, nil
}

// Reset zeroes agent's record.
func (t *ReputationTracker) Reset(ctx context.Context, agent schema.AgentID) (schema.Reputation, error) {
	if err := agent.Validate(); err != nil {
		return schema.Reputation{}, fault.InvalidInputf("reset reputation", "%v", err)
	}
	r, err := t.store.ResetReputation(ctx, agent)
	if err != nil {
		return schema.Reputation{}, err
	}
	t.logger.Info("reputation reset", "agent", agent)
	return r, nil
}

// ResetAll zeroes every record.
func (t *ReputationTracker) ResetAll(ctx context.Context) (int64, error) {
	n, err := t.store.ResetAllReputations(ctx)
	if err != nil {
		return 0, err
	}
	t.logger.Info("reputation reset", "agents", n)
	return n, nil
}

// deltas computes one record change per decisive vote. Abstentions are
// neither correct nor incorrect and are skipped.
func (t *ReputationTracker) deltas(votes []schema.Vote, outcome Outcome) []store.ReputationDelta {
	winning, ok := outcome.Decision()
	if !ok {
		return nil
	}
	out := make([]store.ReputationDelta, 0, len(votes))
	for _, v := range votes {
		if v.Decision == schema.Abstain {
			continue
		}
		out = append(out, store.ReputationDelta{
			Agent:   v.Voter,
			Correct: v.Decision == winning,
			Curve:   t.policy.curve(),
		})
	}
	return out
}
