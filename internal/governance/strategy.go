package governance

import (
	"fmt"

	"github.com/roach88/stategraph/internal/schema"
)

// Outcome is what a strategy decides for a tally.
type Outcome string

const (
	Undecided Outcome = "undecided"
	Approved  Outcome = "approved"
	Rejected  Outcome = "rejected"
)

// Status maps a decisive outcome to the proposal status it produces.
func (o Outcome) Status() (schema.ProposalStatus, bool) {
	switch o {
	case Approved:
		return schema.StatusApproved, true
	case Rejected:
		return schema.StatusRejected, true
	}
	return "", false
}

// Decision maps a decisive outcome to the vote decision that matches it.
func (o Outcome) Decision() (schema.VoteDecision, bool) {
	switch o {
	case Approved:
		return schema.Approve, true
	case Rejected:
		return schema.Reject, true
	}
	return "", false
}

// Tally is the weighted count of the effective votes on a proposal.
// Abstentions are counted but carry no weight.
type Tally struct {
	ProposalID    int64   `json:"proposal_id" yaml:"proposal_id"`
	Approvals     int     `json:"approvals" yaml:"approvals"`
	Rejections    int     `json:"rejections" yaml:"rejections"`
	Abstentions   int     `json:"abstentions" yaml:"abstentions"`
	ApproveWeight float64 `json:"approve_weight" yaml:"approve_weight"`
	RejectWeight  float64 `json:"reject_weight" yaml:"reject_weight"`
}

// Decisive is the number of approve and reject votes.
func (t Tally) Decisive() int {
	return t.Approvals + t.Rejections
}

// CastWeight is the total approve and reject weight.
func (t Tally) CastWeight() float64 {
	return t.ApproveWeight + t.RejectWeight
}

func (t *Tally) add(d schema.VoteDecision, weight float64) {
	switch d {
	case schema.Approve:
		t.Approvals++
		t.ApproveWeight += weight
	case schema.Reject:
		t.Rejections++
		t.RejectWeight += weight
	case schema.Abstain:
		t.Abstentions++
	}
}

// Strategy maps a tally to an outcome. Implementations must be
// deterministic and must return Undecided on ties.
type Strategy interface {
	Name() string
	Evaluate(t Tally) Outcome
}

// SimpleMajority resolves once at least Quorum approve/reject votes exist;
// the heavier side wins.
type SimpleMajority struct {
	Quorum int
}

func (s SimpleMajority) Name() string { return "simple_majority" }

func (s SimpleMajority) Evaluate(t Tally) Outcome {
	if t.Decisive() < max(s.Quorum, 1) {
		return Undecided
	}
	return heavierSide(t)
}

// WeightedQuorum resolves once the cast approve+reject weight reaches
// Threshold; the heavier side wins.
type WeightedQuorum struct {
	Threshold float64
}

func (s WeightedQuorum) Name() string { return "weighted_quorum" }

func (s WeightedQuorum) Evaluate(t Tally) Outcome {
	if t.Decisive() == 0 || t.CastWeight() < s.Threshold {
		return Undecided
	}
	return heavierSide(t)
}

// Unanimous rejects on the first reject vote and approves once Quorum
// approvals exist with no rejection.
type Unanimous struct {
	Quorum int
}

func (s Unanimous) Name() string { return "unanimous" }

func (s Unanimous) Evaluate(t Tally) Outcome {
	if t.Rejections > 0 {
		return Rejected
	}
	if t.Approvals >= max(s.Quorum, 1) {
		return Approved
	}
	return Undecided
}

// Supermajority resolves once Quorum decisive votes exist and one side
// holds at least Fraction of the cast weight. Fraction must be above 0.5 so
// the two sides cannot both qualify.
type Supermajority struct {
	Fraction float64
	Quorum   int
}

func (s Supermajority) Name() string { return "supermajority" }

func (s Supermajority) Evaluate(t Tally) Outcome {
	total := t.CastWeight()
	if t.Decisive() < max(s.Quorum, 1) || total <= 0 {
		return Undecided
	}
	switch {
	case t.ApproveWeight/total >= s.Fraction:
		return Approved
	case t.RejectWeight/total >= s.Fraction:
		return Rejected
	}
	return Undecided
}

func heavierSide(t Tally) Outcome {
	switch {
	case t.ApproveWeight > t.RejectWeight:
		return Approved
	case t.RejectWeight > t.ApproveWeight:
		return Rejected
	}
	return Undecided
}

// StrategyConfig is the declarative form of a strategy, as read from the
// policy file.
type StrategyConfig struct {
	Kind      string  `json:"kind" yaml:"kind" validate:"oneof=simple_majority weighted_quorum unanimous supermajority"`
	Quorum    int     `json:"quorum" yaml:"quorum" validate:"gte=0"`
	Threshold float64 `json:"threshold" yaml:"threshold" validate:"gte=0"`
	Fraction  float64 `json:"fraction" yaml:"fraction" validate:"gte=0,lte=1"`
}

// DefaultStrategyConfig is simple majority with a quorum of two votes.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{Kind: "simple_majority", Quorum: 2}
}

// Build validates c and returns the strategy it describes.
func (c StrategyConfig) Build() (Strategy, error) {
	if err := ValidateStruct(c); err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	switch c.Kind {
	case "simple_majority":
		return SimpleMajority{Quorum: c.Quorum}, nil
	case "weighted_quorum":
		if c.Threshold <= 0 {
			return nil, fmt.Errorf("strategy: weighted_quorum needs threshold > 0")
		}
		return WeightedQuorum{Threshold: c.Threshold}, nil
	case "unanimous":
		return Unanimous{Quorum: c.Quorum}, nil
	case "supermajority":
		if c.Fraction <= 0.5 {
			return nil, fmt.Errorf("strategy: supermajority needs fraction > 0.5, got %v", c.Fraction)
		}
		return Supermajority{Fraction: c.Fraction, Quorum: c.Quorum}, nil
	}
	return nil, fmt.Errorf("strategy: unknown kind %q", c.Kind)
}
