package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/stategraph/internal/value"
)

// CapabilityMode is an agent's mutation policy.
type CapabilityMode string

const (
	// ModeDirect agents mutate the store immediately.
	ModeDirect CapabilityMode = "direct"
	// ModeProposal agents must route every mutation through a proposal.
	ModeProposal CapabilityMode = "proposal"
	// ModeObserver agents may read but never mutate, propose or vote.
	ModeObserver CapabilityMode = "observer"
)

// ParseCapabilityMode parses a mode name case-insensitively.
func ParseCapabilityMode(s string) (CapabilityMode, error) {
	m := CapabilityMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeDirect, ModeProposal, ModeObserver:
		return m, nil
	}
	return "", fmt.Errorf("unknown capability mode %q (valid: direct, proposal, observer)", s)
}

// Capabilities is the per-agent capability record.
type Capabilities struct {
	Agent      AgentID        `json:"agent" yaml:"agent" validate:"required"`
	Mode       CapabilityMode `json:"mode" yaml:"mode" validate:"oneof=direct proposal observer"`
	CanVote    bool           `json:"can_vote" yaml:"can_vote"`
	VoteWeight float64        `json:"vote_weight" yaml:"vote_weight" validate:"gte=0"`
}

// DefaultCapabilities is the record used for an agent with no explicit
// configuration: the system identity is Direct, everyone else Proposal,
// all may vote with weight 1.
func DefaultCapabilities(agent AgentID) Capabilities {
	mode := ModeProposal
	if agent == System {
		mode = ModeDirect
	}
	return Capabilities{Agent: agent, Mode: mode, CanVote: true, VoteWeight: 1.0}
}

// ProposalStatus is the proposal state machine:
// pending -> approved | rejected | withdrawn | expired. Terminal states are final.
type ProposalStatus string

const (
	StatusPending   ProposalStatus = "pending"
	StatusApproved  ProposalStatus = "approved"
	StatusRejected  ProposalStatus = "rejected"
	StatusWithdrawn ProposalStatus = "withdrawn"
	StatusExpired   ProposalStatus = "expired"
)

// Terminal reports whether no transition may leave s.
func (s ProposalStatus) Terminal() bool {
	return s != StatusPending
}

// ParseProposalStatus parses a status name.
func ParseProposalStatus(s string) (ProposalStatus, error) {
	st := ProposalStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusApproved, StatusRejected, StatusWithdrawn, StatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown proposal status %q", s)
}

// ProposalTarget identifies what a proposal mutates: an existing node or
// edge by id, or a new node of a given kind when no id exists yet.
type ProposalTarget struct {
	Kind    TargetKind `json:"kind" yaml:"kind"`
	ID      string     `json:"id,omitempty" yaml:"id,omitempty"`
	NewKind NodeKind   `json:"new_kind,omitempty" yaml:"new_kind,omitempty"`
}

// IsNew reports whether the target declares a node that does not exist yet.
func (t ProposalTarget) IsNew() bool {
	return t.ID == "" && t.NewKind != ""
}

func (t ProposalTarget) String() string {
	if t.IsNew() {
		return "new:" + string(t.NewKind)
	}
	return string(t.Kind) + ":" + t.ID
}

// ParseTarget parses "node:<id>", "edge:<id>" or "new:<kind>".
func ParseTarget(s string) (ProposalTarget, error) {
	prefix, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || rest == "" {
		return ProposalTarget{}, fmt.Errorf("invalid target %q (use node:ID, edge:ID, or new:kind)", s)
	}
	switch strings.ToLower(prefix) {
	case "node":
		return ProposalTarget{Kind: TargetNode, ID: rest}, nil
	case "edge":
		return ProposalTarget{Kind: TargetEdge, ID: rest}, nil
	case "new":
		kind, err := ParseNodeKind(rest)
		if err != nil {
			return ProposalTarget{}, err
		}
		return ProposalTarget{Kind: TargetNode, NewKind: kind}, nil
	}
	return ProposalTarget{}, fmt.Errorf("invalid target %q (use node:ID, edge:ID, or new:kind)", s)
}

// Proposal is a pending, not-yet-applied store mutation.
type Proposal struct {
	ID         int64          `json:"id" yaml:"id"`
	Proposer   AgentID        `json:"proposer" yaml:"proposer"`
	Operation  Operation      `json:"operation" yaml:"operation"`
	Target     ProposalTarget `json:"target" yaml:"target"`
	Payload    value.Value    `json:"payload" yaml:"payload"`
	Rationale  string         `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Status     ProposalStatus `json:"status" yaml:"status"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty" yaml:"resolved_at,omitempty"`
	ExecutedAt *time.Time     `json:"executed_at,omitempty" yaml:"executed_at,omitempty"`
}

// VoteDecision is an agent's stance on a proposal.
type VoteDecision string

const (
	Approve VoteDecision = "approve"
	Reject  VoteDecision = "reject"
	Abstain VoteDecision = "abstain"
)

// ParseVoteDecision parses a decision name.
func ParseVoteDecision(s string) (VoteDecision, error) {
	d := VoteDecision(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case Approve, Reject, Abstain:
		return d, nil
	}
	return "", fmt.Errorf("unknown vote decision %q (valid: approve, reject, abstain)", s)
}

// Vote is one voter's effective ballot on a proposal. A later vote from
// the same voter replaces the earlier one; Seq keeps the position of the
// first cast for display ordering.
type Vote struct {
	ProposalID int64        `json:"proposal_id" yaml:"proposal_id"`
	Voter      AgentID      `json:"voter" yaml:"voter"`
	Decision   VoteDecision `json:"decision" yaml:"decision"`
	Reason     string       `json:"reason,omitempty" yaml:"reason,omitempty"`
	CastAt     time.Time    `json:"cast_at" yaml:"cast_at"`
	Seq        int64        `json:"seq" yaml:"seq"`
}

// Reputation is an agent's voting track record.
type Reputation struct {
	Agent        AgentID   `json:"agent" yaml:"agent"`
	Score        float64   `json:"score" yaml:"score"`
	TotalVotes   int64     `json:"total_votes" yaml:"total_votes"`
	CorrectVotes int64     `json:"correct_votes" yaml:"correct_votes"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// Accuracy is CorrectVotes / TotalVotes, or 0 when no votes were recorded.
func (r Reputation) Accuracy() float64 {
	if r.TotalVotes == 0 {
		return 0
	}
	return float64(r.CorrectVotes) / float64(r.TotalVotes)
}

// Module is a registered extension identity.
type Module struct {
	Name         string         `json:"name" yaml:"name"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	Mode         CapabilityMode `json:"mode" yaml:"mode"`
	RegisteredAt time.Time      `json:"registered_at" yaml:"registered_at"`
	RetiredAt    *time.Time     `json:"retired_at,omitempty" yaml:"retired_at,omitempty"`
}

// Agent returns the module's identity.
func (m Module) Agent() AgentID {
	return ModuleAgent(m.Name)
}
