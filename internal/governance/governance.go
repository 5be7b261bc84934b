package governance

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/store"
)

// Settings is the governance policy in effect for a process.
type Settings struct {
	Strategy            StrategyConfig
	Scaling             ReputationScaling
	Scoring             ScorePolicy
	ProposalExpiry      time.Duration
	AllowRuntimeChanges bool
	AllowSelfVote       bool
	Capabilities        []schema.Capabilities // policy-file overrides
}

// DefaultSettings is simple majority (quorum 2), no reputation scaling,
// a seven day proposal expiry, runtime capability changes allowed and self
// votes allowed.
func DefaultSettings() Settings {
	return Settings{
		Strategy:            DefaultStrategyConfig(),
		Scoring:             DefaultScorePolicy(),
		ProposalExpiry:      7 * 24 * time.Hour,
		AllowRuntimeChanges: true,
		AllowSelfVote:       true,
	}
}

// Recorder receives governance counters. The metrics package provides the
// Prometheus implementation.
type Recorder interface {
	ProposalSubmitted(op schema.Operation)
	ProposalResolved(status schema.ProposalStatus)
	VoteCast(d schema.VoteDecision)
}

type nopRecorder struct{}

func (nopRecorder) ProposalSubmitted(schema.Operation)     {}
func (nopRecorder) ProposalResolved(schema.ProposalStatus) {}
func (nopRecorder) VoteCast(schema.VoteDecision)           {}

// Option configures a Governance.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	recorder Recorder
}

// WithLogger sets the logger used by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// Governance is the governance context: one per process, built by the
// entry point and handed to every command.
type Governance struct {
	Capabilities *CapabilityConfig
	Proposals    *ProposalManager
	Voting       *Coordinator
	Reputation   *ReputationTracker
	Registry     *Registry
	Executor     *Executor

	settings Settings
}

// New wires the governance components over st.
func New(st *store.Store, settings Settings, opts ...Option) (*Governance, error) {
	o := options{logger: slog.Default(), recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}

	strategy, err := settings.Strategy.Build()
	if err != nil {
		return nil, fmt.Errorf("governance: %w", err)
	}
	if err := ValidateStruct(settings.Scaling); err != nil {
		return nil, fmt.Errorf("governance: reputation scaling: %w", err)
	}
	if err := ValidateStruct(settings.Scoring); err != nil {
		return nil, fmt.Errorf("governance: reputation score: %w", err)
	}

	caps, err := NewCapabilityConfig(st, settings.Capabilities, settings.AllowRuntimeChanges, o.logger)
	if err != nil {
		return nil, fmt.Errorf("governance: %w", err)
	}
	rep := NewReputationTracker(st, settings.Scoring, o.logger)
	proposals := NewProposalManager(st, caps, settings.ProposalExpiry, o.recorder, o.logger)
	voting := NewCoordinator(st, proposals, caps, rep, strategy, CoordinatorConfig{
		Scaling:       settings.Scaling,
		AllowSelfVote: settings.AllowSelfVote,
	}, o.recorder, o.logger)

	return &Governance{
		Capabilities: caps,
		Proposals:    proposals,
		Voting:       voting,
		Reputation:   rep,
		Registry:     NewRegistry(st, caps, o.logger),
		Executor:     NewExecutor(st, o.logger),
		settings:     settings,
	}, nil
}

// Settings returns the policy the context was built with.
func (g *Governance) Settings() Settings {
	return g.settings
}
