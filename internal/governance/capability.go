package governance

import (
	"context"
	"log/slog"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

type capabilityStore interface {
	GetCapabilities(ctx context.Context, agent schema.AgentID) (schema.Capabilities, bool, error)
	PutCapabilities(ctx context.Context, c schema.Capabilities) error
	ListCapabilities(ctx context.Context) ([]schema.Capabilities, error)
	GetModule(ctx context.Context, name string) (schema.Module, bool, error)
}

// CapabilityConfig is the single source of truth for "who may do what".
// Both the direct-write path and vote casting consult it.
//
// Lookup order: a record stored at runtime, then a policy-file override,
// then the default (Direct for system, Proposal for everyone else).
// Module identities that were never registered resolve to a non-voting
// observer.
type CapabilityConfig struct {
	store        capabilityStore
	overrides    map[schema.AgentID]schema.Capabilities
	allowRuntime bool
	logger       *slog.Logger
}

// NewCapabilityConfig validates the policy overrides and returns the config.
func NewCapabilityConfig(st capabilityStore, overrides []schema.Capabilities, allowRuntime bool, logger *slog.Logger) (*CapabilityConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}
	byAgent := make(map[schema.AgentID]schema.Capabilities, len(overrides))
	for _, c := range overrides {
		if err := checkCapabilities("load capabilities", c); err != nil {
			return nil, err
		}
		byAgent[c.Agent] = c
	}
	return &CapabilityConfig{store: st, overrides: byAgent, allowRuntime: allowRuntime, logger: logger}, nil
}

// Get returns the effective record for agent. It never reports absence.
func (c *CapabilityConfig) Get(ctx context.Context, agent schema.AgentID) (schema.Capabilities, error) {
	stored, ok, err := c.store.GetCapabilities(ctx, agent)
	if err != nil {
		return schema.Capabilities{}, err
	}
	if ok {
		return stored, nil
	}
	if o, ok := c.overrides[agent]; ok {
		return o, nil
	}
	if agent.IsModule() {
		if _, registered, err := c.store.GetModule(ctx, agent.ModuleName()); err != nil {
			return schema.Capabilities{}, err
		} else if !registered {
			return schema.Capabilities{Agent: agent, Mode: schema.ModeObserver}, nil
		}
	}
	return schema.DefaultCapabilities(agent), nil
}

// Set stores an explicit record. It fails with InvalidState when the policy
// disables runtime changes or the agent is an unregistered or retired
// module.
func (c *CapabilityConfig) Set(ctx context.Context, caps schema.Capabilities) error {
	const op = "set capabilities"
	if !c.allowRuntime {
		return fault.InvalidStatef(op, "runtime capability changes are disabled by policy")
	}
	if err := checkCapabilities(op, caps); err != nil {
		return err
	}
	if caps.Agent.IsModule() {
		m, ok, err := c.store.GetModule(ctx, caps.Agent.ModuleName())
		if err != nil {
			return err
		}
		if !ok {
			return fault.NotFoundf(op, "module %s is not registered", caps.Agent.ModuleName())
		}
		if m.RetiredAt != nil {
			return fault.InvalidStatef(op, "module %s is retired", m.Name)
		}
	}
	if err := c.store.PutCapabilities(ctx, caps); err != nil {
		return err
	}
	c.logger.Info("capabilities updated",
		"agent", caps.Agent,
		"mode", caps.Mode,
		"can_vote", caps.CanVote,
		"vote_weight", caps.VoteWeight,
	)
	return nil
}

// List returns the effective record of every built-in identity followed by
// every explicitly configured identity, in agent order within each group.
func (c *CapabilityConfig) List(ctx context.Context) ([]schema.Capabilities, error) {
	seen := map[schema.AgentID]bool{}
	var out []schema.Capabilities
	for _, a := range schema.BuiltinAgents() {
		caps, err := c.Get(ctx, a)
		if err != nil {
			return nil, err
		}
		seen[a] = true
		out = append(out, caps)
	}
	stored, err := c.store.ListCapabilities(ctx)
	if err != nil {
		return nil, err
	}
	for _, caps := range stored {
		if !seen[caps.Agent] {
			seen[caps.Agent] = true
			out = append(out, caps)
		}
	}
	return out, nil
}

// RuntimeChangesAllowed reports whether Set is enabled.
func (c *CapabilityConfig) RuntimeChangesAllowed() bool {
	return c.allowRuntime
}

func checkCapabilities(op string, caps schema.Capabilities) error {
	if err := caps.Agent.Validate(); err != nil {
		return fault.InvalidInputf(op, "%v", err)
	}
	if err := ValidateStruct(caps); err != nil {
		return fault.InvalidInputf(op, "capabilities for %s: %v", caps.Agent, err)
	}
	if caps.Mode == schema.ModeObserver && caps.CanVote {
		return fault.InvalidInputf(op, "observer agents cannot vote")
	}
	return nil
}
