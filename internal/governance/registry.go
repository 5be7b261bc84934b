package governance

import (
	"context"
	"log/slog"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

type registryStore interface {
	RegisterModule(ctx context.Context, m schema.Module, caps schema.Capabilities) (schema.Module, error)
	RetireModule(ctx context.Context, name string) (schema.Module, error)
	GetModule(ctx context.Context, name string) (schema.Module, bool, error)
	ListModules(ctx context.Context, includeRetired bool) ([]schema.Module, error)
}

// AgentInfo is one row of the agent listing.
type AgentInfo struct {
	Agent        schema.AgentID      `json:"agent" yaml:"agent"`
	Builtin      bool                `json:"builtin" yaml:"builtin"`
	Module       *schema.Module      `json:"module,omitempty" yaml:"module,omitempty"`
	Capabilities schema.Capabilities `json:"capabilities" yaml:"capabilities"`
}

// Registry manages extension identities. Built-in identities always exist;
// module identities are registered once and retired, never deleted.
type Registry struct {
	store  registryStore
	caps   *CapabilityConfig
	logger *slog.Logger
}

// NewRegistry creates a registry.
func NewRegistry(st registryStore, caps *CapabilityConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: st, caps: caps, logger: logger}
}

// RegisterModule creates the identity module:<name> with the given mode.
// Non-observer modules may vote with weight 1.
func (r *Registry) RegisterModule(ctx context.Context, name string, mode schema.CapabilityMode, description string) (schema.Module, error) {
	const op = "register module"
	if err := schema.ValidateModuleName(name); err != nil {
		return schema.Module{}, fault.InvalidInputf(op, "%v", err)
	}
	if _, err := schema.ParseCapabilityMode(string(mode)); err != nil {
		return schema.Module{}, fault.InvalidInputf(op, "%v", err)
	}

	caps := schema.Capabilities{Agent: schema.ModuleAgent(name), Mode: mode}
	if mode != schema.ModeObserver {
		caps.CanVote = true
		caps.VoteWeight = 1.0
	}
	m, err := r.store.RegisterModule(ctx, schema.Module{Name: name, Description: description, Mode: mode}, caps)
	if err != nil {
		return schema.Module{}, err
	}
	r.logger.Info("module registered", "agent", m.Agent(), "mode", mode)
	return m, nil
}

// UnregisterModule retires a module. Its identity stays reserved and is
// demoted to a non-voting observer.
func (r *Registry) UnregisterModule(ctx context.Context, name string) (schema.Module, error) {
	m, err := r.store.RetireModule(ctx, name)
	if err != nil {
		return schema.Module{}, err
	}
	r.logger.Info("module retired", "agent", m.Agent())
	return m, nil
}

// Module looks up a module by name, retired or not.
func (r *Registry) Module(ctx context.Context, name string) (schema.Module, bool, error) {
	return r.store.GetModule(ctx, name)
}

// Resolve checks that agent may act: built-ins always may, modules only
// while registered and not retired.
func (r *Registry) Resolve(ctx context.Context, agent schema.AgentID) (schema.AgentID, error) {
	const op = "resolve agent"
	if err := agent.Validate(); err != nil {
		return "", fault.InvalidInputf(op, "%v", err)
	}
	if agent.IsBuiltin() {
		return agent, nil
	}
	m, ok, err := r.store.GetModule(ctx, agent.ModuleName())
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fault.InvalidInputf(op, "module %s is not registered", agent.ModuleName())
	}
	if m.RetiredAt != nil {
		return "", fault.InvalidStatef(op, "module %s is retired", m.Name)
	}
	return agent, nil
}

// ListAgents returns every built-in identity followed by the registered
// modules, each with its effective capabilities.
func (r *Registry) ListAgents(ctx context.Context, includeRetired bool) ([]AgentInfo, error) {
	var out []AgentInfo
	for _, a := range schema.BuiltinAgents() {
		caps, err := r.caps.Get(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, AgentInfo{Agent: a, Builtin: true, Capabilities: caps})
	}

	modules, err := r.store.ListModules(ctx, includeRetired)
	if err != nil {
		return nil, err
	}
	for i := range modules {
		m := modules[i]
		caps, err := r.caps.Get(ctx, m.Agent())
		if err != nil {
			return nil, err
		}
		out = append(out, AgentInfo{Agent: m.Agent(), Module: &m, Capabilities: caps})
	}
	return out, nil
}
