package harness

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/stategraph/internal/config"
	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/governance"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/value"
)

// actionFunc performs one step as agent. A *fault.Error is a step outcome
// recorded in the trace; any other error is a malformed scenario and aborts
// the run.
type actionFunc func(ctx context.Context, h *Harness, agent schema.AgentID, a args) (map[string]any, error)

var actions = map[string]actionFunc{
	"create_node":      createNode,
	"update_node":      updateNode,
	"delete_node":      deleteNode,
	"create_edge":      createEdge,
	"delete_edge":      deleteEdge,
	"propose":          propose,
	"vote":             vote,
	"withdraw":         withdraw,
	"execute":          execute,
	"expire":           expire,
	"cleanup":          cleanup,
	"register":         register,
	"unregister":       unregister,
	"set_capabilities": setCapabilities,
	"decay":            decay,
	"advance":          advance,
}

// Actions lists the step actions a scenario may use.
func Actions() []string {
	out := make([]string, 0, len(actions))
	for name := range actions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func createNode(ctx context.Context, h *Harness, agent schema.AgentID, a args) (map[string]any, error) {
	kindStr, err := a.str("kind")
	if err != nil {
		return nil, err
	}
	kind, err := schema.ParseNodeKind(kindStr)
	if err != nil {
		return nil, fault.InvalidInputf("create node", "%v", err)
	}
	content, err := a.value("content")
	if err != nil {
		return nil, err
	}
	meta, err := a.object("metadata")
	if err != nil {
		return nil, err
	}
	n, err := h.graph.CreateNode(ctx, agent, kind, content, meta)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": n.ID, "kind": string(n.Kind)}, nil
}

func updateNode(ctx context.Context, h *Harness, agent schema.AgentID, a args) (map[string]any, error) {
	id, err := a.str("id")
	if err != nil {
		return nil, err
	}
	content, err := a.value("content")
	if err != nil {
		return nil, err
	}
	meta, err := a.object("metadata")
	if err != nil {
		return nil, err
	}
	n, err := h.graph.UpdateNode(ctx, agent, id, content, meta)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": n.ID, "kind": string(n.Kind)}, nil
}

func deleteNode(ctx context.Context, h *Harness, agent schema.AgentID, a args) (map[string]any, error) {
	id, err := a.str("id")
	if err != nil {
		return nil, err
	}
	n, err := h.graph.DeleteNode(ctx, agent, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": n.ID}, nil
}

func createEdge(ctx context.Context, h *Harness, agent schema.AgentID, a args) (map[string]any, error) {
	from, err := a.str("from")
	if err != nil {
		return nil, err
	}
	to, err := a.str("to")
	if err != nil {
		return nil, err
	}
	kindStr := a.optStr("kind", string(schema.EdgeRelatedTo))
	kind, err := schema.ParseEdgeKind(kindStr)
	if err != nil {
		return nil, fault.InvalidInputf("create edge", "%v", err)
	}
	weight, err := a.optFloat("weight")
	if err != nil {
		return nil, err
	}
	e, err := h.graph.CreateEdge(ctx, agent, from, to, kind, weight)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": e.ID, "from": e.From, "to": e.To, "kind": string(e.Kind)}, nil
}

func deleteEdge(ctx context.Context, h *Harness, agent schema.AgentID, a args) (map[string]any, error) {
	id, err := a.str("id")
	if err != nil {
		return nil, err
	}
	e, err := h.graph.DeleteEdge(ctx, agent, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": e.ID}, nil
}

func propose(ctx context.Context, h *Harness, agent schema.AgentID, a args) (map[string]any, error) {
	const op = "submit proposal"
	opStr, err := a.str("operation")
	if err != nil {
		return nil, err
	}
	operation, err := schema.ParseOperation(opStr)
	if err != nil {
		return nil, fault.InvalidInputf(op, "%v", err)
	}
	targetStr, err := a.str("target")
	if err != nil {
		return nil, err
	}
	target, err := schema.ParseTarget(targetStr)
	if err != nil {
		return nil, fault.InvalidInputf(op, "%v", err)
	}
	payload, err := a.value("payload")
	if err != nil {
		return nil, err
	}
	p, err := h.gov.Proposals.Submit(ctx, governance.Draft{
		Proposer:  agent,
		Operation: operation,
		Target:    target,
		Payload:   payload,
		Rationale: a.optStr("rationale", ""),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"proposal": p.ID, "status": string(p.Status)}, nil
}

func vote(ctx context.Context, h *Harness, agent schema.AgentID, a args) (map[string]any, error) {
	id, err := a.int("proposal")
	if err != nil {
		return nil, err
	}
	decision, err := a.str("decision")
	if err != nil {
		return nil, err
	}
	res, err := h.gov.Voting.CastVote(ctx, id, agent, schema.VoteDecision(decision), a.optStr("reason", ""))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"proposal":   id,
		"decision":   string(res.Vote.Decision),
		"replaced":   res.Replaced,
		"resolved":   res.Resolved,
		"status":     string(res.Proposal.Status),
		"approvals":  int64(res.Tally.Approvals),
		"rejections": int64(res.Tally.Rejections),
	}, nil
}

// withdraw acts with administrative rights: any agent may withdraw.
func withdraw(ctx context.Context, h *Harness, _ schema.AgentID, a args) (map[string]any, error) {
	id, err := a.int("proposal")
	if err != nil {
		return nil, err
	}
	p, err := h.gov.Proposals.Withdraw(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"proposal": p.ID, "status": string(p.Status)}, nil
}

func execute(ctx context.Context, h *Harness, _ schema.AgentID, a args) (map[string]any, error) {
	id, err := a.int("proposal")
	if err != nil {
		return nil, err
	}
	res, err := h.gov.Executor.Execute(ctx, id)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"proposal": res.Proposal.ID}
	if res.Node != nil {
		out["node"] = res.Node.ID
	}
	if res.Edge != nil {
		out["edge"] = res.Edge.ID
	}
	return out, nil
}

func expire(ctx context.Context, h *Harness, _ schema.AgentID, _ args) (map[string]any, error) {
	n, err := h.gov.Proposals.ExpireOld(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"expired": n}, nil
}

func cleanup(ctx context.Context, h *Harness, _ schema.AgentID, a args) (map[string]any, error) {
	retention, err := a.duration("older_than", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	n, err := h.gov.Proposals.Cleanup(ctx, retention)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": n}, nil
}

func register(ctx context.Context, h *Harness, _ schema.AgentID, a args) (map[string]any, error) {
	name, err := a.str("name")
	if err != nil {
		return nil, err
	}
	mode, err := schema.ParseCapabilityMode(a.optStr("mode", string(schema.ModeProposal)))
	if err != nil {
		return nil, fault.InvalidInputf("register module", "%v", err)
	}
	m, err := h.gov.Registry.RegisterModule(ctx, name, mode, a.optStr("description", ""))
	if err != nil {
		return nil, err
	}
	return map[string]any{"agent": string(m.Agent()), "mode": string(m.Mode)}, nil
}

func unregister(ctx context.Context, h *Harness, _ schema.AgentID, a args) (map[string]any, error) {
	name, err := a.str("name")
	if err != nil {
		return nil, err
	}
	m, err := h.gov.Registry.UnregisterModule(ctx, name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"agent": string(m.Agent())}, nil
}

// setCapabilities changes the capabilities of args["subject"]. Fields not
// given keep their current value.
func setCapabilities(ctx context.Context, h *Harness, _ schema.AgentID, a args) (map[string]any, error) {
	subjectStr, err := a.str("subject")
	if err != nil {
		return nil, err
	}
	subject, err := schema.ParseAgentID(subjectStr)
	if err != nil {
		return nil, fault.InvalidInputf("set capabilities", "%v", err)
	}
	caps, err := h.gov.Capabilities.Get(ctx, subject)
	if err != nil {
		return nil, err
	}
	if s, ok := a["mode"]; ok {
		mode, err := schema.ParseCapabilityMode(fmt.Sprint(s))
		if err != nil {
			return nil, fault.InvalidInputf("set capabilities", "%v", err)
		}
		caps.Mode = mode
	}
	if _, ok := a["can_vote"]; ok {
		if caps.CanVote, err = a.bool("can_vote"); err != nil {
			return nil, err
		}
	}
	if w, err := a.optFloat("weight"); err != nil {
		return nil, err
	} else if w != nil {
		caps.VoteWeight = *w
	}
	if err := h.gov.Capabilities.Set(ctx, caps); err != nil {
		return nil, err
	}
	return map[string]any{"agent": string(caps.Agent), "mode": string(caps.Mode), "can_vote": caps.CanVote}, nil
}

func decay(ctx context.Context, h *Harness, _ schema.AgentID, a args) (map[string]any, error) {
	factor, err := a.optFloat("factor")
	if err != nil {
		return nil, err
	}
	if factor == nil {
		return nil, fmt.Errorf("missing required arg %q", "factor")
	}
	n, err := h.gov.Reputation.ApplyDecayAll(ctx, *factor)
	if err != nil {
		return nil, err
	}
	return map[string]any{"decayed": n}, nil
}

// advance moves the scenario clock, e.g. past the proposal expiry.
func advance(_ context.Context, h *Harness, _ schema.AgentID, a args) (map[string]any, error) {
	d, err := a.duration("by", 0)
	if err != nil {
		return nil, err
	}
	if d <= 0 {
		return nil, fmt.Errorf("advance needs a positive %q duration", "by")
	}
	h.clock.Advance(d)
	return nil, nil
}

// args reads step arguments decoded from YAML.
type args map[string]any

func (a args) str(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", fmt.Errorf("missing required arg %q", key)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case int, int64, float64, bool:
		return fmt.Sprint(s), nil
	}
	return "", fmt.Errorf("arg %q must be a string, got %T", key, v)
}

func (a args) optStr(key, def string) string {
	if s, err := a.str(key); err == nil {
		return s
	}
	return def
}

func (a args) int(key string) (int64, error) {
	switch n := a[key].(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case nil:
		return 0, fmt.Errorf("missing required arg %q", key)
	}
	return 0, fmt.Errorf("arg %q must be an integer, got %T", key, a[key])
}

func (a args) bool(key string) (bool, error) {
	b, ok := a[key].(bool)
	if !ok {
		return false, fmt.Errorf("arg %q must be a boolean, got %T", key, a[key])
	}
	return b, nil
}

func (a args) optFloat(key string) (*float64, error) {
	var f float64
	switch n := a[key].(type) {
	case nil:
		return nil, nil
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case float64:
		f = n
	default:
		return nil, fmt.Errorf("arg %q must be a number, got %T", key, n)
	}
	return &f, nil
}

// value converts an argument to a Value; a missing key is Null.
func (a args) value(key string) (value.Value, error) {
	v, err := value.FromAny(a[key])
	if err != nil {
		return nil, fmt.Errorf("arg %q: %w", key, err)
	}
	return v, nil
}

func (a args) object(key string) (value.Object, error) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return nil, nil
	}
	v, err := value.FromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("arg %q: %w", key, err)
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("arg %q must be an object, got %s", key, value.KindOf(v))
	}
	return obj, nil
}

func (a args) duration(key string, def time.Duration) (time.Duration, error) {
	raw, ok := a[key]
	if !ok {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("arg %q must be a duration string, got %T", key, raw)
	}
	d, err := config.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("arg %q: %w", key, err)
	}
	return d, nil
}
