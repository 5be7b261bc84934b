package governance

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/value"
)

type executorStore interface {
	GetProposal(ctx context.Context, id int64) (schema.Proposal, bool, error)
	ClaimExecution(ctx context.Context, id int64) (bool, error)
	ReleaseExecution(ctx context.Context, id int64) error
	CreateNode(ctx context.Context, agent schema.AgentID, kind schema.NodeKind, content value.Value, metadata value.Object) (schema.Node, error)
	UpdateNode(ctx context.Context, agent schema.AgentID, id string, content value.Value, metadata value.Object) (schema.Node, error)
	DeleteNode(ctx context.Context, agent schema.AgentID, id string) (schema.Node, error)
	CreateEdge(ctx context.Context, agent schema.AgentID, from, to string, kind schema.EdgeKind, weight *float64) (schema.Edge, error)
	DeleteEdge(ctx context.Context, agent schema.AgentID, id string) (schema.Edge, error)
}

// LinkPayload is the payload of a link proposal. The source node is the
// proposal target.
type LinkPayload struct {
	To     string
	Kind   schema.EdgeKind
	Weight *float64
}

// ParseLinkPayload reads {"to": ..., "kind": ..., "weight": ...}.
func ParseLinkPayload(v value.Value) (LinkPayload, error) {
	obj, ok := v.(value.Object)
	if !ok {
		return LinkPayload{}, fmt.Errorf("link payload must be an object, got %s", value.KindOf(v))
	}
	to, ok := obj.Get("to").(value.String)
	if !ok || to == "" {
		return LinkPayload{}, fmt.Errorf("link payload needs a non-empty string \"to\"")
	}
	kindStr, ok := obj.Get("kind").(value.String)
	if !ok {
		return LinkPayload{}, fmt.Errorf("link payload needs a string \"kind\"")
	}
	kind, err := schema.ParseEdgeKind(string(kindStr))
	if err != nil {
		return LinkPayload{}, err
	}
	out := LinkPayload{To: string(to), Kind: kind}
	switch w := obj.Get("weight").(type) {
	case nil, value.Null:
	case value.Int:
		f := float64(w)
		out.Weight = &f
	case value.Float:
		f := float64(w)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return LinkPayload{}, fmt.Errorf("link weight must be finite")
		}
		out.Weight = &f
	default:
		return LinkPayload{}, fmt.Errorf("link weight must be a number, got %s", value.KindOf(w))
	}
	return out, nil
}

// ExecutionResult is what applying an approved proposal changed.
type ExecutionResult struct {
	Proposal schema.Proposal `json:"proposal"`
	Node     *schema.Node    `json:"node,omitempty"`
	Edge     *schema.Edge    `json:"edge,omitempty"`
}

// Executor applies approved proposals to the graph, attributed to the
// proposer. Each proposal is applied at most once.
type Executor struct {
	store  executorStore
	logger *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(st executorStore, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: st, logger: logger}
}

// Execute applies approved proposal id. A proposal that is not approved or
// was already executed fails with InvalidState. If the mutation fails the
// claim is released so a later attempt can retry.
func (x *Executor) Execute(ctx context.Context, id int64) (ExecutionResult, error) {
	const op = "execute proposal"
	p, ok, err := x.store.GetProposal(ctx, id)
	if err != nil {
		return ExecutionResult{}, err
	}
	if !ok {
		return ExecutionResult{}, fault.NotFoundf(op, "proposal %d not found", id)
	}
	if p.Status != schema.StatusApproved {
		return ExecutionResult{}, fault.InvalidStatef(op, "proposal %d is %s, only approved proposals can be executed", id, p.Status)
	}
	claimed, err := x.store.ClaimExecution(ctx, id)
	if err != nil {
		return ExecutionResult{}, err
	}
	if !claimed {
		return ExecutionResult{}, fault.InvalidStatef(op, "proposal %d was already executed", id)
	}

	res, err := x.apply(ctx, p)
	if err != nil {
		if rerr := x.store.ReleaseExecution(ctx, id); rerr != nil {
			x.logger.Error("release execution claim failed", "proposal", id, "error", rerr)
		}
		x.logger.Warn("proposal execution failed", "proposal", id, "operation", p.Operation, "error", err)
		return ExecutionResult{}, err
	}

	if cur, ok, err := x.store.GetProposal(ctx, id); err == nil && ok {
		res.Proposal = cur
	} else {
		res.Proposal = p
	}
	x.logger.Info("proposal executed", "proposal", id, "operation", p.Operation, "proposer", p.Proposer)
	return res, nil
}

func (x *Executor) apply(ctx context.Context, p schema.Proposal) (ExecutionResult, error) {
	switch p.Operation {
	case schema.OpCreate:
		n, err := x.store.CreateNode(ctx, p.Proposer, p.Target.NewKind, p.Payload, nil)
		return ExecutionResult{Node: &n}, err
	case schema.OpUpdate:
		n, err := x.store.UpdateNode(ctx, p.Proposer, p.Target.ID, p.Payload, nil)
		return ExecutionResult{Node: &n}, err
	case schema.OpDelete:
		n, err := x.store.DeleteNode(ctx, p.Proposer, p.Target.ID)
		return ExecutionResult{Node: &n}, err
	case schema.OpLink:
		link, err := ParseLinkPayload(p.Payload)
		if err != nil {
			return ExecutionResult{}, fault.InvalidInputf("execute proposal", "%v", err)
		}
		e, err := x.store.CreateEdge(ctx, p.Proposer, p.Target.ID, link.To, link.Kind, link.Weight)
		return ExecutionResult{Edge: &e}, err
	case schema.OpUnlink:
		e, err := x.store.DeleteEdge(ctx, p.Proposer, p.Target.ID)
		return ExecutionResult{Edge: &e}, err
	}
	return ExecutionResult{}, fault.InvalidInputf("execute proposal", "unknown operation %q", p.Operation)
}
