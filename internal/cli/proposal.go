package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/governance"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/value"
)

// ProposalOptions holds flags for the proposal commands.
type ProposalOptions struct {
	*RootOptions
	Status    string
	All       bool
	Payload   string
	Rationale string
	Reason    string
	Execute   bool
	DryRun    bool
	OlderThan string
}

// NewProposalCommand creates the proposal command group.
func NewProposalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProposalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "proposal",
		Aliases: []string{"proposals"},
		Short:   "Propose, vote on and execute graph changes",
		Long: `Propose, vote on and execute graph changes.

A proposal is a pending mutation. Other agents vote on it and the
configured strategy resolves it exactly once. Approved proposals are
applied with "proposal execute" (or "--execute" on the deciding vote).

Targets:
  new:<kind>    create a node; the payload is its content
  node:<id>     update (payload is the new content), delete, or link
                (payload {"to": <id>, "kind": <edge kind>, "weight": n})
  edge:<id>     unlink

Example:
  stategraph --agent claude proposal create create new:insight '"caching helps"'
  stategraph --agent llama proposal approve 1 --reason "agreed"
  stategraph proposal votes 1`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List proposals (pending by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return listProposals(ctx, a, opts)
			})
		},
	}
	list.Flags().StringVar(&opts.Status, "status", "", "only proposals in this status")
	list.Flags().BoolVar(&opts.All, "all", false, "every proposal regardless of status")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				p, err := requireProposal(ctx, a, "show proposal", args[0])
				if err != nil {
					return err
				}
				return a.out.Success(newProposalView(p))
			})
		},
	}

	create := &cobra.Command{
		Use:   "create <operation> <target> [payload]",
		Short: "Submit a proposal as the acting agent",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return submitProposal(ctx, a, opts, args)
			})
		},
	}
	create.Flags().StringVar(&opts.Rationale, "rationale", "", "why the change is wanted")

	withdraw := &cobra.Command{
		Use:   "withdraw <id>",
		Short: "Withdraw your own pending proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return withdrawProposal(ctx, a, args[0])
			})
		},
	}

	vote := &cobra.Command{
		Use:   "vote <id> <approve|reject|abstain>",
		Short: "Vote on a pending proposal",
		Long: `Vote on a pending proposal as the acting agent. A later vote by the same
agent replaces the earlier one.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return castVote(ctx, a, opts, args[0], schema.VoteDecision(args[1]))
			})
		},
	}
	approve := &cobra.Command{
		Use:   "approve <id>",
		Short: "Vote approve on a pending proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return castVote(ctx, a, opts, args[0], schema.Approve)
			})
		},
	}
	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Vote reject on a pending proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return castVote(ctx, a, opts, args[0], schema.Reject)
			})
		},
	}
	for _, c := range []*cobra.Command{vote, approve, reject} {
		c.Flags().StringVar(&opts.Reason, "reason", "", "why you voted this way")
		c.Flags().BoolVar(&opts.Execute, "execute", false, "execute the proposal if this vote approves it")
	}

	votes := &cobra.Command{
		Use:   "votes <id>",
		Short: "Show the votes and weighted tally of a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return showVotes(ctx, a, args[0])
			})
		},
	}

	execute := &cobra.Command{
		Use:   "execute <id>",
		Short: "Apply an approved proposal to the graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				id, err := parseProposalID("execute proposal", args[0])
				if err != nil {
					return err
				}
				res, err := a.gov.Executor.Execute(ctx, id)
				if err != nil {
					return err
				}
				return a.out.Success(newExecutionView(res))
			})
		},
	}

	expire := &cobra.Command{
		Use:   "expire",
		Short: "Expire pending proposals older than the policy's proposal_expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return expireProposals(ctx, a, opts)
			})
		},
	}
	expire.Flags().BoolVar(&opts.DryRun, "dry-run", false, "list what would expire without changing anything")

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete resolved proposals and their votes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return cleanupProposals(ctx, a, opts)
			})
		},
	}
	cleanup.Flags().StringVar(&opts.OlderThan, "older-than", "30d", "only proposals resolved longer ago than this")
	cleanup.Flags().BoolVar(&opts.DryRun, "dry-run", false, "list what would be deleted without changing anything")

	cmd.AddCommand(list, show, create, withdraw, vote, approve, reject, votes, execute, expire, cleanup)
	return cmd
}

func requireProposal(ctx context.Context, a *app, op, arg string) (schema.Proposal, error) {
	id, err := parseProposalID(op, arg)
	if err != nil {
		return schema.Proposal{}, err
	}
	p, ok, err := a.gov.Proposals.Get(ctx, id)
	if err != nil {
		return schema.Proposal{}, err
	}
	if !ok {
		return schema.Proposal{}, fault.NotFoundf(op, "proposal %d does not exist", id)
	}
	return p, nil
}

func listProposals(ctx context.Context, a *app, opts *ProposalOptions) error {
	var (
		ps  []schema.Proposal
		err error
	)
	switch {
	case opts.All && opts.Status != "":
		return fault.InvalidInputf("list proposals", "pass either --status or --all, not both")
	case opts.All:
		ps, err = a.gov.Proposals.All(ctx)
	case opts.Status != "":
		status, perr := schema.ParseProposalStatus(opts.Status)
		if perr != nil {
			return fault.InvalidInputf("list proposals", "%v", perr)
		}
		ps, err = a.gov.Proposals.List(ctx, status)
	default:
		ps, err = a.gov.Proposals.Pending(ctx)
	}
	if err != nil {
		return err
	}
	return a.out.Success(newProposalList(ps))
}

func submitProposal(ctx context.Context, a *app, opts *ProposalOptions, args []string) error {
	const op = "submit proposal"
	operation, err := schema.ParseOperation(args[0])
	if err != nil {
		return fault.InvalidInputf(op, "%v", err)
	}
	target, err := schema.ParseTarget(args[1])
	if err != nil {
		return fault.InvalidInputf(op, "%v", err)
	}
	var payload value.Value = value.Null{}
	if len(args) == 3 {
		payload = parseContent(args[2])
	}

	p, err := a.gov.Proposals.Submit(ctx, governance.Draft{
		Proposer:  a.agent,
		Operation: operation,
		Target:    target,
		Payload:   payload,
		Rationale: opts.Rationale,
	})
	if err != nil {
		return err
	}
	a.out.VerboseLog("submitted proposal #%d as %s", p.ID, a.agent)
	return a.out.Success(newProposalView(p))
}

// withdrawProposal lets a proposer take back a pending proposal. The
// system identity may withdraw any proposal.
func withdrawProposal(ctx context.Context, a *app, arg string) error {
	const op = "withdraw proposal"
	p, err := requireProposal(ctx, a, op, arg)
	if err != nil {
		return err
	}
	if p.Proposer != a.agent && a.agent != schema.System {
		return fault.InvalidStatef(op, "only %s or system can withdraw proposal %d", p.Proposer, p.ID)
	}
	p, err = a.gov.Proposals.Withdraw(ctx, p.ID)
	if err != nil {
		return err
	}
	return a.out.Success(newProposalView(p))
}

func castVote(ctx context.Context, a *app, opts *ProposalOptions, arg string, decision schema.VoteDecision) error {
	id, err := parseProposalID("cast vote", arg)
	if err != nil {
		return err
	}
	res, err := a.gov.Voting.CastVote(ctx, id, a.agent, decision, opts.Reason)
	if err != nil {
		return err
	}
	if opts.Execute && res.Resolved && res.Proposal.Status == schema.StatusApproved {
		exec, err := a.gov.Executor.Execute(ctx, id)
		if err != nil {
			return err
		}
		if err := a.out.Success(voteResultView{res}); err != nil {
			return err
		}
		return a.out.Success(newExecutionView(exec))
	}
	return a.out.Success(voteResultView{res})
}

func showVotes(ctx context.Context, a *app, arg string) error {
	p, err := requireProposal(ctx, a, "show votes", arg)
	if err != nil {
		return err
	}
	votes, err := a.gov.Voting.Votes(ctx, p.ID)
	if err != nil {
		return err
	}
	tally, err := a.gov.Voting.Tally(ctx, p.ID)
	if err != nil {
		return err
	}
	if votes == nil {
		votes = []schema.Vote{}
	}
	return a.out.Success(votesView{
		Proposal: p.ID,
		Status:   string(p.Status),
		Strategy: a.gov.Voting.Strategy().Name(),
		Votes:    votes,
		Tally:    tally,
	})
}

func expireProposals(ctx context.Context, a *app, opts *ProposalOptions) error {
	if opts.DryRun {
		ps, err := a.gov.Proposals.ExpiryCandidates(ctx)
		if err != nil {
			return err
		}
		return a.out.Success(newProposalList(ps))
	}
	n, err := a.gov.Proposals.ExpireOld(ctx)
	if err != nil {
		return err
	}
	return a.out.Success(message{Message: fmt.Sprintf("Expired %d proposals", n)})
}

func cleanupProposals(ctx context.Context, a *app, opts *ProposalOptions) error {
	retention, err := parseDuration("cleanup proposals", opts.OlderThan)
	if err != nil {
		return err
	}
	if opts.DryRun {
		ps, err := a.gov.Proposals.CleanupCandidates(ctx, retention)
		if err != nil {
			return err
		}
		return a.out.Success(newProposalList(ps))
	}
	n, err := a.gov.Proposals.Cleanup(ctx, retention)
	if err != nil {
		return err
	}
	return a.out.Success(message{Message: fmt.Sprintf("Deleted %d resolved proposals", n)})
}
