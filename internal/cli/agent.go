package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/governance"
	"github.com/roach88/stategraph/internal/schema"
)

// AgentOptions holds flags for the agent commands.
type AgentOptions struct {
	*RootOptions
	All          bool
	SetMode      string
	RegisterMode string
	CanVote      bool
	Weight       float64
	Description  string
	Sort         string
	Limit        int
}

// NewAgentCommand creates the agent command group.
func NewAgentCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AgentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agent identities, capabilities and reputation",
		Long: `Manage agent identities, capabilities and reputation.

Built-in agents are user, claude, llama and system. Extensions register as
module:<name> and are retired, never deleted, so their identity cannot be
reused.

Example:
  stategraph agent list
  stategraph agent register watcher --mode observer
  stategraph agent set claude --mode direct --weight 2
  stategraph agent leaderboard --sort accuracy`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List agents and their capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				agents, err := a.gov.Registry.ListAgents(ctx, opts.All)
				if err != nil {
					return err
				}
				return a.out.Success(agentList(agents))
			})
		},
	}
	list.Flags().BoolVar(&opts.All, "all", false, "include retired modules")

	show := &cobra.Command{
		Use:   "show [agent]",
		Short: "Show an agent's capabilities and reputation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				agent := a.agent
				if len(args) == 1 {
					var err error
					if agent, err = parseAgent("show agent", args[0]); err != nil {
						return err
					}
				}
				view, err := describeAgent(ctx, a, agent)
				if err != nil {
					return err
				}
				return a.out.Success(view)
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <agent>",
		Short: "Change an agent's capabilities",
		Long: `Change an agent's capability mode, vote permission or vote weight.
Flags that are not given keep their current value. Fails when the policy
sets allow_runtime_changes: false.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return setCapabilities(ctx, a, cmd, opts, args[0])
			})
		},
	}
	set.Flags().StringVar(&opts.SetMode, "mode", "", "capability mode (direct|proposal|observer)")
	set.Flags().BoolVar(&opts.CanVote, "can-vote", true, "whether the agent may vote")
	set.Flags().Float64Var(&opts.Weight, "weight", 1, "vote weight (>= 0)")

	register := &cobra.Command{
		Use:   "register <name>",
		Short: "Register an extension module as module:<name>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				mode, err := schema.ParseCapabilityMode(opts.RegisterMode)
				if err != nil {
					return fault.InvalidInputf("register module", "%v", err)
				}
				m, err := a.gov.Registry.RegisterModule(ctx, args[0], mode, opts.Description)
				if err != nil {
					return err
				}
				view, err := describeAgent(ctx, a, m.Agent())
				if err != nil {
					return err
				}
				return a.out.Success(view)
			})
		},
	}
	register.Flags().StringVar(&opts.RegisterMode, "mode", string(schema.ModeProposal), "capability mode (direct|proposal|observer)")
	register.Flags().StringVar(&opts.Description, "description", "", "what the module does")

	unregister := &cobra.Command{
		Use:   "unregister <name>",
		Short: "Retire an extension module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				m, err := a.gov.Registry.UnregisterModule(ctx, args[0])
				if err != nil {
					return err
				}
				return a.out.Success(message{Message: fmt.Sprintf("Retired %s", m.Agent())})
			})
		},
	}

	leaderboard := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank agents by reputation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				entries, err := a.gov.Reputation.Leaderboard(ctx, opts.Sort, opts.Limit)
				if err != nil {
					return err
				}
				return a.out.Success(leaderboardView{Sort: opts.Sort, Entries: entries})
			})
		},
	}
	leaderboard.Flags().StringVar(&opts.Sort, "sort", governance.SortByScore, "sort key (score|accuracy|votes)")
	leaderboard.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of entries (0 for all)")

	reset := &cobra.Command{
		Use:   "reset [agent]",
		Short: "Reset reputation for one agent or, with --all, every agent",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return resetReputation(ctx, a, opts, args)
			})
		},
	}
	reset.Flags().BoolVar(&opts.All, "all", false, "reset every agent")

	decay := &cobra.Command{
		Use:   "decay <factor>",
		Short: "Multiply every reputation score by factor (0..1)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				factor, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fault.InvalidInputf("decay reputation", "invalid factor %q", args[0])
				}
				n, err := a.gov.Reputation.ApplyDecayAll(ctx, factor)
				if err != nil {
					return err
				}
				return a.out.Success(message{Message: fmt.Sprintf("Decayed %d reputation records by %g", n, factor)})
			})
		},
	}

	cmd.AddCommand(list, show, set, register, unregister, leaderboard, reset, decay)
	return cmd
}

func describeAgent(ctx context.Context, a *app, agent schema.AgentID) (agentView, error) {
	const op = "show agent"
	view := agentView{Agent: agent}
	if agent.IsModule() {
		m, ok, err := a.gov.Registry.Module(ctx, agent.ModuleName())
		if err != nil {
			return view, err
		}
		if !ok {
			return view, fault.NotFoundf(op, "module %s is not registered", agent.ModuleName())
		}
		view.Module = &m
	}
	caps, err := a.gov.Capabilities.Get(ctx, agent)
	if err != nil {
		return view, err
	}
	rep, err := a.gov.Reputation.Lookup(ctx, agent)
	if err != nil {
		return view, err
	}
	view.Capabilities = caps
	view.Reputation = rep
	view.Accuracy = rep.Accuracy()
	return view, nil
}

func setCapabilities(ctx context.Context, a *app, cmd *cobra.Command, opts *AgentOptions, arg string) error {
	const op = "set capabilities"
	agent, err := parseAgent(op, arg)
	if err != nil {
		return err
	}
	caps, err := a.gov.Capabilities.Get(ctx, agent)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("mode") && !flags.Changed("can-vote") && !flags.Changed("weight") {
		return fault.InvalidInputf(op, "nothing to change: pass --mode, --can-vote or --weight")
	}
	if flags.Changed("mode") {
		mode, err := schema.ParseCapabilityMode(opts.SetMode)
		if err != nil {
			return fault.InvalidInputf(op, "%v", err)
		}
		caps.Mode = mode
		if mode == schema.ModeObserver && !flags.Changed("can-vote") {
			caps.CanVote = false
		}
	}
	if flags.Changed("can-vote") {
		caps.CanVote = opts.CanVote
	}
	if flags.Changed("weight") {
		caps.VoteWeight = opts.Weight
	}
	caps.Agent = agent
	if err := a.gov.Capabilities.Set(ctx, caps); err != nil {
		return err
	}
	view, err := describeAgent(ctx, a, agent)
	if err != nil {
		return err
	}
	return a.out.Success(view)
}

func resetReputation(ctx context.Context, a *app, opts *AgentOptions, args []string) error {
	const op = "reset reputation"
	switch {
	case opts.All && len(args) > 0:
		return fault.InvalidInputf(op, "pass either an agent or --all, not both")
	case opts.All:
		n, err := a.gov.Reputation.ResetAll(ctx)
		if err != nil {
			return err
		}
		return a.out.Success(message{Message: fmt.Sprintf("Reset %d reputation records", n)})
	case len(args) == 0:
		return fault.InvalidInputf(op, "pass an agent or --all")
	}
	agent, err := parseAgent(op, args[0])
	if err != nil {
		return err
	}
	if _, err := a.gov.Reputation.Reset(ctx, agent); err != nil {
		return err
	}
	return a.out.Success(message{Message: fmt.Sprintf("Reset reputation of %s", agent)})
}
