package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	By        string
	Operation string
	Node      string
	Since     string
	Limit     int
	Diff      bool
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the event log",
		Long: `Show the most recent events of the append-only event log, oldest first.

Example:
  stategraph events --limit 20
  stategraph events --by claude --op update --since 2d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				filter, err := opts.filter(a.store.Now())
				if err != nil {
					return err
				}
				events, err := a.store.GetEvents(ctx, filter, opts.Limit)
				if err != nil {
					return err
				}
				return a.out.Success(newEventList(events, opts.Diff))
			})
		},
	}
	cmd.Flags().StringVar(&opts.By, "by", "", "only events by this agent")
	cmd.Flags().StringVar(&opts.Operation, "op", "", "only events of this operation")
	cmd.Flags().StringVar(&opts.Node, "node", "", "only events targeting this node")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only events newer than this age (e.g. 2d, 90m)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of events (0 for all)")
	cmd.Flags().BoolVar(&opts.Diff, "diff", false, "show changed content keys")

	return cmd
}

func (o *EventsOptions) filter(now time.Time) (schema.EventFilter, error) {
	const op = "events"
	var f schema.EventFilter
	if o.By != "" {
		agent, err := parseAgent(op, o.By)
		if err != nil {
			return f, err
		}
		f.Agent = agent
	}
	if o.Operation != "" {
		operation, err := schema.ParseOperation(o.Operation)
		if err != nil {
			return f, fault.InvalidInputf(op, "%v", err)
		}
		f.Operation = operation
	}
	if o.Node != "" {
		f.Target = nodeTarget(o.Node)
	}
	if o.Since != "" {
		age, err := parseDuration(op, o.Since)
		if err != nil {
			return f, err
		}
		f.Since = now.Add(-age)
	}
	return f, nil
}

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <node-id>",
		Short: "Show the change history of a node",
		Long: `Show every event that targeted a node, oldest first, with the content
keys each change touched. Works for deleted nodes too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				events, err := a.store.History(ctx, args[0], opts.Limit)
				if err != nil {
					return err
				}
				if len(events) == 0 {
					return fault.NotFoundf("history", "no events for node %s", args[0])
				}
				return a.out.Success(newEventList(events, true))
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 for all)")

	return cmd
}
