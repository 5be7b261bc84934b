package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

// EdgeOptions holds flags for the edge commands.
type EdgeOptions struct {
	*RootOptions
	CreateKind string
	Weight     float64
	ListKind   string
	Node       string
	Limit      int
}

// NewEdgeCommand creates the edge command group.
func NewEdgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EdgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edge",
		Short: "Link and unlink nodes",
		Long: `Create and delete typed edges between nodes.

Example:
  stategraph edge create <task-id> <project-id> --kind part_of
  stategraph edge list --node <project-id>`,
	}

	create := &cobra.Command{
		Use:   "create <from> <to>",
		Short: "Create an edge between two existing nodes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				kind, err := parseEdgeKind("create edge", opts.CreateKind)
				if err != nil {
					return err
				}
				var weight *float64
				if cmd.Flags().Changed("weight") {
					w := opts.Weight
					weight = &w
				}
				e, err := a.graph.CreateEdge(ctx, a.agent, args[0], args[1], kind, weight)
				if err != nil {
					return err
				}
				return a.out.Success(edgeView{e})
			})
		},
	}
	create.Flags().StringVar(&opts.CreateKind, "kind", string(schema.EdgeRelatedTo), "edge kind")
	create.Flags().Float64Var(&opts.Weight, "weight", 0, "optional edge weight")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show an edge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				e, ok, err := a.store.GetEdge(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fault.NotFoundf("get edge", "edge %s does not exist", args[0])
				}
				return a.out.Success(edgeView{e})
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List edges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				edges, err := listEdges(ctx, a, opts)
				if err != nil {
					return err
				}
				return a.out.Success(edgeList(edges))
			})
		},
	}
	list.Flags().StringVar(&opts.ListKind, "kind", "", "only edges of this kind")
	list.Flags().StringVar(&opts.Node, "node", "", "only edges touching this node")
	list.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of edges (0 for all)")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an edge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				e, err := a.graph.DeleteEdge(ctx, a.agent, args[0])
				if err != nil {
					return err
				}
				return a.out.Success(message{Message: fmt.Sprintf("Deleted edge %s", e.ID)})
			})
		},
	}

	cmd.AddCommand(create, get, list, del)
	return cmd
}

func listEdges(ctx context.Context, a *app, opts *EdgeOptions) ([]schema.Edge, error) {
	kind, err := parseEdgeKind("list edges", opts.ListKind)
	if err != nil {
		return nil, err
	}
	if opts.Node == "" {
		return a.store.ListEdges(ctx, kind, opts.Limit)
	}

	out := []schema.Edge{}
	seen := map[string]bool{}
	from, err := a.store.EdgesFrom(ctx, opts.Node)
	if err != nil {
		return nil, err
	}
	to, err := a.store.EdgesTo(ctx, opts.Node)
	if err != nil {
		return nil, err
	}
	for _, e := range append(from, to...) {
		if kind != "" && e.Kind != kind {
			continue
		}
		// Self loops appear in both lists.
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}
