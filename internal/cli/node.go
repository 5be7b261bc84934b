package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

// NodeOptions holds flags for the node commands.
type NodeOptions struct {
	*RootOptions
	Metadata string
	Kind     string
	Limit    int
}

// NewNodeCommand creates the node command group.
func NewNodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Create, read, update and delete nodes",
		Long: `Create, read, update and delete graph nodes.

Writes require direct capability. Agents in proposal mode must use
"stategraph proposal create" instead.

Example:
  stategraph node create task '{"title":"write tests"}'
  stategraph node list --kind task
  stategraph node update <id> '{"title":"write more tests"}'`,
	}

	create := &cobra.Command{
		Use:   "create <kind> <content>",
		Short: "Create a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return createNode(ctx, a, opts, args[0], args[1])
			})
		},
	}
	create.Flags().StringVar(&opts.Metadata, "meta", "", "metadata as a JSON object")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				n, ok, err := a.store.GetNode(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fault.NotFoundf("get node", "node %s does not exist", args[0])
				}
				return a.out.Success(newNodeView(n))
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List nodes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				kind, err := parseNodeKind("list nodes", opts.Kind)
				if err != nil {
					return err
				}
				nodes, err := a.store.ListNodes(ctx, kind, opts.Limit)
				if err != nil {
					return err
				}
				return a.out.Success(newNodeList(nodes))
			})
		},
	}
	list.Flags().StringVar(&opts.Kind, "kind", "", "only nodes of this kind")
	list.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of nodes (0 for all)")

	update := &cobra.Command{
		Use:   "update <id> <content>",
		Short: "Replace a node's content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				meta, err := parseMetadata("update node", opts.Metadata)
				if err != nil {
					return err
				}
				n, err := a.graph.UpdateNode(ctx, a.agent, args[0], parseContent(args[1]), meta)
				if err != nil {
					return err
				}
				return a.out.Success(newNodeView(n))
			})
		},
	}
	update.Flags().StringVar(&opts.Metadata, "meta", "", "replacement metadata as a JSON object")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a node; its edges are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				n, err := a.graph.DeleteNode(ctx, a.agent, args[0])
				if err != nil {
					return err
				}
				return a.out.Success(message{Message: fmt.Sprintf("Deleted node %s", n.ID)})
			})
		},
	}

	cmd.AddCommand(create, get, list, update, del)
	return cmd
}

func createNode(ctx context.Context, a *app, opts *NodeOptions, kindArg, contentArg string) error {
	const op = "create node"
	kind, err := parseNodeKind(op, kindArg)
	if err != nil {
		return err
	}
	meta, err := parseMetadata(op, opts.Metadata)
	if err != nil {
		return err
	}
	n, err := a.graph.CreateNode(ctx, a.agent, kind, parseContent(contentArg), meta)
	if err != nil {
		return err
	}
	a.out.VerboseLog("created node %s as %s", n.ID, a.agent)
	return a.out.Success(newNodeView(n))
}

// NeighborsOptions holds flags for the neighbors command.
type NeighborsOptions struct {
	*RootOptions
	Depth int
}

// NewNeighborsCommand creates the neighbors command.
func NewNeighborsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NeighborsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "neighbors <id>",
		Short: "List nodes reachable within --depth hops",
		Long: `List the nodes reachable from a node within --depth hops, following
edges in either direction. Edges whose far end was deleted are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				if _, ok, err := a.store.GetNode(ctx, args[0]); err != nil {
					return err
				} else if !ok {
					return fault.NotFoundf("neighbors", "node %s does not exist", args[0])
				}
				nodes, err := a.store.Neighbors(ctx, args[0], opts.Depth)
				if err != nil {
					return err
				}
				return a.out.Success(newNodeList(nodes))
			})
		},
	}
	cmd.Flags().IntVar(&opts.Depth, "depth", 1, "maximum number of hops")

	return cmd
}

// nodeTarget is the event filter target for a node id.
func nodeTarget(id string) *schema.Target {
	t := schema.NodeTarget(id)
	return &t
}
