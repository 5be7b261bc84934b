package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/transfer"
)

// TransferOptions holds flags for the export and import commands.
type TransferOptions struct {
	*RootOptions
	Output       string
	Doc          string
	Kind         string
	Edges        bool
	Events       bool
	SkipExisting bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransferOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the graph as JSON, YAML or NDJSON",
		Long: `Export nodes (and by default edges) as a versioned document.
NDJSON writes one node per line and carries no edges or events.

Example:
  stategraph export -o graph.json
  stategraph export --doc yaml --events > graph.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return exportGraph(ctx, a, cmd, opts)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringVar(&opts.Doc, "doc", "", "document format (json|yaml|ndjson); default from --output extension, else json")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only nodes of this kind")
	cmd.Flags().BoolVar(&opts.Edges, "edges", true, "include edges")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "include the event log")

	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransferOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import nodes and edges from an exported document",
		Long: `Import nodes, then edges, keeping their ids. The whole document is
checked before anything is written. Imported records are attributed to the
system identity; the acting agent needs direct capability.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				return importGraph(ctx, a, cmd, opts, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&opts.Doc, "doc", "", "document format (json|yaml|ndjson); default from the file extension, else json")
	cmd.Flags().BoolVar(&opts.SkipExisting, "skip-existing", false, "skip records whose id already exists")

	return cmd
}

// docFormat picks the explicit --doc value, then the file extension.
func docFormat(op, explicit, path string) (transfer.Format, error) {
	if explicit == "" {
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if ext == "" {
			return transfer.FormatJSON, nil
		}
		if f, err := transfer.ParseFormat(ext); err == nil {
			return f, nil
		}
		return transfer.FormatJSON, nil
	}
	f, err := transfer.ParseFormat(explicit)
	if err != nil {
		return "", fault.InvalidInputf(op, "%v", err)
	}
	return f, nil
}

func exportGraph(ctx context.Context, a *app, cmd *cobra.Command, opts *TransferOptions) error {
	const op = "export"
	format, err := docFormat(op, opts.Doc, opts.Output)
	if err != nil {
		return err
	}
	kind, err := parseNodeKind(op, opts.Kind)
	if err != nil {
		return err
	}
	// NDJSON carries nodes only.
	nodesOnly := format == transfer.FormatNDJSON
	doc, err := transfer.Export(ctx, a.store, transfer.ExportOptions{
		Kind:   kind,
		Edges:  opts.Edges && !nodesOnly,
		Events: opts.Events && !nodesOnly,
	})
	if err != nil {
		return err
	}

	if opts.Output == "" {
		if err := transfer.Encode(cmd.OutOrStdout(), doc, format); err != nil {
			return fault.Persist(op, err)
		}
		return nil
	}

	f, err := os.Create(opts.Output)
	if err != nil {
		return fault.InvalidInputf(op, "create %s: %v", opts.Output, err)
	}
	if err := transfer.Encode(f, doc, format); err != nil {
		f.Close()
		return fault.Persist(op, err)
	}
	if err := f.Close(); err != nil {
		return fault.Persist(op, err)
	}
	return a.out.Success(message{Message: fmt.Sprintf("Exported %d nodes and %d edges to %s",
		len(doc.Nodes), len(doc.Edges), opts.Output)})
}

func importGraph(ctx context.Context, a *app, cmd *cobra.Command, opts *TransferOptions, path string) error {
	const op = "import"
	caps, err := a.gov.Capabilities.Get(ctx, a.agent)
	if err != nil {
		return err
	}
	if caps.Mode != schema.ModeDirect {
		return fault.InvalidStatef(op, "agent %s is in %s mode; import needs direct capability", a.agent, caps.Mode)
	}

	format, err := docFormat(op, opts.Doc, path)
	if err != nil {
		return err
	}

	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fault.InvalidInputf(op, "open %s: %v", path, err)
		}
		defer f.Close()
		r = f
	}

	doc, err := transfer.Decode(r, format)
	if err != nil {
		return fault.InvalidInputf(op, "%v", err)
	}
	res, err := transfer.Import(ctx, a.store, doc, transfer.ImportOptions{
		Agent:        schema.System,
		SkipExisting: opts.SkipExisting,
	})
	if err != nil {
		return err
	}
	return a.out.Success(importView{res})
}

type importView struct {
	transfer.ImportResult `yaml:",inline"`
}

func (v importView) writeText(w io.Writer) {
	fmt.Fprintf(w, "Imported %d nodes and %d edges (%d skipped)\n", v.Nodes, v.Edges, v.Skipped)
}
