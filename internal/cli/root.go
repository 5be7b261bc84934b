// Package cli implements the stategraph command-line interface: graph reads
// and direct writes, the proposal and voting workflow, agent management,
// export/import and database maintenance.
package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/stategraph/internal/config"
	"github.com/roach88/stategraph/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "yaml"
	DB      string
	Agent   string
	Policy  string
	NoColor bool

	logLevel slog.Level

	// storeOptions are appended to the store options of every command,
	// letting tests pin the clock and id generator.
	storeOptions []store.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the stategraph CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stategraph",
		Short: "stategraph - a governed knowledge graph",
		Long: `A local-first knowledge graph shared by cooperating agents.

Agents with direct capability write to the graph immediately. Everyone else
submits proposals that the other agents vote on; approved proposals are
executed against the graph and every change lands in the event log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flags",
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.applyEnv(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "path to the SQLite database (env STATEGRAPH_DB)")
	cmd.PersistentFlags().StringVar(&opts.Agent, "agent", "", "acting agent identity (env STATEGRAPH_AGENT)")
	cmd.PersistentFlags().StringVar(&opts.Policy, "policy", "", "governance policy file in CUE (env STATEGRAPH_POLICY)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored text output")

	// Add subcommands
	cmd.AddCommand(NewNodeCommand(opts))
	cmd.AddCommand(NewEdgeCommand(opts))
	cmd.AddCommand(NewNeighborsCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewAgentCommand(opts))
	cmd.AddCommand(NewProposalCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewMetricsCommand(opts))
	cmd.AddCommand(NewDBCommand(opts))

	return cmd
}

// applyEnv fills every flag the user did not set from the environment.
func (o *RootOptions) applyEnv(cmd *cobra.Command) error {
	env, err := config.LoadEnv()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid environment", err)
	}
	flags := cmd.Flags()
	if !flags.Changed("db") {
		o.DB = env.DB
	}
	if !flags.Changed("agent") {
		o.Agent = env.Agent
	}
	if !flags.Changed("policy") {
		o.Policy = env.Policy
	}

	o.logLevel = slog.LevelWarn
	if lvl := strings.TrimSpace(env.LogLevel); lvl != "" {
		if err := o.logLevel.UnmarshalText([]byte(lvl)); err != nil {
			return WrapExitError(ExitCommandError, "invalid STATEGRAPH_LOG_LEVEL", err)
		}
	}
	if o.Verbose {
		o.logLevel = slog.LevelDebug
	}
	if o.NoColor {
		color.NoColor = true
	}
	return nil
}
