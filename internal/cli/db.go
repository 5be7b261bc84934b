package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/stategraph/internal/fault"
)

// NewDBCommand creates the db command group.
func NewDBCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database information and consistency checks",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count rows in every table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, func(ctx context.Context, a *app) error {
				s, err := a.store.Stats(ctx)
				if err != nil {
					return err
				}
				return a.out.Success(statsView{Path: rootOpts.DB, Stats: s})
			})
		},
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Replay the event log and compare it with the graph tables",
		Long: `Replay the whole event log and compare the resulting graph with the
node and edge tables. Exits with status 1 when they differ.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, func(ctx context.Context, a *app) error {
				report, err := a.store.Verify(ctx)
				if err != nil {
					return err
				}
				if err := a.out.Success(verifyView{OK: report.OK(), VerifyReport: report}); err != nil {
					return err
				}
				if !report.OK() {
					return fault.InvalidStatef("verify", "event log and graph tables differ")
				}
				return nil
			})
		},
	}

	cmd.AddCommand(stats, verify)
	return cmd
}

// NewMetricsCommand creates the metrics command.
func NewMetricsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print graph and governance metrics in Prometheus text format",
		Long: `Print the metrics registry in Prometheus text exposition format: entity
gauges for the current database plus the counters recorded by this process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, func(ctx context.Context, a *app) error {
				s, err := a.store.Stats(ctx)
				if err != nil {
					return err
				}
				a.metrics.ObserveStats(s)
				return a.metrics.WriteText(cmd.OutOrStdout())
			})
		},
	}
}
