package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/stategraph/internal/config"
	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/governance"
	"github.com/roach88/stategraph/internal/graph"
	"github.com/roach88/stategraph/internal/metrics"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/store"
)

// app is the per-invocation context: the opened store, the governance
// context built over it and the resolved acting agent. It is created by
// the entry point of every command and closed when the command returns.
type app struct {
	store   *store.Store
	gov     *governance.Governance
	graph   *graph.Graph
	metrics *metrics.Collector
	agent   schema.AgentID
	out     *OutputFormatter
	logger  *slog.Logger
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: o.logLevel,
	})
	return slog.New(handler)
}

// run opens the application, hands it to fn and reports any error through
// the output formatter. fn writes its own success output.
func (o *RootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	out := o.formatter(cmd)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := o.open(ctx, out, cmd.ErrOrStderr())
	if err != nil {
		return out.Fail(err)
	}
	defer func() {
		if closeErr := a.store.Close(); closeErr != nil {
			a.logger.Error("error closing database", "error", closeErr)
		}
	}()

	if err := fn(ctx, a); err != nil {
		return out.Fail(err)
	}
	return nil
}

func (o *RootOptions) open(ctx context.Context, out *OutputFormatter, logw io.Writer) (*app, error) {
	const op = "open"
	logger := o.newLogger(logw)

	policy, err := config.LoadPolicy(o.Policy)
	if err != nil {
		return nil, err
	}
	settings, err := policy.Settings()
	if err != nil {
		return nil, err
	}

	agent, err := schema.ParseAgentID(o.Agent)
	if err != nil {
		return nil, fault.InvalidInputf(op, "%v", err)
	}

	if o.DB != ":memory:" && !strings.HasPrefix(o.DB, "file:") {
		if dir := filepath.Dir(o.DB); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fault.Persist(op, fmt.Errorf("create database directory: %w", err))
			}
		}
	}

	collector := metrics.New()
	storeOpts := []store.Option{
		store.WithLogger(logger),
		store.WithEventHook(collector.EventHook()),
	}
	storeOpts = append(storeOpts, o.storeOptions...)

	logger.Debug("opening database", "path", o.DB)
	st, err := store.Open(o.DB, storeOpts...)
	if err != nil {
		return nil, err
	}

	gov, err := governance.New(st, settings,
		governance.WithLogger(logger),
		governance.WithRecorder(collector),
	)
	if err != nil {
		st.Close()
		return nil, fault.InvalidInputf(op, "%v", err)
	}

	resolved, err := gov.Registry.Resolve(ctx, agent)
	if err != nil {
		st.Close()
		return nil, err
	}
	logger.Debug("database ready", "agent", resolved, "policy", policy.Source)

	return &app{
		store:   st,
		gov:     gov,
		graph:   graph.New(st, gov.Capabilities, graph.WithLogger(logger)),
		metrics: collector,
		agent:   resolved,
		out:     out,
		logger:  logger,
	}, nil
}
