package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/stategraph/internal/config"
	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/governance"
	"github.com/roach88/stategraph/internal/graph"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/store"
	"github.com/roach88/stategraph/internal/testutil"
)

// Harness holds the components one scenario runs against.
type Harness struct {
	store  *store.Store
	gov    *governance.Governance
	graph  *graph.Graph
	clock  *testutil.StepClock
	logger *slog.Logger
}

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sends component logs to l instead of discarding them.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a scenario in a fresh in-memory store.
//
// Execution:
//  1. Build governance from the scenario policy (defaults when empty)
//  2. Run setup steps; any failure aborts the run
//  3. Run flow steps and check each expect clause
//  4. Evaluate assertions against the trace and the final state
//
// The returned error reports a malformed scenario or a broken setup; a
// scenario whose expectations fail returns a Result with Pass false.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	settings := governance.DefaultSettings()
	if s.Policy != "" {
		p, err := config.ParsePolicy([]byte(s.Policy), s.Name+".cue")
		if err != nil {
			return nil, fmt.Errorf("scenario policy: %w", err)
		}
		if settings, err = p.Settings(); err != nil {
			return nil, fmt.Errorf("scenario policy: %w", err)
		}
	}

	clock := testutil.NewStepClock(testutil.Epoch, time.Second)
	st, err := store.Open(":memory:",
		store.WithClock(clock.Now),
		store.WithIDGenerator(testutil.NewSequentialIDs("id").Next),
		store.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	gov, err := governance.New(st, settings, governance.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}
	h := &Harness{
		store:  st,
		gov:    gov,
		graph:  graph.New(st, gov.Capabilities, graph.WithLogger(cfg.logger)),
		clock:  clock,
		logger: cfg.logger,
	}

	result := NewResult()
	step := 0
	for i, sp := range s.Setup {
		step++
		ev, err := h.runStep(ctx, step, PhaseSetup, sp)
		if err != nil {
			return nil, fmt.Errorf("setup[%d] %s: %w", i, sp.Do, err)
		}
		result.AddTrace(ev.TraceEvent)
		if ev.err != nil {
			return nil, fmt.Errorf("setup[%d] %s: %w", i, sp.Do, ev.err)
		}
	}

	for i, sp := range s.Flow {
		step++
		ev, err := h.runStep(ctx, step, PhaseFlow, sp)
		if err != nil {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, sp.Do, err)
		}
		result.AddTrace(ev.TraceEvent)
		for _, msg := range checkExpect(ev, sp.Expect) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, sp.Do, msg))
		}
	}

	for _, msg := range EvaluateAssertions(ctx, h, result, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// stepEvent is a trace event plus the fault the step returned.
type stepEvent struct {
	TraceEvent
	err error
}

func (h *Harness) runStep(ctx context.Context, n int, phase string, s Step) (stepEvent, error) {
	agentName := s.Agent
	if agentName == "" {
		agentName = string(schema.System)
	}
	ev := stepEvent{TraceEvent: TraceEvent{
		Step:    n,
		Phase:   phase,
		Agent:   agentName,
		Action:  s.Do,
		Args:    s.Args,
		Outcome: OutcomeOK,
	}}

	fn, ok := actions[s.Do]
	if !ok {
		return ev, fmt.Errorf("unknown action %q", s.Do)
	}

	agent, err := schema.ParseAgentID(agentName)
	if err == nil {
		agent, err = h.gov.Registry.Resolve(ctx, agent)
	} else {
		err = fault.InvalidInputf("resolve agent", "%v", err)
	}

	var res map[string]any
	if err == nil {
		res, err = fn(ctx, h, agent, args(s.Args))
	}
	if err != nil {
		kind := fault.KindOf(err)
		if kind == "" {
			return ev, err
		}
		ev.Outcome = string(kind)
		ev.err = err
		h.logger.Info("scenario step failed", "step", n, "action", s.Do, "agent", agentName, "error", err)
		return ev, nil
	}
	ev.Result = res
	h.logger.Info("scenario step completed", "step", n, "action", s.Do, "agent", agentName)
	return ev, nil
}

// checkExpect compares a flow step with its expect clause. A step without
// one must succeed.
func checkExpect(ev stepEvent, want *ExpectClause) []string {
	if want == nil || want.Error == "" {
		if ev.err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", ev.err)}
		}
		if want == nil {
			return nil
		}
		return matchSubset("result", want.Result, ev.Result)
	}
	if ev.Outcome != want.Error {
		got := ev.Outcome
		if ev.err != nil {
			got = fmt.Sprintf("%s (%v)", ev.Outcome, ev.err)
		}
		return []string{fmt.Sprintf("expected %s, got %s", want.Error, got)}
	}
	return nil
}
