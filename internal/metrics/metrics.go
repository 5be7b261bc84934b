// Package metrics holds the Prometheus counters for store and governance
// activity on a private registry, and renders them in the text exposition
// format.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/store"
)

const namespace = "stategraph"

// Collector owns the registry and every metric on it. It implements
// governance.Recorder, and EventHook feeds it from the store.
type Collector struct {
	registry *prometheus.Registry

	eventsAppended     *prometheus.CounterVec
	proposalsSubmitted *prometheus.CounterVec
	proposalsResolved  *prometheus.CounterVec
	votesCast          *prometheus.CounterVec
	entities           *prometheus.GaugeVec
}

// New creates a collector on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Events appended to the log, by operation and target kind.",
		}, []string{"operation", "target"}),
		proposalsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_submitted_total",
			Help:      "Proposals submitted, by operation.",
		}, []string{"operation"}),
		proposalsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_resolved_total",
			Help:      "Proposals that reached a terminal status, by status.",
		}, []string{"status"}),
		votesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_cast_total",
			Help:      "Votes cast, by decision.",
		}, []string{"decision"}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Stored records, by kind, as of the last stats observation.",
		}, []string{"kind"}),
	}
	c.registry.MustRegister(
		c.eventsAppended,
		c.proposalsSubmitted,
		c.proposalsResolved,
		c.votesCast,
		c.entities,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// EventHook returns a store hook that counts committed events.
func (c *Collector) EventHook() store.EventHook {
	return func(ev schema.Event) {
		c.eventsAppended.WithLabelValues(string(ev.Operation), string(ev.Target.Kind)).Inc()
	}
}

func (c *Collector) ProposalSubmitted(op schema.Operation) {
	c.proposalsSubmitted.WithLabelValues(string(op)).Inc()
}

func (c *Collector) ProposalResolved(status schema.ProposalStatus) {
	c.proposalsResolved.WithLabelValues(string(status)).Inc()
}

func (c *Collector) VoteCast(d schema.VoteDecision) {
	c.votesCast.WithLabelValues(string(d)).Inc()
}

// ObserveStats sets the entity gauges from a store snapshot.
func (c *Collector) ObserveStats(s store.Stats) {
	for kind, n := range map[string]int64{
		"nodes":             s.Nodes,
		"edges":             s.Edges,
		"events":            s.Events,
		"proposals":         s.Proposals,
		"pending_proposals": s.PendingProposals,
		"votes":             s.Votes,
		"modules":           s.Modules,
	} {
		c.entities.WithLabelValues(kind).Set(float64(n))
	}
}

// WriteText writes every metric family in the Prometheus text format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	return writeFamilies(w, families)
}

func writeFamilies(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
