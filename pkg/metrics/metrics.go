// Package metrics exposes relay counters and gauges in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/txn2/pipeline-relay/pkg/broadcast"
)

const namespace = "relay"

// Metrics holds the relay's collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	hubSubscribers     prometheus.Gauge
	eventsPublished    prometheus.Counter
	droppedSubscribers prometheus.Counter
	authDecisions      *prometheus.CounterVec
	dedupHits          prometheus.Counter
	stepsAppended      prometheus.Counter
	agentTokens        prometheus.Gauge
}

// New creates and registers every collector, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		hubSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_subscribers",
			Help:      "Live event stream subscribers.",
		}),
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_events_published_total",
			Help:      "Events published to the broadcast hub.",
		}),
		droppedSubscribers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_dropped_subscribers_total",
			Help:      "Subscribers removed because their buffer was full.",
		}),
		authDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_decisions_total",
			Help:      "Authentication gate decisions by outcome.",
		}, []string{"outcome"}),
		dedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_deduplicated_total",
			Help:      "Session creates answered from the dedup index.",
		}),
		stepsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_steps_total",
			Help:      "Steps appended to sessions.",
		}),
		agentTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_tokens_cached",
			Help:      "Active agent bearer tokens in the identity cache.",
		}),
	}
	m.reg.MustRegister(
		m.hubSubscribers, m.eventsPublished, m.droppedSubscribers,
		m.authDecisions, m.dedupHits, m.stepsAppended, m.agentTokens,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// SubscriberAdded implements broadcast.Observer.
func (m *Metrics) SubscriberAdded() { m.hubSubscribers.Inc() }

// SubscriberRemoved implements broadcast.Observer.
func (m *Metrics) SubscriberRemoved() { m.hubSubscribers.Dec() }

// EventPublished implements broadcast.Observer.
func (m *Metrics) EventPublished() { m.eventsPublished.Inc() }

// SubscriberDropped implements broadcast.Observer.
func (m *Metrics) SubscriberDropped() { m.droppedSubscribers.Inc() }

// AuthDecision counts one gate decision.
func (m *Metrics) AuthDecision(outcome string) {
	m.authDecisions.WithLabelValues(outcome).Inc()
}

// Deduplicated counts a create answered from the dedup index.
func (m *Metrics) Deduplicated() { m.dedupHits.Inc() }

// StepAppended counts an appended step.
func (m *Metrics) StepAppended() { m.stepsAppended.Inc() }

// AgentTokensLoaded records the identity cache size.
func (m *Metrics) AgentTokensLoaded(n int) { m.agentTokens.Set(float64(n)) }

// Verify interface compliance.
var _ broadcast.Observer = (*Metrics)(nil)
