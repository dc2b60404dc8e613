// Package metrics exposes Prometheus instrumentation for the hub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "picohub"

// Metrics holds the hub's counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Registrations     prometheus.Counter
	Reports           prometheus.Counter
	CommandsEnqueued  prometheus.Counter
	CommandsDelivered prometheus.Counter
	SnapshotFailures  prometheus.Counter
	LoginFailures     prometheus.Counter
	OperatorCommands  *prometheus.CounterVec
	Agents            prometheus.Gauge
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests
// to avoid duplicate registration against the default registry.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		Registrations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Agent registration calls accepted",
		}),
		Reports: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Agent reports merged",
		}),
		CommandsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_enqueued_total",
			Help:      "Commands appended to agent queues",
		}),
		CommandsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_delivered_total",
			Help:      "Commands handed to polling agents",
		}),
		SnapshotFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_failures_total",
			Help:      "State snapshot writes that failed",
		}),
		LoginFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_failures_total",
			Help:      "Rejected operator login attempts",
		}),
		OperatorCommands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operator_commands_total",
			Help:      "Operator commands handled, by verb",
		}, []string{"verb"}),
		Agents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents",
			Help:      "Agent records held in memory",
		}),
	}
}

// Handler serves the exposition format for the collectors registered in New.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) IncRegistrations() {
	if m != nil {
		m.Registrations.Inc()
	}
}

func (m *Metrics) IncReports() {
	if m != nil {
		m.Reports.Inc()
	}
}

func (m *Metrics) AddEnqueued(n int) {
	if m != nil {
		m.CommandsEnqueued.Add(float64(n))
	}
}

func (m *Metrics) AddDelivered(n int) {
	if m != nil {
		m.CommandsDelivered.Add(float64(n))
	}
}

func (m *Metrics) IncSnapshotFailures() {
	if m != nil {
		m.SnapshotFailures.Inc()
	}
}

func (m *Metrics) IncLoginFailures() {
	if m != nil {
		m.LoginFailures.Inc()
	}
}

func (m *Metrics) IncOperatorCommand(verb string) {
	if m != nil {
		m.OperatorCommands.WithLabelValues(verb).Inc()
	}
}

func (m *Metrics) SetAgents(n int) {
	if m != nil {
		m.Agents.Set(float64(n))
	}
}
