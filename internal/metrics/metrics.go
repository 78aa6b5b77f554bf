// Package metrics exposes portal counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry    *prometheus.Registry
	submissions *prometheus.CounterVec
	transitions *prometheus.CounterVec
	logins      *prometheus.CounterVec
	activity    prometheus.Gauge
	reminders   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "submissions_total",
			Help:      "Submissions accepted, by entity and department.",
		}, []string{"entity", "department"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "workflow_transitions_total",
			Help:      "Status transitions applied, by entity and target status.",
		}, []string{"entity", "from", "to"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		activity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "portal",
			Name:      "activity_log_entries",
			Help:      "Entries currently retained in the activity log.",
		}),
		reminders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "reminders_sent_total",
			Help:      "DMAX reminder emails sent to defaulters.",
		}),
	}
	m.registry.MustRegister(
		m.submissions,
		m.transitions,
		m.logins,
		m.activity,
		m.reminders,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Submitted(entity, department string) {
	m.submissions.WithLabelValues(entity, department).Inc()
}

func (m *Metrics) Transitioned(entity, from, to string) {
	m.transitions.WithLabelValues(entity, from, to).Inc()
}

func (m *Metrics) Login(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ActivitySize(n int) {
	m.activity.Set(float64(n))
}

func (m *Metrics) RemindersSent(n int) {
	m.reminders.Add(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
