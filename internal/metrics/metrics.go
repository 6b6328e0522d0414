// Package metrics exposes Prometheus counters for submissions, verifications,
// notifications and intent recovery.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "snaps"

// Metrics holds the service counters on a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Submissions   *prometheus.CounterVec
	Verifications *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	MigratedSnaps prometheus.Counter
	Recovered     prometheus.Counter
}

// New registers all counters plus Go and process collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	register := func(c prometheus.Collector) { reg.MustRegister(c) }

	m := &Metrics{
		registry: reg,
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Snap submissions by result",
		}, []string{"result"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification requests by result",
		}, []string{"result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Verification emails by result",
		}, []string{"result"}),
		MigratedSnaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrated_weight_total",
			Help:      "Sum of snap weights migrated into aggregates",
		}),
		Recovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovered_total",
			Help:      "Migrations completed by intent recovery",
		}),
	}

	register(m.Submissions)
	register(m.Verifications)
	register(m.Notifications)
	register(m.MigratedSnaps)
	register(m.Recovered)
	register(collectors.NewGoCollector())
	register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Submission(result string) {
	if m != nil {
		m.Submissions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Verification(result string) {
	if m != nil {
		m.Verifications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Notification(result string) {
	if m != nil {
		m.Notifications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Migrated(weight int) {
	if m != nil {
		m.MigratedSnaps.Add(float64(weight))
	}
}

func (m *Metrics) RecoveredOne() {
	if m != nil {
		m.Recovered.Inc()
	}
}
