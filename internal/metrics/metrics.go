package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"session-scheduler-backend/internal/engine"
)

const namespace = "scheduler"

// Pass outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
	OutcomeSkipped   = "skipped"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	passes          *prometheus.CounterVec
	passDuration    prometheus.Histogram
	sessions        *prometheus.CounterVec
	overallocations prometheus.Gauge
	moves           prometheus.Counter
	manual          *prometheus.CounterVec
	notifications   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Scheduling passes by outcome.",
		}, []string{"outcome"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of completed scheduling passes.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_classified_total",
			Help:      "Sessions classified by scheduling passes.",
		}, []string{"status", "reason"}),
		overallocations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overallocations",
			Help:      "Overallocations found by the last pass.",
		}),
		moves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compaction_moves_total",
			Help:      "Assignments moved earlier by compaction.",
		}),
		manual: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_assignments_total",
			Help:      "Manual assignment attempts by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Push notifications by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.passes, m.passDuration, m.sessions, m.overallocations, m.moves, m.manual, m.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePass records a finished pass. res may be nil for failed passes.
func (m *Metrics) ObservePass(outcome string, took time.Duration, res *engine.Result) {
	m.passes.WithLabelValues(outcome).Inc()
	if res == nil {
		return
	}
	m.passDuration.Observe(took.Seconds())
	m.sessions.WithLabelValues(string(engine.StatusScheduled), "").Add(float64(len(res.Scheduled)))
	for _, q := range res.Queued {
		m.sessions.WithLabelValues(string(engine.StatusQueued), q.Reason).Inc()
	}
	for _, c := range res.Conflicts {
		m.sessions.WithLabelValues(string(engine.StatusConflicted), c.Reason).Inc()
	}
	m.overallocations.Set(float64(len(res.Overallocations)))
	m.moves.Add(float64(res.Moves))
}

func (m *Metrics) ObserveManual(result string) {
	m.manual.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveNotification(result string) {
	m.notifications.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
