package core

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for the submissions counter
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation"
	OutcomeFailure    = "failure"
	OutcomeEnqueued   = "enqueued"
)

// Metrics holds the relay's Prometheus collectors on a private registry
type Metrics struct {
	registry    *prometheus.Registry
	submissions *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewMetrics registers the relay collectors plus Go runtime collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hcsrelay",
			Name:      "submissions_total",
			Help:      "Topic message submissions by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hcsrelay",
			Name:      "submission_duration_seconds",
			Help:      "Time from request to receipt for successful submissions.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34},
		}),
	}
	m.registry.MustRegister(
		m.submissions,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess {
		m.duration.Observe(elapsed.Seconds())
	}
}
