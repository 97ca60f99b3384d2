package directory

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts directory calls by operation and outcome and records how
// long they took, retries and backoff included.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "students",
			Subsystem: "directory",
			Name:      "requests_total",
			Help:      "Calls to the external user directory by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "students",
			Subsystem: "directory",
			Name:      "request_duration_seconds",
			Help:      "Duration of directory calls including retries and backoff.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// observe is a no-op on a nil *Metrics so the client works without them.
func (m *Metrics) observe(op string, outcome Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome.String()).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}
