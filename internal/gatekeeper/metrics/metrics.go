package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the admission gatekeeper.
type Metrics struct {
	// Decisions by request kind and outcome
	Decisions *prometheus.CounterVec

	// Requests denied by the sliding window limiter
	RateLimited prometheus.Counter

	// Full decision latency including the rate-limit check
	DecideLatency prometheus.Histogram
}

// New creates a Metrics instance with all gatekeeper metrics registered.
func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "palisade_gatekeeper_decisions_total",
			Help: "Total admission decisions by request kind and outcome",
		}, []string{"kind", "outcome"}), // kind: "discovery", "query"

		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "palisade_gatekeeper_rate_limited_total",
			Help: "Total requests denied by the sliding window rate limiter",
		}),

		DecideLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "palisade_gatekeeper_decide_duration_seconds",
			Help:    "Duration of full admission decisions",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

// IncrementDecision records a decision outcome.
func (m *Metrics) IncrementDecision(kind string, allowed bool) {
	if m != nil {
		outcome := "deny"
		if allowed {
			outcome = "allow"
		}
		m.Decisions.WithLabelValues(kind, outcome).Inc()
	}
}

// IncrementRateLimited records a rate-limit denial.
func (m *Metrics) IncrementRateLimited() {
	if m != nil {
		m.RateLimited.Inc()
	}
}

// ObserveDecideLatency records the duration of a decision.
func (m *Metrics) ObserveDecideLatency(d time.Duration) {
	if m != nil {
		m.DecideLatency.Observe(d.Seconds())
	}
}
