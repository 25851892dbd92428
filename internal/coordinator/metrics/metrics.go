package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the coordinator loop.
type Metrics struct {
	// Dispatch outcomes by failure kind ("" mapped to "ok")
	Responses *prometheus.CounterVec

	// End-to-end latency of a routed query
	QueryLatency prometheus.Histogram

	// Weight publication failures
	PublishFailures prometheus.Counter

	// Size of the candidate set per query
	CandidateCount prometheus.Histogram
}

// New creates a Metrics instance with all coordinator metrics registered.
func New() *Metrics {
	return &Metrics{
		Responses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "palisade_coordinator_responses_total",
			Help: "Total dispatch responses by outcome",
		}, []string{"outcome"}),

		QueryLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "palisade_coordinator_query_duration_seconds",
			Help:    "Duration of routed queries including dispatch fan-out",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}),

		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "palisade_coordinator_publish_failures_total",
			Help: "Total weight publication failures",
		}),

		CandidateCount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "palisade_coordinator_candidates",
			Help:    "Number of candidate nodes selected per query",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
	}
}

// IncrementResponse records one dispatch outcome.
func (m *Metrics) IncrementResponse(outcome string) {
	if m != nil {
		if outcome == "" {
			outcome = "ok"
		}
		m.Responses.WithLabelValues(outcome).Inc()
	}
}

// ObserveQueryLatency records a routed query duration.
func (m *Metrics) ObserveQueryLatency(d time.Duration) {
	if m != nil {
		m.QueryLatency.Observe(d.Seconds())
	}
}

// IncrementPublishFailure records a failed weight publication.
func (m *Metrics) IncrementPublishFailure() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}

// ObserveCandidates records the candidate set size for a query.
func (m *Metrics) ObserveCandidates(n int) {
	if m != nil {
		m.CandidateCount.Observe(float64(n))
	}
}
