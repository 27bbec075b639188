package posting

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for atlas_postings_total.
const (
	OutcomePosted    = "posted"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
	OutcomeException = "exception"
)

// Metrics counts posting outcomes per transaction type.
type Metrics struct {
	postings *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the posting collectors. A nil registerer uses the
// default Prometheus registerer once per process.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_postings_total",
		Help: "Journal postings partitioned by transaction type and outcome.",
	}, []string{"type", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_posting_duration_seconds",
		Help:    "Duration of the atomic posting transaction.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	registerer.MustRegister(postings, duration)
	return &Metrics{postings: postings, duration: duration}
}

func (m *Metrics) observe(txType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if txType == "" {
		txType = "unknown"
	}
	m.postings.WithLabelValues(txType, outcome).Inc()
	if outcome == OutcomePosted {
		m.duration.WithLabelValues(txType).Observe(elapsed.Seconds())
	}
}
