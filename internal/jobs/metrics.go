// Package jobmetrics instruments the accounting background jobs.
package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded on atlas_jobs_total.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeAbandoned = "abandoned"
)

// Metrics holds the collectors shared by every accounting job.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	imbalances prometheus.Counter
	swept      *prometheus.CounterVec
}

var (
	processOnce    sync.Once
	processMetrics *Metrics
)

// NewMetrics registers the collectors on reg. A nil reg shares one
// process-wide set on the default registerer so repeated calls do not panic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg != nil {
		return register(reg)
	}
	processOnce.Do(func() { processMetrics = register(prometheus.DefaultRegisterer) })
	return processMetrics
}

// Tracker times one job run.
type Tracker struct {
	m     *Metrics
	job   string
	start time.Time
}

// Track starts timing a run of job. A nil receiver yields a no-op tracker.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{m: m, job: job, start: time.Now()}
}

// End records the run outcome and duration and hands err back unchanged.
// Errors wrapping asynq.SkipRetry count as abandoned since asynq will not
// retry them.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil || t.job == "" {
		return err
	}
	outcome := Outcome(err)
	if outcome != OutcomeSuccess {
		t.m.failures.WithLabelValues(t.job, outcome).Inc()
	}
	t.m.runs.WithLabelValues(t.job, outcome).Inc()
	t.m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// Outcome classifies a handler result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, asynq.SkipRetry):
		return OutcomeAbandoned
	default:
		return OutcomeFailure
	}
}

// AddImbalances counts journal references whose debits and credits disagree.
func (m *Metrics) AddImbalances(count int) {
	if m != nil && count > 0 {
		m.imbalances.Add(float64(count))
	}
}

// AddSwept records the per-outcome tallies of one posting sweep.
func (m *Metrics) AddSwept(outcome string, count int) {
	if m != nil && count > 0 {
		m.swept.WithLabelValues(outcome).Add(float64(count))
	}
}

func register(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_jobs_total",
			Help: "Accounting job runs by task type and outcome.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_jobs_failures_total",
			Help: "Accounting job runs that returned an error, by task type and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "atlas_job_duration_seconds",
			Help:    "Accounting job run time in seconds.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		imbalances: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atlas_journal_imbalances_total",
			Help: "Journal references found with debits not equal to credits.",
		}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_posting_sweep_rows_total",
			Help: "Unposted rows visited by the posting sweep, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.runs, m.failures, m.duration, m.imbalances, m.swept)
	return m
}
