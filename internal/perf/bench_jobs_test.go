package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/atlas-travel/atlas-ledger/internal/jobs"
	"github.com/atlas-travel/atlas-ledger/jobs"
)

func TestAccountingJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Sweeps finish fast and mostly succeed.
	for i := 0; i < 60; i++ {
		tracker := metrics.Track(jobs.TaskPostingSweep)
		time.Sleep(5 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending sweep tracker: %v", err)
		}
	}

	// Nightly rebuilds are slower but stay inside the budget.
	for i := 0; i < 10; i++ {
		tracker := metrics.Track(jobs.TaskSummaryRebuild)
		time.Sleep(30 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending rebuild tracker: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		tracker := metrics.Track(jobs.TaskPostingSweep)
		if err := tracker.End(errors.New("deadlock detected")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}
	metrics.AddSwept("posted", 120)
	metrics.AddSwept("failed", 2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "atlas_jobs_total", map[string]string{"job": jobs.TaskPostingSweep, "status": "success"})
	failure := metricValue(t, families, "atlas_jobs_total", map[string]string{"job": jobs.TaskPostingSweep, "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no sweep executions recorded")
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("sweep success ratio too low: %f", ratio)
	}

	posted := metricValue(t, families, "atlas_posting_sweep_rows_total", map[string]string{"outcome": "posted"})
	failed := metricValue(t, families, "atlas_posting_sweep_rows_total", map[string]string{"outcome": "failed"})
	if failed/(posted+failed) > 0.05 {
		t.Fatalf("sweep row failure rate above budget: %f", failed/(posted+failed))
	}

	if mean := histogramMean(t, families, "atlas_job_duration_seconds", map[string]string{"job": jobs.TaskSummaryRebuild}); mean > 2.0 {
		t.Fatalf("rebuild duration above budget: %f", mean)
	}
	if mean := histogramMean(t, families, "atlas_job_duration_seconds", map[string]string{"job": jobs.TaskPostingSweep}); mean > 0.5 {
		t.Fatalf("sweep duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
