package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/atlas-travel/atlas-ledger/internal/jobs"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
)

// DefaultLookbackDays is the nightly rebuild window.
const DefaultLookbackDays = 2

// SummaryRebuilder recomputes rollups for every active agent.
type SummaryRebuilder interface {
	RebuildActive(ctx context.Context, from, to time.Time) ([]rollups.RebuildResult, error)
}

// SummaryRebuildJob repairs daily summaries and monthly reports from the
// transaction log.
type SummaryRebuildJob struct {
	Service SummaryRebuilder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSummaryRebuildJob constructs the job handler.
func NewSummaryRebuildJob(service SummaryRebuilder, logger *slog.Logger, metrics *jobmetrics.Metrics) *SummaryRebuildJob {
	return &SummaryRebuildJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the rebuild.
func (j *SummaryRebuildJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("summary rebuild: dependencies not configured")
	}
	var payload SummaryRebuildPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	from, to, err := j.window(payload)
	if err != nil {
		jobLogger(j.Logger, TaskSummaryRebuild).Warn("invalid rebuild window", slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	tracker := metricsOr(j.Metrics).Track(TaskSummaryRebuild)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskSummaryRebuild).With(
		slog.String("from", from.Format(time.DateOnly)),
		slog.String("to", to.Format(time.DateOnly)))
	start := j.clock()
	results, err := j.Service.RebuildActive(ctx, from, to)
	if err != nil {
		resultErr = err
		logger.Error("rebuild summaries", slog.Int("agents_done", len(results)), slog.Any("error", err))
		return resultErr
	}
	events := 0
	for _, r := range results {
		events += r.Events
	}
	logger.Info("rebuilt summaries",
		slog.Int("agents", len(results)),
		slog.Int("events", events),
		slog.Duration("duration", j.clock().Sub(start)))
	return resultErr
}

func (j *SummaryRebuildJob) window(p SummaryRebuildPayload) (time.Time, time.Time, error) {
	if p.From != "" || p.To != "" {
		from, err := time.Parse(time.DateOnly, p.From)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from %q", p.From)
		}
		to, err := time.Parse(time.DateOnly, p.To)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to %q", p.To)
		}
		if to.Before(from) {
			return time.Time{}, time.Time{}, fmt.Errorf("to %s precedes from %s", p.To, p.From)
		}
		return from, to, nil
	}
	days := p.LookbackDays
	if days <= 0 {
		days = DefaultLookbackDays
	}
	to := rollups.Day(j.clock())
	return to.AddDate(0, 0, -(days - 1)), to, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (j *SummaryRebuildJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
