package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/atlas-travel/atlas-ledger/internal/jobs"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
)

// Sweeper posts pending rows in bulk.
type Sweeper interface {
	PostPending(ctx context.Context, limit int) (posting.SweepReport, error)
}

// PostingSweepJob is the periodic safety net behind inline posting and retries.
type PostingSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPostingSweepJob wires the sweep handler.
func NewPostingSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *PostingSweepJob {
	return &PostingSweepJob{
		Sweeper: sweeper,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle runs one sweep.
func (j *PostingSweepJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("posting sweep: sweeper not configured")
	}
	var payload PostingSweepPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = SweepLimit
	}

	metrics := metricsOr(j.Metrics)
	tracker := metrics.Track(TaskPostingSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.clock()
	report, err := j.Sweeper.PostPending(ctx, payload.Limit)
	metrics.AddSwept(posting.OutcomePosted, report.Posted)
	metrics.AddSwept(posting.OutcomeSkipped, report.Skipped)
	metrics.AddSwept(posting.OutcomeFailed, report.Failed)
	logger := jobLogger(j.Logger, TaskPostingSweep)
	if err != nil {
		resultErr = err
		logger.Error("sweep aborted", slog.Int("scanned", report.Scanned), slog.Any("error", err))
		return resultErr
	}
	logger.Info("sweep completed",
		slog.Int("scanned", report.Scanned),
		slog.Int("posted", report.Posted),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", j.clock().Sub(start)))
	return resultErr
}

// WithClock overrides the internal clock for deterministic tests.
func (j *PostingSweepJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
