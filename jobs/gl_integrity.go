package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	jobmetrics "github.com/atlas-travel/atlas-ledger/internal/jobs"
)

// DefaultIntegrityWindowHours covers the last day of postings.
const DefaultIntegrityWindowHours = 24

// ImbalanceFinder lists journal references that do not balance.
type ImbalanceFinder interface {
	Imbalances(ctx context.Context, from, to time.Time) ([]journals.Verification, int, error)
}

// GLIntegrityJob re-verifies the double-entry invariant over recent postings.
type GLIntegrityJob struct {
	Journals ImbalanceFinder
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewGLIntegrityJob constructs the integrity handler.
func NewGLIntegrityJob(finder ImbalanceFinder, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{
		Journals: finder,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle verifies every reference in the window. Imbalances are reported via
// logs and metrics; the task itself only fails on read errors.
func (j *GLIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Journals == nil {
		return errors.New("gl integrity: journals not configured")
	}
	var payload GLIntegrityPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.WindowHours <= 0 {
		payload.WindowHours = DefaultIntegrityWindowHours
	}

	metrics := metricsOr(j.Metrics)
	tracker := metrics.Track(TaskGLIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	to := j.clock()
	from := to.Add(-time.Duration(payload.WindowHours) * time.Hour)
	logger := jobLogger(j.Logger, TaskGLIntegrity).With(slog.Int("window_hours", payload.WindowHours))
	bad, checked, err := j.Journals.Imbalances(ctx, from, to)
	if err != nil {
		resultErr = err
		logger.Error("integrity check failed", slog.Int("checked", checked), slog.Any("error", err))
		return resultErr
	}
	metrics.AddImbalances(len(bad))
	for _, v := range bad {
		logger.Error("unbalanced journal reference",
			slog.String("reference", v.Reference),
			slog.String("debits", v.Debits.StringFixed(2)),
			slog.String("credits", v.Credits.StringFixed(2)))
	}
	logger.Info("GL integrity check executed", slog.Int("checked", checked), slog.Int("imbalanced", len(bad)))
	return resultErr
}

// WithClock overrides the internal clock for deterministic tests.
func (j *GLIntegrityJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
