package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	jobmetrics "github.com/atlas-travel/atlas-ledger/internal/jobs"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Poster posts one transaction log row.
type Poster interface {
	Post(ctx context.Context, transactionID int64) (posting.Result, error)
}

// PostingRetryJob re-posts rows whose inline posting failed.
type PostingRetryJob struct {
	Poster  Poster
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPostingRetryJob wires the retry handler.
func NewPostingRetryJob(poster Poster, logger *slog.Logger, metrics *jobmetrics.Metrics) *PostingRetryJob {
	return &PostingRetryJob{Poster: poster, Logger: logger, Metrics: metrics}
}

// Handle posts the row named by the task. Rows that can never post, or are
// already posted, end the task; transient failures are returned so asynq
// redelivers with backoff.
func (j *PostingRetryJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Poster == nil {
		return errors.New("posting retry: poster not configured")
	}
	var payload PostingRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.TransactionID <= 0 {
		return fmt.Errorf("posting retry: bad payload: %w", asynq.SkipRetry)
	}

	tracker := metricsOr(j.Metrics).Track(TaskPostingRetry)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskPostingRetry).With(slog.Int64("transaction_id", payload.TransactionID))
	result, err := j.Poster.Post(ctx, payload.TransactionID)
	switch {
	case err == nil:
		logger.Info("retry posted", slog.String("reference", result.Reference))
		return nil
	case shared.IsConflict(err):
		logger.Info("retry found row already posted", slog.String("reference", result.Reference))
		return nil
	case errors.Is(err, shared.ErrTransactionNotFound), errors.Is(err, shared.ErrInvalidStatus):
		logger.Warn("retry dropped", slog.Any("error", err))
		return nil
	}

	var perr *shared.PostingError
	if errors.As(err, &perr) && !perr.Retryable {
		logger.Error("retry budget exhausted, row parked for reconciliation", slog.Any("error", err))
		resultErr = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		return resultErr
	}
	resultErr = err
	return resultErr
}

func metricsOr(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
