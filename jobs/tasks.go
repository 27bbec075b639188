package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueuePosting carries posting retries ahead of maintenance work.
	QueuePosting = "posting"

	// TaskPostingRetry re-posts one transaction log row.
	TaskPostingRetry = "accounting:posting.retry"
	// TaskPostingSweep posts every unposted row that still has attempts left.
	TaskPostingSweep = "accounting:posting.sweep"
	// TaskSummaryRebuild recomputes daily summaries and monthly reports.
	TaskSummaryRebuild = "accounting:summary.rebuild"
	// TaskGLIntegrity verifies that recent journal references balance.
	TaskGLIntegrity = "accounting:gl.integrity"

	// RetryMaxAttempts bounds asynq redeliveries of one posting retry.
	RetryMaxAttempts = 5
	// SweepLimit is the default batch size of one sweep.
	SweepLimit = 200
)

// PostingRetryPayload identifies the row to re-post.
type PostingRetryPayload struct {
	TransactionID int64 `json:"transaction_id"`
}

// PostingSweepPayload bounds one sweep run.
type PostingSweepPayload struct {
	Limit int `json:"limit"`
}

// SummaryRebuildPayload configures the rebuild window. Empty dates mean the
// trailing LookbackDays ending today.
type SummaryRebuildPayload struct {
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	LookbackDays int    `json:"lookback_days,omitempty"`
}

// GLIntegrityPayload configures the verification window in hours.
type GLIntegrityPayload struct {
	WindowHours int `json:"window_hours"`
}

// PostingRetryTaskID dedupes retries of one row while a task is queued.
func PostingRetryTaskID(transactionID int64) string {
	return fmt.Sprintf("posting-retry:%d", transactionID)
}

// NewPostingRetryTask creates the retry task for one row.
func NewPostingRetryTask(transactionID int64) (*asynq.Task, error) {
	body, err := json.Marshal(PostingRetryPayload{TransactionID: transactionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPostingRetry, body,
		asynq.Queue(QueuePosting),
		asynq.MaxRetry(RetryMaxAttempts),
		asynq.TaskID(PostingRetryTaskID(transactionID)),
		asynq.Retention(24*time.Hour),
	), nil
}

// NewPostingSweepTask creates a sweep task.
func NewPostingSweepTask(limit int) (*asynq.Task, error) {
	if limit <= 0 {
		limit = SweepLimit
	}
	body, err := json.Marshal(PostingSweepPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPostingSweep, body, asynq.Queue(QueuePosting), asynq.MaxRetry(0)), nil
}

// NewSummaryRebuildTask creates a rebuild task over the trailing lookbackDays.
func NewSummaryRebuildTask(lookbackDays int) (*asynq.Task, error) {
	body, err := json.Marshal(SummaryRebuildPayload{LookbackDays: lookbackDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSummaryRebuild, body, asynq.Queue(QueueDefault)), nil
}

// NewGLIntegrityTask creates an integrity check over the trailing windowHours.
func NewGLIntegrityTask(windowHours int) (*asynq.Task, error) {
	body, err := json.Marshal(GLIntegrityPayload{WindowHours: windowHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, body, asynq.Queue(QueueDefault)), nil
}
