package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	jobmetrics "github.com/atlas-travel/atlas-ledger/internal/jobs"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubPoster struct {
	err   error
	calls []int64
}

func (s *stubPoster) Post(_ context.Context, id int64) (posting.Result, error) {
	s.calls = append(s.calls, id)
	return posting.Result{Reference: "JE-1"}, s.err
}

func retryTask(t *testing.T, id int64) *asynq.Task {
	t.Helper()
	task, err := NewPostingRetryTask(id)
	require.NoError(t, err)
	return task
}

func TestPostingRetryOutcomes(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantErr   bool
		skipRetry bool
	}{
		{name: "posted"},
		{name: "already posted", err: fmt.Errorf("%w: transaction 7", shared.ErrAlreadyPosted)},
		{name: "pending row", err: fmt.Errorf("%w: transaction 7 is pending", shared.ErrInvalidStatus)},
		{name: "transient", err: &shared.PostingError{TransactionID: 7, Retryable: true, Err: errors.New("conn reset")}, wantErr: true},
		{name: "exhausted", err: &shared.PostingError{TransactionID: 7, Err: shared.ErrAccountNotFound}, wantErr: true, skipRetry: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			poster := &stubPoster{err: tc.err}
			job := NewPostingRetryJob(poster, quiet, jobmetrics.NewMetrics(prometheus.NewRegistry()))

			err := job.Handle(context.Background(), retryTask(t, 7))
			require.Equal(t, []int64{7}, poster.calls)
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Equal(t, tc.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestPostingRetryRejectsBadPayload(t *testing.T) {
	poster := &stubPoster{}
	job := NewPostingRetryJob(poster, quiet, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskPostingRetry, []byte(`{"transaction_id":0}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, poster.calls)
}

func TestRetryTaskIsDedupedPerRow(t *testing.T) {
	task := retryTask(t, 42)
	require.Equal(t, TaskPostingRetry, task.Type())
	var payload PostingRetryPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(42), payload.TransactionID)
	require.Equal(t, "posting-retry:42", PostingRetryTaskID(42))
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), NextProcessAt: time.Now()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestScheduleRetryToleratesQueuedDuplicate(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := NewClientWith(enq, quiet)
	require.NoError(t, client.ScheduleRetry(context.Background(), 9))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskPostingRetry, enq.tasks[0].Type())

	enq.err = asynq.ErrTaskIDConflict
	require.NoError(t, client.ScheduleRetry(context.Background(), 9))

	enq.err = errors.New("redis down")
	require.Error(t, client.ScheduleRetry(context.Background(), 9))
}

type stubSweeper struct {
	report posting.SweepReport
	limit  int
}

func (s *stubSweeper) PostPending(_ context.Context, limit int) (posting.SweepReport, error) {
	s.limit = limit
	return s.report, nil
}

func TestSweepCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	sweeper := &stubSweeper{report: posting.SweepReport{Scanned: 4, Posted: 2, Skipped: 1, Failed: 1}}
	job := NewPostingSweepJob(sweeper, quiet, metrics)

	task, err := NewPostingSweepTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, SweepLimit, sweeper.limit)

	require.Equal(t, map[string]float64{"posted": 2, "skipped": 1, "failed": 1}, counters(t, reg, "atlas_posting_sweep_rows_total"))
	require.Equal(t, map[string]float64{TaskPostingSweep: 1}, counters(t, reg, "atlas_jobs_total"))
}

type stubRebuilder struct {
	from, to time.Time
}

func (s *stubRebuilder) RebuildActive(_ context.Context, from, to time.Time) ([]rollups.RebuildResult, error) {
	s.from, s.to = from, to
	return []rollups.RebuildResult{{AgentID: 1, Events: 3}}, nil
}

func TestSummaryRebuildWindow(t *testing.T) {
	rebuilder := &stubRebuilder{}
	job := NewSummaryRebuildJob(rebuilder, quiet, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.WithClock(func() time.Time { return time.Date(2024, 6, 3, 1, 30, 0, 0, time.UTC) })

	task, err := NewSummaryRebuildTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), rebuilder.from)
	require.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), rebuilder.to)

	explicit := asynq.NewTask(TaskSummaryRebuild, []byte(`{"from":"2024-05-01","to":"2024-05-31"}`))
	require.NoError(t, job.Handle(context.Background(), explicit))
	require.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), rebuilder.from)

	inverted := asynq.NewTask(TaskSummaryRebuild, []byte(`{"from":"2024-05-31","to":"2024-05-01"}`))
	require.ErrorIs(t, job.Handle(context.Background(), inverted), asynq.SkipRetry)
}

type stubFinder struct {
	bad []journals.Verification
}

func (s stubFinder) Imbalances(context.Context, time.Time, time.Time) ([]journals.Verification, int, error) {
	return s.bad, 10, nil
}

func TestGLIntegrityCountsImbalances(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	bad := []journals.Verification{{Reference: "JE-9", Debits: decimal.NewFromInt(100), Credits: decimal.NewFromInt(90)}}
	job := NewGLIntegrityJob(stubFinder{bad: bad}, quiet, metrics)

	task, err := NewGLIntegrityTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, map[string]float64{"": 1}, counters(t, reg, "atlas_journal_imbalances_total"))
}

// counters returns the counter values of one family keyed by the first label value.
func counters(t *testing.T, reg *prometheus.Registry, name string) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := ""
			if labels := m.GetLabel(); len(labels) > 0 {
				key = labels[0].GetValue()
			}
			out[key] += m.GetCounter().GetValue()
		}
	}
	return out
}

type stubInspector map[string]*asynq.QueueInfo

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthReportsEveryQueue(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubInspector{QueuePosting: {Queue: QueuePosting, Pending: 3, Retry: 1}}, quiet).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Queues []QueueHealth `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, []QueueHealth{
		{Queue: QueuePosting, Pending: 3, Retry: 1},
		{Queue: QueueDefault},
	}, body.Queues)
}
