package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/jobs"
)

type stubFinder struct {
	bad     []journals.Verification
	checked int
	err     error
	from    time.Time
	to      time.Time
}

func (s *stubFinder) Imbalances(_ context.Context, from, to time.Time) ([]journals.Verification, int, error) {
	s.from, s.to = from, to
	return s.bad, s.checked, s.err
}

func TestVerifyCommandCleanWindow(t *testing.T) {
	finder := &stubFinder{checked: 12}
	var stdout, stderr bytes.Buffer
	code := VerifyCommand(context.Background(), finder, VerifyOptions{
		From: "2024-06-01", To: "2024-06-02", Stdout: &stdout, Stderr: &stderr,
	})
	require.Equal(t, 0, code)
	require.Empty(t, stderr.String())
	require.Contains(t, stdout.String(), "All references balance.")
	require.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), finder.from)
	require.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), finder.to)
}

func TestVerifyCommandReportsImbalancesAsJSON(t *testing.T) {
	finder := &stubFinder{checked: 3, bad: []journals.Verification{{
		Reference:  "TRX-0009",
		Debits:     decimal.RequireFromString("100"),
		Credits:    decimal.RequireFromString("90"),
		Difference: decimal.RequireFromString("10"),
		Lines:      2,
	}}}
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	var stdout bytes.Buffer
	code := VerifyCommand(context.Background(), finder, VerifyOptions{
		JSONOutput: true, Stdout: &stdout, Stderr: &bytes.Buffer{}, Now: func() time.Time { return now },
	})
	require.Equal(t, ExitImbalanced, code)
	require.Equal(t, now.Add(-24*time.Hour), finder.from)

	var summary VerifySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Equal(t, 3, summary.Checked)
	require.Len(t, summary.Imbalances, 1)
	require.Equal(t, "TRX-0009", summary.Imbalances[0].Reference)
}

func TestVerifyCommandRejectsBadInput(t *testing.T) {
	cases := []VerifyOptions{
		{From: "2024-06-01"},
		{From: "06/01/2024", To: "2024-06-02"},
		{From: "2024-06-05", To: "2024-06-02"},
	}
	for _, opts := range cases {
		var stderr bytes.Buffer
		opts.Stdout, opts.Stderr = &bytes.Buffer{}, &stderr
		require.Equal(t, 1, VerifyCommand(context.Background(), &stubFinder{}, opts))
		require.Contains(t, stderr.String(), "verify:")
	}
}

func TestVerifyCommandSurfacesReadErrors(t *testing.T) {
	var stderr bytes.Buffer
	code := VerifyCommand(context.Background(), &stubFinder{err: errors.New("conn reset")}, VerifyOptions{
		Stdout: &bytes.Buffer{}, Stderr: &stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "conn reset")
}

func TestBuildTaskKnowsScheduledJobs(t *testing.T) {
	for _, name := range []string{jobs.TaskPostingSweep, jobs.TaskSummaryRebuild, jobs.TaskGLIntegrity} {
		task, err := BuildTask(name)
		require.NoError(t, err)
		require.Equal(t, name, task.Type())
	}
	_, err := BuildTask("accounting:unknown")
	require.Error(t, err)
}

func TestJobsCLIWithoutClient(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), jobs.TaskPostingSweep)
	require.Error(t, err)
	_, err = c.InspectQueues(context.Background())
	require.Error(t, err)
}
