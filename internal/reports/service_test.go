package reports_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/balance"
	"github.com/atlas-travel/atlas-ledger/internal/platform/cache"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
	"github.com/atlas-travel/atlas-ledger/internal/reports"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
	common "github.com/atlas-travel/atlas-ledger/internal/shared"
	"github.com/atlas-travel/atlas-ledger/internal/testing/memstore"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

var clock = time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type env struct {
	store   *memstore.Store
	txns    *transactions.Service
	poster  *posting.Service
	reports *reports.Service
}

func newEnv(t *testing.T) env {
	t.Helper()
	now := func() time.Time { return clock }
	store := memstore.New().WithNow(now)
	store.PutAgent(balance.Agent{ID: 3, Code: "AG-003", Name: "Bali Wisata", CreditLimit: d("10000"), Currency: "USD"})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	reportCache := reports.NewCache(cache.NewVersioned(client, time.Hour))

	roll := rollups.NewService(store.Rollups(), nil)
	poster := posting.NewService(store.Posting(), nil).WithNow(now).
		WithNotifier(posting.InvalidatingNotifier(reportCache)).
		WithInvalidator(reportCache)
	return env{
		store:   store,
		txns:    transactions.NewService(store.Transactions(), nil).WithNow(now).WithInvalidator(reportCache),
		poster:  poster,
		reports: reports.NewService(store.Agents(), roll, store.Transactions(), store.Ledger(), reportCache, nil).WithNow(now),
	}
}

func (e env) sell(t *testing.T, key, total, route, airline string, post bool) transactions.Transaction {
	t.Helper()
	row, err := e.txns.Record(context.Background(), transactions.CreateInput{
		Type:           transactions.TypeTicketIssue,
		AgentID:        3,
		CorrelationKey: key,
		Amounts:        transactions.Amounts{Base: d(total)},
		Currency:       "USD",
		OccurredAt:     clock,
		Metadata:       map[string]string{transactions.MetaRoute: route, transactions.MetaAirline: airline},
	})
	require.NoError(t, err)
	if post {
		_, err = e.poster.Post(context.Background(), row.ID)
		require.NoError(t, err)
	}
	return row
}

func TestDailyReportSplitsPostedAndPending(t *testing.T) {
	e := newEnv(t)
	e.sell(t, "T1", "300.00", "CGK-DPS", "GA", true)
	e.sell(t, "T2", "120.00", "CGK-DPS", "GA", false)

	report, err := e.reports.GenerateDailyReport(context.Background(), 3, clock)
	require.NoError(t, err)
	require.Len(t, report.Posted, 1)
	require.Len(t, report.Pending, 1)
	require.True(t, d("120.00").Equal(report.PendingTotal))
	require.Len(t, report.Ledger, 1)
	require.Equal(t, 1, report.Summary.Counters.TicketsIssued)
	require.True(t, d("300.00").Equal(report.Summary.Money.TotalSales))
}

func TestMonthlyReportRanksRoutesAndIsCachedPerVersion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.sell(t, "T1", "300.00", "CGK-DPS", "GA", true)
	e.sell(t, "T2", "600.00", "CGK-SIN", "SQ", true)
	e.sell(t, "T3", "200.00", "CGK-DPS", "ID", true)

	report, err := e.reports.GenerateMonthlyReport(ctx, 3, 2024, 6)
	require.NoError(t, err)
	require.Equal(t, 3, report.Summary.Counters.TicketsIssued)
	require.Len(t, report.TopRoutes, 2)
	require.Equal(t, "CGK-SIN", report.TopRoutes[0].Key)
	require.Equal(t, "CGK-DPS", report.TopRoutes[1].Key)
	require.Equal(t, 2, report.TopRoutes[1].Count)
	require.Len(t, report.TopAirlines, 3)
	require.Len(t, report.DailyBreakdown, 1)

	again, err := e.reports.GenerateMonthlyReport(ctx, 3, 2024, 6)
	require.NoError(t, err)
	require.Equal(t, report.GeneratedAt, again.GeneratedAt)
	require.Equal(t, report.Summary.Counters, again.Summary.Counters)

	e.sell(t, "T4", "50.00", "DPS-SUB", "QG", true)
	fresh, err := e.reports.GenerateMonthlyReport(ctx, 3, 2024, 6)
	require.NoError(t, err)
	require.Equal(t, 4, fresh.Summary.Counters.TicketsIssued)
}

func TestMonthlyPendingFollowsRecordsAndFailures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.sell(t, "T1", "300.00", "CGK-DPS", "GA", true)

	report, err := e.reports.GenerateMonthlyReport(ctx, 3, 2024, 6)
	require.NoError(t, err)
	require.Zero(t, report.PendingCount)

	stuck := e.sell(t, "T2", "120.00", "CGK-SIN", "SQ", false)
	report, err = e.reports.GenerateMonthlyReport(ctx, 3, 2024, 6)
	require.NoError(t, err)
	require.Equal(t, 1, report.PendingCount)
	require.True(t, d("120.00").Equal(report.PendingTotal))

	e.store.FailOn("InsertEntries", fmt.Errorf("%w: account closed", shared.ErrValidation))
	_, err = e.poster.Post(ctx, stuck.ID)
	require.Error(t, err)

	report, err = e.reports.GenerateMonthlyReport(ctx, 3, 2024, 6)
	require.NoError(t, err)
	require.Zero(t, report.PendingCount)
	require.True(t, report.PendingTotal.IsZero())
}

func TestMonthlyReportValidatesInput(t *testing.T) {
	e := newEnv(t)
	_, err := e.reports.GenerateMonthlyReport(context.Background(), 3, 2024, 13)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = e.reports.GenerateMonthlyReport(context.Background(), 99, 2024, 6)
	require.ErrorIs(t, err, common.ErrAgentNotFound)
}

func TestEmptyMonthStillRenders(t *testing.T) {
	e := newEnv(t)
	report, err := e.reports.GenerateMonthlyReport(context.Background(), 3, 2023, 1)
	require.NoError(t, err)
	require.Empty(t, report.TopRoutes)
	require.NotNil(t, report.DailyBreakdown)
	require.True(t, report.Summary.Money.TotalSales.IsZero())
}

func TestReportEndpoints(t *testing.T) {
	e := newEnv(t)
	e.sell(t, "T1", "300.00", "CGK-DPS", "GA", true)
	r := chi.NewRouter()
	r.Route("/agents/{agentID}", reports.NewHandler(nil, e.reports).MountRoutes)

	for path, want := range map[string]int{
		"/agents/3/reports/daily?date=2024-06-14":     http.StatusOK,
		"/agents/3/reports/daily?date=yesterday":      http.StatusBadRequest,
		"/agents/3/reports/monthly?year=2024&month=6": http.StatusOK,
		"/agents/3/reports/monthly?year=2024&month=0": http.StatusBadRequest,
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, want, rec.Code, path)
	}
}
