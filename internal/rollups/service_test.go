package rollups_test

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
	"github.com/atlas-travel/atlas-ledger/internal/testing/memstore"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

type invalidations struct {
	agents []int64
}

func (i *invalidations) Invalidate(_ context.Context, agentID int64) error {
	i.agents = append(i.agents, agentID)
	return nil
}

func TestRebuildReproducesIncrementalRollups(t *testing.T) {
	ctx := context.Background()
	var now time.Time
	clock := func() time.Time { return now }
	store := memstore.New().WithNow(clock)
	txns := transactions.NewService(store.Transactions(), nil).WithNow(clock)
	poster := posting.NewService(store.Posting(), nil).WithNow(clock)

	days := []time.Time{
		time.Date(2024, 4, 29, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 30, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
	}
	for i, at := range days {
		now = at.Add(time.Hour)
		for _, typ := range []transactions.Type{transactions.TypeTicketIssue, transactions.TypePaymentReceived} {
			row, err := txns.Record(ctx, transactions.CreateInput{
				Type:           typ,
				AgentID:        11,
				CorrelationKey: fmt.Sprintf("%s-%d", typ, i),
				Amounts:        transactions.Amounts{Base: decimal.NewFromInt(int64(100 * (i + 1)))},
				Currency:       "USD",
				OccurredAt:     at,
			})
			require.NoError(t, err)
			_, err = poster.Post(ctx, row.ID)
			require.NoError(t, err)
		}
	}
	before := sortedDaily(store.DailySummaries(11))
	require.Len(t, before, 3)

	inv := &invalidations{}
	svc := rollups.NewService(store.Rollups(), nil).WithInvalidator(inv)
	res, err := svc.Rebuild(ctx, 11, days[0], days[2])
	require.NoError(t, err)
	require.Equal(t, 3, res.Days)
	require.Equal(t, 2, res.Months)
	require.Equal(t, 6, res.Events)
	require.Equal(t, []int64{11}, inv.agents)

	after := sortedDaily(store.DailySummaries(11))
	require.Len(t, after, len(before))
	for i := range before {
		require.Equal(t, before[i].Date, after[i].Date)
		require.Equal(t, before[i].Counters, after[i].Counters)
		require.True(t, before[i].Money.TotalSales.Equal(after[i].Money.TotalSales))
		require.True(t, before[i].ClosingBalance.Equal(after[i].ClosingBalance))
		require.True(t, before[i].OpeningBalance.Equal(after[i].OpeningBalance))
	}

	april, err := svc.Monthly(ctx, 11, 2024, 4)
	require.NoError(t, err)
	require.Equal(t, 2, april.Counters.TicketsIssued)
	require.True(t, decimal.NewFromInt(300).Equal(april.Money.TotalSales))

	empty, err := svc.Monthly(ctx, 11, 2023, 1)
	require.NoError(t, err)
	require.Zero(t, empty.Counters.TicketsIssued)

	results, err := svc.RebuildActive(ctx, days[0], days[2])
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestRebuildRejectsInvertedRange(t *testing.T) {
	svc := rollups.NewService(memstore.New().Rollups(), nil)
	_, err := svc.Rebuild(context.Background(), 1, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func sortedDaily(rows []rollups.DailySummary) []rollups.DailySummary {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows
}
