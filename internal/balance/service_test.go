package balance_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/balance"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
	common "github.com/atlas-travel/atlas-ledger/internal/shared"
	"github.com/atlas-travel/atlas-ledger/internal/testing/memstore"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

var clock = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type world struct {
	store   *memstore.Store
	txns    *transactions.Service
	poster  *posting.Service
	balance *balance.Service
}

func newWorld(t *testing.T, limit string) world {
	t.Helper()
	now := func() time.Time { return clock }
	store := memstore.New().WithNow(now)
	store.PutAgent(balance.Agent{ID: 5, Code: "AG-005", Name: "Nusantara Tours", CreditLimit: d(limit), Currency: "USD"})
	return world{
		store:   store,
		txns:    transactions.NewService(store.Transactions(), nil).WithNow(now),
		poster:  posting.NewService(store.Posting(), nil).WithNow(now),
		balance: balance.NewService(store.Agents(), store.Transactions(), store.Ledger()).WithNow(now),
	}
}

func (w world) post(t *testing.T, in transactions.CreateInput) transactions.Transaction {
	t.Helper()
	in.AgentID = 5
	in.Currency = "USD"
	if in.OccurredAt.IsZero() {
		in.OccurredAt = clock
	}
	row, err := w.txns.Record(context.Background(), in)
	require.NoError(t, err)
	if row.Status == transactions.StatusCompleted {
		_, err = w.poster.Post(context.Background(), row.ID)
		require.NoError(t, err)
	}
	return row
}

func ticket(key, total, issued string) transactions.CreateInput {
	return transactions.CreateInput{
		Type:           transactions.TypeTicketIssue,
		CorrelationKey: key,
		Amounts:        transactions.Amounts{Base: d(total)},
		Metadata:       map[string]string{transactions.MetaTicketNumber: key, transactions.MetaIssueDate: issued},
	}
}

func payment(key, amount string) transactions.CreateInput {
	return transactions.CreateInput{Type: transactions.TypePaymentReceived, CorrelationKey: key, Amounts: transactions.Amounts{Base: d(amount)}}
}

func TestBalanceSeparatesPostedAndPending(t *testing.T) {
	w := newWorld(t, "1000.00")
	ctx := context.Background()
	issue := w.post(t, ticket("T1", "600.00", "2024-06-01"))
	w.post(t, ticket("T2", "400.00", "2024-06-20"))
	w.post(t, payment("P1", "250.00"))
	pending := payment("P2", "90.00")
	pending.Status = transactions.StatusPending
	w.post(t, pending)
	w.post(t, transactions.CreateInput{Type: transactions.TypeTicketVoid, CorrelationKey: "T1", ReversesID: &issue.ID})

	bal, err := w.balance.GetAgentBalance(ctx, 5)
	require.NoError(t, err)
	require.True(t, d("1000.00").Equal(bal.TotalSales))
	require.True(t, d("600.00").Equal(bal.TotalRefunds))
	require.True(t, d("250.00").Equal(bal.TotalPayments))
	require.True(t, d("150.00").Equal(bal.OutstandingAmount))
	require.True(t, d("850.00").Equal(bal.AvailableCredit))
	require.True(t, d("90.00").Equal(bal.PendingAmount))
	require.Equal(t, 1, bal.PendingCount)
	require.True(t, d("650.00").Equal(bal.CurrentBalance))
	require.False(t, bal.OverLimit)
}

func TestUnpostedVoidKeepsSaleOutstanding(t *testing.T) {
	w := newWorld(t, "1000.00")
	ctx := context.Background()
	issue := w.post(t, ticket("T1", "780.00", "2024-06-25"))

	w.store.FailOn("InsertEntries", errors.New("disk full"))
	void, err := w.txns.Record(ctx, transactions.CreateInput{
		Type: transactions.TypeTicketVoid, CorrelationKey: "T1", ReversesID: &issue.ID, AgentID: 5, Currency: "USD", OccurredAt: clock,
	})
	require.NoError(t, err)
	_, err = w.poster.Post(ctx, void.ID)
	require.Error(t, err)

	bal, err := w.balance.GetAgentBalance(ctx, 5)
	require.NoError(t, err)
	require.True(t, d("780.00").Equal(bal.OutstandingAmount))
	require.True(t, d("220.00").Equal(bal.AvailableCredit))
	require.True(t, bal.TotalRefunds.IsZero())
	require.Equal(t, 1, bal.PendingCount)

	details, err := w.balance.GetOutstandingDetails(ctx, 5, time.Time{})
	require.NoError(t, err)
	require.True(t, d("780.00").Equal(details.TotalOutstanding))
	require.Len(t, details.Items, 1)

	w.store.FailOn("InsertEntries", nil)
	_, err = w.poster.Post(ctx, void.ID)
	require.NoError(t, err)

	bal, err = w.balance.GetAgentBalance(ctx, 5)
	require.NoError(t, err)
	require.True(t, bal.OutstandingAmount.IsZero())
	require.True(t, d("1000.00").Equal(bal.AvailableCredit))
	details, err = w.balance.GetOutstandingDetails(ctx, 5, time.Time{})
	require.NoError(t, err)
	require.Empty(t, details.Items)
}

func TestOverpaidAgentHasZeroOutstanding(t *testing.T) {
	w := newWorld(t, "500.00")
	w.post(t, ticket("T1", "100.00", "2024-06-01"))
	w.post(t, payment("P1", "300.00"))

	bal, err := w.balance.GetAgentBalance(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, bal.OutstandingAmount.IsZero())
	require.True(t, d("500.00").Equal(bal.AvailableCredit))
}

func TestCreditCheck(t *testing.T) {
	w := newWorld(t, "1000.00")
	ctx := context.Background()
	w.post(t, ticket("T1", "1200.00", "2024-06-01"))

	bal, err := w.balance.GetAgentBalance(ctx, 5)
	require.NoError(t, err)
	require.True(t, bal.OverLimit)
	require.True(t, d("-200.00").Equal(bal.AvailableCredit))

	decision, err := w.balance.CheckCreditLimit(ctx, 5, d("10.00"))
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.True(t, d("210.00").Equal(decision.Shortfall))

	_, err = w.balance.CheckCreditLimit(ctx, 5, decimal.Zero)
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = w.balance.CheckCreditLimit(ctx, 404, d("1.00"))
	require.ErrorIs(t, err, common.ErrAgentNotFound)
}

func TestOutstandingDetailsAgesOpenItems(t *testing.T) {
	w := newWorld(t, "5000.00")
	w.post(t, ticket("T-OLD", "100.00", "2024-03-01"))
	w.post(t, ticket("T-MID", "200.00", "2024-05-31"))
	w.post(t, ticket("T-NEW", "300.00", "2024-06-23"))
	w.post(t, payment("P1", "150.00"))

	details, err := w.balance.GetOutstandingDetails(context.Background(), 5, time.Time{})
	require.NoError(t, err)
	require.True(t, d("450.00").Equal(details.TotalOutstanding))
	require.Len(t, details.Items, 2)
	require.Equal(t, "T-MID", details.Items[0].TicketNumber)
	require.Equal(t, 30, details.Items[0].AgeDays)
	require.Equal(t, balance.Bucket8To30, details.Items[0].Bucket)
	require.Equal(t, 7, details.Items[1].AgeDays)
	require.Equal(t, balance.Bucket0To7, details.Items[1].Bucket)
}

func TestBalanceEndpoints(t *testing.T) {
	w := newWorld(t, "1000.00")
	w.post(t, ticket("T1", "100.00", "2024-06-01"))
	r := chi.NewRouter()
	r.Route("/agents/{agentID}", balance.NewHandler(nil, w.balance).MountRoutes)

	for path, want := range map[string]int{
		"/agents/5/balance":                      http.StatusOK,
		"/agents/5/credit-check?amount=50.00":    http.StatusOK,
		"/agents/5/credit-check?amount=abc":      http.StatusBadRequest,
		"/agents/5/outstanding?as_of=2024-06-30": http.StatusOK,
		"/agents/5/outstanding?as_of=30-06-2024": http.StatusBadRequest,
		"/agents/404/balance":                    http.StatusNotFound,
		"/agents/x/balance":                      http.StatusBadRequest,
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, want, rec.Code, path)
	}
}
