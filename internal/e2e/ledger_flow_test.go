package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/internal/app"
	"github.com/atlas-travel/atlas-ledger/internal/balance"
	"github.com/atlas-travel/atlas-ledger/internal/integration"
	"github.com/atlas-travel/atlas-ledger/internal/observability"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
	_ "github.com/atlas-travel/atlas-ledger/internal/testing/guard"
	"github.com/atlas-travel/atlas-ledger/internal/testing/memstore"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

var clock = time.Date(2024, 7, 9, 8, 30, 0, 0, time.UTC)

func newRouter(t *testing.T) (http.Handler, *memstore.Store) {
	t.Helper()
	now := func() time.Time { return clock }
	logger := slog.Default()
	store := memstore.New().WithNow(now)
	store.PutAgent(balance.Agent{ID: 7, Code: "AG-007", Name: "Garuda Holidays", CreditLimit: decimal.RequireFromString("1000.00"), Currency: "USD"})

	txns := transactions.NewService(store.Transactions(), logger).WithNow(now)
	poster := posting.NewService(store.Posting(), logger).WithNow(now)
	hooks := integration.NewHooks(txns, poster, nil, logger).WithNow(now)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         &app.Config{},
		Metrics:        observability.NewMetrics(),
		EventHandler:   integration.NewHandler(logger, hooks),
		BalanceHandler: balance.NewHandler(logger, balance.NewService(store.Agents(), store.Transactions(), store.Ledger()).WithNow(now)),
		PostingHandler: posting.NewHandler(logger, poster, txns),
		JournalHandler: journals.NewHandler(logger, journals.NewService(store.Journals(), logger)),
	})
	return router, store
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(app.ActorHeader, "booking-engine")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTicketAndPaymentFlowThroughTheAPI(t *testing.T) {
	router, store := newRouter(t)

	rec := do(t, router, http.MethodPost, "/api/v1/events", map[string]any{
		"type": integration.EventTicketIssued,
		"payload": map[string]any{
			"agent_id": 7, "ticket_number": "6189999999991", "booking_ref": "PNR777",
			"route": "CGK-DPS", "airline": "GA",
			"base_amount": "500.00", "tax_amount": "50.00", "currency": "USD",
			"occurred_at": clock,
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var issued integration.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	require.True(t, issued.Posted)

	rec = do(t, router, http.MethodPost, "/api/v1/events", map[string]any{
		"type": integration.EventPaymentCaptured,
		"payload": map[string]any{
			"agent_id": 7, "payment_reference": "PAY-001", "amount": "200.00",
			"currency": "USD", "status": integration.PaymentStatusCaptured, "occurred_at": clock,
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/v1/agents/7/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bal balance.AgentBalance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	require.True(t, decimal.RequireFromString("350.00").Equal(bal.OutstandingAmount), bal.OutstandingAmount.String())
	require.True(t, decimal.RequireFromString("650.00").Equal(bal.AvailableCredit), bal.AvailableCredit.String())
	require.False(t, bal.OverLimit)

	rec = do(t, router, http.MethodGet, fmt.Sprintf("/api/v1/journals/%s/verify", issued.Reference), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v journals.Verification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	require.True(t, v.Balanced)
	require.True(t, v.Debits.Equal(v.Credits))

	require.Len(t, store.LedgerRows(7), 2)
}

func TestReplayedEventDoesNotDoubleCount(t *testing.T) {
	router, store := newRouter(t)
	event := map[string]any{
		"type": integration.EventTicketIssued,
		"payload": map[string]any{
			"agent_id": 7, "ticket_number": "6189999999992",
			"base_amount": "100.00", "tax_amount": "10.00", "currency": "USD", "occurred_at": clock,
		},
	}
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/v1/events", event).Code)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/events", event).Code)
	require.Len(t, store.LedgerRows(7), 1)
	require.Equal(t, 1, store.SourceLinks())
}
