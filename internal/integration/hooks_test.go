package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/integration"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
	"github.com/atlas-travel/atlas-ledger/internal/testing/memstore"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

var clock = time.Date(2024, 7, 9, 8, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type retryRecorder struct {
	ids []int64
}

func (r *retryRecorder) ScheduleRetry(_ context.Context, id int64) error {
	r.ids = append(r.ids, id)
	return nil
}

type fixture struct {
	store   *memstore.Store
	hooks   *integration.Hooks
	retries *retryRecorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	now := func() time.Time { return clock }
	store := memstore.New().WithNow(now)
	txns := transactions.NewService(store.Transactions(), nil).WithNow(now)
	poster := posting.NewService(store.Posting(), nil).WithNow(now)
	retries := &retryRecorder{}
	return fixture{
		store:   store,
		hooks:   integration.NewHooks(txns, poster, retries, nil).WithNow(now),
		retries: retries,
	}
}

func ticket(number string) integration.Ticket {
	return integration.Ticket{AgentID: 7, TicketNumber: number, BookingRef: "PNR123", Route: "CGK-SIN", Airline: "SQ", OccurredAt: clock}
}

func charge(base, tax string) integration.Charge {
	return integration.Charge{BaseAmount: d(base), TaxAmount: d(tax), Currency: "usd"}
}

func TestTicketIssuedPostsSynchronously(t *testing.T) {
	f := newFixture(t)
	out, err := f.hooks.HandleTicketIssued(context.Background(), integration.TicketIssued{Ticket: ticket("6181111111111"), Charge: charge("600.00", "90.00")})
	require.NoError(t, err)
	require.True(t, out.Posted)
	require.False(t, out.Duplicate)
	require.NotEmpty(t, out.Reference)
	require.Equal(t, "USD", out.Transaction.Currency)
	require.Equal(t, "2024-07-09", out.Transaction.Metadata[transactions.MetaIssueDate])
	require.Equal(t, "CGK-SIN", out.Transaction.Route())
}

func TestReplayedEventIsReportedAsDuplicate(t *testing.T) {
	f := newFixture(t)
	evt := integration.TicketIssued{Ticket: ticket("6181111111112"), Charge: charge("100.00", "0")}
	first, err := f.hooks.HandleTicketIssued(context.Background(), evt)
	require.NoError(t, err)

	again, err := f.hooks.HandleTicketIssued(context.Background(), evt)
	require.NoError(t, err)
	require.True(t, again.Duplicate)
	require.True(t, again.Posted)
	require.Equal(t, first.Transaction.ID, again.Transaction.ID)
	require.Equal(t, first.Reference, again.Reference)
	require.Len(t, f.store.LedgerRows(7), 1)
}

func TestVoidFindsOriginalByTicketNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.hooks.HandleTicketIssued(ctx, integration.TicketIssued{Ticket: ticket("6181111111113"), Charge: charge("600.00", "90.00")})
	require.NoError(t, err)

	out, err := f.hooks.HandleTicketVoided(ctx, integration.TicketVoided{Ticket: ticket("6181111111113")})
	require.NoError(t, err)
	require.True(t, out.Posted)
	require.Equal(t, issued.Transaction.ID, *out.Transaction.ReversesID)
	require.True(t, d("690.00").Equal(out.Transaction.Amounts.Total))

	original, _ := f.store.Transaction(issued.Transaction.ID)
	require.True(t, original.IsReversed)

	ledger := f.store.LedgerRows(7)
	require.Len(t, ledger, 2)
	require.True(t, ledger[1].BalanceAfter.IsZero())
}

func TestVoidOfReissuedTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.hooks.HandleTicketReissued(ctx, integration.TicketReissued{Ticket: ticket("6181111111120"), Charge: charge("200.00", "0"), OriginalTicketNumber: "6181111111119"})
	require.NoError(t, err)

	out, err := f.hooks.HandleTicketVoided(ctx, integration.TicketVoided{Ticket: ticket("6181111111120")})
	require.NoError(t, err)
	require.True(t, out.Posted)
}

func TestVoidWithoutOriginalIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.hooks.HandleTicketCancelled(context.Background(), integration.TicketCancelled{Ticket: ticket("6189999999999")})
	require.ErrorIs(t, err, shared.ErrOriginalNotFound)
}

func TestSecondReversalOfSameTicketConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.hooks.HandleTicketIssued(ctx, integration.TicketIssued{Ticket: ticket("6181111111114"), Charge: charge("100.00", "0")})
	require.NoError(t, err)
	_, err = f.hooks.HandleTicketVoided(ctx, integration.TicketVoided{Ticket: ticket("6181111111114")})
	require.NoError(t, err)

	_, err = f.hooks.HandleTicketRefunded(ctx, integration.TicketRefunded{Ticket: ticket("6181111111114"), Charge: charge("100.00", "0")})
	require.ErrorIs(t, err, shared.ErrAlreadyReversed)
}

func TestAuthorizedPaymentPostsOnCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	evt := integration.PaymentCaptured{AgentID: 7, PaymentReference: "PAY-77", Amount: d("300.00"), Currency: "USD", Status: integration.PaymentStatusAuthorized, OccurredAt: clock}

	pending, err := f.hooks.HandlePaymentCaptured(ctx, evt)
	require.NoError(t, err)
	require.False(t, pending.Posted)
	require.Equal(t, transactions.StatusPending, pending.Transaction.Status)
	require.Empty(t, f.store.LedgerRows(7))

	evt.Status = integration.PaymentStatusCaptured
	captured, err := f.hooks.HandlePaymentCaptured(ctx, evt)
	require.NoError(t, err)
	require.True(t, captured.Posted)
	require.Equal(t, pending.Transaction.ID, captured.Transaction.ID)

	ledger := f.store.LedgerRows(7)
	require.Len(t, ledger, 1)
	require.Equal(t, agentledger.Credit, ledger[0].EntryType)
}

func TestPaymentRefundLinksCapturedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid, err := f.hooks.HandlePaymentCaptured(ctx, integration.PaymentCaptured{AgentID: 7, PaymentReference: "PAY-88", Amount: d("120.00"), Currency: "USD", Status: integration.PaymentStatusCaptured})
	require.NoError(t, err)

	out, err := f.hooks.HandlePaymentRefunded(ctx, integration.PaymentRefunded{AgentID: 7, PaymentReference: "PAY-88", RefundReference: "RF-88", Amount: d("120.00"), Currency: "USD"})
	require.NoError(t, err)
	require.True(t, out.Posted)
	require.Equal(t, paid.Transaction.ID, *out.Transaction.ReversesID)
	require.True(t, f.store.LedgerRows(7)[1].BalanceAfter.IsZero())
}

func TestCommissionKinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	earned, err := f.hooks.HandleCommissionRecorded(ctx, integration.CommissionRecorded{AgentID: 7, Reference: "COM-1", Kind: integration.CommissionKindEarned, Amount: d("25.00"), Currency: "USD"})
	require.NoError(t, err)
	require.Equal(t, transactions.TypeCommissionEarned, earned.Transaction.Type)

	paid, err := f.hooks.HandleCommissionRecorded(ctx, integration.CommissionRecorded{AgentID: 7, Reference: "COM-1", Kind: integration.CommissionKindPaid, Amount: d("25.00"), Currency: "USD"})
	require.NoError(t, err)
	require.Equal(t, transactions.TypeCommissionPaid, paid.Transaction.Type)

	ledger := f.store.LedgerRows(7)
	require.Len(t, ledger, 2)
	require.True(t, ledger[1].BalanceAfter.IsZero())
}

func TestEMDLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := integration.Document{AgentID: 7, DocumentNumber: "EMD-1", TicketNumber: "6181111111115"}
	_, err := f.hooks.HandleEMDIssued(ctx, integration.EMDIssued{Document: doc, Charge: charge("35.00", "0")})
	require.NoError(t, err)
	out, err := f.hooks.HandleEMDVoided(ctx, integration.EMDVoided{Document: doc})
	require.NoError(t, err)
	require.True(t, out.Posted)

	_, err = f.hooks.HandleEMDVoided(ctx, integration.EMDVoided{Document: integration.Document{AgentID: 7, DocumentNumber: "EMD-404"}})
	require.ErrorIs(t, err, shared.ErrOriginalNotFound)
}

func TestPostingFailureKeepsEventAndSchedulesRetry(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("AppendLedger", errors.New("connection reset"))

	out, err := f.hooks.HandleAncillaryPurchased(context.Background(), integration.AncillaryPurchased{
		Document: integration.Document{AgentID: 7, DocumentNumber: "ANC-1"},
		Charge:   charge("45.00", "0"),
	})
	require.NoError(t, err)
	require.False(t, out.Posted)
	require.Error(t, out.PostingErr)
	require.True(t, out.RetryScheduled)
	require.Equal(t, []int64{out.Transaction.ID}, f.retries.ids)

	stored, ok := f.store.Transaction(out.Transaction.ID)
	require.True(t, ok)
	require.False(t, stored.AccountingPosted)
	require.Equal(t, 1, stored.PostingAttempts)
}

func TestInvalidEventIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.hooks.HandleTicketIssued(context.Background(), integration.TicketIssued{Ticket: integration.Ticket{TicketNumber: "x"}, Charge: charge("1.00", "0")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.hooks.HandleTicketIssued(context.Background(), integration.TicketIssued{Ticket: ticket("6181111111116"), Charge: integration.Charge{BaseAmount: d("10.00"), TotalAmount: d("12.00"), Currency: "USD"}})
	require.ErrorIs(t, err, shared.ErrTotalMismatch)
}

func TestEventsEndpoint(t *testing.T) {
	f := newFixture(t)
	r := chi.NewRouter()
	integration.NewHandler(nil, f.hooks).MountRoutes(r)

	post := func(body any) *httptest.ResponseRecorder {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(raw))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	payload := map[string]any{"agent_id": 7, "ticket_number": "6181111111117", "base_amount": "500.00", "tax_amount": "50.00", "currency": "USD"}
	rec := post(map[string]any{"type": integration.EventTicketIssued, "payload": payload})
	require.Equal(t, http.StatusCreated, rec.Code)
	var out integration.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.True(t, out.Posted)
	require.True(t, d("550.00").Equal(out.Transaction.Amounts.Total))

	rec = post(map[string]any{"type": integration.EventTicketIssued, "payload": payload})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(map[string]any{"type": "ticket.teleported", "payload": payload})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
