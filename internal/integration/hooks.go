// Package integration turns booking, payment and commission lifecycle events
// into transaction log rows and posts them. A posting failure never blocks the
// lifecycle change: the row stays unposted, a retry is scheduled and the
// failure is reported on the Outcome.
package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

const (
	metaOriginalTicket = "original_ticket_number"
	metaDocumentNumber = "document_number"
	metaCommissionRef  = "commission_reference"
)

// Recorder writes transaction log rows.
type Recorder interface {
	Record(ctx context.Context, in transactions.CreateInput) (transactions.Transaction, error)
	FindByCorrelation(ctx context.Context, t transactions.Type, key string) (transactions.Transaction, error)
	Transition(ctx context.Context, id int64, to transactions.Status) (transactions.Transaction, error)
}

// Poster posts one transaction log row.
type Poster interface {
	Post(ctx context.Context, transactionID int64) (posting.Result, error)
}

// RetryScheduler queues a background posting retry.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, transactionID int64) error
}

// Outcome reports what a lifecycle event produced.
type Outcome struct {
	Transaction    transactions.Transaction `json:"transaction"`
	Duplicate      bool                     `json:"duplicate"`
	Posted         bool                     `json:"posted"`
	Reference      string                   `json:"reference_number,omitempty"`
	RetryScheduled bool                     `json:"retry_scheduled"`
	PostingError   string                   `json:"posting_error,omitempty"`
	// PostingErr holds the posting failure, if any. The event itself was recorded.
	PostingErr error `json:"-"`
}

// Hooks wires lifecycle events into the accounting core.
type Hooks struct {
	recorder  Recorder
	poster    Poster
	retries   RetryScheduler
	logger    *slog.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewHooks constructs integration hooks. retries may be nil.
func NewHooks(recorder Recorder, poster Poster, retries RetryScheduler, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{
		recorder:  recorder,
		poster:    poster,
		retries:   retries,
		logger:    logger,
		validator: validator.New(),
		now:       time.Now,
	}
}

// WithNow overrides the clock for testing.
func (h *Hooks) WithNow(now func() time.Time) *Hooks {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *Hooks) validate(evt any) error {
	if err := h.validator.Struct(evt); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

func (h *Hooks) at(t time.Time) time.Time {
	if t.IsZero() {
		return h.now().UTC()
	}
	return t.UTC()
}

// HandleTicketIssued records and posts a ticket sale.
func (h *Hooks) HandleTicketIssued(ctx context.Context, evt TicketIssued) (Outcome, error) {
	if err := h.validate(evt); err != nil {
		return Outcome{}, err
	}
	meta := ticketMeta(evt.Ticket)
	issued := evt.IssueDate
	if issued.IsZero() {
		issued = h.at(evt.OccurredAt)
	}
	meta[transactions.MetaIssueDate] = issued.UTC().Format("2006-01-02")
	return h.record(ctx, chargeInput(transactions.TypeTicketIssue, evt.AgentID, evt.BookingRef, evt.TicketNumber, evt.Charge, h.at(evt.OccurredAt), meta))
}

// HandleTicketReissued records and posts the sale of an exchanged ticket.
func (h *Hooks) HandleTicketReissued(ctx context.Context, evt TicketReissued) (Outcome, error) {
	if err := h.validate(evt); err != nil {
		return Outcome{}, err
	}
	at := h.at(evt.OccurredAt)
	meta := ticketMeta(evt.Ticket)
	meta[metaOriginalTicket] = evt.OriginalTicketNumber
	meta[transactions.MetaIssueDate] = at.Format("2006-01-02")
	return h.record(ctx, chargeInput(transactions.TypeTicketReissue, evt.AgentID, evt.BookingRef, evt.TicketNumber, evt.Charge, at, meta))
}

// HandleTicketVoided records the mirror of the original issue.
func (h *Hooks) HandleTicketVoided(ctx context.Context, evt TicketVoided) (Outcome, error) {
	if err := h.validate(evt); err != nil {
		return Outcome{}, err
	}
	return h.mirror(ctx, transactions.TypeTicketVoid, evt.Ticket)
}

// HandleTicketCancelled records the mirror of the original issue.
func (h *Hooks) HandleTicketCancelled(ctx context.Context, evt TicketCancelled) (Outcome, error) {
	if err := h.validate(evt); err != nil {
		return Outcome{}, err
	}
	return h.mirror(ctx, transactions.TypeTicketCancel, evt.Ticket)
}

// HandleTicketRefunded records a ticket refund, linking the original issue when known.
func (h *Hooks) HandleTicketRefunded(ctx context.Context, evt TicketRefunded) (Outcome, error) {
	if err := h.validate(evt); err != nil {
		return Outcome{}, err
	}
	in := chargeInput(transactions.TypeTicketRefund, evt.AgentID, evt.BookingRef, evt.TicketNumber, evt.Charge, h.at(evt.OccurredAt), ticketMeta(evt.Ticket))
	if original, ok, err := h.lookup(ctx, evt.TicketNumber, transactions.TypeTicketIssue, transactions.TypeTicketReissue); err != nil {
		return Outcome{}, err
	} else if ok {
		in.ReversesID = &original.ID
	}
	return h.record(ctx, in)
}

// HandlePaymentCaptured records a payment. Authorized payments are recorded
// pending and only posted once the capture arrives.
func (h *Hooks) HandlePaymentCaptured(ctx context.Context, evt PaymentCaptured) (Outcome, error) {
	if err := h.validate(evt); err != nil {
		return Outcome{}, err
	}
	status := transactions.StatusCompleted
	if evt.Status == PaymentStatusAuthorized {
		status = transactions.StatusPending
	}
	in := transactions.CreateInput{
		Type:           transactions.TypePaymentReceived,
		Status:         status,
		AgentID:        evt.AgentID,
		BookingRef:     evt.BookingRef,
		CorrelationKey: evt.PaymentReference,
		Amounts:        transactions.Amounts{Base: evt.Amount, Fee: evt.FeeAmount},
		Currency:       evt.Currency,
		OccurredAt:     h.at(evt.OccurredAt),
		Metadata:       map[string]string{transactions.MetaPaymentRef: evt.PaymentReference},
	}
	created, err := h.recorder.Record(ctx, in)
	if err != nil {
		if !errors.Is(err, shared.ErrDuplicateEvent) || created.ID == 0 {
			return Outcome{}, err
		}
		if created.Status == transactions.StatusPending && status == transactions.StatusCompleted {
			completed, terr := h.recorder.Transition(ctx, created.ID, transactions.StatusCompleted)
			if terr != nil {
				return Outcome{}, terr
			}
			return h.post(ctx, Outcome{Transaction: completed}), nil
		}
		return h.duplicate(ctx, created), nil
	}
	if created.Status != transactions.StatusCompleted {
		return Outcome{Transaction: created}, nil
	}
	return h.post(ctx, Outcome{Transaction: created}), nil
}

// HandlePaymentRefunded records a payment refund against the captured payment.
func (h *Hooks) HandlePaymentRefunded(ctx context.Context, evt PaymentRefunded) (Outcome, error) {
	if err := h.validate(evt); err != nil {
		return Outcome{}, err
	}
	in := transactions.CreateInput{
		Type:           transactions.TypePaymentRefunded,
		AgentID:        evt.AgentID,
		CorrelationKey: evt.RefundReference,
		Amounts:        transactions.Amounts{Base: evt.Amount, Fee: evt.FeeAmount},
		Currency:       evt.Currency,
		OccurredAt:     h.at(evt.OccurredAt),
		Metadata:       map[string]string{transactions.MetaPaymentRef: evt.PaymentReference},
	}
	original, ok, err := h.lookup(ctx, evt.PaymentReference, transactions.TypePaymentReceived)
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		in.ReversesID = &original.ID
		in.BookingRef = original.BookingRef
	}
	return h.record(ctx, in)
}

// HandleCommissionRecorded records commission earned or paid out.
func (h *Hooks) HandleCommissionRecorded(ctx context.Context, evt CommissionRecorded) (Outcome, error) {
	if err := h.validate(evt); err != nil {
		return Outcome{}, err
	}
	t := transactions.TypeCommissionEarned
	if evt.Kind == CommissionKindPaid {
		t = transactions.TypeCommissionPaid
	}
	return h.record(ctx, transactions.CreateInput{
		Type:           t,
		AgentID:        evt.AgentID,
		BookingRef:     evt.BookingRef,
		CorrelationKey: evt.Reference,
		Amounts:        transactions.Amounts{Commission: evt.Amount},
		Currency:       evt.Currency,
		OccurredAt:     h.at(evt.OccurredAt),
		Metadata:       map[string]string{metaCommissionRef: evt.Reference},
	})
}

// HandleAncillaryPurchased records and posts an ancillary sale.
func (h *Hooks) HandleAncillaryPurchased(ctx context.Context, evt AncillaryPurchased) (Outcome, error) {
	if err := h.validate(evt); err != nil {
		return Outcome{}, err
	}
	return h.record(ctx, chargeInput(transactions.TypeAncillaryPurchase, evt.AgentID, evt.BookingRef, evt.DocumentNumber, evt.Charge, h.at(evt.OccurredAt), documentMeta(evt.Document, h.at(evt.OccurredAt))))
}

// HandleAncillaryRefunded records an ancillary refund, linking the purchase when known.
func (h *Hooks) HandleAncillaryRefunded(ctx context.Context, evt AncillaryRefunded) (Outcome, error) {
	if err := h.validate(evt); err != nil {
		return Outcome{}, err
	}
	in := chargeInput(transactions.TypeAncillaryRefund, evt.AgentID, evt.BookingRef, evt.DocumentNumber, evt.Charge, h.at(evt.OccurredAt), documentMeta(evt.Document, time.Time{}))
	if original, ok, err := h.lookup(ctx, evt.DocumentNumber, transactions.TypeAncillaryPurchase); err != nil {
		return Outcome{}, err
	} else if ok {
		in.ReversesID = &original.ID
	}
	return h.record(ctx, in)
}

// HandleEMDIssued records and posts an EMD sale.
func (h *Hooks) HandleEMDIssued(ctx context.Context, evt EMDIssued) (Outcome, error) {
	if err := h.validate(evt); err != nil {
		return Outcome{}, err
	}
	return h.record(ctx, chargeInput(transactions.TypeEMDIssue, evt.AgentID, evt.BookingRef, evt.DocumentNumber, evt.Charge, h.at(evt.OccurredAt), documentMeta(evt.Document, h.at(evt.OccurredAt))))
}

// HandleEMDVoided records the mirror of the original EMD issue.
func (h *Hooks) HandleEMDVoided(ctx context.Context, evt EMDVoided) (Outcome, error) {
	if err := h.validate(evt); err != nil {
		return Outcome{}, err
	}
	original, ok, err := h.lookup(ctx, evt.DocumentNumber, transactions.TypeEMDIssue)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, fmt.Errorf("%w: emd %s", shared.ErrOriginalNotFound, evt.DocumentNumber)
	}
	return h.record(ctx, transactions.CreateInput{
		Type:           transactions.TypeEMDVoid,
		AgentID:        evt.AgentID,
		BookingRef:     evt.BookingRef,
		CorrelationKey: evt.DocumentNumber,
		Currency:       original.Currency,
		OccurredAt:     h.at(evt.OccurredAt),
		ReversesID:     &original.ID,
		Metadata:       documentMeta(evt.Document, time.Time{}),
	})
}

// HandleEMDRefunded records an EMD refund, linking the issue when known.
func (h *Hooks) HandleEMDRefunded(ctx context.Context, evt EMDRefunded) (Outcome, error) {
	if err := h.validate(evt); err != nil {
		return Outcome{}, err
	}
	in := chargeInput(transactions.TypeEMDRefund, evt.AgentID, evt.BookingRef, evt.DocumentNumber, evt.Charge, h.at(evt.OccurredAt), documentMeta(evt.Document, time.Time{}))
	if original, ok, err := h.lookup(ctx, evt.DocumentNumber, transactions.TypeEMDIssue); err != nil {
		return Outcome{}, err
	} else if ok {
		in.ReversesID = &original.ID
	}
	return h.record(ctx, in)
}

func (h *Hooks) mirror(ctx context.Context, t transactions.Type, ticket Ticket) (Outcome, error) {
	original, ok, err := h.lookup(ctx, ticket.TicketNumber, transactions.TypeTicketIssue, transactions.TypeTicketReissue)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, fmt.Errorf("%w: ticket %s", shared.ErrOriginalNotFound, ticket.TicketNumber)
	}
	return h.record(ctx, transactions.CreateInput{
		Type:           t,
		AgentID:        ticket.AgentID,
		BookingRef:     firstNonEmpty(ticket.BookingRef, original.BookingRef),
		CorrelationKey: ticket.TicketNumber,
		Currency:       original.Currency,
		OccurredAt:     h.at(ticket.OccurredAt),
		ReversesID:     &original.ID,
		Metadata:       ticketMeta(ticket),
	})
}

// lookup finds the row recorded for key under the first matching type.
func (h *Hooks) lookup(ctx context.Context, key string, types ...transactions.Type) (transactions.Transaction, bool, error) {
	for _, t := range types {
		row, err := h.recorder.FindByCorrelation(ctx, t, key)
		if err == nil {
			return row, true, nil
		}
		if !errors.Is(err, shared.ErrTransactionNotFound) {
			return transactions.Transaction{}, false, err
		}
	}
	return transactions.Transaction{}, false, nil
}

func (h *Hooks) record(ctx context.Context, in transactions.CreateInput) (Outcome, error) {
	created, err := h.recorder.Record(ctx, in)
	if err != nil {
		if errors.Is(err, shared.ErrDuplicateEvent) && created.ID != 0 {
			return h.duplicate(ctx, created), nil
		}
		return Outcome{}, err
	}
	if created.Status != transactions.StatusCompleted {
		return Outcome{Transaction: created}, nil
	}
	return h.post(ctx, Outcome{Transaction: created}), nil
}

// duplicate reports a replayed event. A row left unposted by an earlier
// failure is posted again; posting is idempotent.
func (h *Hooks) duplicate(ctx context.Context, existing transactions.Transaction) Outcome {
	out := Outcome{Transaction: existing, Duplicate: true, Posted: existing.AccountingPosted, Reference: existing.JournalReference}
	h.logger.Info("duplicate lifecycle event",
		slog.Int64("transaction_id", existing.ID),
		slog.String("type", string(existing.Type)),
		slog.String("correlation_key", existing.CorrelationKey))
	if existing.AccountingPosted || existing.Status != transactions.StatusCompleted {
		return out
	}
	return h.post(ctx, out)
}

func (h *Hooks) post(ctx context.Context, out Outcome) Outcome {
	t := out.Transaction
	res, err := h.poster.Post(ctx, t.ID)
	switch {
	case err == nil:
		out.Transaction = res.Transaction
		out.Posted = true
		out.Reference = res.Reference
		return out
	case shared.IsConflict(err):
		out.Posted = true
		out.Reference = res.Reference
		return out
	}
	out.PostingErr = err
	out.PostingError = err.Error()
	h.logger.Error("accounting posting failed",
		slog.Int64("transaction_id", t.ID),
		slog.Int64("agent_id", t.AgentID),
		slog.String("type", string(t.Type)),
		slog.String("correlation_key", t.CorrelationKey),
		slog.Any("error", err))
	var pe *shared.PostingError
	if h.retries != nil && errors.As(err, &pe) && pe.Retryable {
		if serr := h.retries.ScheduleRetry(ctx, t.ID); serr != nil {
			h.logger.Error("schedule posting retry", slog.Int64("transaction_id", t.ID), slog.Any("error", serr))
		} else {
			out.RetryScheduled = true
		}
	}
	return out
}

func chargeInput(t transactions.Type, agentID int64, bookingRef, key string, c Charge, at time.Time, meta map[string]string) transactions.CreateInput {
	return transactions.CreateInput{
		Type:           t,
		AgentID:        agentID,
		BookingRef:     bookingRef,
		CorrelationKey: key,
		Amounts: transactions.Amounts{
			Base:  c.BaseAmount,
			Tax:   c.TaxAmount,
			Fee:   c.FeeAmount,
			Total: c.TotalAmount,
		},
		TotalOverride: c.TotalOverride,
		Currency:      c.Currency,
		OccurredAt:    at,
		Metadata:      meta,
	}
}

func ticketMeta(t Ticket) map[string]string {
	meta := map[string]string{transactions.MetaTicketNumber: t.TicketNumber}
	if t.Route != "" {
		meta[transactions.MetaRoute] = t.Route
	}
	if t.Airline != "" {
		meta[transactions.MetaAirline] = t.Airline
	}
	return meta
}

func documentMeta(d Document, issued time.Time) map[string]string {
	meta := map[string]string{metaDocumentNumber: d.DocumentNumber}
	if d.TicketNumber != "" {
		meta[transactions.MetaTicketNumber] = d.TicketNumber
	}
	if d.Route != "" {
		meta[transactions.MetaRoute] = d.Route
	}
	if d.Airline != "" {
		meta[transactions.MetaAirline] = d.Airline
	}
	if !issued.IsZero() {
		meta[transactions.MetaIssueDate] = issued.UTC().Format("2006-01-02")
	}
	return meta
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

