package transactions

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
)

// Metadata keys carried on every row for correlation and booking breakdowns.
const (
	MetaTicketNumber = "ticket_number"
	MetaPaymentRef   = "payment_reference"
	MetaRoute        = "route"
	MetaAirline      = "airline"
	MetaIssueDate    = "issue_date"
)

// Amounts carries the monetary components of a transaction.
type Amounts struct {
	Base       decimal.Decimal `json:"base_amount"`
	Tax        decimal.Decimal `json:"tax_amount"`
	Fee        decimal.Decimal `json:"fee_amount"`
	Commission decimal.Decimal `json:"commission_amount"`
	Total      decimal.Decimal `json:"total_amount"`
}

// Expected returns base+tax+fee, or the commission when only a commission is set.
func (a Amounts) Expected() decimal.Decimal {
	sum := a.Base.Add(a.Tax).Add(a.Fee)
	if sum.IsZero() && a.Commission.IsPositive() {
		return a.Commission
	}
	return sum
}

// MoneyScale is the number of decimal places every stored amount carries.
const MoneyScale = 2

// Check rejects negative components and components with more than two
// decimal places, which the NUMERIC(18,2) columns would round leg by leg.
func (a Amounts) Check() error {
	for _, c := range []struct {
		name string
		v    decimal.Decimal
	}{{"base", a.Base}, {"tax", a.Tax}, {"fee", a.Fee}, {"commission", a.Commission}, {"total", a.Total}} {
		if c.v.IsNegative() {
			return fmt.Errorf("%w: %s is negative", shared.ErrInvalidAmount, c.name)
		}
		if !c.v.Equal(c.v.Round(MoneyScale)) {
			return fmt.Errorf("%w: %s %s has more than %d decimal places", shared.ErrInvalidAmount, c.name, c.v.String(), MoneyScale)
		}
	}
	return nil
}

// Normalize fills a missing total and rejects negative or inconsistent amounts.
func (a Amounts) Normalize(override bool) (Amounts, error) {
	if err := a.Check(); err != nil {
		return a, err
	}
	expected := a.Expected()
	if a.Total.IsZero() {
		a.Total = expected
	}
	if !override && !a.Total.Equal(expected) {
		return a, fmt.Errorf("%w: total %s, expected %s", shared.ErrTotalMismatch, a.Total.StringFixed(2), expected.StringFixed(2))
	}
	if !a.Total.IsPositive() {
		return a, fmt.Errorf("%w: total must be positive", shared.ErrInvalidAmount)
	}
	return a, nil
}

// Transaction is one row of the append-only transaction log.
type Transaction struct {
	ID                 int64             `json:"id"`
	Number             string            `json:"transaction_number"`
	Type               Type              `json:"transaction_type"`
	Status             Status            `json:"status"`
	AgentID            int64             `json:"agent_id"`
	BookingRef         string            `json:"booking_ref,omitempty"`
	CorrelationKey     string            `json:"correlation_key"`
	Amounts            Amounts           `json:"amounts"`
	TotalOverride      bool              `json:"total_override"`
	Currency           string            `json:"currency"`
	OccurredAt         time.Time         `json:"occurred_at"`
	AccountingPosted   bool              `json:"accounting_posted"`
	AccountingPostedAt *time.Time        `json:"accounting_posted_at,omitempty"`
	JournalReference   string            `json:"journal_entry_reference,omitempty"`
	IsReversed         bool              `json:"is_reversed"`
	ReversedBy         *int64            `json:"reversed_by,omitempty"`
	ReversesID         *int64            `json:"reverses_id,omitempty"`
	PostingAttempts    int               `json:"posting_attempts"`
	LastPostingError   string            `json:"last_posting_error,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// LedgerAmount is the amount that moves the agent ledger: the commission for
// commission rows, the total otherwise.
func (t Transaction) LedgerAmount() decimal.Decimal {
	if t.Type.IsCommission() && t.Amounts.Commission.IsPositive() {
		return t.Amounts.Commission
	}
	return t.Amounts.Total
}

// IssueDate returns the booking issue date when recorded, falling back to OccurredAt.
func (t Transaction) IssueDate() time.Time {
	if raw := t.Metadata[MetaIssueDate]; raw != "" {
		if d, err := time.Parse("2006-01-02", raw); err == nil {
			return d
		}
	}
	return t.OccurredAt
}

// Route returns the booking route snapshot, if any.
func (t Transaction) Route() string {
	return t.Metadata[MetaRoute]
}

// Airline returns the validating carrier snapshot, if any.
func (t Transaction) Airline() string {
	return t.Metadata[MetaAirline]
}

// CreateInput describes a new transaction log row.
type CreateInput struct {
	Type           Type
	Status         Status
	AgentID        int64
	BookingRef     string
	CorrelationKey string
	Amounts        Amounts
	TotalOverride  bool
	Currency       string
	OccurredAt     time.Time
	ReversesID     *int64
	Metadata       map[string]string
}

// Validate ensures the input can be recorded.
func (in CreateInput) Validate() error {
	if !in.Type.Valid() {
		return fmt.Errorf("%w: %q", shared.ErrUnknownTransactionType, in.Type)
	}
	if in.AgentID == 0 {
		return fmt.Errorf("%w: agent required", shared.ErrValidation)
	}
	if in.CorrelationKey == "" {
		return fmt.Errorf("%w: correlation key required", shared.ErrValidation)
	}
	if len(in.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", shared.ErrValidation)
	}
	switch in.Status {
	case "", StatusPending, StatusCompleted:
	default:
		return fmt.Errorf("%w: cannot create in status %s", shared.ErrInvalidStatus, in.Status)
	}
	return nil
}
