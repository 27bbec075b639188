package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType is the side of a journal leg.
type EntryType string

const (
	Debit  EntryType = "DEBIT"
	Credit EntryType = "CREDIT"
)

// Opposite returns the other side.
func (t EntryType) Opposite() EntryType {
	if t == Debit {
		return Credit
	}
	return Debit
}

// Line is one computed leg before persistence.
type Line struct {
	AccountCode string          `json:"account_code"`
	EntryType   EntryType       `json:"entry_type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

// Entry is one persisted leg. All legs of one posting share ReferenceNumber.
type Entry struct {
	ID              int64           `json:"id"`
	ReferenceNumber string          `json:"reference_number"`
	TransactionID   int64           `json:"transaction_id"`
	AccountCode     string          `json:"account_code"`
	EntryType       EntryType       `json:"entry_type"`
	Amount          decimal.Decimal `json:"amount"`
	EntryDate       time.Time       `json:"entry_date"`
	Description     string          `json:"description,omitempty"`
	BookingRef      string          `json:"booking_ref,omitempty"`
	TicketNumber    string          `json:"ticket_number,omitempty"`
	PaymentRef      string          `json:"payment_ref,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SourceLink claims a business event for exactly one posting.
type SourceLink struct {
	TransactionType string
	CorrelationKey  string
	SourceID        uuid.UUID
	ReferenceNumber string
	TransactionID   int64
}

// Verification reports whether a posted reference balances.
type Verification struct {
	Reference  string          `json:"reference_number"`
	Balanced   bool            `json:"balanced"`
	Debits     decimal.Decimal `json:"total_debits"`
	Credits    decimal.Decimal `json:"total_credits"`
	Difference decimal.Decimal `json:"difference"`
	Lines      int             `json:"lines"`
}
