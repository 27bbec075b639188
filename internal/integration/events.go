package integration

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event type names accepted on the ingestion endpoint.
const (
	EventTicketIssued       = "ticket.issued"
	EventTicketVoided       = "ticket.voided"
	EventTicketCancelled    = "ticket.cancelled"
	EventTicketRefunded     = "ticket.refunded"
	EventTicketReissued     = "ticket.reissued"
	EventPaymentCaptured    = "payment.captured"
	EventPaymentRefunded    = "payment.refunded"
	EventCommissionRecorded = "commission.recorded"
	EventAncillaryPurchased = "ancillary.purchased"
	EventAncillaryRefunded  = "ancillary.refunded"
	EventEMDIssued          = "emd.issued"
	EventEMDVoided          = "emd.voided"
	EventEMDRefunded        = "emd.refunded"
)

// Payment statuses carried by PaymentCaptured.
const (
	PaymentStatusCaptured   = "captured"
	PaymentStatusAuthorized = "authorized"
)

// Commission kinds carried by CommissionRecorded.
const (
	CommissionKindEarned = "earned"
	CommissionKindPaid   = "paid"
)

// Charge is the monetary part of a ticket or document event. Total may be left
// zero to default to base+tax+fee; a differing total needs TotalOverride.
type Charge struct {
	BaseAmount    decimal.Decimal `json:"base_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	FeeAmount     decimal.Decimal `json:"fee_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalOverride bool            `json:"total_override"`
	Currency      string          `json:"currency" validate:"required,len=3,alpha"`
}

// Ticket identifies a ticket of one agent and its booking snapshot.
type Ticket struct {
	AgentID      int64     `json:"agent_id" validate:"required,gt=0"`
	TicketNumber string    `json:"ticket_number" validate:"required,max=64"`
	BookingRef   string    `json:"booking_ref" validate:"max=64"`
	Route        string    `json:"route" validate:"max=32"`
	Airline      string    `json:"airline" validate:"max=8"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// TicketIssued fires when a ticket is issued.
type TicketIssued struct {
	Ticket
	Charge
	IssueDate time.Time `json:"issue_date"`
}

// TicketReissued fires when a ticket is exchanged for a new one.
type TicketReissued struct {
	Ticket
	Charge
	OriginalTicketNumber string `json:"original_ticket_number" validate:"required,max=64"`
}

// TicketVoided fires when an issued ticket is voided. The original amounts are mirrored.
type TicketVoided struct {
	Ticket
}

// TicketCancelled fires when an issued ticket is cancelled. The original amounts are mirrored.
type TicketCancelled struct {
	Ticket
}

// TicketRefunded fires when a ticket is refunded. FeeAmount is the refund
// processing fee withheld.
type TicketRefunded struct {
	Ticket
	Charge
}

// PaymentCaptured fires when a payment is authorized or captured. Only
// captured payments are posted.
type PaymentCaptured struct {
	AgentID          int64           `json:"agent_id" validate:"required,gt=0"`
	PaymentReference string          `json:"payment_reference" validate:"required,max=64"`
	BookingRef       string          `json:"booking_ref" validate:"max=64"`
	Amount           decimal.Decimal `json:"amount"`
	FeeAmount        decimal.Decimal `json:"fee_amount"`
	Currency         string          `json:"currency" validate:"required,len=3,alpha"`
	Status           string          `json:"status" validate:"required,oneof=captured authorized"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// PaymentRefunded fires when a captured payment is returned.
type PaymentRefunded struct {
	AgentID          int64           `json:"agent_id" validate:"required,gt=0"`
	PaymentReference string          `json:"payment_reference" validate:"required,max=64"`
	RefundReference  string          `json:"refund_reference" validate:"required,max=64"`
	Amount           decimal.Decimal `json:"amount"`
	FeeAmount        decimal.Decimal `json:"fee_amount"`
	Currency         string          `json:"currency" validate:"required,len=3,alpha"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// CommissionRecorded fires when commission is earned or paid out.
type CommissionRecorded struct {
	AgentID    int64           `json:"agent_id" validate:"required,gt=0"`
	Reference  string          `json:"reference" validate:"required,max=64"`
	BookingRef string          `json:"booking_ref" validate:"max=64"`
	Kind       string          `json:"kind" validate:"required,oneof=earned paid"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency" validate:"required,len=3,alpha"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Document identifies an ancillary or EMD document of one agent.
type Document struct {
	AgentID        int64     `json:"agent_id" validate:"required,gt=0"`
	DocumentNumber string    `json:"document_number" validate:"required,max=64"`
	BookingRef     string    `json:"booking_ref" validate:"max=64"`
	TicketNumber   string    `json:"ticket_number" validate:"max=64"`
	Route          string    `json:"route" validate:"max=32"`
	Airline        string    `json:"airline" validate:"max=8"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// AncillaryPurchased fires when a seat, bag or other ancillary is sold.
type AncillaryPurchased struct {
	Document
	Charge
}

// AncillaryRefunded fires when an ancillary is refunded.
type AncillaryRefunded struct {
	Document
	Charge
}

// EMDIssued fires when an electronic miscellaneous document is issued.
type EMDIssued struct {
	Document
	Charge
}

// EMDVoided fires when an EMD is voided. The original amounts are mirrored.
type EMDVoided struct {
	Document
}

// EMDRefunded fires when an EMD is refunded.
type EMDRefunded struct {
	Document
	Charge
}
