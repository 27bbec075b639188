package balance

import (
	"time"

	"github.com/shopspring/decimal"
)

// Agent is the collaborator record a balance is computed for.
type Agent struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	Currency    string          `json:"currency"`
}

// AgentBalance is the agent's position at query time. Posted and pending
// figures are never mixed: every total except PendingAmount covers posted rows only.
type AgentBalance struct {
	AgentID           int64           `json:"agent_id"`
	Currency          string          `json:"currency"`
	CurrentBalance    decimal.Decimal `json:"current_balance"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	CreditLimit       decimal.Decimal `json:"credit_limit"`
	AvailableCredit   decimal.Decimal `json:"available_credit"`
	TotalSales        decimal.Decimal `json:"total_sales"`
	TotalPayments     decimal.Decimal `json:"total_payments"`
	TotalRefunds      decimal.Decimal `json:"total_refunds"`
	TotalCommissions  decimal.Decimal `json:"total_commissions"`
	PendingAmount     decimal.Decimal `json:"pending_amount"`
	PendingCount      int             `json:"pending_count"`
	LastTransactionAt *time.Time      `json:"last_transaction_at,omitempty"`
	OverLimit         bool            `json:"over_limit"`
}

// CreditDecision answers whether a new exposure fits the agent's limit.
type CreditDecision struct {
	AgentID         int64           `json:"agent_id"`
	Requested       decimal.Decimal `json:"requested_amount"`
	Allowed         bool            `json:"allowed"`
	AvailableCredit decimal.Decimal `json:"available_credit"`
	Shortfall       decimal.Decimal `json:"shortfall"`
}

// Aging bucket labels.
const (
	Bucket0To7   = "0-7"
	Bucket8To30  = "8-30"
	Bucket31To60 = "31-60"
	Bucket61To90 = "61-90"
	BucketOver90 = "90+"
)

// BucketOrder lists the aging buckets from youngest to oldest.
var BucketOrder = []string{Bucket0To7, Bucket8To30, Bucket31To60, Bucket61To90, BucketOver90}

// AgingBucket summarises the outstanding amount inside one bucket.
type AgingBucket struct {
	Bucket string          `json:"bucket"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// OutstandingItem is one unpaid (or partially paid) sale.
type OutstandingItem struct {
	TransactionID int64           `json:"transaction_id"`
	Type          string          `json:"transaction_type"`
	TicketNumber  string          `json:"ticket_number,omitempty"`
	BookingRef    string          `json:"booking_ref,omitempty"`
	IssueDate     time.Time       `json:"issue_date"`
	AgeDays       int             `json:"age_days"`
	Bucket        string          `json:"bucket"`
	Amount        decimal.Decimal `json:"amount"`
	Paid          decimal.Decimal `json:"paid"`
	Outstanding   decimal.Decimal `json:"outstanding"`
}

// OutstandingDetails lists open items and their aging.
type OutstandingDetails struct {
	AgentID          int64             `json:"agent_id"`
	AsOf             time.Time         `json:"as_of"`
	TotalOutstanding decimal.Decimal   `json:"total_outstanding"`
	Items            []OutstandingItem `json:"items"`
	AgingSummary     []AgingBucket     `json:"aging_summary"`
}
