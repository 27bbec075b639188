// Package agentledger keeps the append-only running balance of each agent.
//
// Sign convention: a CREDIT adds the amount to the agent's running balance, a
// DEBIT subtracts it. Events that create or settle value with the agent
// (ticket_issue, ticket_reissue, payment_received, commission_earned,
// ancillary_purchase, emd_issue) are credits; events that take value back
// (voids, cancellations, refunds, payment_refunded, commission_paid) are debits.
package agentledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// Direction is the ledger entry_type.
type Direction string

const (
	Credit Direction = "CREDIT"
	Debit  Direction = "DEBIT"
)

// ErrChainBroken indicates balance_before of a row differs from balance_after of its predecessor.
var ErrChainBroken = errors.New("agentledger: balance chain broken")

// Entry is one immutable ledger row.
type Entry struct {
	ID            int64           `json:"id"`
	AgentID       int64           `json:"agent_id"`
	TransactionID int64           `json:"transaction_id"`
	EntryType     Direction       `json:"entry_type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	EntryDate     time.Time       `json:"entry_date"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Delta returns the signed change this entry applies.
func (e Entry) Delta() decimal.Decimal {
	if e.EntryType == Debit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// DirectionFor maps a transaction type onto the sign convention.
func DirectionFor(t transactions.Type) (Direction, error) {
	switch t {
	case transactions.TypeTicketIssue, transactions.TypeTicketReissue, transactions.TypePaymentReceived,
		transactions.TypeCommissionEarned, transactions.TypeAncillaryPurchase, transactions.TypeEMDIssue:
		return Credit, nil
	case transactions.TypeTicketVoid, transactions.TypeTicketCancel, transactions.TypeTicketRefund,
		transactions.TypePaymentRefunded, transactions.TypeCommissionPaid, transactions.TypeAncillaryRefund,
		transactions.TypeEMDVoid, transactions.TypeEMDRefund:
		return Debit, nil
	}
	return "", fmt.Errorf("%w: %q", shared.ErrUnknownTransactionType, t)
}

// Next computes the row that follows a ledger whose latest balance is prev.
// The row is dated by when it is appended, not by when the event occurred, so
// rows ordered by (entry_date, created_at) always chain.
func Next(prev decimal.Decimal, tx transactions.Transaction, at time.Time) (Entry, error) {
	dir, err := DirectionFor(tx.Type)
	if err != nil {
		return Entry{}, err
	}
	amount := tx.LedgerAmount()
	if !amount.IsPositive() {
		return Entry{}, fmt.Errorf("%w: ledger amount must be positive", shared.ErrInvalidAmount)
	}
	e := Entry{
		AgentID:       tx.AgentID,
		TransactionID: tx.ID,
		EntryType:     dir,
		Amount:        amount,
		BalanceBefore: prev,
		EntryDate:     at.UTC().Truncate(24 * time.Hour),
		CreatedAt:     at,
	}
	e.BalanceAfter = prev.Add(e.Delta())
	return e, nil
}

// SortChain orders entries by (entry_date, created_at, id), the chain order.
func SortChain(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.EntryDate.Equal(b.EntryDate) {
			return a.EntryDate.Before(b.EntryDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// VerifyChain checks that entries, ordered oldest first, form an unbroken chain
// starting from opening.
func VerifyChain(opening decimal.Decimal, entries []Entry) error {
	prev := opening
	for i, e := range entries {
		if !e.BalanceBefore.Equal(prev) {
			return fmt.Errorf("%w: row %d (id %d) starts at %s, previous ended at %s", ErrChainBroken, i, e.ID, e.BalanceBefore.StringFixed(2), prev.StringFixed(2))
		}
		if !e.BalanceAfter.Equal(e.BalanceBefore.Add(e.Delta())) {
			return fmt.Errorf("%w: row %d (id %d) does not apply its own delta", ErrChainBroken, i, e.ID)
		}
		prev = e.BalanceAfter
	}
	return nil
}
