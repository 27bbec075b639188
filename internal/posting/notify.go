package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Notifier is told about every committed posting. Errors are logged by the
// service and never undo the posting.
type Notifier interface {
	Posted(ctx context.Context, result Result) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, result Result) error

// Posted implements Notifier.
func (f NotifierFunc) Posted(ctx context.Context, result Result) error {
	return f(ctx, result)
}

// Notifiers fans a result out to every member, joining their errors.
type Notifiers []Notifier

// Posted implements Notifier.
func (ns Notifiers) Posted(ctx context.Context, result Result) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Posted(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publisher delivers a payload on a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// PostedEvent is the outbound message describing one committed posting.
type PostedEvent struct {
	TransactionID     int64           `json:"transaction_id"`
	TransactionNumber string          `json:"transaction_number"`
	TransactionType   string          `json:"transaction_type"`
	AgentID           int64           `json:"agent_id"`
	Reference         string          `json:"reference_number"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	BalanceAfter      decimal.Decimal `json:"balance_after"`
	PostedAt          time.Time       `json:"posted_at"`
}

// MessageID identifies the posting for broker de-duplication.
func (e PostedEvent) MessageID() string {
	return e.Reference
}

// SubjectPrefix prefixes every outbound posting subject.
const SubjectPrefix = "accounting.posted"

// Subject returns the subject a posting of txType is published on.
func Subject(txType string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, txType)
}

// PublishingNotifier publishes a PostedEvent per posting.
func PublishingNotifier(pub Publisher) Notifier {
	return NotifierFunc(func(ctx context.Context, result Result) error {
		if pub == nil {
			return nil
		}
		t := result.Transaction
		event := PostedEvent{
			TransactionID:     t.ID,
			TransactionNumber: t.Number,
			TransactionType:   string(t.Type),
			AgentID:           t.AgentID,
			Reference:         result.Reference,
			Amount:            t.Amounts.Total,
			Currency:          t.Currency,
			BalanceAfter:      result.Ledger.BalanceAfter,
			PostedAt:          result.PostedAt,
		}
		return pub.Publish(ctx, Subject(string(t.Type)), event)
	})
}

// Invalidator drops cached projections of one agent.
type Invalidator interface {
	Invalidate(ctx context.Context, agentID int64) error
}

// InvalidatingNotifier invalidates the agent's cached reports per posting.
func InvalidatingNotifier(inv Invalidator) Notifier {
	return NotifierFunc(func(ctx context.Context, result Result) error {
		if inv == nil {
			return nil
		}
		return inv.Invalidate(ctx, result.Transaction.AgentID)
	})
}
