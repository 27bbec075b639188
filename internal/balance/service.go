// Package balance answers "what is this agent's position" for dashboards and
// credit-limit enforcement. Every figure is computed from the transaction log
// and agent ledger at call time and is never cached.
package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// TransactionReader is the read side of the transaction log used here.
type TransactionReader interface {
	Totals(ctx context.Context, agentID int64) (transactions.AgentTotals, error)
	List(ctx context.Context, filter transactions.Filter) ([]transactions.Transaction, error)
}

// LedgerReader returns the newest ledger row of an agent.
type LedgerReader interface {
	Latest(ctx context.Context, agentID int64) (agentledger.Entry, bool, error)
}

// Service computes balances.
type Service struct {
	agents AgentDirectory
	txns   TransactionReader
	ledger LedgerReader
	now    func() time.Time
}

// NewService constructs the balance service.
func NewService(agents AgentDirectory, txns TransactionReader, ledger LedgerReader) *Service {
	return &Service{agents: agents, txns: txns, ledger: ledger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// GetAgentBalance returns the agent's current position.
func (s *Service) GetAgentBalance(ctx context.Context, agentID int64) (AgentBalance, error) {
	agent, err := s.agents.Agent(ctx, agentID)
	if err != nil {
		return AgentBalance{}, err
	}
	totals, err := s.txns.Totals(ctx, agentID)
	if err != nil {
		return AgentBalance{}, fmt.Errorf("load totals: %w", err)
	}
	current := decimal.Zero
	if latest, ok, err := s.ledger.Latest(ctx, agentID); err != nil {
		return AgentBalance{}, fmt.Errorf("load ledger: %w", err)
	} else if ok {
		current = latest.BalanceAfter
	}
	f := FiguresFrom(totals)
	outstanding := Outstanding(f)
	available := AvailableCredit(agent.CreditLimit, outstanding)
	return AgentBalance{
		AgentID:           agent.ID,
		Currency:          agent.Currency,
		CurrentBalance:    current,
		OutstandingAmount: outstanding,
		CreditLimit:       agent.CreditLimit,
		AvailableCredit:   available,
		TotalSales:        f.GrossSales,
		TotalPayments:     f.NetPayments,
		TotalRefunds:      f.Refunds,
		TotalCommissions:  f.Commissions,
		PendingAmount:     f.PendingAmount,
		PendingCount:      f.PendingCount,
		LastTransactionAt: f.LastOccurredAt,
		OverLimit:         available.IsNegative(),
	}, nil
}

// CheckCreditLimit reports whether amount fits the agent's available credit and,
// when it does not, by how much it falls short.
func (s *Service) CheckCreditLimit(ctx context.Context, agentID int64, amount decimal.Decimal) (CreditDecision, error) {
	if !amount.IsPositive() {
		return CreditDecision{}, fmt.Errorf("%w: requested amount must be positive", shared.ErrInvalidAmount)
	}
	bal, err := s.GetAgentBalance(ctx, agentID)
	if err != nil {
		return CreditDecision{}, err
	}
	return Decide(agentID, bal.AvailableCredit, amount), nil
}

// GetOutstandingDetails allocates net payments to open sales oldest first and
// ages what remains as of asOf (today when zero).
func (s *Service) GetOutstandingDetails(ctx context.Context, agentID int64, asOf time.Time) (OutstandingDetails, error) {
	if _, err := s.agents.Agent(ctx, agentID); err != nil {
		return OutstandingDetails{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = dayOf(asOf)
	totals, err := s.txns.Totals(ctx, agentID)
	if err != nil {
		return OutstandingDetails{}, fmt.Errorf("load totals: %w", err)
	}
	posted := true
	rows, err := s.txns.List(ctx, transactions.Filter{AgentID: agentID, Posted: &posted, Types: saleTypes()})
	if err != nil {
		return OutstandingDetails{}, fmt.Errorf("load sales: %w", err)
	}
	voided, err := s.postedReversals(ctx, agentID)
	if err != nil {
		return OutstandingDetails{}, err
	}
	open := make([]transactions.Transaction, 0, len(rows))
	for _, r := range rows {
		if voided[r.ID] || r.Status == transactions.StatusFailed {
			continue
		}
		open = append(open, r)
	}
	items := AllocateFIFO(open, FiguresFrom(totals).NetPayments, asOf)
	summary, total := Summarise(items)
	return OutstandingDetails{
		AgentID:          agentID,
		AsOf:             asOf,
		TotalOutstanding: total,
		Items:            items,
		AgingSummary:     summary,
	}, nil
}

// postedReversals returns the ids of sales whose void or refund has posted.
// A sale whose reversal is still pending keeps counting as open debt.
func (s *Service) postedReversals(ctx context.Context, agentID int64) (map[int64]bool, error) {
	posted := true
	var types []transactions.Type
	for _, t := range transactions.AllTypes() {
		if t.IsSaleReversal() {
			types = append(types, t)
		}
	}
	rows, err := s.txns.List(ctx, transactions.Filter{AgentID: agentID, Posted: &posted, Types: types})
	if err != nil {
		return nil, fmt.Errorf("load reversals: %w", err)
	}
	out := make(map[int64]bool, len(rows))
	for _, r := range rows {
		if r.ReversesID != nil && r.Status != transactions.StatusFailed {
			out[*r.ReversesID] = true
		}
	}
	return out, nil
}

func saleTypes() []transactions.Type {
	var out []transactions.Type
	for _, t := range transactions.AllTypes() {
		if t.IsSale() {
			out = append(out, t)
		}
	}
	return out
}
