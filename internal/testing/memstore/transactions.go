package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/audit"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// Transactions returns the transaction log view.
func (s *Store) Transactions() transactions.Repository {
	return &txnRepo{s: s}
}

type txnRepo struct {
	s *Store
}

type txnTx struct {
	s  *Store
	st *state
}

func (r *txnRepo) WithTx(ctx context.Context, fn func(context.Context, transactions.TxRepository) error) error {
	return r.s.atomically(func(st *state) error {
		return fn(ctx, &txnTx{s: r.s, st: st})
	})
}

func (t *txnTx) Insert(_ context.Context, row transactions.Transaction) (transactions.Transaction, error) {
	if err := t.s.fault("Insert"); err != nil {
		return transactions.Transaction{}, err
	}
	return t.st.insertTxn(row, t.s.now())
}

func (t *txnTx) GetForUpdate(_ context.Context, id int64) (transactions.Transaction, error) {
	return t.st.getTxn(id)
}

func (t *txnTx) MarkReversed(_ context.Context, originalID, reversalID int64) error {
	row, err := t.st.getTxn(originalID)
	if err != nil {
		return err
	}
	if row.IsReversed {
		return fmt.Errorf("%w: transaction %d", shared.ErrAlreadyReversed, originalID)
	}
	row.IsReversed = true
	row.ReversedBy = &reversalID
	row.UpdatedAt = t.s.now()
	t.st.txns[originalID] = row
	return nil
}

func (t *txnTx) UpdateStatus(_ context.Context, id int64, status transactions.Status) error {
	row, err := t.st.getTxn(id)
	if err != nil {
		return err
	}
	row.Status = status
	row.UpdatedAt = t.s.now()
	t.st.txns[id] = row
	return nil
}

func (t *txnTx) AppendAudit(_ context.Context, entry audit.Entry) error {
	t.st.appendAudit(entry)
	return nil
}

func (st *state) insertTxn(row transactions.Transaction, now time.Time) (transactions.Transaction, error) {
	for _, existing := range st.txns {
		if existing.Type == row.Type && existing.CorrelationKey == row.CorrelationKey {
			return transactions.Transaction{}, fmt.Errorf("%w: %s %s", shared.ErrDuplicateEvent, row.Type, row.CorrelationKey)
		}
	}
	st.nextTxn++
	row.ID = st.nextTxn
	if row.Metadata == nil {
		row.Metadata = map[string]string{}
	}
	row.CreatedAt = now
	row.UpdatedAt = now
	st.txns[row.ID] = row
	return row, nil
}

func (st *state) getTxn(id int64) (transactions.Transaction, error) {
	row, ok := st.txns[id]
	if !ok {
		return transactions.Transaction{}, shared.ErrTransactionNotFound
	}
	return row, nil
}

// reversalPosted reports whether t was reversed by a row that has posted.
func (st *state) reversalPosted(t transactions.Transaction) bool {
	if !t.IsReversed || t.ReversedBy == nil {
		return false
	}
	rev, ok := st.txns[*t.ReversedBy]
	return ok && rev.AccountingPosted
}

func (st *state) sortedTxns(keep func(transactions.Transaction) bool) []transactions.Transaction {
	var out []transactions.Transaction
	for _, t := range st.txns {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *txnRepo) Get(_ context.Context, id int64) (transactions.Transaction, error) {
	var (
		row transactions.Transaction
		err error
	)
	r.s.read(func(st *state) { row, err = st.getTxn(id) })
	return row, err
}

func (r *txnRepo) GetByCorrelation(_ context.Context, t transactions.Type, key string) (transactions.Transaction, error) {
	var (
		row transactions.Transaction
		ok  bool
	)
	r.s.read(func(st *state) {
		for _, candidate := range st.txns {
			if candidate.Type == t && candidate.CorrelationKey == key {
				row, ok = candidate, true
				return
			}
		}
	})
	if !ok {
		return transactions.Transaction{}, shared.ErrTransactionNotFound
	}
	return row, nil
}

func (r *txnRepo) List(_ context.Context, f transactions.Filter) ([]transactions.Transaction, error) {
	var out []transactions.Transaction
	r.s.read(func(st *state) {
		out = st.sortedTxns(func(t transactions.Transaction) bool {
			switch {
			case f.AgentID != 0 && t.AgentID != f.AgentID:
				return false
			case !f.From.IsZero() && t.OccurredAt.Before(f.From):
				return false
			case !f.To.IsZero() && !t.OccurredAt.Before(f.To):
				return false
			case f.Posted != nil && t.AccountingPosted != *f.Posted:
				return false
			case len(f.Types) > 0 && !slices.Contains(f.Types, t.Type):
				return false
			}
			return true
		})
	})
	return out, nil
}

func (r *txnRepo) Totals(_ context.Context, agentID int64) (transactions.AgentTotals, error) {
	totals := transactions.AgentTotals{Posted: map[transactions.Type]transactions.TypeTotals{}, Reversed: map[transactions.Type]transactions.TypeTotals{}}
	r.s.read(func(st *state) {
		for _, t := range st.txns {
			if t.AgentID != agentID || t.Status == transactions.StatusFailed {
				continue
			}
			if totals.LastOccurredAt == nil || t.OccurredAt.After(*totals.LastOccurredAt) {
				at := t.OccurredAt
				totals.LastOccurredAt = &at
			}
			amount := t.LedgerAmount()
			switch {
			case !t.AccountingPosted:
				totals.PendingCount++
				totals.PendingTotal = totals.PendingTotal.Add(amount)
			case st.reversalPosted(t):
				tt := totals.Reversed[t.Type]
				tt.Count++
				tt.Total = tt.Total.Add(amount)
				totals.Reversed[t.Type] = tt
			default:
				tt := totals.Posted[t.Type]
				tt.Count++
				tt.Total = tt.Total.Add(amount)
				totals.Posted[t.Type] = tt
			}
		}
	})
	return totals, nil
}

func (r *txnRepo) ListUnposted(_ context.Context, maxAttempts, limit int) ([]transactions.Transaction, error) {
	var out []transactions.Transaction
	r.s.read(func(st *state) {
		for _, t := range st.txns {
			if !t.AccountingPosted && t.Status == transactions.StatusCompleted && t.PostingAttempts < maxAttempts {
				out = append(out, t)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *txnRepo) ListExceptions(_ context.Context, maxAttempts, offset, limit int) ([]transactions.Transaction, error) {
	var out []transactions.Transaction
	r.s.read(func(st *state) {
		for _, t := range st.txns {
			if !t.AccountingPosted && (t.Status == transactions.StatusFailed || t.PostingAttempts >= maxAttempts) {
				out = append(out, t)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *txnRepo) RecordPostingFailure(_ context.Context, id int64, message string, permanent bool) (transactions.Transaction, error) {
	var row transactions.Transaction
	err := r.s.atomically(func(st *state) error {
		current, ok := st.txns[id]
		if !ok || current.AccountingPosted {
			return shared.ErrTransactionNotFound
		}
		current.PostingAttempts++
		current.LastPostingError = message
		if permanent {
			current.Status = transactions.StatusFailed
		}
		current.UpdatedAt = r.s.now()
		st.txns[id] = current
		row = current
		return nil
	})
	return row, err
}
