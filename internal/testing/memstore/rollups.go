package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// Rollups returns the rollup view.
func (s *Store) Rollups() rollups.Repository {
	return &rollupRepo{s: s}
}

type rollupRepo struct {
	s *Store
}

type rollupTx struct {
	s  *Store
	st *state
}

func (r *rollupRepo) WithTx(ctx context.Context, fn func(context.Context, rollups.TxRepository) error) error {
	return r.s.atomically(func(st *state) error {
		return fn(ctx, &rollupTx{s: r.s, st: st})
	})
}

func (r *rollupRepo) Daily(_ context.Context, agentID int64, date time.Time) (rollups.DailySummary, bool, error) {
	var (
		row rollups.DailySummary
		ok  bool
	)
	r.s.read(func(st *state) { row, ok = st.daily[dailyKey{agentID, rollups.Day(date).Format(time.DateOnly)}] })
	return row, ok, nil
}

func (r *rollupRepo) DailyRange(_ context.Context, agentID int64, from, to time.Time) ([]rollups.DailySummary, error) {
	from, to = rollups.Day(from), rollups.Day(to)
	var out []rollups.DailySummary
	r.s.read(func(st *state) {
		for k, v := range st.daily {
			if k.agentID == agentID && !v.Date.Before(from) && v.Date.Before(to) {
				out = append(out, v)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *rollupRepo) Monthly(_ context.Context, agentID int64, year, month int) (rollups.MonthlyReport, bool, error) {
	var (
		row rollups.MonthlyReport
		ok  bool
	)
	r.s.read(func(st *state) { row, ok = st.monthly[monthlyKey{agentID, year, month}] })
	return cloneMonthly(row), ok, nil
}

func (r *rollupRepo) ActiveAgents(_ context.Context, from, to time.Time) ([]int64, error) {
	seen := map[int64]bool{}
	var out []int64
	r.s.read(func(st *state) {
		for _, t := range st.txns {
			if postedWithin(t, from, to) && !seen[t.AgentID] {
				seen[t.AgentID] = true
				out = append(out, t.AgentID)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (t *rollupTx) LockAgent(context.Context, int64) error {
	return nil
}

func (t *rollupTx) PostedTransactions(_ context.Context, agentID int64, from, to time.Time) ([]transactions.Transaction, error) {
	return t.st.sortedTxns(func(row transactions.Transaction) bool {
		return row.AgentID == agentID && postedWithin(row, from, to)
	}), nil
}

func postedWithin(t transactions.Transaction, from, to time.Time) bool {
	if !t.AccountingPosted || t.AccountingPostedAt == nil {
		return false
	}
	at := *t.AccountingPostedAt
	return !at.Before(from) && at.Before(to)
}

func (t *rollupTx) LedgerEntries(_ context.Context, ids []int64) (map[int64]agentledger.Entry, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[int64]agentledger.Entry, len(ids))
	for _, e := range t.st.ledger {
		if want[e.TransactionID] {
			out[e.TransactionID] = e
		}
	}
	return out, nil
}

func (t *rollupTx) ReplaceDaily(_ context.Context, agentID int64, from, to time.Time, rows []rollups.DailySummary) error {
	from, to = rollups.Day(from), rollups.Day(to)
	for k, v := range t.st.daily {
		if k.agentID == agentID && !v.Date.Before(from) && v.Date.Before(to) {
			delete(t.st.daily, k)
		}
	}
	for _, s := range rows {
		t.st.saveDaily(s)
	}
	return nil
}

func (t *rollupTx) ReplaceMonthly(_ context.Context, agentID int64, from, to time.Time, rows []rollups.MonthlyReport) error {
	from, to = rollups.Day(from), rollups.Day(to)
	for k := range t.st.monthly {
		start := time.Date(k.year, time.Month(k.month), 1, 0, 0, 0, 0, time.UTC)
		if k.agentID == agentID && !start.Before(from) && start.Before(to) {
			delete(t.st.monthly, k)
		}
	}
	for _, r := range rows {
		t.st.saveMonthly(r)
	}
	return nil
}
