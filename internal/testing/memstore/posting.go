package memstore

import (
	"context"
	"maps"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/accounts"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/audit"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// Posting returns the posting view.
func (s *Store) Posting() posting.Repository {
	return &postingRepo{s: s, txns: &txnRepo{s: s}}
}

type postingRepo struct {
	s    *Store
	txns *txnRepo
}

type postingTx struct {
	s  *Store
	st *state
}

func (r *postingRepo) WithTx(ctx context.Context, fn func(context.Context, posting.TxRepository) error) error {
	return r.s.atomically(func(st *state) error {
		return fn(ctx, &postingTx{s: r.s, st: st})
	})
}

func (r *postingRepo) Get(ctx context.Context, id int64) (transactions.Transaction, error) {
	return r.txns.Get(ctx, id)
}

func (r *postingRepo) ListUnposted(ctx context.Context, maxAttempts, limit int) ([]transactions.Transaction, error) {
	return r.txns.ListUnposted(ctx, maxAttempts, limit)
}

func (r *postingRepo) RecordFailure(ctx context.Context, id int64, message string, permanent bool) (transactions.Transaction, error) {
	return r.txns.RecordPostingFailure(ctx, id, message, permanent)
}

func (r *postingRepo) AppendAudit(_ context.Context, entry audit.Entry) error {
	r.s.read(func(st *state) { st.appendAudit(entry) })
	return nil
}

func (t *postingTx) LockTransaction(_ context.Context, id int64) (transactions.Transaction, error) {
	return t.st.getTxn(id)
}

func (t *postingTx) Chart(context.Context) (accounts.Chart, error) {
	if err := t.s.fault("Chart"); err != nil {
		return accounts.Chart{}, err
	}
	list := make([]accounts.Account, 0, len(t.st.accounts))
	for _, a := range t.st.accounts {
		list = append(list, a)
	}
	return accounts.NewChart(list), nil
}

func (t *postingTx) ClaimSource(_ context.Context, link journals.SourceLink) error {
	key := sourceKey(link.TransactionType, link.CorrelationKey)
	if _, ok := t.st.sources[key]; ok {
		return journals.ErrSourceConflict
	}
	t.st.sources[key] = link
	return nil
}

func (t *postingTx) InsertEntries(_ context.Context, entries []journals.Entry) error {
	if err := t.s.fault("InsertEntries"); err != nil {
		return err
	}
	now := t.s.now()
	for _, e := range entries {
		t.st.nextEntry++
		e.ID = t.st.nextEntry
		e.CreatedAt = now
		t.st.entries = append(t.st.entries, e)
	}
	return nil
}

func (t *postingTx) MarkPosted(_ context.Context, id int64, reference string, at time.Time) (bool, error) {
	row, ok := t.st.txns[id]
	if !ok || row.AccountingPosted {
		return false, nil
	}
	row.AccountingPosted = true
	row.AccountingPostedAt = &at
	row.JournalReference = reference
	row.LastPostingError = ""
	row.UpdatedAt = t.s.now()
	t.st.txns[id] = row
	return true, nil
}

// LockAgent is a no-op: the store mutex already serialises transactions.
func (t *postingTx) LockAgent(context.Context, int64) error {
	return nil
}

func (t *postingTx) LastBalance(_ context.Context, agentID int64) (decimal.Decimal, error) {
	e, ok := t.st.lastBalance(agentID)
	if !ok {
		return decimal.Zero, nil
	}
	return e.BalanceAfter, nil
}

func (t *postingTx) AppendLedger(_ context.Context, e agentledger.Entry) (agentledger.Entry, error) {
	if err := t.s.fault("AppendLedger"); err != nil {
		return agentledger.Entry{}, err
	}
	t.st.nextLedger++
	e.ID = t.st.nextLedger
	t.st.ledger = append(t.st.ledger, e)
	return e, nil
}

func (t *postingTx) DailySummary(_ context.Context, agentID int64, date time.Time) (rollups.DailySummary, bool, error) {
	row, ok := t.st.daily[dailyKey{agentID, rollups.Day(date).Format(time.DateOnly)}]
	return row, ok, nil
}

func (t *postingTx) SaveDailySummary(_ context.Context, s rollups.DailySummary) error {
	if err := t.s.fault("SaveDailySummary"); err != nil {
		return err
	}
	t.st.saveDaily(s)
	return nil
}

func (t *postingTx) MonthlyReport(_ context.Context, agentID int64, year, month int) (rollups.MonthlyReport, bool, error) {
	row, ok := t.st.monthly[monthlyKey{agentID, year, month}]
	return cloneMonthly(row), ok, nil
}

func (t *postingTx) SaveMonthlyReport(_ context.Context, r rollups.MonthlyReport) error {
	if err := t.s.fault("SaveMonthlyReport"); err != nil {
		return err
	}
	t.st.saveMonthly(r)
	return nil
}

func (t *postingTx) AppendAudit(_ context.Context, entry audit.Entry) error {
	t.st.appendAudit(entry)
	return nil
}

func (st *state) saveDaily(s rollups.DailySummary) {
	key := dailyKey{s.AgentID, rollups.Day(s.Date).Format(time.DateOnly)}
	if existing, ok := st.daily[key]; ok {
		s.ID = existing.ID
	} else {
		st.nextRollup++
		s.ID = st.nextRollup
	}
	s.Date = rollups.Day(s.Date)
	st.daily[key] = s
}

func (st *state) saveMonthly(r rollups.MonthlyReport) {
	key := monthlyKey{r.AgentID, r.Year, r.Month}
	if existing, ok := st.monthly[key]; ok {
		r.ID = existing.ID
	} else {
		st.nextRollup++
		r.ID = st.nextRollup
	}
	st.monthly[key] = r
}

// cloneMonthly copies the breakdown maps, which aggregation updates in place.
func cloneMonthly(r rollups.MonthlyReport) rollups.MonthlyReport {
	r.Detailed.Routes = maps.Clone(r.Detailed.Routes)
	r.Detailed.Airlines = maps.Clone(r.Detailed.Airlines)
	return r
}
