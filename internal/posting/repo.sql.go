package posting

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/accounts"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/audit"
	"github.com/atlas-travel/atlas-ledger/internal/platform/db"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// PGRepository persists postings in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	txns transactions.Repository
}

// NewRepository constructs the PostgreSQL posting repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, txns: transactions.NewRepository(pool)}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction. The agent advisory lock taken
// inside fn must be followed by fresh reads of the ledger tail.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("posting repository not initialised")
	}
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *PGRepository) Get(ctx context.Context, id int64) (transactions.Transaction, error) {
	return r.txns.Get(ctx, id)
}

func (r *PGRepository) ListUnposted(ctx context.Context, maxAttempts, limit int) ([]transactions.Transaction, error) {
	return r.txns.ListUnposted(ctx, maxAttempts, limit)
}

func (r *PGRepository) RecordFailure(ctx context.Context, id int64, message string, permanent bool) (transactions.Transaction, error) {
	return r.txns.RecordPostingFailure(ctx, id, message, permanent)
}

func (r *PGRepository) AppendAudit(ctx context.Context, entry audit.Entry) error {
	_, err := audit.Insert(ctx, r.pool, entry)
	return err
}

func (t *txRepository) LockTransaction(ctx context.Context, id int64) (transactions.Transaction, error) {
	return transactions.SelectForUpdate(ctx, t.tx, id)
}

func (t *txRepository) Chart(ctx context.Context) (accounts.Chart, error) {
	list, err := accounts.SelectAll(ctx, t.tx)
	if err != nil {
		return accounts.Chart{}, err
	}
	return accounts.NewChart(list), nil
}

func (t *txRepository) ClaimSource(ctx context.Context, link journals.SourceLink) error {
	return journals.ClaimSource(ctx, t.tx, link)
}

func (t *txRepository) InsertEntries(ctx context.Context, entries []journals.Entry) error {
	return journals.InsertEntries(ctx, t.tx, entries)
}

func (t *txRepository) MarkPosted(ctx context.Context, id int64, reference string, at time.Time) (bool, error) {
	return transactions.MarkPosted(ctx, t.tx, id, reference, at)
}

func (t *txRepository) LockAgent(ctx context.Context, agentID int64) error {
	return agentledger.LockAgent(ctx, t.tx, agentID)
}

func (t *txRepository) LastBalance(ctx context.Context, agentID int64) (decimal.Decimal, error) {
	return agentledger.LastBalance(ctx, t.tx, agentID)
}

func (t *txRepository) AppendLedger(ctx context.Context, entry agentledger.Entry) (agentledger.Entry, error) {
	return agentledger.Insert(ctx, t.tx, entry)
}

func (t *txRepository) DailySummary(ctx context.Context, agentID int64, date time.Time) (rollups.DailySummary, bool, error) {
	return rollups.GetDaily(ctx, t.tx, agentID, date)
}

func (t *txRepository) SaveDailySummary(ctx context.Context, summary rollups.DailySummary) error {
	return rollups.SaveDaily(ctx, t.tx, summary)
}

func (t *txRepository) MonthlyReport(ctx context.Context, agentID int64, year, month int) (rollups.MonthlyReport, bool, error) {
	return rollups.GetMonthly(ctx, t.tx, agentID, year, month)
}

func (t *txRepository) SaveMonthlyReport(ctx context.Context, report rollups.MonthlyReport) error {
	return rollups.SaveMonthly(ctx, t.tx, report)
}

func (t *txRepository) AppendAudit(ctx context.Context, entry audit.Entry) error {
	_, err := audit.Insert(ctx, t.tx, entry)
	return err
}
