package rollups

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/platform/db"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// Repository reads persisted rollups.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Daily(ctx context.Context, agentID int64, date time.Time) (DailySummary, bool, error)
	DailyRange(ctx context.Context, agentID int64, from, to time.Time) ([]DailySummary, error)
	Monthly(ctx context.Context, agentID int64, year, month int) (MonthlyReport, bool, error)
	ActiveAgents(ctx context.Context, from, to time.Time) ([]int64, error)
}

// TxRepository exposes the rebuild operations. Implementations hold the agent
// ledger lock for the lifetime of the transaction once LockAgent is called.
type TxRepository interface {
	LockAgent(ctx context.Context, agentID int64) error
	PostedTransactions(ctx context.Context, agentID int64, from, to time.Time) ([]transactions.Transaction, error)
	LedgerEntries(ctx context.Context, transactionIDs []int64) (map[int64]agentledger.Entry, error)
	ReplaceDaily(ctx context.Context, agentID int64, from, to time.Time, rows []DailySummary) error
	ReplaceMonthly(ctx context.Context, agentID int64, from, to time.Time, rows []MonthlyReport) error
}

const dailyColumns = `id, agent_id, summary_date, tickets_issued, tickets_voided, tickets_cancelled, tickets_refunded, tickets_reissued,
payments_count, ancillaries_count, emds_count, total_sales, total_refunds, total_payments, total_commissions, net_revenue,
opening_balance, closing_balance`

const monthlyColumns = `id, agent_id, year, month, tickets_issued, tickets_voided, tickets_cancelled, tickets_refunded, tickets_reissued,
payments_count, ancillaries_count, emds_count, total_sales, total_refunds, total_payments, total_commissions, net_revenue,
opening_balance, closing_balance, detailed_data`

func scanDaily(row pgx.Row) (DailySummary, error) {
	var s DailySummary
	c, m := &s.Counters, &s.Money
	err := row.Scan(&s.ID, &s.AgentID, &s.Date, &c.TicketsIssued, &c.TicketsVoided, &c.TicketsCancelled, &c.TicketsRefunded, &c.TicketsReissued,
		&c.PaymentsCount, &c.AncillariesCount, &c.EMDsCount, &m.TotalSales, &m.TotalRefunds, &m.TotalPayments, &m.TotalCommissions, &m.NetRevenue,
		&s.OpeningBalance, &s.ClosingBalance)
	return s, err
}

func scanMonthly(row pgx.Row) (MonthlyReport, error) {
	var r MonthlyReport
	c, m := &r.Counters, &r.Money
	err := row.Scan(&r.ID, &r.AgentID, &r.Year, &r.Month, &c.TicketsIssued, &c.TicketsVoided, &c.TicketsCancelled, &c.TicketsRefunded, &c.TicketsReissued,
		&c.PaymentsCount, &c.AncillariesCount, &c.EMDsCount, &m.TotalSales, &m.TotalRefunds, &m.TotalPayments, &m.TotalCommissions, &m.NetRevenue,
		&r.OpeningBalance, &r.ClosingBalance, &r.Detailed)
	return r, err
}

// GetDaily loads the (agent, date) row, reporting false when it does not exist yet.
func GetDaily(ctx context.Context, q db.Querier, agentID int64, date time.Time) (DailySummary, bool, error) {
	s, err := scanDaily(q.QueryRow(ctx, `SELECT `+dailyColumns+` FROM daily_transaction_summaries WHERE agent_id=$1 AND summary_date=$2`, agentID, Day(date)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DailySummary{}, false, nil
		}
		return DailySummary{}, false, err
	}
	return s, true, nil
}

// SaveDaily upserts s on (agent_id, summary_date).
func SaveDaily(ctx context.Context, q db.Querier, s DailySummary) error {
	c, m := s.Counters, s.Money
	_, err := q.Exec(ctx, `INSERT INTO daily_transaction_summaries (agent_id, summary_date, tickets_issued, tickets_voided, tickets_cancelled, tickets_refunded, tickets_reissued,
payments_count, ancillaries_count, emds_count, total_sales, total_refunds, total_payments, total_commissions, net_revenue, opening_balance, closing_balance)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (agent_id, summary_date) DO UPDATE SET
tickets_issued=EXCLUDED.tickets_issued, tickets_voided=EXCLUDED.tickets_voided, tickets_cancelled=EXCLUDED.tickets_cancelled,
tickets_refunded=EXCLUDED.tickets_refunded, tickets_reissued=EXCLUDED.tickets_reissued, payments_count=EXCLUDED.payments_count,
ancillaries_count=EXCLUDED.ancillaries_count, emds_count=EXCLUDED.emds_count, total_sales=EXCLUDED.total_sales,
total_refunds=EXCLUDED.total_refunds, total_payments=EXCLUDED.total_payments, total_commissions=EXCLUDED.total_commissions,
net_revenue=EXCLUDED.net_revenue, opening_balance=EXCLUDED.opening_balance, closing_balance=EXCLUDED.closing_balance, updated_at=NOW()`,
		s.AgentID, Day(s.Date), c.TicketsIssued, c.TicketsVoided, c.TicketsCancelled, c.TicketsRefunded, c.TicketsReissued,
		c.PaymentsCount, c.AncillariesCount, c.EMDsCount, m.TotalSales, m.TotalRefunds, m.TotalPayments, m.TotalCommissions, m.NetRevenue,
		s.OpeningBalance, s.ClosingBalance)
	return err
}

// GetMonthly loads the (agent, year, month) row, reporting false when it does not exist yet.
func GetMonthly(ctx context.Context, q db.Querier, agentID int64, year, month int) (MonthlyReport, bool, error) {
	r, err := scanMonthly(q.QueryRow(ctx, `SELECT `+monthlyColumns+` FROM monthly_agent_reports WHERE agent_id=$1 AND year=$2 AND month=$3`, agentID, year, month))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MonthlyReport{}, false, nil
		}
		return MonthlyReport{}, false, err
	}
	return r, true, nil
}

// SaveMonthly upserts r on (agent_id, year, month).
func SaveMonthly(ctx context.Context, q db.Querier, r MonthlyReport) error {
	c, m := r.Counters, r.Money
	_, err := q.Exec(ctx, `INSERT INTO monthly_agent_reports (agent_id, year, month, tickets_issued, tickets_voided, tickets_cancelled, tickets_refunded, tickets_reissued,
payments_count, ancillaries_count, emds_count, total_sales, total_refunds, total_payments, total_commissions, net_revenue, opening_balance, closing_balance, detailed_data)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (agent_id, year, month) DO UPDATE SET
tickets_issued=EXCLUDED.tickets_issued, tickets_voided=EXCLUDED.tickets_voided, tickets_cancelled=EXCLUDED.tickets_cancelled,
tickets_refunded=EXCLUDED.tickets_refunded, tickets_reissued=EXCLUDED.tickets_reissued, payments_count=EXCLUDED.payments_count,
ancillaries_count=EXCLUDED.ancillaries_count, emds_count=EXCLUDED.emds_count, total_sales=EXCLUDED.total_sales,
total_refunds=EXCLUDED.total_refunds, total_payments=EXCLUDED.total_payments, total_commissions=EXCLUDED.total_commissions,
net_revenue=EXCLUDED.net_revenue, opening_balance=EXCLUDED.opening_balance, closing_balance=EXCLUDED.closing_balance,
detailed_data=EXCLUDED.detailed_data, updated_at=NOW()`,
		r.AgentID, r.Year, r.Month, c.TicketsIssued, c.TicketsVoided, c.TicketsCancelled, c.TicketsRefunded, c.TicketsReissued,
		c.PaymentsCount, c.AncillariesCount, c.EMDsCount, m.TotalSales, m.TotalRefunds, m.TotalPayments, m.TotalCommissions, m.NetRevenue,
		r.OpeningBalance, r.ClosingBalance, r.Detailed)
	return err
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL rollup repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a read-committed transaction so reads issued after
// LockAgent observe every posting committed before the lock was granted.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("rollups repository not initialised")
	}
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Daily(ctx context.Context, agentID int64, date time.Time) (DailySummary, bool, error) {
	return GetDaily(ctx, r.pool, agentID, date)
}

func (r *repository) DailyRange(ctx context.Context, agentID int64, from, to time.Time) ([]DailySummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+dailyColumns+` FROM daily_transaction_summaries
WHERE agent_id=$1 AND summary_date >= $2 AND summary_date < $3 ORDER BY summary_date`, agentID, Day(from), Day(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DailySummary
	for rows.Next() {
		s, err := scanDaily(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) Monthly(ctx context.Context, agentID int64, year, month int) (MonthlyReport, bool, error) {
	return GetMonthly(ctx, r.pool, agentID, year, month)
}

func (r *repository) ActiveAgents(ctx context.Context, from, to time.Time) ([]int64, error) {
	return transactions.SelectActiveAgents(ctx, r.pool, from, to)
}

func (r *txRepository) LockAgent(ctx context.Context, agentID int64) error {
	return agentledger.LockAgent(ctx, r.tx, agentID)
}

func (r *txRepository) PostedTransactions(ctx context.Context, agentID int64, from, to time.Time) ([]transactions.Transaction, error) {
	return transactions.SelectPosted(ctx, r.tx, agentID, from, to)
}

func (r *txRepository) LedgerEntries(ctx context.Context, ids []int64) (map[int64]agentledger.Entry, error) {
	return agentledger.SelectForTransactions(ctx, r.tx, ids)
}

func (r *txRepository) ReplaceDaily(ctx context.Context, agentID int64, from, to time.Time, rows []DailySummary) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM daily_transaction_summaries WHERE agent_id=$1 AND summary_date >= $2 AND summary_date < $3`, agentID, Day(from), Day(to)); err != nil {
		return err
	}
	for _, s := range rows {
		if err := SaveDaily(ctx, r.tx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) ReplaceMonthly(ctx context.Context, agentID int64, from, to time.Time, rows []MonthlyReport) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM monthly_agent_reports WHERE agent_id=$1 AND make_date(year, month, 1) >= $2 AND make_date(year, month, 1) < $3`, agentID, Day(from), Day(to)); err != nil {
		return err
	}
	for _, m := range rows {
		if err := SaveMonthly(ctx, r.tx, m); err != nil {
			return err
		}
	}
	return nil
}
