package transactions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/audit"
	"github.com/atlas-travel/atlas-ledger/internal/platform/db"
)

const correlationConstraint = "uq_transaction_logs_correlation"

// Filter narrows List queries. Zero fields are ignored; From is inclusive and To exclusive.
type Filter struct {
	AgentID int64
	From    time.Time
	To      time.Time
	Posted  *bool
	Types   []Type
}

// TypeTotals aggregates one transaction type.
type TypeTotals struct {
	Count int
	Total decimal.Decimal
}

// AgentTotals aggregates an agent's transaction log at query time.
type AgentTotals struct {
	// Posted holds posted rows that are still in force.
	Posted map[Type]TypeTotals
	// Reversed holds posted rows whose reversal has posted too. A row whose
	// reversal is still pending stays in Posted.
	Reversed       map[Type]TypeTotals
	PendingCount   int
	PendingTotal   decimal.Decimal
	LastOccurredAt *time.Time
}

// Repository exposes transaction log persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Transaction, error)
	GetByCorrelation(ctx context.Context, t Type, key string) (Transaction, error)
	List(ctx context.Context, filter Filter) ([]Transaction, error)
	Totals(ctx context.Context, agentID int64) (AgentTotals, error)
	ListUnposted(ctx context.Context, maxAttempts, limit int) ([]Transaction, error)
	ListExceptions(ctx context.Context, maxAttempts, offset, limit int) ([]Transaction, error)
	RecordPostingFailure(ctx context.Context, id int64, message string, permanent bool) (Transaction, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Insert(ctx context.Context, t Transaction) (Transaction, error)
	GetForUpdate(ctx context.Context, id int64) (Transaction, error)
	MarkReversed(ctx context.Context, originalID, reversalID int64) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

const selectColumns = `id, transaction_number, transaction_type, status, agent_id, booking_ref, correlation_key,
base_amount, tax_amount, fee_amount, commission_amount, total_amount, total_override, currency, occurred_at,
accounting_posted, accounting_posted_at, COALESCE(journal_reference, ''), is_reversed, reversed_by, reverses_id,
posting_attempts, last_posting_error, metadata, created_at, updated_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t              Transaction
		txType, status string
	)
	err := row.Scan(&t.ID, &t.Number, &txType, &status, &t.AgentID, &t.BookingRef, &t.CorrelationKey,
		&t.Amounts.Base, &t.Amounts.Tax, &t.Amounts.Fee, &t.Amounts.Commission, &t.Amounts.Total, &t.TotalOverride, &t.Currency, &t.OccurredAt,
		&t.AccountingPosted, &t.AccountingPostedAt, &t.JournalReference, &t.IsReversed, &t.ReversedBy, &t.ReversesID,
		&t.PostingAttempts, &t.LastPostingError, &t.Metadata, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, shared.ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	t.Type = Type(txType)
	t.Status = Status(status)
	return t, nil
}

func collect(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertRow appends a new transaction log row. A duplicate (type, correlation key)
// yields ErrDuplicateEvent.
func InsertRow(ctx context.Context, q db.Querier, t Transaction) (Transaction, error) {
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}
	row := q.QueryRow(ctx, `INSERT INTO transaction_logs (transaction_number, transaction_type, status, agent_id, booking_ref, correlation_key,
base_amount, tax_amount, fee_amount, commission_amount, total_amount, total_override, currency, occurred_at, reverses_id, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING `+selectColumns,
		t.Number, string(t.Type), string(t.Status), t.AgentID, t.BookingRef, t.CorrelationKey,
		t.Amounts.Base, t.Amounts.Tax, t.Amounts.Fee, t.Amounts.Commission, t.Amounts.Total, t.TotalOverride, t.Currency, t.OccurredAt, t.ReversesID, t.Metadata)
	created, err := scanTransaction(row)
	if err != nil {
		if db.IsUniqueViolation(err, correlationConstraint) {
			return Transaction{}, fmt.Errorf("%w: %s %s", shared.ErrDuplicateEvent, t.Type, t.CorrelationKey)
		}
		return Transaction{}, err
	}
	return created, nil
}

// SelectForUpdate locks one row for the rest of the enclosing transaction.
func SelectForUpdate(ctx context.Context, q db.Querier, id int64) (Transaction, error) {
	return scanTransaction(q.QueryRow(ctx, `SELECT `+selectColumns+` FROM transaction_logs WHERE id=$1 FOR UPDATE`, id))
}

// MarkPosted flips accounting_posted once. It reports false when another
// writer already posted the row.
func MarkPosted(ctx context.Context, q db.Querier, id int64, reference string, at time.Time) (bool, error) {
	cmd, err := q.Exec(ctx, `UPDATE transaction_logs SET accounting_posted=TRUE, accounting_posted_at=$2, journal_reference=$3, last_posting_error='', updated_at=NOW()
WHERE id=$1 AND accounting_posted=FALSE`, id, at, reference)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// MarkReversed links an original row to its reversal. Fails with ErrAlreadyReversed
// if the original already points at a reversal.
func MarkReversed(ctx context.Context, q db.Querier, originalID, reversalID int64) error {
	cmd, err := q.Exec(ctx, `UPDATE transaction_logs SET is_reversed=TRUE, reversed_by=$2, updated_at=NOW()
WHERE id=$1 AND is_reversed=FALSE`, originalID, reversalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: transaction %d", shared.ErrAlreadyReversed, originalID)
	}
	return nil
}

// UpdateStatusRow sets the lifecycle status of one row.
func UpdateStatusRow(ctx context.Context, q db.Querier, id int64, status Status) error {
	cmd, err := q.Exec(ctx, `UPDATE transaction_logs SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrTransactionNotFound
	}
	return nil
}

// SelectPosted lists an agent's rows posted in [from, to).
func SelectPosted(ctx context.Context, q db.Querier, agentID int64, from, to time.Time) ([]Transaction, error) {
	rows, err := q.Query(ctx, `SELECT `+selectColumns+` FROM transaction_logs
WHERE agent_id=$1 AND accounting_posted=TRUE AND accounting_posted_at >= $2 AND accounting_posted_at < $3
ORDER BY accounting_posted_at, id`, agentID, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// SelectActiveAgents lists agents with posted rows in [from, to).
func SelectActiveAgents(ctx context.Context, q db.Querier, from, to time.Time) ([]int64, error) {
	rows, err := q.Query(ctx, `SELECT DISTINCT agent_id FROM transaction_logs
WHERE accounting_posted=TRUE AND accounting_posted_at >= $1 AND accounting_posted_at < $2 ORDER BY agent_id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL transaction log repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("transactions repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) Insert(ctx context.Context, t Transaction) (Transaction, error) {
	return InsertRow(ctx, r.tx, t)
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Transaction, error) {
	return SelectForUpdate(ctx, r.tx, id)
}

func (r *txRepository) MarkReversed(ctx context.Context, originalID, reversalID int64) error {
	return MarkReversed(ctx, r.tx, originalID, reversalID)
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	return UpdateStatusRow(ctx, r.tx, id, status)
}

func (r *txRepository) AppendAudit(ctx context.Context, entry audit.Entry) error {
	_, err := audit.Insert(ctx, r.tx, entry)
	return err
}

func (r *repository) Get(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM transaction_logs WHERE id=$1`, id))
}

func (r *repository) GetByCorrelation(ctx context.Context, t Type, key string) (Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM transaction_logs WHERE transaction_type=$1 AND correlation_key=$2`, string(t), key))
}

func (r *repository) List(ctx context.Context, filter Filter) ([]Transaction, error) {
	var (
		sb    strings.Builder
		args  []any
		conds []string
	)
	if filter.AgentID != 0 {
		args = append(args, filter.AgentID)
		conds = append(conds, fmt.Sprintf("agent_id=$%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("occurred_at < $%d", len(args)))
	}
	if filter.Posted != nil {
		args = append(args, *filter.Posted)
		conds = append(conds, fmt.Sprintf("accounting_posted=$%d", len(args)))
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		conds = append(conds, fmt.Sprintf("transaction_type = ANY($%d)", len(args)))
	}
	sb.WriteString(`SELECT ` + selectColumns + ` FROM transaction_logs`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY occurred_at, id")
	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repository) Totals(ctx context.Context, agentID int64) (AgentTotals, error) {
	totals := AgentTotals{Posted: map[Type]TypeTotals{}, Reversed: map[Type]TypeTotals{}}
	rows, err := r.pool.Query(ctx, `SELECT t.transaction_type, t.accounting_posted,
t.is_reversed AND COALESCE(rev.accounting_posted, FALSE) AS reversal_posted, COUNT(*),
COALESCE(SUM(CASE WHEN t.transaction_type IN ('commission_earned','commission_paid') AND t.commission_amount > 0 THEN t.commission_amount ELSE t.total_amount END), 0),
MAX(t.occurred_at)
FROM transaction_logs t
LEFT JOIN transaction_logs rev ON rev.id = t.reversed_by
WHERE t.agent_id=$1 AND t.status <> 'failed'
GROUP BY 1, 2, 3`, agentID)
	if err != nil {
		return AgentTotals{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			txType           string
			posted, reversed bool
			count            int
			sum              decimal.Decimal
			last             time.Time
		)
		if err := rows.Scan(&txType, &posted, &reversed, &count, &sum, &last); err != nil {
			return AgentTotals{}, err
		}
		if totals.LastOccurredAt == nil || last.After(*totals.LastOccurredAt) {
			l := last
			totals.LastOccurredAt = &l
		}
		switch {
		case !posted:
			totals.PendingCount += count
			totals.PendingTotal = totals.PendingTotal.Add(sum)
		case reversed:
			totals.Reversed[Type(txType)] = addTotals(totals.Reversed[Type(txType)], count, sum)
		default:
			totals.Posted[Type(txType)] = addTotals(totals.Posted[Type(txType)], count, sum)
		}
	}
	return totals, rows.Err()
}

func addTotals(t TypeTotals, count int, sum decimal.Decimal) TypeTotals {
	t.Count += count
	t.Total = t.Total.Add(sum)
	return t
}

func (r *repository) ListUnposted(ctx context.Context, maxAttempts, limit int) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM transaction_logs
WHERE accounting_posted=FALSE AND status='completed' AND posting_attempts < $1
ORDER BY id LIMIT $2`, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repository) ListExceptions(ctx context.Context, maxAttempts, offset, limit int) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM transaction_logs
WHERE accounting_posted=FALSE AND (status='failed' OR posting_attempts >= $1)
ORDER BY updated_at DESC, id DESC LIMIT $2 OFFSET $3`, maxAttempts, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repository) RecordPostingFailure(ctx context.Context, id int64, message string, permanent bool) (Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `UPDATE transaction_logs SET posting_attempts=posting_attempts+1, last_posting_error=$2,
status=CASE WHEN $3::boolean THEN 'failed' ELSE status END, updated_at=NOW()
WHERE id=$1 AND accounting_posted=FALSE RETURNING `+selectColumns, id, message, permanent))
}
