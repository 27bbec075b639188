package agentledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/platform/db"
	"github.com/atlas-travel/atlas-ledger/internal/shared"
)

// Repository reads ledger rows.
type Repository interface {
	Latest(ctx context.Context, agentID int64) (Entry, bool, error)
	List(ctx context.Context, agentID int64, from, to time.Time) ([]Entry, error)
	ForTransactions(ctx context.Context, ids []int64) (map[int64]Entry, error)
}

// LockAgent serialises ledger appends for one agent until the enclosing
// transaction ends.
func LockAgent(ctx context.Context, q db.Querier, agentID int64) error {
	_, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, shared.AgentLedgerLockKey(agentID))
	return err
}

// chainOrder is the order in which an agent's rows chain.
const chainOrder = `entry_date, created_at, id`

// LastBalance returns the balance_after of the agent's newest row, or zero.
func LastBalance(ctx context.Context, q db.Querier, agentID int64) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := q.QueryRow(ctx, `SELECT balance_after FROM agent_ledger WHERE agent_id=$1
ORDER BY entry_date DESC, created_at DESC, id DESC LIMIT 1`, agentID).Scan(&bal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return bal, nil
}

// Insert appends e and returns it with its id.
func Insert(ctx context.Context, q db.Querier, e Entry) (Entry, error) {
	err := q.QueryRow(ctx, `INSERT INTO agent_ledger (agent_id, transaction_id, entry_type, amount, balance_before, balance_after, entry_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`, e.AgentID, e.TransactionID, string(e.EntryType), e.Amount, e.BalanceBefore, e.BalanceAfter, e.EntryDate, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL ledger reader.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const entryColumns = `id, agent_id, transaction_id, entry_type, amount, balance_before, balance_after, entry_date, created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e   Entry
		dir string
	)
	if err := row.Scan(&e.ID, &e.AgentID, &e.TransactionID, &dir, &e.Amount, &e.BalanceBefore, &e.BalanceAfter, &e.EntryDate, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	e.EntryType = Direction(dir)
	return e, nil
}

func (r *repository) Latest(ctx context.Context, agentID int64) (Entry, bool, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM agent_ledger WHERE agent_id=$1
ORDER BY entry_date DESC, created_at DESC, id DESC LIMIT 1`, agentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return e, true, nil
}

func (r *repository) List(ctx context.Context, agentID int64, from, to time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM agent_ledger
WHERE agent_id=$1 AND ($2::date IS NULL OR entry_date >= $2) AND ($3::date IS NULL OR entry_date < $3)
ORDER BY `+chainOrder, agentID, nullDate(from), nullDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) ForTransactions(ctx context.Context, ids []int64) (map[int64]Entry, error) {
	return SelectForTransactions(ctx, r.pool, ids)
}

// SelectForTransactions returns the ledger rows of the given transactions keyed by transaction id.
func SelectForTransactions(ctx context.Context, q db.Querier, ids []int64) (map[int64]Entry, error) {
	out := make(map[int64]Entry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT `+entryColumns+` FROM agent_ledger WHERE transaction_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out[e.TransactionID] = e
	}
	return out, rows.Err()
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
