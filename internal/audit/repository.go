package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-travel/atlas-ledger/internal/platform/db"
)

// Insert appends entry using q, which may be a pool or an open posting transaction.
func Insert(ctx context.Context, q db.Querier, entry Entry) (Entry, error) {
	err := q.QueryRow(ctx, `INSERT INTO transaction_audit_logs (transaction_id, action, state_before, state_after, actor, ip_address, user_agent, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		entry.TransactionID, string(entry.Action), nullJSON(entry.StateBefore), nullJSON(entry.StateAfter),
		entry.Actor, entry.IPAddress, entry.UserAgent, entry.OccurredAt).Scan(&entry.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: insert: %w", err)
	}
	return entry, nil
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL backed audit repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Append(ctx context.Context, entry Entry) (Entry, error) {
	return Insert(ctx, r.pool, entry)
}

func (r *pgRepository) Window(ctx context.Context, params WindowParams) ([]Entry, error) {
	var (
		sb   strings.Builder
		args = []any{params.TransactionID}
	)
	sb.WriteString(`SELECT id, transaction_id, action, state_before, state_after, actor, ip_address, user_agent, occurred_at
FROM transaction_audit_logs WHERE transaction_id=$1`)
	if params.Action != "" {
		args = append(args, string(params.Action))
		fmt.Fprintf(&sb, " AND action=$%d", len(args))
	}
	if !params.From.IsZero() {
		args = append(args, params.From)
		fmt.Fprintf(&sb, " AND occurred_at >= $%d", len(args))
	}
	if !params.To.IsZero() {
		args = append(args, params.To)
		fmt.Fprintf(&sb, " AND occurred_at <= $%d", len(args))
	}
	sb.WriteString(" ORDER BY id")
	if params.Limit > 0 {
		args = append(args, params.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e             Entry
			action        string
			before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &action, &before, &after, &e.Actor, &e.IPAddress, &e.UserAgent, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		e.StateBefore = before
		e.StateAfter = after
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
