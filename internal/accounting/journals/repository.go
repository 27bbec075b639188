package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/platform/db"
)

const sourceLinkConstraint = "uq_posting_source_links"

// ErrSourceConflict indicates the source link already exists.
var ErrSourceConflict = errors.New("accounting: source link conflict")

// Repository reads posted journal legs.
type Repository interface {
	ByReference(ctx context.Context, reference string) ([]Entry, error)
	ByTransaction(ctx context.Context, transactionID int64) ([]Entry, error)
	ReferencesBetween(ctx context.Context, from, to time.Time) ([]string, error)
}

// ClaimSource inserts the idempotency link for one posting.
func ClaimSource(ctx context.Context, q db.Querier, link SourceLink) error {
	_, err := q.Exec(ctx, `INSERT INTO posting_source_links (transaction_type, correlation_key, source_id, reference_number, transaction_id)
VALUES ($1,$2,$3,$4,$5)`, link.TransactionType, link.CorrelationKey, link.SourceID, link.ReferenceNumber, link.TransactionID)
	if err != nil {
		if db.IsUniqueViolation(err, sourceLinkConstraint) {
			return ErrSourceConflict
		}
		return err
	}
	return nil
}

// InsertEntries writes every leg of one posting.
func InsertEntries(ctx context.Context, q db.Querier, entries []Entry) error {
	for _, e := range entries {
		if _, err := q.Exec(ctx, `INSERT INTO journal_entries (reference_number, transaction_id, account_code, entry_type, amount, entry_date, description, booking_ref, ticket_number, payment_ref)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, e.ReferenceNumber, e.TransactionID, e.AccountCode, string(e.EntryType), e.Amount, e.EntryDate,
			e.Description, e.BookingRef, e.TicketNumber, e.PaymentRef); err != nil {
			return fmt.Errorf("insert journal leg %s: %w", e.AccountCode, err)
		}
	}
	return nil
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL journal reader.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const entryColumns = `id, reference_number, transaction_id, account_code, entry_type, amount, entry_date, description, booking_ref, ticket_number, payment_ref, created_at`

func (r *repository) ByReference(ctx context.Context, reference string) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE reference_number=$1 ORDER BY id`, reference)
	if err != nil {
		return nil, err
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, shared.ErrJournalNotFound
	}
	return entries, nil
}

func (r *repository) ByTransaction(ctx context.Context, transactionID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE transaction_id=$1 ORDER BY id`, transactionID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *repository) ReferencesBetween(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT reference_number FROM journal_entries WHERE created_at >= $1 AND created_at < $2 ORDER BY reference_number`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			entryType string
		)
		if err := rows.Scan(&e.ID, &e.ReferenceNumber, &e.TransactionID, &e.AccountCode, &entryType, &e.Amount, &e.EntryDate,
			&e.Description, &e.BookingRef, &e.TicketNumber, &e.PaymentRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EntryType = EntryType(entryType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
