package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/platform/db"
)

// Repository persists chart of accounts rows. There is deliberately no way to
// update an account's type or normal balance.
type Repository interface {
	List(ctx context.Context) ([]Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	Insert(ctx context.Context, acc Account) (Account, error)
	SetActive(ctx context.Context, code string, active bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context) ([]Account, error) {
	return SelectAll(ctx, r.pool)
}

// SelectAll loads every account ordered by code.
func SelectAll(ctx context.Context, q db.Querier) ([]Account, error) {
	rows, err := q.Query(ctx, `SELECT id, code, name, type, normal_balance, is_active, created_at, updated_at FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) GetByCode(ctx context.Context, code string) (Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, type, normal_balance, is_active, created_at, updated_at FROM accounts WHERE code=$1`, code).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) Insert(ctx context.Context, acc Account) (Account, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO accounts (code, name, type, normal_balance, is_active)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at, updated_at`, acc.Code, acc.Name, acc.Type, acc.NormalBalance, acc.IsActive).
		Scan(&acc.ID, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	return acc, nil
}

func (r *repository) SetActive(ctx context.Context, code string, active bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE accounts SET is_active=$2, updated_at=NOW() WHERE code=$1`, code, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}
