package balance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-travel/atlas-ledger/internal/shared"
)

// AgentDirectory resolves agent records.
type AgentDirectory interface {
	Agent(ctx context.Context, id int64) (Agent, error)
}

// PGDirectory reads the agents table.
type PGDirectory struct {
	pool *pgxpool.Pool
}

// NewAgentDirectory constructs the PostgreSQL directory.
func NewAgentDirectory(pool *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{pool: pool}
}

// Agent loads one agent or shared.ErrAgentNotFound.
func (d *PGDirectory) Agent(ctx context.Context, id int64) (Agent, error) {
	var a Agent
	err := d.pool.QueryRow(ctx, `SELECT id, code, name, credit_limit, currency FROM agents WHERE id=$1`, id).
		Scan(&a.ID, &a.Code, &a.Name, &a.CreditLimit, &a.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, fmt.Errorf("%w: %d", shared.ErrAgentNotFound, id)
		}
		return Agent{}, err
	}
	return a, nil
}

// Upsert registers or refreshes an agent record keyed by code.
func (d *PGDirectory) Upsert(ctx context.Context, a Agent) (Agent, error) {
	err := d.pool.QueryRow(ctx, `INSERT INTO agents (code, name, credit_limit, currency) VALUES ($1,$2,$3,$4)
ON CONFLICT (code) DO UPDATE SET name=EXCLUDED.name, credit_limit=EXCLUDED.credit_limit, currency=EXCLUDED.currency, updated_at=NOW()
RETURNING id`, a.Code, a.Name, a.CreditLimit, a.Currency).Scan(&a.ID)
	if err != nil {
		return Agent{}, err
	}
	return a, nil
}
