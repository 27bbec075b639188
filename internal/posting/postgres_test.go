package posting_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/platform/db"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// postgresPool connects to DATABASE_URL and applies the migrations. The test
// is skipped when the variable is unset or -short is given.
func postgresPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" || testing.Short() {
		t.Skip("DATABASE_URL not set; skipping PostgreSQL integration test")
	}
	require.NoError(t, db.Migrate(dsn, slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresConcurrentPaymentsChainUnderAdvisoryLock(t *testing.T) {
	pool := postgresPool(t)
	ctx := context.Background()
	run := uuid.NewString()[:8]

	var agent int64
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO agents (code, name, credit_limit, currency)
VALUES ($1, 'Concurrency Agent', 10000, 'USD') RETURNING id`, "IT-"+run).Scan(&agent))

	txns := transactions.NewService(transactions.NewRepository(pool), nil)
	poster := posting.NewService(posting.NewRepository(pool), nil)
	pay := func(ref, amount string) transactions.Transaction {
		row, err := txns.Record(ctx, transactions.CreateInput{
			Type:           transactions.TypePaymentReceived,
			AgentID:        agent,
			CorrelationKey: ref + "-" + run,
			Amounts:        transactions.Amounts{Base: d(amount)},
			Currency:       "USD",
		})
		require.NoError(t, err)
		return row
	}

	opening := pay("PAY-OPEN", "500.00")
	_, err := poster.Post(ctx, opening.ID)
	require.NoError(t, err)

	for round := 0; round < 5; round++ {
		a := pay(fmt.Sprintf("PAY-A%d", round), "100.00")
		b := pay(fmt.Sprintf("PAY-B%d", round), "100.00")
		start := make(chan struct{})
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, id := range []int64{a.ID, b.ID} {
			wg.Add(1)
			go func(i int, id int64) {
				defer wg.Done()
				<-start
				_, errs[i] = poster.Post(ctx, id)
			}(i, id)
		}
		close(start)
		wg.Wait()
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
	}

	ledger, err := agentledger.NewRepository(pool).List(ctx, agent, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, ledger, 11)
	require.NoError(t, agentledger.VerifyChain(decimal.Zero, ledger))
	require.True(t, d("1500.00").Equal(ledger[len(ledger)-1].BalanceAfter), "final balance %s", ledger[len(ledger)-1].BalanceAfter)
	require.True(t, d("700.00").Equal(ledger[2].BalanceAfter), "first concurrent pair ends at %s", ledger[2].BalanceAfter)
}
