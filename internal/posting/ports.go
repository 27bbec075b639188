package posting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/accounts"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/audit"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// Repository abstracts the posting store.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (transactions.Transaction, error)
	ListUnposted(ctx context.Context, maxAttempts, limit int) ([]transactions.Transaction, error)
	RecordFailure(ctx context.Context, id int64, message string, permanent bool) (transactions.Transaction, error)
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

// TxRepository exposes every write of one posting. All calls share a single
// database transaction.
type TxRepository interface {
	LockTransaction(ctx context.Context, id int64) (transactions.Transaction, error)
	Chart(ctx context.Context) (accounts.Chart, error)
	ClaimSource(ctx context.Context, link journals.SourceLink) error
	InsertEntries(ctx context.Context, entries []journals.Entry) error
	MarkPosted(ctx context.Context, id int64, reference string, at time.Time) (bool, error)
	LockAgent(ctx context.Context, agentID int64) error
	LastBalance(ctx context.Context, agentID int64) (decimal.Decimal, error)
	AppendLedger(ctx context.Context, entry agentledger.Entry) (agentledger.Entry, error)
	DailySummary(ctx context.Context, agentID int64, date time.Time) (rollups.DailySummary, bool, error)
	SaveDailySummary(ctx context.Context, summary rollups.DailySummary) error
	MonthlyReport(ctx context.Context, agentID int64, year, month int) (rollups.MonthlyReport, bool, error)
	SaveMonthlyReport(ctx context.Context, report rollups.MonthlyReport) error
	AppendAudit(ctx context.Context, entry audit.Entry) error
}
