package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/accounts"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/audit"
	"github.com/atlas-travel/atlas-ledger/internal/balance"
	"github.com/atlas-travel/atlas-ledger/internal/integration"
	"github.com/atlas-travel/atlas-ledger/internal/platform/cache"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
	"github.com/atlas-travel/atlas-ledger/internal/reports"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// Services is the wired accounting core shared by the API and the worker.
type Services struct {
	Transactions *transactions.Service
	Posting      *posting.Service
	Accounts     *accounts.Service
	Journals     *journals.Service
	Rollups      *rollups.Service
	Balance      *balance.Service
	Reports      *reports.Service
	Audit        *audit.Service
	Hooks        *integration.Hooks
	ReportCache  *reports.Cache
}

// ServiceDeps are the infrastructure handles the core is built on. Publisher
// and Retries may be nil.
type ServiceDeps struct {
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Config     *Config
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	Publisher  posting.Publisher
	Retries    integration.RetryScheduler
}

// NewServices wires every repository and service.
func NewServices(deps ServiceDeps) *Services {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &Config{MaxPostingAttempts: posting.DefaultMaxAttempts}
	}

	txnRepo := transactions.NewRepository(deps.Pool)
	ledgerRepo := agentledger.NewRepository(deps.Pool)
	agents := balance.NewAgentDirectory(deps.Pool)
	reportCache := reports.NewCache(cache.NewVersioned(deps.Redis, cfg.ReportCacheTTL))

	notifiers := posting.Notifiers{posting.InvalidatingNotifier(reportCache)}
	if deps.Publisher != nil {
		notifiers = append(notifiers, posting.PublishingNotifier(deps.Publisher))
	}

	txnSvc := transactions.NewService(txnRepo, logger).WithInvalidator(reportCache)
	postingSvc := posting.NewService(posting.NewRepository(deps.Pool), logger).
		WithNotifier(notifiers).
		WithInvalidator(reportCache).
		WithMetrics(posting.NewMetrics(deps.Registerer)).
		WithMaxAttempts(cfg.MaxPostingAttempts)
	rollupSvc := rollups.NewService(rollups.NewRepository(deps.Pool), logger).WithInvalidator(reportCache)

	return &Services{
		Transactions: txnSvc,
		Posting:      postingSvc,
		Accounts:     accounts.NewService(accounts.NewRepository(deps.Pool)),
		Journals:     journals.NewService(journals.NewRepository(deps.Pool), logger),
		Rollups:      rollupSvc,
		Balance:      balance.NewService(agents, txnRepo, ledgerRepo),
		Reports:      reports.NewService(agents, rollupSvc, txnRepo, ledgerRepo, reportCache, logger),
		Audit:        audit.NewService(audit.NewRepository(deps.Pool)),
		Hooks:        integration.NewHooks(txnSvc, postingSvc, deps.Retries, logger),
		ReportCache:  reportCache,
	}
}

// SeedChart makes sure the default chart of accounts exists.
func (s *Services) SeedChart(ctx context.Context, logger *slog.Logger) error {
	inserted, err := s.Accounts.EnsureSeeded(ctx)
	if err != nil {
		return fmt.Errorf("seed chart of accounts: %w", err)
	}
	if inserted > 0 && logger != nil {
		logger.Info("seeded chart of accounts", slog.Int("accounts", inserted))
	}
	return nil
}
