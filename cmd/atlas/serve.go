package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/accounts"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/internal/app"
	audithttp "github.com/atlas-travel/atlas-ledger/internal/audit/http"
	"github.com/atlas-travel/atlas-ledger/internal/balance"
	"github.com/atlas-travel/atlas-ledger/internal/integration"
	"github.com/atlas-travel/atlas-ledger/internal/observability"
	"github.com/atlas-travel/atlas-ledger/internal/platform/cache"
	"github.com/atlas-travel/atlas-ledger/internal/platform/db"
	"github.com/atlas-travel/atlas-ledger/internal/platform/events"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
	"github.com/atlas-travel/atlas-ledger/internal/reports"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
	"github.com/atlas-travel/atlas-ledger/jobs"
)

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			return err
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxLifetime})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var publisher posting.Publisher
	if cfg.PublishesEvents() {
		nc, js, err := events.Connect(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		if err := events.EnsureStreams(ctx, js, logger); err != nil {
			return err
		}
		publisher = events.NewPublisher(js)
	}

	redisOpts := cfg.QueueRedis()
	jobsClient := jobs.NewClient(redisOpts, logger)
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		_ = inspector.Close()
	}()

	metrics := observability.NewMetrics()
	services := app.NewServices(app.ServiceDeps{
		Pool:       pool,
		Redis:      redisClient,
		Config:     cfg,
		Logger:     logger,
		Registerer: metrics.Registerer(),
		Publisher:  publisher,
		Retries:    jobsClient,
	})
	if err := services.SeedChart(ctx, logger); err != nil {
		return err
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Metrics:         metrics,
		EventHandler:    integration.NewHandler(logger, services.Hooks),
		BalanceHandler:  balance.NewHandler(logger, services.Balance),
		ReportHandler:   reports.NewHandler(logger, services.Reports),
		RollupHandler:   rollups.NewHandler(logger, services.Rollups),
		PostingHandler:  posting.NewHandler(logger, services.Posting, services.Transactions),
		JournalHandler:  journals.NewHandler(logger, services.Journals),
		AccountsHandler: accounts.NewHandler(logger, services.Accounts),
		AuditHandler:    audithttp.NewHandler(logger, services.Audit),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Readiness: map[string]app.Pinger{
			"postgres": app.PingFunc(pool.Ping),
			"redis": app.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("http server stopped")
	return nil
}
