package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atlas-travel/atlas-ledger/internal/app"
	"github.com/atlas-travel/atlas-ledger/internal/integration"
	jobmetrics "github.com/atlas-travel/atlas-ledger/internal/jobs"
	"github.com/atlas-travel/atlas-ledger/internal/platform/cache"
	"github.com/atlas-travel/atlas-ledger/internal/platform/db"
	"github.com/atlas-travel/atlas-ledger/internal/platform/events"
	"github.com/atlas-travel/atlas-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
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

	redisOpts := cfg.QueueRedis()
	jobsClient := jobs.NewClient(redisOpts, logger)
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	deps := app.ServiceDeps{
		Pool:    pool,
		Redis:   redisClient,
		Config:  cfg,
		Logger:  logger,
		Retries: jobsClient,
	}

	var js jetstream.JetStream
	if cfg.PublishesEvents() {
		nc, stream, err := events.Connect(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		if err := events.EnsureStreams(ctx, stream, logger); err != nil {
			return err
		}
		js = stream
		deps.Publisher = events.NewPublisher(js)
	}
	services := app.NewServices(deps)

	if js != nil {
		subscriber := integration.NewSubscriber(services.Hooks, logger)
		if err := subscriber.Start(ctx, js, events.InboundStream); err != nil {
			return err
		}
		defer subscriber.Stop()
	}
	return runWorker(ctx, cfg, logger, redisOpts, services)
}

func runWorker(ctx context.Context, cfg *app.Config, logger *slog.Logger, redisOpts asynq.RedisClientOpt, services *app.Services) error {
	metrics := jobmetrics.NewMetrics(nil)
	retryJob := jobs.NewPostingRetryJob(services.Posting, logger, metrics)
	sweepJob := jobs.NewPostingSweepJob(services.Posting, logger, metrics)
	rebuildJob := jobs.NewSummaryRebuildJob(services.Rollups, logger, metrics)
	integrityJob := jobs.NewGLIntegrityJob(services.Journals, logger, metrics)

	sweepTask, err := jobs.NewPostingSweepTask(jobs.SweepLimit)
	if err != nil {
		return err
	}
	rebuildTask, err := jobs.NewSummaryRebuildTask(jobs.DefaultLookbackDays)
	if err != nil {
		return err
	}
	integrityTask, err := jobs.NewGLIntegrityTask(jobs.DefaultIntegrityWindowHours)
	if err != nil {
		return err
	}

	var cron []jobs.CronRegistration
	for _, reg := range []jobs.CronRegistration{
		{Spec: cfg.SweepCron, Task: sweepTask},
		{Spec: cfg.RebuildCron, Task: rebuildTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		{Spec: cfg.IntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
	} {
		if reg.Spec == "" {
			continue
		}
		cron = append(cron, reg)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPostingRetry, Handler: retryJob.Handle},
			{Type: jobs.TaskPostingSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskSummaryRebuild, Handler: rebuildJob.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		return err
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	return worker.Run(ctx)
}
