package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/internal/app"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
	"github.com/odyssey-erp/odyssey-stock/internal/ledger"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/jobs"
)

func main() {
	trigger := flag.String("trigger", "", "enqueue a job by name (stock:reconcile, ledger:verify, idempotency:cleanup) and exit")
	flag.Parse()

	if err := app.LoadEnvFile(); err != nil {
		slog.Default().Error("load env file", slog.Any("error", err))
		os.Exit(1)
	}
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
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	if *trigger != "" {
		if err := enqueue(ctx, redisOpts, *trigger, logger); err != nil {
			logger.Error("trigger job", slog.String("job", *trigger), slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	// no statement timeout: integrity scans read whole tables
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{
		LockTimeout: cfg.PGLockTimeout,
		MaxConns:    4,
	})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	locker := cache.NewLocker(redisClient)
	metrics := jobmetrics.NewMetrics(nil)

	reconcileJob := jobs.NewStockReconcileJob(inventory.NewRepository(pool), locker, logger, metrics)
	verifyJob := jobs.NewLedgerVerifyJob(ledger.NewRepository(pool), locker, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), locker, logger, metrics)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetentionHrs)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskLedgerVerify, Handler: verifyJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.JobsReconcileCron, Task: jobs.NewStockReconcileTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.JobsLedgerVerifyCron, Task: jobs.NewLedgerVerifyTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.JobsIdempotencyCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func enqueue(ctx context.Context, opts asynq.RedisClientOpt, name string, logger *slog.Logger) error {
	client := jobs.NewClient(opts)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("client close", slog.Any("error", err))
		}
	}()
	info, err := client.Trigger(ctx, name)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", name, err)
	}
	logger.Info("job enqueued", slog.String("job", name), slog.String("id", info.ID), slog.String("queue", info.Queue))
	return nil
}
