package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/moldworks-erp/moldworks-erp/internal/ap"
	"github.com/moldworks-erp/moldworks-erp/internal/app"
	"github.com/moldworks-erp/moldworks-erp/internal/ar"
	jobmetrics "github.com/moldworks-erp/moldworks-erp/internal/jobs"
	"github.com/moldworks-erp/moldworks-erp/internal/platform/cache"
	"github.com/moldworks-erp/moldworks-erp/internal/platform/db"
	"github.com/moldworks-erp/moldworks-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	arService := ar.NewService(ar.NewRepository(pool), ar.NewAgingCache(redisClient, cfg.AgingCacheTTL))
	apService := ap.NewService(ap.NewRepository(pool), ap.NewAgingCache(redisClient, cfg.AgingCacheTTL))

	agingJob := jobs.NewAgingRefreshJob(arService, apService, logger, metrics)
	sweepJob := jobs.NewEventSweepJob(pool, logger, metrics)

	agingTask, err := jobs.NewAgingRefreshTask(jobs.AgingRefreshPayload{})
	if err != nil {
		logger.Error("build aging task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask, err := jobs.NewEventSweepTask(jobs.EventSweepPayload{OlderThanHours: int(cfg.EventSweepAge.Hours())})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAgingRefresh, Handler: agingJob.Handle},
			{Type: jobs.TaskEventSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: agingTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 2 * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
