package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/moldworks-erp/moldworks-erp/internal/ap"
	"github.com/moldworks-erp/moldworks-erp/internal/app"
	"github.com/moldworks-erp/moldworks-erp/internal/ar"
	"github.com/moldworks-erp/moldworks-erp/internal/observability"
	"github.com/moldworks-erp/moldworks-erp/internal/platform/cache"
	"github.com/moldworks-erp/moldworks-erp/internal/platform/db"
	"github.com/moldworks-erp/moldworks-erp/internal/posting"
	"github.com/moldworks-erp/moldworks-erp/internal/shared"
	"github.com/moldworks-erp/moldworks-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	arCache := ar.NewAgingCache(redisClient, cfg.AgingCacheTTL)
	arRepo := ar.NewRepository(pool)
	arService := ar.NewService(arRepo, arCache)
	arHandler := ar.NewHandler(logger, arService)

	apCache := ap.NewAgingCache(redisClient, cfg.AgingCacheTTL)
	apRepo := ap.NewRepository(pool)
	apService := ap.NewService(apRepo, apCache)
	apHandler := ap.NewHandler(logger, apService)

	postingRepo := posting.NewRepository(pool)
	postingService := posting.NewService(postingRepo, auditLogger, metrics)
	postingService.WithDueDays(cfg.DefaultDueDays)
	postingService.WithAgingCaches(arCache, apCache)
	postingHandler := posting.NewHandler(logger, postingService)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		PostingHandler: postingHandler,
		ARHandler:      arHandler,
		APHandler:      apHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}
