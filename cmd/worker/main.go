package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/shiftledger/shiftledger/internal/app"
	jobmetrics "github.com/shiftledger/shiftledger/internal/jobs"
	"github.com/shiftledger/shiftledger/internal/platform/cache"
	"github.com/shiftledger/shiftledger/internal/platform/db"
	"github.com/shiftledger/shiftledger/internal/report"
	"github.com/shiftledger/shiftledger/internal/shifts"
	"github.com/shiftledger/shiftledger/jobs"
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	registry, err := shifts.NewRegistry(shifts.DefaultTypes())
	if err != nil {
		logger.Error("build shift registry", slog.Any("error", err))
		os.Exit(1)
	}

	repo := report.NewRepository(pool)
	if rates, err := repo.ShiftRates(ctx); err != nil {
		logger.Warn("load shift rates", slog.Any("error", err))
	} else {
		registry.SetRates(rates)
	}
	reportCache := report.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := report.NewService(repo, registry, reportCache, logger)

	metrics := jobmetrics.NewMetrics(nil)
	warmupJob := jobs.NewReportWarmupJob(reportService, logger, metrics)
	invalidateJob := jobs.NewReportInvalidateJob(reportService, logger, metrics)

	warmupTask, err := jobs.NewReportWarmupTask(jobs.ReportWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReportWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskReportInvalidate, Handler: invalidateJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
