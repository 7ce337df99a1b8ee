package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/hafsa-erp/hafsa-erp/internal/activity"
	"github.com/hafsa-erp/hafsa-erp/internal/app"
	"github.com/hafsa-erp/hafsa-erp/internal/clients"
	"github.com/hafsa-erp/hafsa-erp/internal/reports"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
	"github.com/hafsa-erp/hafsa-erp/jobs"
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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	recorder := shared.NewActivityRecorder(pool)

	clientsRepo := clients.NewRepository(pool)
	balanceCache := clients.NewBalanceCache(redisClient, cfg.BalanceCacheTTL)
	clientsService := clients.NewService(clientsRepo, balanceCache, recorder)

	activityRepo := activity.NewRepository(pool)
	activityService := activity.NewService(activityRepo, recorder)

	reportsRepo := reports.NewRepository(pool)
	reportsService := reports.NewService(reportsRepo, recorder, language.French)

	warmupJob := jobs.NewBalanceWarmupJob(clientsService, pool, logger)
	cleanupJob := jobs.NewActivityCleanupJob(activityService, cfg.ActivityRetention, logger)
	summaryJob := jobs.NewDailySummaryJob(reportsService, redisClient, logger)

	warmupTask, err := jobs.NewBalanceWarmupTask(jobs.BalanceWarmupPayload{Limit: 100, WindowDays: 30})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewActivityCleanupTask(jobs.ActivityCleanupPayload{})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	summaryTask, err := jobs.NewDailySalesSummaryTask(jobs.DailySummaryPayload{})
	if err != nil {
		logger.Error("build summary task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBalanceWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskActivityCleanup, Handler: cleanupJob.Handle},
			{Type: jobs.TaskDailySalesSummary, Handler: summaryJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 7 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 0 * * *", Task: summaryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
