package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/rpay/rpay-insights/internal/app"
	"github.com/rpay/rpay-insights/internal/backend"
	"github.com/rpay/rpay-insights/internal/dashboard"
	"github.com/rpay/rpay-insights/internal/heatmap"
	jobmetrics "github.com/rpay/rpay-insights/internal/jobs"
	"github.com/rpay/rpay-insights/internal/platform/cache"
	"github.com/rpay/rpay-insights/jobs"
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
	redisOpt, err := cache.AsynqOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("job queue options", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	if err := dashboard.SetupMetrics(nil); err != nil {
		logger.Warn("dashboard metrics", slog.Any("error", err))
	}

	panelCache := dashboard.NewCache(redisClient, cfg.CacheTTL)
	client := backend.NewClient(cfg.APIBaseURL, cfg.APITimeout)
	service := dashboard.NewService(client, panelCache, logger, dashboard.Config{
		HeatmapPageSize: cfg.HeatmapPageSize,
		HeatmapScope:    heatmap.ParseScope(cfg.HeatmapScaleScope),
	})

	warmupJob := jobs.NewCacheWarmupJob(service, logger, metrics)
	bumpJob := jobs.NewCacheBumpJob(panelCache, logger, metrics)
	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskCacheWarmup, Handler: warmupJob.Handle},
		{Type: jobs.TaskCacheBump, Handler: bumpJob.Handle},
	}

	warmupTask, err := jobs.NewCacheWarmupTask(jobs.CacheWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	cron := []jobs.CronRegistration{
		{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
	}

	// Only the Postgres store needs pruning; Redis hashes expire on their own.
	if cfg.SelectionBackend == app.SelectionPostgres {
		store, closeStore, err := app.OpenPGSelectionStore(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("open selection store", slog.Any("error", err))
			os.Exit(1)
		}
		defer closeStore()
		pruneJob := jobs.NewSelectionPruneJob(store, logger, metrics)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskSelectionPrune, Handler: pruneJob.Handle})

		pruneTask, err := jobs.NewSelectionPruneTask(cfg.SelectionTTL)
		if err != nil {
			logger.Error("build prune task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.PruneCron, Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpt,
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
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
