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
	"github.com/redis/go-redis/v9"

	"github.com/rpay/rpay-insights/cmd/insights/cli"
	"github.com/rpay/rpay-insights/internal/app"
	"github.com/rpay/rpay-insights/internal/backend"
	"github.com/rpay/rpay-insights/internal/dashboard"
	dashboardhttp "github.com/rpay/rpay-insights/internal/dashboard/http"
	"github.com/rpay/rpay-insights/internal/heatmap"
	"github.com/rpay/rpay-insights/internal/navigation"
	"github.com/rpay/rpay-insights/internal/observability"
	"github.com/rpay/rpay-insights/internal/platform/cache"
	"github.com/rpay/rpay-insights/jobs"
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobsCommand(ctx, cfg, os.Args[2:], logger))
	}

	metrics := observability.NewMetrics()
	if err := dashboard.SetupMetrics(metrics.Registerer()); err != nil {
		logger.Warn("dashboard metrics", slog.Any("error", err))
	}

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, serving uncached", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	panelCache := dashboard.NewCache(redisClient, cfg.CacheTTL)
	go func() {
		if err := panelCache.ListenForInvalidation(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("cache invalidation listener", slog.Any("error", err))
		}
	}()

	client := backend.NewClient(cfg.APIBaseURL, cfg.APITimeout).WithObserver(metrics)
	service := dashboard.NewService(client, panelCache, logger, dashboard.Config{
		HeatmapPageSize: cfg.HeatmapPageSize,
		HeatmapScope:    heatmap.ParseScope(cfg.HeatmapScaleScope),
	})

	store, closeStore, err := app.OpenSelectionStore(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.Error("open selection store", slog.String("backend", cfg.SelectionBackend), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()
	navigator := navigation.NewNavigator(store, logger)

	dashboardHandler := dashboardhttp.NewHandler(logger, service, navigator, cfg.AppRequestTimeout).
		WithExportTimeout(cfg.AppExportTimeout)

	var jobHandler *jobs.Handler
	if redisClient != nil {
		redisOpt, err := cache.AsynqOpt(cfg.RedisAddr)
		if err != nil {
			logger.Error("job queue options", slog.Any("error", err))
			os.Exit(1)
		}
		inspector := asynq.NewInspector(redisOpt)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobsClient := jobs.NewClient(redisOpt)
		defer func() {
			if err := jobsClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, jobsClient, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DashboardHandler: dashboardHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("backend", cfg.APIBaseURL))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobsCommand serves `insights jobs ...` and returns the process exit code.
func runJobsCommand(ctx context.Context, cfg *app.Config, args []string, logger *slog.Logger) int {
	opt, err := cache.AsynqOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("job queue options", slog.Any("error", err))
		return 1
	}
	ops := cli.NewJobsCLI(opt)
	defer func() {
		if err := ops.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()
	if err := ops.Run(ctx, args, os.Stdout); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			_, _ = os.Stderr.WriteString(err.Error() + "\n")
			return 2
		}
		logger.Error("jobs command", slog.Any("error", err))
		return 1
	}
	return 0
}
