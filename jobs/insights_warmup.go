package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rpay/rpay-insights/internal/backend"
	"github.com/rpay/rpay-insights/internal/dashboard"
	"github.com/rpay/rpay-insights/internal/filters"
	jobmetrics "github.com/rpay/rpay-insights/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	defaultWarmupLimit = 20
	entityTimeout      = 20 * time.Second
)

// DashboardLoader is the part of the dashboard service the warm-up drives.
type DashboardLoader interface {
	Entities(ctx context.Context, kind backend.Kind) ([]backend.Entity, error)
	Load(ctx context.Context, req dashboard.Request) dashboard.Dashboard
}

// CacheWarmupJob loads dashboards for listed entities so their panels land in the cache.
type CacheWarmupJob struct {
	Dashboards DashboardLoader
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewCacheWarmupJob wires dependencies for the warm-up handler.
func NewCacheWarmupJob(loader DashboardLoader, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheWarmupJob {
	return &CacheWarmupJob{
		Dashboards: loader,
		Logger:     logger,
		Metrics:    metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes cache warm-up tasks. A failing panel is counted, not retried; only
// a failure to list entities fails the task.
func (j *CacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dashboards == nil {
		return errors.New("cache warmup: handler not configured")
	}
	var payload CacheWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("cache warmup: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	kinds, err := warmupKinds(payload.Kinds)
	if err != nil {
		return fmt.Errorf("cache warmup: %v: %w", err, asynq.SkipRetry)
	}
	presets := payload.Presets
	if len(presets) == 0 {
		presets = DefaultWarmupPresets
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultWarmupLimit
	}

	tracker := j.metrics().Track(TaskCacheWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting cache warmup", slog.Int("kinds", len(kinds)), slog.Any("presets", presets))

	now := j.now()
	warmed := 0
	for _, kind := range kinds {
		entities, err := j.Dashboards.Entities(ctx, kind)
		if err != nil {
			resultErr = fmt.Errorf("cache warmup: list %s: %w", kind, err)
			logger.Error("list entities", slog.String("kind", string(kind)), slog.Any("error", err))
			return resultErr
		}
		if len(entities) > limit {
			entities = entities[:limit]
		}
		for _, entity := range entities {
			if err := ctx.Err(); err != nil {
				resultErr = err
				return resultErr
			}
			for _, preset := range presets {
				j.warmEntity(ctx, kind, entity.ID, presetFilters(preset, now))
			}
			warmed++
		}
	}

	logger.Info("completed cache warmup", slog.Int("entities", warmed), slog.Duration("duration", time.Since(now)))
	return resultErr
}

func (j *CacheWarmupJob) warmEntity(ctx context.Context, kind backend.Kind, id string, f filters.DateFilters) {
	entityCtx, cancel := context.WithTimeout(ctx, entityTimeout)
	defer cancel()

	dash := j.Dashboards.Load(entityCtx, dashboard.Request{Kind: kind, ID: id, Filters: f})
	counts := make(map[dashboard.PanelState]int, 4)
	for _, panel := range dash.Panels {
		counts[panel.State]++
	}
	for state, n := range counts {
		j.metrics().AddWarmedPanels(string(kind), string(state), n)
	}
	if failed := counts[dashboard.StateError] + counts[dashboard.StateUnavailable]; failed > 0 {
		j.logger().Warn("warmup panels failed",
			slog.String("kind", string(kind)),
			slog.String("id", id),
			slog.String("filters", dash.Description),
			slog.Int("failed", failed))
	}
}

func warmupKinds(names []string) ([]backend.Kind, error) {
	if len(names) == 0 {
		out := make([]backend.Kind, 0, len(backend.Kinds))
		for _, kind := range backend.Kinds {
			if kind.HasList() {
				out = append(out, kind)
			}
		}
		return out, nil
	}
	out := make([]backend.Kind, 0, len(names))
	for _, name := range names {
		kind, err := backend.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if !kind.HasList() {
			return nil, fmt.Errorf("%s cannot be listed", kind)
		}
		out = append(out, kind)
	}
	return out, nil
}

func presetFilters(preset string, now time.Time) filters.DateFilters {
	switch preset {
	case PresetThisMonth:
		return filters.ThisMonth(filters.DateFilters{}, now)
	case PresetThisYear:
		return filters.ThisYear(filters.DateFilters{}, now)
	case PresetLast30Days:
		return filters.LastDays(filters.DateFilters{}, 30)
	}
	return filters.DateFilters{}
}

func (j *CacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCacheWarmup))
	}
	return slog.Default().With(slog.String("job", TaskCacheWarmup))
}

func (j *CacheWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CacheWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
