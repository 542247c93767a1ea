package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/rpay/rpay-insights/internal/jobs"
)

// SelectionPruner deletes persisted selections last written before a cutoff.
type SelectionPruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// SelectionPruneJob keeps the Postgres selection table from growing forever.
type SelectionPruneJob struct {
	Store   SelectionPruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewSelectionPruneJob wires the prune handler.
func NewSelectionPruneJob(store SelectionPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *SelectionPruneJob {
	return &SelectionPruneJob{Store: store, Logger: logger, Metrics: metrics, now: time.Now}
}

// Handle processes TaskSelectionPrune.
func (j *SelectionPruneJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("selection prune: handler not configured")
	}
	var payload SelectionPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("selection prune: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	maxAge := DefaultPruneAge
	if payload.MaxAge != "" {
		parsed, perr := time.ParseDuration(payload.MaxAge)
		if perr != nil || parsed <= 0 {
			return fmt.Errorf("selection prune: invalid max_age %q: %w", payload.MaxAge, asynq.SkipRetry)
		}
		maxAge = parsed
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskSelectionPrune)
	defer func() {
		err = tracker.End(err)
	}()

	cutoff := j.now().Add(-maxAge)
	removed, err := j.Store.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	metrics.AddPruned(removed)
	jobLogger(j.Logger, TaskSelectionPrune).Info("pruned selections", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	return nil
}

// CacheBumper moves the dashboard cache to a new version.
type CacheBumper interface {
	Bump(ctx context.Context) (int64, error)
}

// CacheBumpJob invalidates every cached panel, e.g. after the backend reloads data.
type CacheBumpJob struct {
	Cache   CacheBumper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheBumpJob wires the bump handler.
func NewCacheBumpJob(cache CacheBumper, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheBumpJob {
	return &CacheBumpJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle processes TaskCacheBump.
func (j *CacheBumpJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Cache == nil {
		return errors.New("cache bump: handler not configured")
	}
	var payload CacheBumpPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("cache bump: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskCacheBump)
	defer func() {
		err = tracker.End(err)
	}()

	version, err := j.Cache.Bump(ctx)
	if err != nil {
		return err
	}
	jobLogger(j.Logger, TaskCacheBump).Info("bumped cache version", slog.Int64("version", version), slog.String("reason", payload.Reason))
	return nil
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
