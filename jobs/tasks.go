package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCacheWarmup resolves dashboards ahead of users so the cache is hot.
	TaskCacheWarmup = "insights:cache_warmup"
	// TaskSelectionPrune deletes navigation selections nobody touched for a while.
	TaskSelectionPrune = "insights:selection_prune"
	// TaskCacheBump invalidates every cached panel by moving the cache version.
	TaskCacheBump = "insights:cache_bump"
)

// Warm-up filter presets.
const (
	PresetAllTime    = "all_time"
	PresetThisMonth  = "this_month"
	PresetThisYear   = "this_year"
	PresetLast30Days = "last_30_days"
)

// DefaultWarmupPresets covers the filters a dashboard opens with.
var DefaultWarmupPresets = []string{PresetAllTime, PresetThisMonth}

// DefaultPruneAge matches the default selection TTL of the Redis store.
const DefaultPruneAge = 30 * 24 * time.Hour

// CacheWarmupPayload selects what the warm-up resolves. Empty fields take defaults.
type CacheWarmupPayload struct {
	Kinds   []string `json:"kinds,omitempty"`
	Presets []string `json:"presets,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// SelectionPrunePayload holds the age past which selections are removed.
type SelectionPrunePayload struct {
	MaxAge string `json:"max_age"`
}

// CacheBumpPayload records why the cache was invalidated.
type CacheBumpPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewCacheWarmupTask builds a warm-up task.
func NewCacheWarmupTask(payload CacheWarmupPayload) (*asynq.Task, error) {
	for _, preset := range payload.Presets {
		if !validPreset(preset) {
			return nil, fmt.Errorf("jobs: unknown warm-up preset %q", preset)
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheWarmup, data, asynq.Queue(QueueDefault), asynq.Timeout(10*time.Minute)), nil
}

// NewSelectionPruneTask builds a prune task for selections older than maxAge.
func NewSelectionPruneTask(maxAge time.Duration) (*asynq.Task, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("jobs: prune age must be positive, got %s", maxAge)
	}
	data, err := json.Marshal(SelectionPrunePayload{MaxAge: maxAge.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSelectionPrune, data, asynq.Queue(QueueDefault)), nil
}

// NewCacheBumpTask builds a cache invalidation task.
func NewCacheBumpTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(CacheBumpPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheBump, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

func validPreset(preset string) bool {
	switch preset {
	case PresetAllTime, PresetThisMonth, PresetThisYear, PresetLast30Days:
		return true
	}
	return false
}
