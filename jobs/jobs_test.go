package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpay/rpay-insights/internal/backend"
	"github.com/rpay/rpay-insights/internal/dashboard"
	jobmetrics "github.com/rpay/rpay-insights/internal/jobs"
)

type fakeLoader struct {
	mu       sync.Mutex
	entities map[backend.Kind][]backend.Entity
	listErr  error
	requests []dashboard.Request
}

func (f *fakeLoader) Entities(ctx context.Context, kind backend.Kind) ([]backend.Entity, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.entities[kind], nil
}

func (f *fakeLoader) Load(ctx context.Context, req dashboard.Request) dashboard.Dashboard {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return dashboard.Dashboard{
		Kind: req.Kind,
		ID:   req.ID,
		Panels: []dashboard.Panel{
			{Name: "stats", State: dashboard.StateOK},
			{Name: "heatmap", State: dashboard.StateEmpty},
		},
	}
}

func newMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func warmupTask(t *testing.T, payload CacheWarmupPayload) *asynq.Task {
	t.Helper()
	task, err := NewCacheWarmupTask(payload)
	require.NoError(t, err)
	return task
}

func TestCacheWarmupLoadsPresetsPerEntity(t *testing.T) {
	loader := &fakeLoader{entities: map[backend.Kind][]backend.Entity{
		backend.KindAgents: {{ID: "a1"}, {ID: "a2"}, {ID: "a3"}},
	}}
	job := NewCacheWarmupJob(loader, nil, newMetrics())
	job.clock = func() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) }

	err := job.Handle(context.Background(), warmupTask(t, CacheWarmupPayload{
		Kinds:   []string{"agents"},
		Presets: []string{PresetAllTime, PresetThisMonth},
		Limit:   2,
	}))
	require.NoError(t, err)

	require.Len(t, loader.requests, 4)
	assert.Equal(t, "a1", loader.requests[0].ID)
	assert.True(t, loader.requests[0].Filters.IsEmpty())
	month := loader.requests[1].Filters
	require.NotNil(t, month.Year)
	require.NotNil(t, month.Month)
	assert.Equal(t, 2024, *month.Year)
	assert.Equal(t, 3, *month.Month)
	assert.Equal(t, "a2", loader.requests[3].ID)
}

func TestCacheWarmupDefaultsToListableKinds(t *testing.T) {
	loader := &fakeLoader{entities: map[backend.Kind][]backend.Entity{
		backend.KindMerchants: {{ID: "m1"}},
	}}
	job := NewCacheWarmupJob(loader, nil, newMetrics())

	require.NoError(t, job.Handle(context.Background(), warmupTask(t, CacheWarmupPayload{})))
	require.Len(t, loader.requests, len(DefaultWarmupPresets))
	assert.Equal(t, backend.KindMerchants, loader.requests[0].Kind)
}

func TestCacheWarmupFailsWhenListingFails(t *testing.T) {
	loader := &fakeLoader{listErr: backend.ErrUnavailable}
	job := NewCacheWarmupJob(loader, nil, newMetrics())

	err := job.Handle(context.Background(), warmupTask(t, CacheWarmupPayload{Kinds: []string{"agents"}}))
	require.ErrorIs(t, err, backend.ErrUnavailable)
}

func TestCacheWarmupRejectsBadPayload(t *testing.T) {
	job := NewCacheWarmupJob(&fakeLoader{}, nil, newMetrics())

	err := job.Handle(context.Background(), asynq.NewTask(TaskCacheWarmup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), warmupTask(t, CacheWarmupPayload{Kinds: []string{"terminals"}}))
	require.ErrorIs(t, err, asynq.SkipRetry)

	_, err = NewCacheWarmupTask(CacheWarmupPayload{Presets: []string{"yesterday"}})
	require.Error(t, err)
}

type fakePruner struct {
	cutoff  time.Time
	removed int64
	err     error
}

func (f *fakePruner) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	f.cutoff = olderThan
	return f.removed, f.err
}

func TestSelectionPruneUsesMaxAge(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakePruner{removed: 7}
	job := NewSelectionPruneJob(store, nil, newMetrics())
	job.now = func() time.Time { return now }

	task, err := NewSelectionPruneTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, now.Add(-48*time.Hour), store.cutoff)

	_, err = NewSelectionPruneTask(0)
	require.Error(t, err)

	err = job.Handle(context.Background(), asynq.NewTask(TaskSelectionPrune, []byte(`{"max_age":"soon"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskSelectionPrune, []byte(`{}`))))
	assert.Equal(t, now.Add(-DefaultPruneAge), store.cutoff)
}

func TestSelectionPrunePropagatesStoreError(t *testing.T) {
	boom := errors.New("boom")
	job := NewSelectionPruneJob(&fakePruner{err: boom}, nil, newMetrics())
	task, err := NewSelectionPruneTask(time.Hour)
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

type fakeBumper struct{ calls int }

func (f *fakeBumper) Bump(ctx context.Context) (int64, error) {
	f.calls++
	return int64(f.calls + 1), nil
}

func TestCacheBump(t *testing.T) {
	cache := &fakeBumper{}
	job := NewCacheBumpJob(cache, nil, newMetrics())
	task, err := NewCacheBumpTask("backend reload")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, cache.calls)
}

func TestNewWorkerValidatesConfig(t *testing.T) {
	_, err := NewWorker(WorkerConfig{})
	require.Error(t, err)

	task, err := NewCacheBumpTask("")
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:1"},
		Handlers:  []TaskHandler{{Type: TaskCacheBump, Handler: NewCacheBumpJob(&fakeBumper{}, nil, nil).Handle}},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: task}},
	})
	require.Error(t, err)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

type fakeEnqueuer struct {
	warmup *CacheWarmupPayload
	reason string
}

func (f *fakeEnqueuer) EnqueueWarmup(ctx context.Context, payload CacheWarmupPayload) (*asynq.TaskInfo, error) {
	f.warmup = &payload
	return &asynq.TaskInfo{ID: "t1", Type: TaskCacheWarmup, Queue: QueueDefault}, nil
}

func (f *fakeEnqueuer) EnqueueBump(ctx context.Context, reason string) (*asynq.TaskInfo, error) {
	f.reason = reason
	return &asynq.TaskInfo{ID: "t2", Type: TaskCacheBump, Queue: QueueDefault}, nil
}

func newJobsRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestHandlerHealth(t *testing.T) {
	h := NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, nil, nil)
	rr := httptest.NewRecorder()
	newJobsRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, queueHealth{Queue: QueueDefault, Pending: 3, Retry: 1}, body)

	h = NewHandler(fakeInspector{err: errors.New("redis down")}, nil, nil)
	rr = httptest.NewRecorder()
	newJobsRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandlerTriggers(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newJobsRouter(NewHandler(nil, enq, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/warmup", strings.NewReader(`{"kinds":["merchants"],"limit":5}`)))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.NotNil(t, enq.warmup)
	assert.Equal(t, []string{"merchants"}, enq.warmup.Kinds)
	assert.Contains(t, rr.Body.String(), `"id":"t1"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/warmup", strings.NewReader(`{"kinds":["planets"]}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/cache/bump?reason=reload", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "reload", enq.reason)

	rr = httptest.NewRecorder()
	newJobsRouter(NewHandler(nil, nil, nil)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/cache/bump", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
