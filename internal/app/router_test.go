package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpay/rpay-insights/internal/backend"
	"github.com/rpay/rpay-insights/internal/dashboard"
	dashboardhttp "github.com/rpay/rpay-insights/internal/dashboard/http"
	"github.com/rpay/rpay-insights/internal/navigation"
	"github.com/rpay/rpay-insights/internal/observability"
	"github.com/rpay/rpay-insights/jobs"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"metric":"agents","value":1}`))
	}))
	t.Cleanup(upstream.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second}
	metrics := observability.NewMetrics()
	client := backend.NewClient(upstream.URL, time.Second).WithObserver(metrics)
	svc := dashboard.NewService(client, nil, logger, dashboard.Config{})
	handler := dashboardhttp.NewHandler(logger, svc, navigation.NewNavigator(navigation.NewMemoryStore(), logger), time.Second)

	return NewRouter(RouterParams{
		Logger:           logger,
		Config:           cfg,
		DashboardHandler: handler,
		JobHandler:       jobs.NewHandler(nil, nil, logger),
		Metrics:          metrics,
	})
}

func TestRouterHealthAndHeaders(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Set-Cookie"))
}

func TestRouterMountsAPIAndMetrics(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connected":true`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rpay_insights_backend_requests_total{endpoint="/agents/count",outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), `rpay_insights_http_requests_total{code="200",route="/api/status"} 1`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queue":"default"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestTimeoutExtendsExports(t *testing.T) {
	var remaining time.Duration
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		require.True(t, ok)
		remaining = time.Until(deadline)
	})
	handler := requestTimeout(time.Second, time.Hour)(next)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/agents/a1/export", nil))
	assert.Greater(t, remaining, 50*time.Minute)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/agents/a1/dashboard", nil))
	assert.LessOrEqual(t, remaining, time.Second)
}
