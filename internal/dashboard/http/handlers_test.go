package dashboardhttp

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpay/rpay-insights/internal/backend"
	"github.com/rpay/rpay-insights/internal/dashboard"
	"github.com/rpay/rpay-insights/internal/navigation"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/agents/count":
			_, _ = w.Write([]byte(`{"metric":"agents","value":2}`))
		case "/agents/list":
			_, _ = w.Write([]byte(`[{"id":"a1","name":"Ama"},{"id":"a2","name":"Kofi"}]`))
		case "/merchants/list":
			_, _ = w.Write([]byte(`{"data":[{"merchant_id":"m1","merchant_name":"Alpha"},{"merchant_id":"m2","merchant_name":"Beta"}]}`))
		case "/agents/a1/stats":
			_, _ = w.Write([]byte(`[{"metric":"total_volume","value":100}]`))
		case "/agents/a1/transaction-volume":
			_, _ = w.Write([]byte(`{"data":{"labels":["Jan","Feb"],"values":[1,2]}}`))
		case "/agents/a1/top-customers":
			_, _ = w.Write([]byte(`{"data":[{"customer":"C1","amount":5},{"customer":"C2","amount":50},{"customer":"C3","amount":20}]}`))
		case "/merchants/m1/branch-activity-heatmap":
			_, _ = w.Write([]byte(`{"periods":["2024-01"],"transaction_volume":[{"branch":"b1","branch_name":"Osu","2024-01":10}],"transaction_count":[],"average_transaction_value":[]}`))
		case "/agents/a1/nl-filter-sql":
			_, _ = w.Write([]byte(`{"type":"text","text":"Ama handled 12 transactions"}`))
		case "/agents/a1/nl-filter-merchants":
			_, _ = w.Write([]byte(`{"data":[{"merchant":"Alpha","score":0.9}]}`))
		case "/agents/a1/export":
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="agent_a1_2024.csv"`)
			_, _ = w.Write([]byte("id,amount\n1,20\n"))
		case "/agents/a2/export":
			http.Error(w, "no data", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T, baseURL string) (http.Handler, *Handler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := dashboard.NewService(backend.NewClient(baseURL, time.Second), nil, logger, dashboard.Config{})
	nav := navigation.NewNavigator(navigation.NewMemoryStore(), logger)
	h := NewHandler(logger, svc, nav, time.Second)
	h.WithNow(func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) })

	r := chi.NewRouter()
	r.Use(ClientID(false))
	r.Route("/api", h.MountRoutes)
	return r, h
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(ClientHeader, "client-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), target), rec.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, fakeBackend(t).URL)
	rec := do(t, router, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status dashboard.ConnectionStatus
	decode(t, rec, &status)
	assert.True(t, status.Connected)

	srv := fakeBackend(t)
	srv.Close()
	router, _ = newTestRouter(t, srv.URL)
	rec = do(t, router, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	decode(t, rec, &status)
	assert.Equal(t, dashboard.MessageUnavailable, status.Message)
}

func TestFilterEdits(t *testing.T) {
	router, _ := newTestRouter(t, fakeBackend(t).URL)

	rec := do(t, router, http.MethodPost, "/api/filters", `{"filters":{"range_days":7,"channel":"POS"},"key":"year","value":2024}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp filterResponse
	decode(t, rec, &resp)
	assert.Nil(t, resp.Filters.RangeDays)
	require.NotNil(t, resp.Filters.Year)
	assert.Equal(t, 2024, *resp.Filters.Year)
	assert.Equal(t, "Year 2024, Channel: POS", resp.Description)
	assert.Equal(t, "year=2024&channel=POS", resp.Query)

	rec = do(t, router, http.MethodPost, "/api/filters", `{"filters":{"year":2024},"op":"this_month"}`)
	decode(t, rec, &resp)
	assert.Equal(t, "March 2024", resp.Description)

	rec = do(t, router, http.MethodPost, "/api/filters", `{"filters":{"year":2024,"month":3},"op":"clear","key":"month"}`)
	decode(t, rec, &resp)
	assert.Equal(t, "year=2024", resp.Query)

	rec = do(t, router, http.MethodPost, "/api/filters", `{"filters":{"year":2024},"key":"month","value":13}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/filters", `{"filters":{},"key":"quarter","value":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, fakeBackend(t).URL)
	rec := do(t, router, http.MethodGet, "/api/agents/a1/dashboard?year=2024&month=3", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var dash dashboard.Dashboard
	decode(t, rec, &dash)
	assert.Equal(t, "March 2024", dash.Description)
	stats, ok := dash.Panel("stats")
	require.True(t, ok)
	assert.Equal(t, dashboard.StateOK, stats.State)
	count, _ := dash.Panel("transaction-count")
	assert.Equal(t, dashboard.StateError, count.State)

	rec = do(t, router, http.MethodGet, "/api/agents/a1/dashboard?month=march", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/agents/a1/dashboard?granularity=hourly", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/planets/p1/dashboard", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTableSortAndPage(t *testing.T) {
	router, _ := newTestRouter(t, fakeBackend(t).URL)
	rec := do(t, router, http.MethodGet, "/api/agents/a1/table/top-customers?sort_by=amount&sort_order=desc&page_size=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp tableResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "C2", resp.Rows[0]["customer"])
	assert.Equal(t, "C3", resp.Rows[1]["customer"])
	assert.Equal(t, 2, resp.Pagination.TotalPages)

	rec = do(t, router, http.MethodGet, "/api/agents/a1/table/top-customers?sort_by=amount&sort_order=asc&format=csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "customer,amount\nC1,5\nC3,20\nC2,50\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "agents_a1_top-customers.csv")
}

func TestSeriesEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, fakeBackend(t).URL)
	rec := do(t, router, http.MethodGet, "/api/agents/a1/series/transaction-volume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"label":"Feb"`)

	rec = do(t, router, http.MethodGet, "/api/agents/a1/series/passwords", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHeatmapEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, fakeBackend(t).URL)
	rec := do(t, router, http.MethodGet, "/api/merchants/m1/heatmap?theme=dark", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"label":"Osu"`)
	assert.Contains(t, rec.Body.String(), "Showing 1-1 of 1 branches")

	rec = do(t, router, http.MethodGet, "/api/merchants/m1/heatmap.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Key,Label,2024-01\nb1,Osu,10\n", rec.Body.String())
}

func TestAssistantAndDiscover(t *testing.T) {
	router, _ := newTestRouter(t, fakeBackend(t).URL)
	rec := do(t, router, http.MethodPost, "/api/agents/a1/assistant", `{"query":"how many?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ama handled 12 transactions")

	rec = do(t, router, http.MethodPost, "/api/agents/a9/assistant", `{"query":"how many?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sorry I couldn")

	rec = do(t, router, http.MethodPost, "/api/agents/a1/assistant", `{"query":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/agents/a1/discover/merchants?year=2024", `{"query":"top merchants"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"merchant":"Alpha"`)

	rec = do(t, router, http.MethodPost, "/api/merchants/m1/discover/merchants", `{"query":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportProxy(t *testing.T) {
	router, h := newTestRouter(t, fakeBackend(t).URL)
	rec := do(t, router, http.MethodGet, "/api/agents/a1/export?year=2024", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "id,amount\n1,20\n", rec.Body.String())
	assert.Equal(t, `attachment; filename="agent_a1_2024.csv"`, rec.Header().Get("Content-Disposition"))

	rec = do(t, router, http.MethodGet, "/api/agents/a2/export", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/export/status?agent=a2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"label":"Error"`)

	rec = do(t, router, http.MethodGet, "/api/export/status?agent=a1", "")
	assert.Contains(t, rec.Body.String(), `"label":"Download"`)
	assert.Equal(t, 1, h.exports.Len())

	for i := 0; i < 50; i++ {
		rec = do(t, router, http.MethodGet, fmt.Sprintf("/api/export/status?agent=x%d", i), "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, h.exports.Len())
}

func TestExportOutlivesRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("id,amount\n"))
		w.(http.Flusher).Flush()
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("1,20\n"))
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := dashboard.NewService(backend.NewClient(srv.URL, 50*time.Millisecond), nil, logger, dashboard.Config{})
	h := NewHandler(logger, svc, navigation.NewNavigator(navigation.NewMemoryStore(), logger), 50*time.Millisecond).
		WithExportTimeout(5 * time.Second)
	router := chi.NewRouter()
	router.Use(ClientID(false))
	router.Route("/api", h.MountRoutes)

	rec := do(t, router, http.MethodGet, "/api/agents/a1/export", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "id,amount\n1,20\n", rec.Body.String())
	assert.Zero(t, h.exports.Len())
}

func TestSelectionFlow(t *testing.T) {
	router, _ := newTestRouter(t, fakeBackend(t).URL)

	rec := do(t, router, http.MethodPut, "/api/selection/team", `{"team":"RPAY Merchant"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp selectionResponse
	decode(t, rec, &resp)
	assert.Equal(t, navigation.TeamMerchant, resp.State.Team)
	assert.Equal(t, "m1", resp.State.Entity)
	assert.Equal(t, "/merchants/m1", resp.URL)
	assert.False(t, resp.ShowBack)

	rec = do(t, router, http.MethodPut, "/api/selection/entity", `{"state":{"team":"merchant","entity":"m1"},"id":"m2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, "m2", resp.State.Entity)

	rec = do(t, router, http.MethodGet, "/api/selection", "")
	decode(t, rec, &resp)
	assert.Equal(t, navigation.TeamMerchant, resp.State.Team)
	assert.Equal(t, "m2", resp.State.Entity)

	rec = do(t, router, http.MethodPost, "/api/selection/drill", `{"state":{"team":"merchant","entity":"m2","context":"direct"},"drill":{"team":"branch","id":"b3","from_parent":true}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, navigation.Hierarchical, resp.State.Context)
	assert.Equal(t, "/branches/b3", resp.URL)
	assert.True(t, resp.ShowBack)

	rec = do(t, router, http.MethodPut, "/api/selection/team", `{"team":"finance"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectionReplacesRemovedEntity(t *testing.T) {
	var removed atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/merchants/list" {
			http.NotFound(w, r)
			return
		}
		if removed.Load() {
			_, _ = w.Write([]byte(`{"data":[{"merchant_id":"m2","merchant_name":"Beta"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"merchant_id":"m-old","merchant_name":"Gone"},{"merchant_id":"m2","merchant_name":"Beta"}]}`))
	}))
	t.Cleanup(srv.Close)
	router, _ := newTestRouter(t, srv.URL)

	rec := do(t, router, http.MethodPut, "/api/selection/team", `{"team":"merchant"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp selectionResponse
	decode(t, rec, &resp)
	require.Equal(t, "m-old", resp.State.Entity)

	removed.Store(true)
	rec = do(t, router, http.MethodGet, "/api/selection", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &resp)
	assert.Equal(t, navigation.TeamMerchant, resp.State.Team)
	assert.Equal(t, "m2", resp.State.Entity)
	assert.Equal(t, "/merchants/m2", resp.URL)
}

func TestClientIDCookie(t *testing.T) {
	router, _ := newTestRouter(t, fakeBackend(t).URL)
	req := httptest.NewRequest(http.MethodGet, "/api/selection", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, ClientCookie, cookies[0].Name)
	assert.Len(t, cookies[0].Value, 36)

	req = httptest.NewRequest(http.MethodGet, "/api/selection", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Result().Cookies())
}

func TestValidClientID(t *testing.T) {
	assert.Equal(t, "abc-123_X", validClientID(" abc-123_X "))
	assert.Empty(t, validClientID("a b"))
	assert.Empty(t, validClientID(strings.Repeat("a", 65)))
}
