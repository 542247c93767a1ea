package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpay/rpay-insights/internal/filters"
	"github.com/rpay/rpay-insights/internal/query"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveBackend(endpoint, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, endpoint+" "+outcome)
}

func TestGetForwardsParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/agents/a1/transaction-volume", r.URL.Path)
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"data":{"labels":["Jan"],"values":[5]}}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	client := NewClient(srv.URL+"/", time.Second).WithObserver(obs)
	params := query.Build(query.Options{Granularity: "monthly"}, filters.DateFilters{Year: filters.Int(2024)})

	body, err := client.Panel(context.Background(), KindAgents, "a1", "transaction-volume", params)
	require.NoError(t, err)
	assert.Contains(t, string(body), "labels")
	assert.Equal(t, "granularity=monthly&year=2024", gotQuery)
	assert.Equal(t, []string{"/agents/:id/transaction-volume ok"}, obs.calls)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no data loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Get(context.Background(), "/agents/count", nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, "/agents/count", se.Path)
	assert.Equal(t, "no data loaded", se.Body)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
	assert.False(t, errors.Is(err, ErrUnavailable))
}

func TestUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	err := NewClient(addr, time.Second).Ping(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestCancelledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(srv.URL, time.Second).Get(ctx, "/agents/list", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrUnavailable))
}

func TestListDecodesEntityShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/merchants/list":
			_, _ = w.Write([]byte(`[{"merchant_id":"m1","merchant_name":"Kofi Stores"},{"merchant_id":"m2"}]`))
		case "/branch-admins/list":
			_, _ = w.Write([]byte(`{"data":[{"branch_admin_id":17,"branch_name":"Osu"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	client := NewClient(srv.URL, time.Second)

	merchants, err := client.List(context.Background(), KindMerchants)
	require.NoError(t, err)
	assert.Equal(t, []Entity{{ID: "m1", Name: "Kofi Stores"}, {ID: "m2", Name: "m2"}}, merchants)
	assert.Equal(t, []string{"m1", "m2"}, IDs(merchants))

	branches, err := client.List(context.Background(), KindBranches)
	require.NoError(t, err)
	assert.Equal(t, []Entity{{ID: "17", Name: "Osu"}}, branches)

	_, err = client.List(context.Background(), KindTerminals)
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestAskAndDiscover(t *testing.T) {
	var paths, queries, bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		raw, _ := io.ReadAll(r.Body)
		paths = append(paths, r.URL.Path)
		queries = append(queries, r.URL.RawQuery)
		bodies = append(bodies, string(raw))
		_ = json.NewEncoder(w).Encode(map[string]any{"from": "ai", "type": "text", "text": "ok"})
	}))
	defer srv.Close()
	client := NewClient(srv.URL, time.Second)

	_, err := client.Ask(context.Background(), KindMerchants, "m1", "  top branches  ")
	require.NoError(t, err)

	f := filters.DateFilters{RangeDays: filters.Int(30), Channel: filters.String(filters.ChannelPOS)}
	_, err = client.Discover(context.Background(), "a1", TargetCustomers, "big spenders", f)
	require.NoError(t, err)

	_, err = client.Discover(context.Background(), "a1", "terminals", "x", f)
	assert.ErrorIs(t, err, ErrInvalidKind)

	assert.Equal(t, []string{"/merchants/m1/nl-filter-sql", "/agents/a1/nl-filter-customers"}, paths)
	assert.Equal(t, []string{"", "range_days=30"}, queries)
	assert.JSONEq(t, `{"query":"top branches"}`, bodies[0])
}

func TestExportFilename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("year") == "2024" {
			w.Header().Set("Content-Disposition", `attachment; filename="agent-a1-2024.csv"`)
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("a,b\n1,2\n"))
	}))
	defer srv.Close()
	client := NewClient(srv.URL, time.Second)

	dl, err := client.Export(context.Background(), "a1", filters.DateFilters{Year: filters.Int(2024)})
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, "agent-a1-2024.csv", dl.Filename)
	assert.Equal(t, "text/csv", dl.ContentType)
	data, _ := io.ReadAll(dl.Body)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	plain, err := client.Export(context.Background(), "a1", filters.DateFilters{})
	require.NoError(t, err)
	defer plain.Body.Close()
	assert.Equal(t, "agent_a1_export.csv", plain.Filename)
}

func TestExportStreamsPastRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("a,b\n"))
		w.(http.Flusher).Flush()
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("1,2\n"))
	}))
	defer srv.Close()
	client := NewClient(srv.URL, 100*time.Millisecond)

	dl, err := client.Export(context.Background(), "a1", filters.DateFilters{})
	require.NoError(t, err)
	defer dl.Body.Close()
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	_, err = client.Get(context.Background(), "/agents/a1/export", nil)
	assert.Error(t, err)
}

func TestExportHeadersBoundedByTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)
	client := NewClient(srv.URL, 50*time.Millisecond)

	_, err := client.Export(context.Background(), "a1", filters.DateFilters{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFilenameFromDisposition(t *testing.T) {
	assert.Equal(t, "report.csv", FilenameFromDisposition(`attachment; filename="report.csv"`))
	assert.Equal(t, "my report.csv", FilenameFromDisposition(`attachment; filename=my report.csv`))
	assert.Equal(t, "_etc_passwd", FilenameFromDisposition(`attachment; filename="/etc/passwd"`))
	assert.Equal(t, "", FilenameFromDisposition("inline"))
}

func TestKinds(t *testing.T) {
	kind, err := ParseKind("branch-admins")
	require.NoError(t, err)
	assert.Equal(t, "terminal-activity-heatmap", kind.HeatmapEndpoint())
	assert.Equal(t, "terminals", kind.ChildrenEndpoint())
	assert.Equal(t, "", KindTerminals.HeatmapEndpoint())
	assert.True(t, IsTopEndpoint("top-branches"))
	assert.True(t, IsGraphEndpoint("average-transactions"))
	assert.True(t, IsTableEndpoint("customer-segmentation"))

	_, err = ParseKind("customers")
	assert.ErrorIs(t, err, ErrInvalidKind)

	assert.Equal(t, "/agents/:id/stats", endpointLabel("/agents/a%201/stats"))
	assert.Equal(t, "/agents/count", endpointLabel("/agents/count"))
}
