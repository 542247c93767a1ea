// Package dashboardhttp exposes the insights dashboards as a JSON API.
package dashboardhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rpay/rpay-insights/internal/backend"
	"github.com/rpay/rpay-insights/internal/dashboard"
	"github.com/rpay/rpay-insights/internal/export"
	"github.com/rpay/rpay-insights/internal/filters"
	"github.com/rpay/rpay-insights/internal/heatmap"
	"github.com/rpay/rpay-insights/internal/navigation"
	"github.com/rpay/rpay-insights/internal/normalize"
	"github.com/rpay/rpay-insights/internal/platform/httpx"
	"github.com/rpay/rpay-insights/internal/query"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultExportTimeout  = 10 * time.Minute
)

// DashboardService is the data contract used by the handler.
type DashboardService interface {
	Load(ctx context.Context, req dashboard.Request) dashboard.Dashboard
	Series(ctx context.Context, kind backend.Kind, id, metric, granularity string, f filters.DateFilters) (normalize.GraphSeries, error)
	Table(ctx context.Context, kind backend.Kind, id string, req dashboard.TableRequest) (normalize.Table, error)
	Heatmap(ctx context.Context, kind backend.Kind, id, granularity string, f filters.DateFilters, mode normalize.HeatmapMode) (normalize.HeatmapMatrix, error)
	HeatmapView(matrix normalize.HeatmapMatrix, kind backend.Kind, opts heatmap.Options) heatmap.View
	Children(ctx context.Context, kind backend.Kind, id string, page, pageSize int) (normalize.Page, error)
	Entities(ctx context.Context, kind backend.Kind) ([]backend.Entity, error)
	Count(ctx context.Context, kind backend.Kind) ([]normalize.Stat, error)
	Status(ctx context.Context) dashboard.ConnectionStatus
	Ask(ctx context.Context, kind backend.Kind, id, question string) normalize.Reply
	Discover(ctx context.Context, agentID, target, question string, f filters.DateFilters) ([]normalize.Row, error)
	Export(ctx context.Context, agentID string, f filters.DateFilters) (*backend.Download, error)
}

// Navigator persists team and entity selections.
type Navigator interface {
	Load(ctx context.Context, client string) (navigation.State, error)
	Restore(ctx context.Context, client string, state navigation.State, ids []string) (navigation.State, error)
	SwitchTeam(ctx context.Context, client string, team navigation.Team, ids []string) (navigation.State, error)
	SetAgent(ctx context.Context, client string, state navigation.State, agent string) (navigation.State, error)
	SetEntity(ctx context.Context, client string, state navigation.State, id string) (navigation.State, error)
}

// Handler serves the dashboard API.
type Handler struct {
	logger    *slog.Logger
	service   DashboardService
	navigator Navigator
	exports   *export.Tracker
	timeout   time.Duration
	// exportTimeout bounds a streamed export, which outlives ordinary requests.
	exportTimeout time.Duration
	csvPool       sync.Pool
	now       func() time.Time
}

// NewHandler constructs the dashboard HTTP handler. timeout bounds each backend-bound
// request; zero uses 30s.
func NewHandler(logger *slog.Logger, service DashboardService, navigator Navigator, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	h := &Handler{
		logger:    logger,
		service:   service,
		navigator:     navigator,
		timeout:       timeout,
		exportTimeout: defaultExportTimeout,
		now:           time.Now,
	}
	h.exports = export.NewTracker(func() time.Time { return h.now() })
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithExportTimeout sets the deadline of a streamed export. Zero keeps the default.
func (h *Handler) WithExportTimeout(d time.Duration) *Handler {
	if d > 0 {
		h.exportTimeout = d
	}
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.service.Status(r.Context())
	code := http.StatusOK
	if !status.Connected {
		code = http.StatusServiceUnavailable
	}
	httpx.JSON(w, code, status)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		h.respondError(w, "parse kind", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	entities, err := h.service.Entities(ctx, kind)
	if err != nil {
		h.respondError(w, "list entities", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"kind": kind, "data": entities})
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		h.respondError(w, "parse kind", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	stats, err := h.service.Count(ctx, kind)
	if err != nil {
		h.respondError(w, "count entities", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"kind": kind, "data": stats})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	kind, id, err := entityParams(r)
	if err != nil {
		h.respondError(w, "parse entity", err)
		return
	}
	opts, f, err := parseQuery(r)
	if err != nil {
		h.respondError(w, "parse query", err)
		return
	}
	hm, err := heatmapOptions(r)
	if err != nil {
		h.respondError(w, "parse heatmap options", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	dash := h.service.Load(ctx, dashboard.Request{
		Kind:        kind,
		ID:          id,
		Filters:     f,
		Options:     opts,
		HeatmapMode: hm.Mode,
		Heatmap:     hm,
	})
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) handleSeries(w http.ResponseWriter, r *http.Request) {
	kind, id, err := entityParams(r)
	if err != nil {
		h.respondError(w, "parse entity", err)
		return
	}
	metric := chi.URLParam(r, "metric")
	opts, f, err := parseQuery(r)
	if err != nil {
		h.respondError(w, "parse query", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	series, err := h.service.Series(ctx, kind, id, metric, opts.Granularity, f)
	if err != nil {
		h.respondError(w, "load series", err)
		return
	}
	if wantsCSV(r) {
		h.writeCSV(w, fmt.Sprintf("%s_%s_%s.csv", kind, id, metric), func(buf *bytes.Buffer) error {
			return export.WriteSeriesCSV(buf, metric, series)
		})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"metric": metric, "data": series})
}

type tableResponse struct {
	Metric     string               `json:"metric"`
	Columns    []string             `json:"columns"`
	Rows       []normalize.Row      `json:"rows"`
	Pagination normalize.Pagination `json:"pagination"`
	Sort       normalize.Sort       `json:"sort"`
}

func (h *Handler) handleTable(w http.ResponseWriter, r *http.Request) {
	kind, id, err := entityParams(r)
	if err != nil {
		h.respondError(w, "parse entity", err)
		return
	}
	metric := chi.URLParam(r, "metric")
	opts, f, err := parseQuery(r)
	if err != nil {
		h.respondError(w, "parse query", err)
		return
	}
	values := r.URL.Query()
	mode := firstNonEmpty(values.Get(query.ParamMode), opts.TopMode)
	limit := opts.TopLimit
	if raw := strings.TrimSpace(values.Get(query.ParamLimit)); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			h.respondError(w, "parse limit", fmt.Errorf("%w: limit must be an integer", httpx.ErrValidation))
			return
		}
	}
	page, err := intParam(r, "page", 1)
	if err != nil {
		h.respondError(w, "parse page", err)
		return
	}
	size, err := intParam(r, "page_size", normalize.DefaultTablePageSize)
	if err != nil {
		h.respondError(w, "parse page size", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	table, err := h.service.Table(ctx, kind, id, dashboard.TableRequest{Metric: metric, Mode: mode, Limit: limit, Filters: f})
	if err != nil {
		h.respondError(w, "load table", err)
		return
	}

	sortBy := strings.TrimSpace(values.Get("sort_by"))
	if sortBy == "" {
		sortBy = normalize.DefaultColumn(table.Columns)
	}
	order := normalize.ParseSortOrder(values.Get("sort_order"))
	sorted := normalize.SortRows(table.Rows, sortBy, order)

	if wantsCSV(r) {
		table.Rows = sorted
		h.writeCSV(w, fmt.Sprintf("%s_%s_%s.csv", kind, id, metric), func(buf *bytes.Buffer) error {
			return export.WriteTableCSV(buf, table)
		})
		return
	}
	rows, pagination := normalize.PageRows(sorted, page, size)
	httpx.JSON(w, http.StatusOK, tableResponse{
		Metric:     metric,
		Columns:    table.Columns,
		Rows:       rows,
		Pagination: pagination,
		Sort:       normalize.Sort{SortBy: sortBy, SortOrder: string(order)},
	})
}

func (h *Handler) loadHeatmap(r *http.Request) (backend.Kind, string, normalize.HeatmapMatrix, heatmap.Options, error) {
	kind, id, err := entityParams(r)
	if err != nil {
		return "", "", normalize.HeatmapMatrix{}, heatmap.Options{}, err
	}
	opts, f, err := parseQuery(r)
	if err != nil {
		return "", "", normalize.HeatmapMatrix{}, heatmap.Options{}, err
	}
	hm, err := heatmapOptions(r)
	if err != nil {
		return "", "", normalize.HeatmapMatrix{}, heatmap.Options{}, err
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	matrix, err := h.service.Heatmap(ctx, kind, id, opts.Granularity, f, hm.Mode)
	return kind, id, matrix, hm, err
}

func (h *Handler) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	kind, _, matrix, opts, err := h.loadHeatmap(r)
	if err != nil {
		h.respondError(w, "load heatmap", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.HeatmapView(matrix, kind, opts))
}

func (h *Handler) handleHeatmapCSV(w http.ResponseWriter, r *http.Request) {
	kind, id, matrix, opts, err := h.loadHeatmap(r)
	if err != nil {
		h.respondError(w, "load heatmap", err)
		return
	}
	h.writeCSV(w, fmt.Sprintf("%s_%s_heatmap_%s.csv", kind, id, opts.Mode), func(buf *bytes.Buffer) error {
		return export.WriteHeatmapCSV(buf, matrix)
	})
}

func (h *Handler) handleChildren(w http.ResponseWriter, r *http.Request) {
	kind, id, err := entityParams(r)
	if err != nil {
		h.respondError(w, "parse entity", err)
		return
	}
	page, err := intParam(r, "page", 1)
	if err != nil {
		h.respondError(w, "parse page", err)
		return
	}
	size, err := intParam(r, "page_size", 0)
	if err != nil {
		h.respondError(w, "parse page size", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	children, err := h.service.Children(ctx, kind, id, page, size)
	if err != nil {
		h.respondError(w, "load children", err)
		return
	}
	httpx.JSON(w, http.StatusOK, children)
}

type questionRequest struct {
	Query string `json:"query"`
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (string, error) {
	var body questionRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		return "", err
	}
	question := strings.TrimSpace(body.Query)
	if question == "" {
		return "", fmt.Errorf("%w: query is required", httpx.ErrValidation)
	}
	return question, nil
}

func (h *Handler) handleAssistant(w http.ResponseWriter, r *http.Request) {
	kind, id, err := entityParams(r)
	if err != nil {
		h.respondError(w, "parse entity", err)
		return
	}
	question, err := decodeQuestion(w, r)
	if err != nil {
		h.respondError(w, "decode question", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"question": normalize.UserMessage(question),
		"reply":    h.service.Ask(ctx, kind, id, question),
	})
}

func (h *Handler) handleDiscover(w http.ResponseWriter, r *http.Request) {
	kind, id, err := entityParams(r)
	if err != nil {
		h.respondError(w, "parse entity", err)
		return
	}
	if kind != backend.KindAgents {
		h.respondError(w, "discover", fmt.Errorf("%w: discovery is only available for agents", backend.ErrInvalidKind))
		return
	}
	target := chi.URLParam(r, "target")
	f, err := query.ParseFilters(r.URL.Query())
	if err != nil {
		h.respondError(w, "parse filters", err)
		return
	}
	question, err := decodeQuestion(w, r)
	if err != nil {
		h.respondError(w, "decode question", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	rows, err := h.service.Discover(ctx, id, target, question, f)
	if err != nil {
		h.respondError(w, "discover targets", err)
		return
	}
	table := normalize.TableFromRows(rows)
	httpx.JSON(w, http.StatusOK, map[string]any{"target": target, "columns": table.Columns, "data": table.Rows})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	kind, id, err := entityParams(r)
	if err != nil {
		h.respondError(w, "parse entity", err)
		return
	}
	if kind != backend.KindAgents {
		h.respondError(w, "export", fmt.Errorf("%w: export is only available for agents", backend.ErrInvalidKind))
		return
	}
	f, err := query.ParseFilters(r.URL.Query())
	if err != nil {
		h.respondError(w, "parse filters", err)
		return
	}

	client := ClientIDFromContext(r.Context())
	if !h.exports.Begin(client, id) {
		httpx.RespondError(w, fmt.Errorf("%w: an export for agent %s is already running", httpx.ErrConflict, id))
		return
	}

	deadline := time.Now().Add(h.exportTimeout)
	if err := http.NewResponseController(w).SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("extend export write deadline", slog.Any("error", err))
	}
	ctx, cancel := context.WithDeadline(r.Context(), deadline)
	defer cancel()
	download, err := h.service.Export(ctx, id, f)
	if err != nil {
		h.exports.Finish(client, id, err)
		h.respondError(w, "export", err)
		return
	}
	defer func() {
		_ = download.Body.Close()
	}()

	contentType := download.ContentType
	if contentType == "" {
		contentType = "text/csv; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	if length := download.LengthHeader(); length != "" {
		w.Header().Set("Content-Length", length)
	}
	_, err = io.Copy(w, download.Body)
	h.exports.Finish(client, id, err)
	if err != nil {
		h.logError("stream export", err)
	}
}

func (h *Handler) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	agent := strings.TrimSpace(r.URL.Query().Get("agent"))
	if agent == "" {
		httpx.RespondError(w, fmt.Errorf("%w: agent is required", httpx.ErrValidation))
		return
	}
	state := h.exports.Lookup(ClientIDFromContext(r.Context()), agent)
	httpx.JSON(w, http.StatusOK, map[string]string{
		"agent": agent,
		"state": string(state),
		"label": state.Label(),
	})
}

func (h *Handler) writeCSV(w http.ResponseWriter, filename string, write func(*bytes.Buffer) error) {
	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := write(buf); err != nil {
		h.respondError(w, "write csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

// respondError translates domain failures into problem responses.
func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var (
		statusErr *backend.StatusError
		invalid   *filters.ValidationError
	)
	switch {
	case errors.Is(err, context.Canceled):
		h.logger.Debug("request cancelled", slog.String("op", op))
		return
	case errors.Is(err, backend.ErrInvalidKind), errors.Is(err, navigation.ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.As(err, &invalid),
		errors.Is(err, filters.ErrUnknownKey),
		errors.Is(err, filters.ErrInvalidValue),
		errors.Is(err, navigation.ErrUnknownTeam),
		errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, backend.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		h.logError(op, err)
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnavailable, dashboard.MessageUnavailable))
	case errors.As(err, &statusErr):
		h.logError(op, err)
		if statusErr.Status == http.StatusNotFound {
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, statusErr.Path))
			return
		}
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUpstream, dashboard.MessageBackendError))
	default:
		h.logError(op, err)
		httpx.RespondError(w, err)
	}
}

func (h *Handler) logError(op string, err error) {
	if h.logger == nil {
		return
	}
	h.logger.Error("dashboard handler error", slog.String("op", op), slog.Any("error", err))
}

func kindParam(r *http.Request) (backend.Kind, error) {
	return backend.ParseKind(chi.URLParam(r, "kind"))
}

func entityParams(r *http.Request) (backend.Kind, string, error) {
	kind, err := kindParam(r)
	if err != nil {
		return "", "", err
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		return "", "", fmt.Errorf("%w: entity id is required", httpx.ErrValidation)
	}
	return kind, id, nil
}

func parseQuery(r *http.Request) (query.Options, filters.DateFilters, error) {
	opts, f, err := query.Parse(r.URL.Query())
	if err != nil {
		return query.Options{}, filters.DateFilters{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if opts.Granularity != "" && !query.ValidGranularity(opts.Granularity) {
		return query.Options{}, filters.DateFilters{}, fmt.Errorf("%w: unknown granularity %q", httpx.ErrValidation, opts.Granularity)
	}
	return opts, f, nil
}

func heatmapOptions(r *http.Request) (heatmap.Options, error) {
	values := r.URL.Query()
	page, err := intParam(r, "heatmap_page", 0)
	if err != nil {
		return heatmap.Options{}, err
	}
	if page == 0 {
		if page, err = intParam(r, "page", 1); err != nil {
			return heatmap.Options{}, err
		}
	}
	size, err := intParam(r, "heatmap_page_size", 0)
	if err != nil {
		return heatmap.Options{}, err
	}
	opts := heatmap.Options{
		Page:     page,
		PageSize: size,
		Theme:    heatmap.ParseTheme(values.Get("theme")),
		Mode:     normalize.ParseHeatmapMode(firstNonEmpty(values.Get("heatmap_mode"), values.Get("mode"))),
	}
	if raw := strings.TrimSpace(values.Get("scope")); raw != "" {
		opts.Scope = heatmap.ParseScope(raw)
	}
	return opts, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", httpx.ErrValidation, name)
	}
	return n, nil
}

func wantsCSV(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("format"), "csv")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
