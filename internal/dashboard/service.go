// Package dashboard assembles entity dashboards from the analytics backend. Responses
// are cached per full request parameters and concurrent identical requests share one
// backend call.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rpay/rpay-insights/internal/backend"
	"github.com/rpay/rpay-insights/internal/filters"
	"github.com/rpay/rpay-insights/internal/heatmap"
	"github.com/rpay/rpay-insights/internal/normalize"
	"github.com/rpay/rpay-insights/internal/query"
)

// Fetcher is the backend surface used by the service.
type Fetcher interface {
	Get(ctx context.Context, path string, params query.Params) ([]byte, error)
	List(ctx context.Context, kind backend.Kind) ([]backend.Entity, error)
	Ask(ctx context.Context, kind backend.Kind, id, question string) ([]byte, error)
	Discover(ctx context.Context, agentID, target, question string, f filters.DateFilters) ([]byte, error)
	Export(ctx context.Context, agentID string, f filters.DateFilters) (*backend.Download, error)
	Ping(ctx context.Context) error
}

// Defaults applied to dashboard requests.
const (
	DefaultGranularity = "monthly"
	DefaultTopMode     = "amount"
	DefaultTopLimit    = 5
	statusTimeout      = 5 * time.Second
	maxParallelPanels  = 6
)

// Config tunes the service.
type Config struct {
	HeatmapPageSize int
	HeatmapScope    heatmap.Scope
}

// Service loads dashboards and panels.
type Service struct {
	backend Fetcher
	cache   *Cache
	logger  *slog.Logger
	cfg     Config
	flights singleflight.Group
	now     func() time.Time
}

// NewService constructs a Service. cache may be nil.
func NewService(fetcher Fetcher, cache *Cache, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HeatmapPageSize <= 0 {
		cfg.HeatmapPageSize = heatmap.DefaultPageSize
	}
	cfg.HeatmapScope = heatmap.ParseScope(string(cfg.HeatmapScope))
	s := &Service{backend: fetcher, cache: cache, logger: logger, cfg: cfg, now: time.Now}
	cache.OnError(func(err error) {
		logger.Warn("dashboard cache degraded", slog.Any("error", err))
	})
	return s
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Cache exposes the response cache, e.g. for invalidation.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Fetch returns the raw body of an entity endpoint through the cache.
func (s *Service) Fetch(ctx context.Context, kind backend.Kind, id, endpoint string, params query.Params) ([]byte, error) {
	return s.fetchPath(ctx, string(kind), id, endpoint, backend.EntityPath(kind, id, endpoint), params)
}

func (s *Service) fetchPath(ctx context.Context, kind, id, endpoint, path string, params query.Params) ([]byte, error) {
	key, err := s.cache.BuildKey(ctx, panelKey(kind, id, endpoint, params.Encode()))
	if err != nil {
		s.logger.Warn("dashboard cache version unavailable", slog.Any("error", err))
		return s.backend.Get(ctx, path, params)
	}
	body, _, err := s.shareFetch(ctx, key, func(ctx context.Context) ([]byte, error) {
		body, hit, err := s.cache.Fetch(ctx, key, func(ctx context.Context) ([]byte, error) {
			return s.backend.Get(ctx, path, params)
		})
		if err == nil {
			recordCache(endpoint, hit)
		}
		return body, err
	})
	return body, err
}

// Entities lists the entities of kind.
func (s *Service) Entities(ctx context.Context, kind backend.Kind) ([]backend.Entity, error) {
	if !kind.HasList() {
		return nil, fmt.Errorf("%w: %s has no list", backend.ErrInvalidKind, kind)
	}
	body, err := s.fetchPath(ctx, string(kind), "all", "list", fmt.Sprintf("/%s/list", kind), nil)
	if err != nil {
		return nil, err
	}
	return backend.DecodeEntities(body), nil
}

// Count returns the entity count of kind as stat cards.
func (s *Service) Count(ctx context.Context, kind backend.Kind) ([]normalize.Stat, error) {
	body, err := s.fetchPath(ctx, string(kind), "all", "count", fmt.Sprintf("/%s/count", kind), nil)
	if err != nil {
		return nil, err
	}
	return normalize.ToStats(body), nil
}

// Stats returns the headline stat cards of an entity.
func (s *Service) Stats(ctx context.Context, kind backend.Kind, id string, f filters.DateFilters) ([]normalize.Stat, error) {
	body, err := s.Fetch(ctx, kind, id, "stats", query.Filters(f))
	if err != nil {
		return nil, err
	}
	return normalize.ToStats(body), nil
}

// Series returns a trend chart of an entity.
func (s *Service) Series(ctx context.Context, kind backend.Kind, id, metric, granularity string, f filters.DateFilters) (normalize.GraphSeries, error) {
	if !backend.IsGraphEndpoint(metric) {
		return nil, fmt.Errorf("%w: series %q", backend.ErrInvalidKind, metric)
	}
	if granularity == "" {
		granularity = DefaultGranularity
	}
	body, err := s.Fetch(ctx, kind, id, metric, query.Build(query.Options{Granularity: granularity}, f))
	if err != nil {
		return nil, err
	}
	return normalize.DecodeGraph(body), nil
}

// TableRequest selects a table panel.
type TableRequest struct {
	Metric  string
	Mode    string
	Limit   int
	Filters filters.DateFilters
}

// Table returns a table panel of an entity. Top-N endpoints receive mode and limit.
func (s *Service) Table(ctx context.Context, kind backend.Kind, id string, req TableRequest) (normalize.Table, error) {
	if !backend.IsTableEndpoint(req.Metric) {
		return normalize.Table{}, fmt.Errorf("%w: table %q", backend.ErrInvalidKind, req.Metric)
	}
	params := query.Filters(req.Filters)
	if backend.IsTopEndpoint(req.Metric) {
		mode, limit := req.Mode, req.Limit
		if mode == "" {
			mode = DefaultTopMode
		}
		if limit <= 0 {
			limit = DefaultTopLimit
		}
		params = query.TopEntities(mode, limit, req.Filters)
	}
	body, err := s.Fetch(ctx, kind, id, req.Metric, params)
	if err != nil {
		return normalize.Table{}, err
	}
	return normalize.DecodeTable(body), nil
}

// Heatmap returns the activity matrix of an entity's children.
func (s *Service) Heatmap(ctx context.Context, kind backend.Kind, id, granularity string, f filters.DateFilters, mode normalize.HeatmapMode) (normalize.HeatmapMatrix, error) {
	endpoint := kind.HeatmapEndpoint()
	if endpoint == "" {
		return normalize.HeatmapMatrix{}, fmt.Errorf("%w: %s has no heatmap", backend.ErrInvalidKind, kind)
	}
	if granularity == "" {
		granularity = DefaultGranularity
	}
	body, err := s.Fetch(ctx, kind, id, endpoint, query.Build(query.Options{Granularity: granularity}, f))
	if err != nil {
		return normalize.HeatmapMatrix{}, err
	}
	return normalize.DecodeHeatmap(body, mode), nil
}

// HeatmapView builds a coloured heatmap page using the service defaults for missing
// options.
func (s *Service) HeatmapView(matrix normalize.HeatmapMatrix, kind backend.Kind, opts heatmap.Options) heatmap.View {
	if opts.PageSize <= 0 {
		opts.PageSize = s.cfg.HeatmapPageSize
	}
	if opts.Scope == "" {
		opts.Scope = s.cfg.HeatmapScope
	}
	if opts.Noun == "" {
		opts.Noun = kind.ChildNoun()
	}
	return heatmap.Build(matrix, opts)
}

// Children returns a page of an entity's children.
func (s *Service) Children(ctx context.Context, kind backend.Kind, id string, page, pageSize int) (normalize.Page, error) {
	endpoint := kind.ChildrenEndpoint()
	if endpoint == "" {
		return normalize.Page{}, fmt.Errorf("%w: %s has no children", backend.ErrInvalidKind, kind)
	}
	var params query.Params
	if page > 0 {
		params = params.With("page", fmt.Sprint(page))
	}
	if pageSize > 0 {
		params = params.With("page_size", fmt.Sprint(pageSize))
	}
	body, err := s.Fetch(ctx, kind, id, endpoint, params)
	if err != nil {
		return normalize.Page{}, err
	}
	return normalize.ToPage(body), nil
}

// Request selects a dashboard.
type Request struct {
	Kind        backend.Kind
	ID          string
	Filters     filters.DateFilters
	Options     query.Options
	HeatmapMode normalize.HeatmapMode
	Heatmap     heatmap.Options
}

// Dashboard is a fully resolved entity dashboard.
type Dashboard struct {
	Kind        backend.Kind        `json:"kind"`
	ID          string              `json:"id"`
	Filters     filters.DateFilters `json:"filters"`
	Description string              `json:"description"`
	Badges      []filters.Badge     `json:"badges"`
	Query       string              `json:"query"`
	Panels      []Panel             `json:"panels"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Panel returns the named panel.
func (d Dashboard) Panel(name string) (Panel, bool) {
	for _, p := range d.Panels {
		if p.Name == name {
			return p, true
		}
	}
	return Panel{}, false
}

// Load resolves every panel of a dashboard concurrently. Each panel settles on its own;
// a failing or panicking panel never affects its siblings.
func (s *Service) Load(ctx context.Context, req Request) Dashboard {
	if req.Options.Granularity == "" {
		req.Options.Granularity = DefaultGranularity
	}
	if req.Options.TopMode == "" {
		req.Options.TopMode = DefaultTopMode
	}
	if req.Options.TopLimit <= 0 {
		req.Options.TopLimit = DefaultTopLimit
	}

	specs := specsFor(req.Kind)
	dash := Dashboard{
		Kind:        req.Kind,
		ID:          req.ID,
		Filters:     req.Filters,
		Description: req.Filters.Describe(),
		Badges:      req.Filters.Badges(),
		Query:       query.Build(req.Options, req.Filters).Encode(),
		Panels:      make([]Panel, len(specs)),
		GeneratedAt: s.now().UTC(),
	}

	var g errgroup.Group
	g.SetLimit(maxParallelPanels)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			dash.Panels[i] = s.loadPanel(ctx, req, spec)
			return nil
		})
	}
	_ = g.Wait()
	return dash
}

func (s *Service) loadPanel(ctx context.Context, req Request, spec panelSpec) (panel Panel) {
	start := time.Now()
	panel = Panel{Name: spec.name, Title: spec.title, Kind: spec.kind}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dashboard panel panicked",
				slog.String("panel", spec.name),
				slog.String("kind", string(req.Kind)),
				slog.String("id", req.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			panel = Panel{Name: spec.name, Title: spec.title, Kind: spec.kind, State: StateError, Message: MessagePanic}
		}
		recordPanel(spec.name, panel.State, time.Since(start))
	}()

	var err error
	empty := false
	switch spec.kind {
	case KindStats:
		panel.Stats, err = s.Stats(ctx, req.Kind, req.ID, req.Filters)
		empty = len(panel.Stats) == 0
	case KindSeries:
		panel.Series, err = s.Series(ctx, req.Kind, req.ID, spec.endpoint, req.Options.Granularity, req.Filters)
		empty = len(panel.Series) == 0
	case KindTable:
		var table normalize.Table
		table, err = s.Table(ctx, req.Kind, req.ID, TableRequest{
			Metric:  spec.endpoint,
			Mode:    req.Options.TopMode,
			Limit:   req.Options.TopLimit,
			Filters: req.Filters,
		})
		if err == nil {
			panel.Table = &table
			empty = len(table.Rows) == 0
		}
	case KindHeatmap:
		var matrix normalize.HeatmapMatrix
		matrix, err = s.Heatmap(ctx, req.Kind, req.ID, req.Options.Granularity, req.Filters, req.HeatmapMode)
		if err == nil {
			opts := req.Heatmap
			opts.Mode = req.HeatmapMode
			view := s.HeatmapView(matrix, req.Kind, opts)
			panel.Heatmap = &view
			empty = matrix.IsEmpty()
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("dashboard panel failed",
			slog.String("panel", spec.name),
			slog.String("kind", string(req.Kind)),
			slog.String("id", req.ID),
			slog.Any("error", err))
	}
	panel.resolve(err, empty)
	return panel
}

// ConnectionStatus reports whether the backend is reachable.
type ConnectionStatus struct {
	Connected bool      `json:"connected"`
	State     string    `json:"state"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Status pings the backend with a short timeout.
func (s *Service) Status(ctx context.Context) ConnectionStatus {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	status := ConnectionStatus{CheckedAt: s.now().UTC()}
	err := s.backend.Ping(ctx)
	switch {
	case err == nil:
		status.Connected = true
		status.State = "connected"
	case errors.Is(err, backend.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		status.State = "error"
		status.Message = MessageUnavailable
	default:
		status.State = "error"
		status.Message = MessageBackendError
	}
	if err != nil {
		s.logger.Warn("backend status check failed", slog.Any("error", err))
	}
	return status
}

// Ask proxies a natural-language question. Failures produce the fallback reply; there
// is no retry.
func (s *Service) Ask(ctx context.Context, kind backend.Kind, id, question string) normalize.Reply {
	body, err := s.backend.Ask(ctx, kind, id, question)
	if err != nil {
		s.logger.Warn("assistant request failed",
			slog.String("kind", string(kind)),
			slog.String("id", id),
			slog.Any("error", err))
		return normalize.FallbackReply()
	}
	return normalize.ToAssistantReply(body)
}

// Discover runs a natural-language target search for an agent.
func (s *Service) Discover(ctx context.Context, agentID, target, question string, f filters.DateFilters) ([]normalize.Row, error) {
	body, err := s.backend.Discover(ctx, agentID, target, question, f)
	if err != nil {
		return nil, err
	}
	return normalize.ToPage(body).Data, nil
}

// Export streams the agent export. It is never cached.
func (s *Service) Export(ctx context.Context, agentID string, f filters.DateFilters) (*backend.Download, error) {
	return s.backend.Export(ctx, agentID, f)
}
