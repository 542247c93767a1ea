package dashboardhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/rpay/rpay-insights/internal/platform/httpx"
)

// Limits for backend-heavy routes, per client per minute.
const (
	assistantRateLimit = 20
	exportRateLimit    = 10
)

// MountRoutes registers the dashboard API onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	assistantLimiter := newLimiter(assistantRateLimit)
	exportLimiter := newLimiter(exportRateLimit)

	r.Get("/status", h.handleStatus)
	r.Post("/filters", h.handleFilters)

	r.Route("/selection", func(sr chi.Router) {
		sr.Get("/", h.handleSelection)
		sr.Put("/team", h.handleSwitchTeam)
		sr.Put("/agent", h.handleSelectAgent)
		sr.Put("/entity", h.handleSelectEntity)
		sr.Post("/drill", h.handleDrill)
	})
	r.Get("/export/status", h.handleExportStatus)

	r.Route("/{kind}", func(kr chi.Router) {
		kr.Get("/", h.handleList)
		kr.Get("/count", h.handleCount)
		kr.Route("/{id}", func(er chi.Router) {
			er.Get("/dashboard", h.handleDashboard)
			er.Get("/series/{metric}", h.handleSeries)
			er.Get("/table/{metric}", h.handleTable)
			er.Get("/heatmap", h.handleHeatmap)
			er.Get("/heatmap.csv", h.handleHeatmapCSV)
			er.Get("/children", h.handleChildren)
			er.Group(func(gr chi.Router) {
				gr.Use(assistantLimiter)
				gr.Post("/assistant", h.handleAssistant)
				gr.Post("/discover/{target}", h.handleDiscover)
			})
			er.Group(func(gr chi.Router) {
				gr.Use(exportLimiter)
				gr.Get("/export", h.handleExport)
			})
		})
	})
}

func newLimiter(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.RespondError(w, httpx.ErrTooManyRequests)
		}),
	)
}

func rateLimitKey(r *http.Request) (string, error) {
	if client := ClientIDFromContext(r.Context()); client != "" {
		return "client:" + client, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
