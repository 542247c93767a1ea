package dashboardhttp

import (
	"fmt"
	"net/http"

	"github.com/rpay/rpay-insights/internal/filters"
	"github.com/rpay/rpay-insights/internal/platform/httpx"
	"github.com/rpay/rpay-insights/internal/query"
)

// Filter edit operations.
const (
	opSet       = "set"
	opClear     = "clear"
	opClearAll  = "clear_all"
	opThisYear  = "this_year"
	opThisMonth = "this_month"
	opLastDays  = "last_days"
)

type filterRequest struct {
	Filters filters.DateFilters `json:"filters"`
	Op      string              `json:"op"`
	Key     string              `json:"key"`
	Value   any                 `json:"value"`
	Days    int                 `json:"days"`
}

type filterResponse struct {
	Filters     filters.DateFilters `json:"filters"`
	Mode        filters.Mode        `json:"mode"`
	Description string              `json:"description"`
	Badges      []filters.Badge     `json:"badges"`
	Query       string              `json:"query"`
}

func newFilterResponse(f filters.DateFilters) filterResponse {
	return filterResponse{
		Filters:     f,
		Mode:        f.Mode(),
		Description: f.Describe(),
		Badges:      f.Badges(),
		Query:       query.Filters(f).Encode(),
	}
}

// handleFilters applies one edit to the caller's filters and returns the result. The
// incoming filters are sanitized first since they come from client-side storage.
func (h *Handler) handleFilters(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.respondError(w, "decode filters", err)
		return
	}
	current := req.Filters.Sanitize()

	var (
		next filters.DateFilters
		err  error
	)
	switch req.Op {
	case "", opSet:
		var key filters.Key
		if key, err = filters.ParseKey(req.Key); err == nil {
			next, err = filters.Update(current, key, req.Value)
		}
	case opClear:
		var key filters.Key
		if key, err = filters.ParseKey(req.Key); err == nil {
			next = filters.ClearOne(current, key)
		}
	case opClearAll:
		next = filters.ClearAll()
	case opThisYear:
		next = filters.ThisYear(current, h.now())
	case opThisMonth:
		next = filters.ThisMonth(current, h.now())
	case opLastDays:
		if req.Days <= 0 {
			err = fmt.Errorf("%w: days must be positive", httpx.ErrValidation)
			break
		}
		next = filters.LastDays(current, req.Days)
	default:
		err = fmt.Errorf("%w: unknown op %q", httpx.ErrValidation, req.Op)
	}
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		h.respondError(w, "edit filters", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newFilterResponse(next))
}
