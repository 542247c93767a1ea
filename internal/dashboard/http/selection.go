package dashboardhttp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rpay/rpay-insights/internal/backend"
	"github.com/rpay/rpay-insights/internal/navigation"
	"github.com/rpay/rpay-insights/internal/platform/httpx"
)

type selectionResponse struct {
	State     navigation.State `json:"state"`
	TeamLabel string           `json:"team_label"`
	URL       string           `json:"url"`
	ShowBack  bool             `json:"show_back"`
}

func newSelectionResponse(state navigation.State) selectionResponse {
	page := state.Page.Team
	if page == "" {
		page = state.Team
	}
	url := state.Page.URL()
	if state.Page.Team == "" {
		url = state.DashboardURL()
	}
	return selectionResponse{
		State:     state,
		TeamLabel: state.Team.Label(),
		URL:       url,
		ShowBack:  state.ShowBack(page),
	}
}

type selectionRequest struct {
	State navigation.State  `json:"state"`
	Team  string            `json:"team"`
	ID    string            `json:"id"`
	Drill *navigation.Drill `json:"drill"`
}

// handleSelection restores the persisted selection, checked against the team's
// freshly listed entities.
func (h *Handler) handleSelection(w http.ResponseWriter, r *http.Request) {
	client := ClientIDFromContext(r.Context())
	state, err := h.navigator.Load(r.Context(), client)
	if err != nil {
		h.respondError(w, "load selection", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	entities, err := h.service.Entities(ctx, backend.Kind(state.Team.Kind()))
	if err != nil {
		h.respondError(w, "list team entities", err)
		return
	}
	state, err = h.navigator.Restore(ctx, client, state, backend.IDs(entities))
	if err != nil {
		h.respondError(w, "restore selection", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newSelectionResponse(state))
}

// handleSwitchTeam activates a team using its freshly listed entities.
func (h *Handler) handleSwitchTeam(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.respondError(w, "decode selection", err)
		return
	}
	team, err := navigation.ParseTeam(req.Team)
	if err != nil {
		h.respondError(w, "parse team", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	entities, err := h.service.Entities(ctx, backend.Kind(team.Kind()))
	if err != nil {
		h.respondError(w, "list team entities", err)
		return
	}
	state, err := h.navigator.SwitchTeam(ctx, ClientIDFromContext(r.Context()), team, backend.IDs(entities))
	if err != nil {
		h.respondError(w, "switch team", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newSelectionResponse(state))
}

func (h *Handler) handleSelectAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSelection(w, r)
	if !ok {
		return
	}
	state, err := h.navigator.SetAgent(r.Context(), ClientIDFromContext(r.Context()), req.State, req.ID)
	if err != nil {
		h.respondError(w, "select agent", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newSelectionResponse(state))
}

func (h *Handler) handleSelectEntity(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSelection(w, r)
	if !ok {
		return
	}
	state, err := h.navigator.SetEntity(r.Context(), ClientIDFromContext(r.Context()), req.State, req.ID)
	if err != nil {
		h.respondError(w, "select entity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newSelectionResponse(state))
}

// handleDrill moves the page to a child dashboard without touching persisted state.
func (h *Handler) handleDrill(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.respondError(w, "decode drill", err)
		return
	}
	if req.Drill == nil || strings.TrimSpace(req.Drill.ID) == "" {
		h.respondError(w, "drill", fmt.Errorf("%w: drill target is required", httpx.ErrValidation))
		return
	}
	team, err := navigation.ParseTeam(string(req.Drill.Team))
	if err != nil {
		h.respondError(w, "parse team", err)
		return
	}
	drill := *req.Drill
	drill.Team = team
	httpx.JSON(w, http.StatusOK, newSelectionResponse(navigation.DrillDown(req.State, drill)))
}

func (h *Handler) decodeSelection(w http.ResponseWriter, r *http.Request) (selectionRequest, bool) {
	var req selectionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.respondError(w, "decode selection", err)
		return selectionRequest{}, false
	}
	if _, err := navigation.ParseTeam(string(req.State.Team)); err != nil {
		req.State.Team = navigation.TeamAnalytics
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		h.respondError(w, "decode selection", fmt.Errorf("%w: id is required", httpx.ErrValidation))
		return selectionRequest{}, false
	}
	return req, true
}
