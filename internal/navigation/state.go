// Package navigation tracks the active team, the selected entity per team and whether
// the current dashboard was reached directly or by drilling down from a parent.
package navigation

import (
	"errors"
	"fmt"
	"strings"
)

// Team is a top-level workspace.
type Team string

// Teams.
const (
	TeamAnalytics Team = "analytics"
	TeamMerchant  Team = "merchant"
	TeamBranch    Team = "branch"
)

// Teams lists every workspace.
var Teams = []Team{TeamAnalytics, TeamMerchant, TeamBranch}

// ErrUnknownTeam is returned by ParseTeam.
var ErrUnknownTeam = errors.New("navigation: unknown team")

// ParseTeam accepts the short name or the display label.
func ParseTeam(raw string) (Team, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, "rpay ")
	switch Team(name) {
	case TeamAnalytics, TeamMerchant, TeamBranch:
		return Team(name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTeam, raw)
}

// Label is the display name of the team.
func (t Team) Label() string {
	switch t {
	case TeamMerchant:
		return "RPAY Merchant"
	case TeamBranch:
		return "RPAY Branch"
	}
	return "RPAY Analytics"
}

// Kind is the backend entity collection whose dashboards belong to the team.
func (t Team) Kind() string {
	switch t {
	case TeamMerchant:
		return "merchants"
	case TeamBranch:
		return "branch-admins"
	}
	return "agents"
}

// Context records how the current dashboard was reached.
type Context string

// Navigation contexts.
const (
	Direct       Context = "direct"
	Hierarchical Context = "hierarchical"
)

// Location is a dashboard page.
type Location struct {
	Team Team   `json:"team"`
	ID   string `json:"id,omitempty"`
}

// URL is the dashboard route of the location.
func (l Location) URL() string {
	switch l.Team {
	case TeamMerchant:
		if l.ID != "" {
			return "/merchants/" + l.ID
		}
	case TeamBranch:
		if l.ID != "" {
			return "/branches/" + l.ID
		}
	}
	return "/"
}

// State is a client's navigation state. Context is never persisted.
type State struct {
	Team    Team     `json:"team"`
	Entity  string   `json:"entity"`
	Agent   string   `json:"agent"`
	Context Context  `json:"context"`
	Page    Location `json:"page"`
}

// DashboardURL is the dashboard of the selected team and entity.
func (s State) DashboardURL() string {
	if s.Team == TeamAnalytics {
		return "/"
	}
	return Location{Team: s.Team, ID: s.Entity}.URL()
}

// ShowBack reports whether a page owned by pageTeam should offer a back action.
func (s State) ShowBack(pageTeam Team) bool {
	return s.Context == Hierarchical || s.Team != pageTeam
}

// ActiveEntity is the id whose data the dashboard shows: the agent for the analytics
// team, the selected entity otherwise.
func (s State) ActiveEntity() string {
	if s.Team == TeamAnalytics {
		return s.Agent
	}
	return s.Entity
}

// Drill is a navigation from a parent dashboard to one of its children.
type Drill struct {
	Team Team   `json:"team"`
	ID   string `json:"id"`
	// FromParent is set when the user followed a child link on the parent's dashboard.
	FromParent bool `json:"from_parent"`
}

// DrillDown moves the page to a child. A child link followed from the parent marks
// the state hierarchical; any other drill keeps the current context. Selection and
// persisted state are untouched.
func DrillDown(state State, d Drill) State {
	next := state
	next.Page = Location{Team: d.Team, ID: d.ID}
	if d.FromParent {
		next.Context = Hierarchical
	}
	if next.Context == "" {
		next.Context = Direct
	}
	return next
}

// pick returns saved when it is in ids, else the first id, else "".
func pick(saved string, ids []string) string {
	if saved != "" {
		for _, id := range ids {
			if id == saved {
				return saved
			}
		}
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return ""
}
