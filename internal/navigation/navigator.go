package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Navigator applies selection rules on top of a Store.
type Navigator struct {
	store  Store
	logger *slog.Logger
}

// NewNavigator constructs a Navigator.
func NewNavigator(store Store, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{store: store, logger: logger}
}

// Load restores the persisted state of client. Unknown or missing values fall back to
// the analytics team with nothing selected.
func (n *Navigator) Load(ctx context.Context, client string) (State, error) {
	state := State{Team: TeamAnalytics, Context: Direct}

	rawTeam, err := n.get(ctx, client, keyTeam)
	if err != nil {
		return State{}, err
	}
	if team, err := ParseTeam(rawTeam); err == nil {
		state.Team = team
	} else if rawTeam != "" {
		n.logger.Warn("discarding persisted team", slog.String("client", client), slog.String("team", rawTeam))
	}

	if state.Agent, err = n.get(ctx, client, keyAgent); err != nil {
		return State{}, err
	}
	if state.Team != TeamAnalytics {
		if state.Entity, err = n.get(ctx, client, entityKey(state.Team)); err != nil {
			return State{}, err
		}
	}
	state.Page = Location{Team: state.Team, ID: state.ActiveEntity()}
	return state, nil
}

// Restore checks a loaded state against ids, the freshly fetched id list of its team's
// entities. A persisted id missing from ids is replaced by the first listed id and the
// replacement is persisted. The analytics team delegates to SelectAgent.
func (n *Navigator) Restore(ctx context.Context, client string, state State, ids []string) (State, error) {
	next := state
	if state.Team == TeamAnalytics {
		agent, err := n.SelectAgent(ctx, client, ids)
		if err != nil {
			return State{}, err
		}
		next.Agent = agent
	} else {
		next.Entity = pick(state.Entity, ids)
		if next.Entity != "" && next.Entity != state.Entity {
			if err := n.set(ctx, client, entityKey(state.Team), next.Entity); err != nil {
				return State{}, err
			}
			n.logger.Info("replaced stale selection", slog.String("client", client), slog.String("team", string(state.Team)), slog.String("stale", state.Entity), slog.String("entity", next.Entity))
		}
	}
	next.Page = Location{Team: next.Team, ID: next.ActiveEntity()}
	return next, nil
}

// SwitchTeam activates team. ids is the freshly fetched id list of the team's entities
// (agents for the analytics team). The persisted id is restored when still listed,
// otherwise the first id is selected; the choice is persisted.
func (n *Navigator) SwitchTeam(ctx context.Context, client string, team Team, ids []string) (State, error) {
	if _, err := ParseTeam(string(team)); err != nil {
		return State{}, err
	}
	if err := n.set(ctx, client, keyTeam, string(team)); err != nil {
		return State{}, err
	}

	state := State{Team: team, Context: Direct}
	if team == TeamAnalytics {
		agent, err := n.SelectAgent(ctx, client, ids)
		if err != nil {
			return State{}, err
		}
		state.Agent = agent
	} else {
		saved, err := n.get(ctx, client, entityKey(team))
		if err != nil {
			return State{}, err
		}
		state.Entity = pick(saved, ids)
		if state.Entity != "" && state.Entity != saved {
			if err := n.set(ctx, client, entityKey(team), state.Entity); err != nil {
				return State{}, err
			}
		}
		if state.Agent, err = n.get(ctx, client, keyAgent); err != nil {
			return State{}, err
		}
	}
	state.Page = Location{Team: team, ID: state.ActiveEntity()}
	n.logger.Debug("team switched", slog.String("client", client), slog.String("team", string(team)), slog.String("entity", state.ActiveEntity()))
	return state, nil
}

// SelectAgent restores the persisted agent when it is in agents, else picks the first.
func (n *Navigator) SelectAgent(ctx context.Context, client string, agents []string) (string, error) {
	saved, err := n.get(ctx, client, keyAgent)
	if err != nil {
		return "", err
	}
	agent := pick(saved, agents)
	if agent != "" && agent != saved {
		if err := n.set(ctx, client, keyAgent, agent); err != nil {
			return "", err
		}
	}
	return agent, nil
}

// SetAgent persists an explicit agent choice.
func (n *Navigator) SetAgent(ctx context.Context, client string, state State, agent string) (State, error) {
	if agent == "" {
		return State{}, fmt.Errorf("navigation: empty agent id")
	}
	if err := n.set(ctx, client, keyAgent, agent); err != nil {
		return State{}, err
	}
	next := state
	next.Agent = agent
	next.Context = Direct
	if next.Team == TeamAnalytics {
		next.Page = Location{Team: TeamAnalytics, ID: agent}
	}
	return next, nil
}

// SetEntity persists an explicit entity choice for the state's team. Selector changes
// are direct navigation.
func (n *Navigator) SetEntity(ctx context.Context, client string, state State, id string) (State, error) {
	if state.Team == TeamAnalytics {
		return n.SetAgent(ctx, client, state, id)
	}
	if id == "" {
		return State{}, fmt.Errorf("navigation: empty entity id")
	}
	if err := n.set(ctx, client, entityKey(state.Team), id); err != nil {
		return State{}, err
	}
	next := state
	next.Entity = id
	next.Context = Direct
	next.Page = Location{Team: state.Team, ID: id}
	return next, nil
}

func (n *Navigator) get(ctx context.Context, client, key string) (string, error) {
	value, err := n.store.Get(ctx, client, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (n *Navigator) set(ctx context.Context, client, key, value string) error {
	return n.store.Set(ctx, client, key, value)
}
