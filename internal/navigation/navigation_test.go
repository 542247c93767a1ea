package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func TestSwitchMerchantToBranchSelectsFirstAndPersists(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	nav := NewNavigator(store, nil)

	state, err := nav.SwitchTeam(ctx, "c1", TeamMerchant, []string{"m1", "m2"})
	require.NoError(t, err)
	assert.Equal(t, "m1", state.Entity)

	state, err = nav.SwitchTeam(ctx, "c1", TeamBranch, []string{"b7", "b8"})
	require.NoError(t, err)
	assert.Equal(t, "b7", state.Entity)
	assert.Equal(t, Direct, state.Context)
	assert.Equal(t, "/branches/b7", state.DashboardURL())

	assert.Equal(t, "b7", mr.HGet("rpay:selection:c1", "selectedEntity_branch"))
	assert.Equal(t, "branch", mr.HGet("rpay:selection:c1", "selectedTeam"))
	assert.True(t, mr.TTL("rpay:selection:c1") > 0)
}

func TestSwitchTeamRestoresSavedEntityWhenListed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "c1", "selectedEntity_merchant", "m2"))
	nav := NewNavigator(store, nil)

	state, err := nav.SwitchTeam(ctx, "c1", TeamMerchant, []string{"m1", "m2"})
	require.NoError(t, err)
	assert.Equal(t, "m2", state.Entity)

	state, err = nav.SwitchTeam(ctx, "c1", TeamMerchant, []string{"m3"})
	require.NoError(t, err)
	assert.Equal(t, "m3", state.Entity)
	saved, err := store.Get(ctx, "c1", "selectedEntity_merchant")
	require.NoError(t, err)
	assert.Equal(t, "m3", saved)
}

func TestSwitchTeamEmptyList(t *testing.T) {
	nav := NewNavigator(NewMemoryStore(), nil)
	state, err := nav.SwitchTeam(context.Background(), "c1", TeamBranch, nil)
	require.NoError(t, err)
	assert.Empty(t, state.Entity)
	assert.Equal(t, "/", state.DashboardURL())
}

func TestAnalyticsDefersToAgentSelection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "c1", "selectedAgent", "a2"))
	nav := NewNavigator(store, nil)

	state, err := nav.SwitchTeam(ctx, "c1", TeamAnalytics, []string{"a1", "a2"})
	require.NoError(t, err)
	assert.Empty(t, state.Entity)
	assert.Equal(t, "a2", state.Agent)
	assert.Equal(t, "a2", state.ActiveEntity())
	assert.Equal(t, "/", state.DashboardURL())

	agent, err := nav.SelectAgent(ctx, "c1", []string{"a9"})
	require.NoError(t, err)
	assert.Equal(t, "a9", agent)
}

func TestLoadRestoresPersistedState(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	nav := NewNavigator(store, nil)

	state, err := nav.Load(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, State{Team: TeamAnalytics, Context: Direct, Page: Location{Team: TeamAnalytics}}, state)

	_, err = nav.SwitchTeam(ctx, "c2", TeamMerchant, []string{"m5"})
	require.NoError(t, err)
	state, err = nav.Load(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, TeamMerchant, state.Team)
	assert.Equal(t, "m5", state.Entity)
	assert.Equal(t, "/merchants/m5", state.Page.URL())
}

func TestRestoreReplacesStaleEntity(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	nav := NewNavigator(store, nil)

	state, err := nav.SwitchTeam(ctx, "c1", TeamMerchant, []string{"m-old", "m2"})
	require.NoError(t, err)
	require.Equal(t, "m-old", state.Entity)

	loaded, err := nav.Load(ctx, "c1")
	require.NoError(t, err)
	state, err = nav.Restore(ctx, "c1", loaded, []string{"m2"})
	require.NoError(t, err)
	assert.Equal(t, TeamMerchant, state.Team)
	assert.Equal(t, "m2", state.Entity)
	assert.Equal(t, "/merchants/m2", state.Page.URL())

	loaded, err = nav.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "m2", loaded.Entity)
}

func TestRestoreKeepsListedEntity(t *testing.T) {
	ctx := context.Background()
	nav := NewNavigator(NewMemoryStore(), nil)

	_, err := nav.SwitchTeam(ctx, "c1", TeamBranch, []string{"b1", "b2"})
	require.NoError(t, err)
	_, err = nav.SetEntity(ctx, "c1", State{Team: TeamBranch}, "b2")
	require.NoError(t, err)

	loaded, err := nav.Load(ctx, "c1")
	require.NoError(t, err)
	state, err := nav.Restore(ctx, "c1", loaded, []string{"b1", "b2"})
	require.NoError(t, err)
	assert.Equal(t, "b2", state.Entity)

	state, err = nav.Restore(ctx, "c1", loaded, nil)
	require.NoError(t, err)
	assert.Empty(t, state.Entity)
}

func TestRestoreAnalyticsSelectsListedAgent(t *testing.T) {
	ctx := context.Background()
	nav := NewNavigator(NewMemoryStore(), nil)

	_, err := nav.SetAgent(ctx, "c1", State{Team: TeamAnalytics}, "a-gone")
	require.NoError(t, err)

	loaded, err := nav.Load(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "a-gone", loaded.Agent)

	state, err := nav.Restore(ctx, "c1", loaded, []string{"a2", "a3"})
	require.NoError(t, err)
	assert.Equal(t, "a2", state.Agent)
	assert.Equal(t, Location{Team: TeamAnalytics, ID: "a2"}, state.Page)
}

func TestSetEntityIsDirect(t *testing.T) {
	nav := NewNavigator(NewMemoryStore(), nil)
	state := State{Team: TeamMerchant, Entity: "m1", Context: Hierarchical}

	next, err := nav.SetEntity(context.Background(), "c1", state, "m2")
	require.NoError(t, err)
	assert.Equal(t, Direct, next.Context)
	assert.Equal(t, "m2", next.Entity)
	assert.Equal(t, Hierarchical, state.Context)

	_, err = nav.SetEntity(context.Background(), "c1", state, "")
	assert.Error(t, err)
}

func TestDrillDownAndShowBack(t *testing.T) {
	state := State{Team: TeamMerchant, Entity: "m1", Context: Direct}
	assert.False(t, state.ShowBack(TeamMerchant))

	child := DrillDown(state, Drill{Team: TeamBranch, ID: "b1", FromParent: true})
	assert.Equal(t, Hierarchical, child.Context)
	assert.Equal(t, "/branches/b1", child.Page.URL())
	assert.Equal(t, "m1", child.Entity)
	assert.True(t, child.ShowBack(TeamBranch))

	deeper := DrillDown(child, Drill{Team: TeamBranch, ID: "b2"})
	assert.Equal(t, Hierarchical, deeper.Context)

	sideways := DrillDown(state, Drill{Team: TeamBranch, ID: "b3"})
	assert.Equal(t, Direct, sideways.Context)
	assert.True(t, sideways.ShowBack(TeamBranch), "team differs from page owner")
}

func TestParseTeam(t *testing.T) {
	team, err := ParseTeam("RPAY Merchant")
	require.NoError(t, err)
	assert.Equal(t, TeamMerchant, team)
	assert.Equal(t, "branch-admins", TeamBranch.Kind())

	_, err = ParseTeam("RPAY Terminal")
	assert.True(t, errors.Is(err, ErrUnknownTeam))
}

type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.value
	return nil
}

type fakePG struct {
	rows map[[2]string]string
	sql  []string
}

func (f *fakePG) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	if strings.HasPrefix(sql, "DELETE") {
		removed := len(f.rows)
		f.rows = map[[2]string]string{}
		return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", removed)), nil
	}
	if len(args) == 3 {
		f.rows[[2]string{args[0].(string), args[1].(string)}] = args[2].(string)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakePG) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	value, ok := f.rows[[2]string{args[0].(string), args[1].(string)}]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{value: value}
}

func TestPGStore(t *testing.T) {
	ctx := context.Background()
	db := &fakePG{rows: map[[2]string]string{}}
	store := NewPGStore(db)
	require.NoError(t, store.EnsureSchema(ctx))

	_, err := store.Get(ctx, "c1", "selectedAgent")
	assert.ErrorIs(t, err, ErrNotFound)

	nav := NewNavigator(store, nil)
	state, err := nav.SwitchTeam(ctx, "c1", TeamBranch, []string{"b1"})
	require.NoError(t, err)
	assert.Equal(t, "b1", state.Entity)
	assert.Equal(t, "b1", db.rows[[2]string{"c1", "selectedEntity_branch"}])
	assert.Contains(t, db.sql[0], "CREATE TABLE IF NOT EXISTS navigation_selections")
	assert.Contains(t, db.sql[1], "navigation_selections_updated_at_idx")

	removed, err := store.Prune(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Positive(t, removed)
	_, err = store.Get(ctx, "c1", "selectedEntity_branch")
	assert.ErrorIs(t, err, ErrNotFound)
}
