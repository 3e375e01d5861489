package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/macrosim/internal/registry"
)

func testScript(id, simID, userID string) *registry.Script {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &registry.Script{
		ScriptID:     id,
		SimulationID: simID,
		UserID:       userID,
		AgentKind:    registry.KindHousehold,
		Code:         `function generate_decisions(context) { return {}; }`,
		CodeVersion:  "v1",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestDurable_SaveAndLoadScriptRoundTrips(t *testing.T) {
	d := openTestDurable(t)
	ctx := context.Background()
	sc := testScript("s1", "sim-1", "user-1")
	require.NoError(t, d.SaveScript(ctx, sc))

	got, err := d.LoadScript(ctx, "sim-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, sc.Code, got.Code)
	assert.Equal(t, registry.KindHousehold, got.AgentKind)
}

func TestDurable_SaveScriptUpsertsCodeOnConflict(t *testing.T) {
	d := openTestDurable(t)
	ctx := context.Background()
	sc := testScript("s1", "sim-1", "user-1")
	require.NoError(t, d.SaveScript(ctx, sc))

	sc.Code = `function generate_decisions(context) { return {labor_supply: 1}; }`
	sc.CodeVersion = "v2"
	require.NoError(t, d.SaveScript(ctx, sc))

	got, err := d.LoadScript(ctx, "sim-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.CodeVersion)
	assert.Contains(t, got.Code, "labor_supply")
}

func TestDurable_DeleteScriptRemovesRow(t *testing.T) {
	d := openTestDurable(t)
	ctx := context.Background()
	require.NoError(t, d.SaveScript(ctx, testScript("s1", "sim-1", "user-1")))
	require.NoError(t, d.DeleteScript(ctx, "sim-1", "s1"))

	_, err := d.LoadScript(ctx, "sim-1", "s1")
	assert.Error(t, err)
}

func TestDurable_ListUserScriptsFiltersByOwner(t *testing.T) {
	d := openTestDurable(t)
	ctx := context.Background()
	require.NoError(t, d.SaveScript(ctx, testScript("s1", "sim-1", "user-1")))
	require.NoError(t, d.SaveScript(ctx, testScript("s2", "sim-1", "user-2")))

	got, err := d.ListUserScripts(ctx, "sim-1", "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ScriptID)
}

func TestDurable_ListSimulationScriptsReturnsEveryOwner(t *testing.T) {
	d := openTestDurable(t)
	ctx := context.Background()
	require.NoError(t, d.SaveScript(ctx, testScript("s1", "sim-1", "user-1")))
	require.NoError(t, d.SaveScript(ctx, testScript("s2", "sim-1", "user-2")))

	got, err := d.ListSimulationScripts(ctx, "sim-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDurable_DeleteSimulationDetachesScriptsInsteadOfErasingThem(t *testing.T) {
	d := openTestDurable(t)
	ctx := context.Background()
	require.NoError(t, d.SaveScript(ctx, testScript("s1", "sim-1", "user-1")))
	require.NoError(t, d.SaveBinding(ctx, &registry.Binding{
		SimulationID: "sim-1", AgentKind: registry.KindHousehold, EntityID: "h1", ScriptID: "s1", EffectiveDay: 0,
	}))
	require.NoError(t, d.SaveSimulation(ctx, testSimulation("sim-1")))

	require.NoError(t, d.DeleteSimulation(ctx, "sim-1"))

	// The script row itself survives, reverted to the owner's personal
	// (unbound) library rather than deleted.
	got, err := d.ListUserScripts(ctx, "", "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ScriptID)

	bindings, err := d.LoadBindings(ctx, "sim-1")
	require.NoError(t, err)
	assert.Empty(t, bindings, "simulation-scoped bindings do not survive delete_simulation")
}

func TestDurable_SaveBindingThenLoadBindingsRoundTrips(t *testing.T) {
	d := openTestDurable(t)
	ctx := context.Background()
	require.NoError(t, d.SaveBinding(ctx, &registry.Binding{
		SimulationID: "sim-1", AgentKind: registry.KindHousehold, EntityID: "h1", ScriptID: "s1", EffectiveDay: 2,
	}))

	bindings, err := d.LoadBindings(ctx, "sim-1")
	require.NoError(t, err)
	b, ok := bindings["household/h1"]
	require.True(t, ok)
	assert.Equal(t, "s1", b.ScriptID)
	assert.Equal(t, 2, b.EffectiveDay)
}

func TestDurable_SaveBindingWithEmptyScriptIDDetaches(t *testing.T) {
	d := openTestDurable(t)
	ctx := context.Background()
	require.NoError(t, d.SaveBinding(ctx, &registry.Binding{
		SimulationID: "sim-1", AgentKind: registry.KindHousehold, EntityID: "h1", ScriptID: "s1", EffectiveDay: 0,
	}))
	require.NoError(t, d.SaveBinding(ctx, &registry.Binding{
		SimulationID: "sim-1", AgentKind: registry.KindHousehold, EntityID: "h1", ScriptID: "",
	}))

	bindings, err := d.LoadBindings(ctx, "sim-1")
	require.NoError(t, err)
	_, ok := bindings["household/h1"]
	assert.False(t, ok, "empty script_id binding should delete the row, not persist it")
}
