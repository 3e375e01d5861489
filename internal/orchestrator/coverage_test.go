package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/macrosim/internal/registry"
	"github.com/talgya/macrosim/internal/worldstate"
)

// fakeDurableStore is an in-memory registry.DurableStore, mirroring the
// fakeStore convention used for the registry package's own tests.
type fakeDurableStore struct {
	scripts  map[string]*registry.Script
	bindings map[string]map[string]*registry.Binding
}

func newFakeDurableStore() *fakeDurableStore {
	return &fakeDurableStore{scripts: map[string]*registry.Script{}, bindings: map[string]map[string]*registry.Binding{}}
}

func (f *fakeDurableStore) SaveScript(ctx context.Context, s *registry.Script) error {
	f.scripts[s.ScriptID] = s
	return nil
}
func (f *fakeDurableStore) LoadScript(ctx context.Context, simID, scriptID string) (*registry.Script, error) {
	return f.scripts[scriptID], nil
}
func (f *fakeDurableStore) DeleteScript(ctx context.Context, simID, scriptID string) error {
	delete(f.scripts, scriptID)
	return nil
}
func (f *fakeDurableStore) ListUserScripts(ctx context.Context, simID, userID string) ([]*registry.Script, error) {
	return nil, nil
}
func (f *fakeDurableStore) ListSimulationScripts(ctx context.Context, simID string) ([]*registry.Script, error) {
	return nil, nil
}
func (f *fakeDurableStore) SaveBinding(ctx context.Context, b *registry.Binding) error {
	return nil
}
func (f *fakeDurableStore) LoadBindings(ctx context.Context, simID string) (map[string]*registry.Binding, error) {
	out := map[string]*registry.Binding{}
	for k, b := range f.bindings[simID] {
		out[k] = b
	}
	return out, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *registry.Registry) {
	t.Helper()
	reg := registry.New(newFakeDurableStore(), 20)
	o := &Orchestrator{registry: reg}
	return o, reg
}

func bindOrFail(t *testing.T, reg *registry.Registry, simID string, kind registry.AgentKind, entityID string) {
	t.Helper()
	sc, err := reg.RegisterScript(context.Background(), simID, "user-1", kind, `function generate_decisions(context) { return {}; }`)
	require.NoError(t, err)
	require.NoError(t, reg.AttachScript(context.Background(), simID, kind, entityID, sc.ScriptID, 0))
}

func TestCheckCoverage_ReportsUncoveredHouseholdsAndSingletons(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	w := &worldstate.WorldState{Households: map[string]*worldstate.HouseholdState{
		"h1": {ID: "h1"},
		"h2": {ID: "h2"},
	}}

	result := o.checkCoverage("sim-1", w, 0)
	assert.True(t, result.HasGaps())
	assert.ElementsMatch(t, []string{"h1", "h2"}, result.Uncovered[registry.KindHousehold])
	assert.Contains(t, result.Uncovered[registry.KindFirm], registry.SingletonEntityID(registry.KindFirm))
}

func TestCheckCoverage_NoGapsOnceEveryAgentIsBound(t *testing.T) {
	o, reg := newTestOrchestrator(t)
	w := &worldstate.WorldState{Households: map[string]*worldstate.HouseholdState{"h1": {ID: "h1"}}}

	bindOrFail(t, reg, "sim-1", registry.KindHousehold, "h1")
	for _, kind := range singletonKinds {
		bindOrFail(t, reg, "sim-1", kind, registry.SingletonEntityID(kind))
	}

	result := o.checkCoverage("sim-1", w, 0)
	assert.False(t, result.HasGaps())
	assert.Empty(t, result.AllMissing())
}

func TestCoverageResult_AllMissingIsSortedAcrossKinds(t *testing.T) {
	result := CoverageResult{
		Uncovered: map[registry.AgentKind][]string{
			registry.KindHousehold: {"h2", "h1"},
			registry.KindFirm:      {registry.SingletonEntityID(registry.KindFirm)},
		},
	}
	got := result.AllMissing()
	assert.Equal(t, []string{"firm/firm", "household/h1", "household/h2"}, got)
}
