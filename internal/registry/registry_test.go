package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory DurableStore for exercising the Registry
// without sqlite, mirroring the narrow-interface-plus-fake convention the
// package's own doc comment calls out.
type fakeStore struct {
	scripts  map[string]*Script
	bindings map[string]map[string]*Binding
}

func newFakeStore() *fakeStore {
	return &fakeStore{scripts: map[string]*Script{}, bindings: map[string]map[string]*Binding{}}
}

func (f *fakeStore) SaveScript(ctx context.Context, s *Script) error {
	f.scripts[s.ScriptID] = s
	return nil
}

func (f *fakeStore) LoadScript(ctx context.Context, simID, scriptID string) (*Script, error) {
	s, ok := f.scripts[scriptID]
	if !ok {
		return nil, assert.AnError
	}
	return s, nil
}

func (f *fakeStore) DeleteScript(ctx context.Context, simID, scriptID string) error {
	delete(f.scripts, scriptID)
	return nil
}

func (f *fakeStore) ListUserScripts(ctx context.Context, simID, userID string) ([]*Script, error) {
	var out []*Script
	for _, s := range f.scripts {
		if s.SimulationID == simID && s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ListSimulationScripts(ctx context.Context, simID string) ([]*Script, error) {
	var out []*Script
	for _, s := range f.scripts {
		if s.SimulationID == simID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveBinding(ctx context.Context, b *Binding) error {
	if f.bindings[b.SimulationID] == nil {
		f.bindings[b.SimulationID] = map[string]*Binding{}
	}
	f.bindings[b.SimulationID][bindingKey(b.AgentKind, b.EntityID)] = b
	return nil
}

func (f *fakeStore) LoadBindings(ctx context.Context, simID string) (map[string]*Binding, error) {
	out := map[string]*Binding{}
	for k, b := range f.bindings[simID] {
		out[k] = b
	}
	return out, nil
}

const validScript = `function generate_decisions(context) { return {}; }`

func TestRegisterScript_ValidatesAndPersists(t *testing.T) {
	reg := New(newFakeStore(), 5)
	sc, err := reg.RegisterScript(context.Background(), "sim-1", "user-1", KindHousehold, validScript)
	require.NoError(t, err)
	assert.NotEmpty(t, sc.ScriptID)
	assert.NotEmpty(t, sc.CodeVersion)
}

func TestRegisterScript_RejectsInvalidCode(t *testing.T) {
	reg := New(newFakeStore(), 5)
	_, err := reg.RegisterScript(context.Background(), "sim-1", "user-1", KindHousehold, "this isn't valid JS {{{")
	require.Error(t, err)
}

func TestRegisterScript_EnforcesPerUserQuota(t *testing.T) {
	reg := New(newFakeStore(), 1)
	_, err := reg.RegisterScript(context.Background(), "sim-1", "user-1", KindHousehold, validScript)
	require.NoError(t, err)
	_, err = reg.RegisterScript(context.Background(), "sim-1", "user-1", KindHousehold, validScript)
	require.Error(t, err)
}

func TestAttachScript_RejectsConflictingBinding(t *testing.T) {
	reg := New(newFakeStore(), 5)
	sc1, err := reg.RegisterScript(context.Background(), "sim-1", "user-1", KindFirm, validScript)
	require.NoError(t, err)
	sc2, err := reg.RegisterScript(context.Background(), "sim-1", "user-1", KindFirm, validScript)
	require.NoError(t, err)

	entity := SingletonEntityID(KindFirm)
	require.NoError(t, reg.AttachScript(context.Background(), "sim-1", KindFirm, entity, sc1.ScriptID, 0))
	err = reg.AttachScript(context.Background(), "sim-1", KindFirm, entity, sc2.ScriptID, 0)
	require.Error(t, err)
}

func TestResolveBindings_HonorsEffectiveDay(t *testing.T) {
	reg := New(newFakeStore(), 5)
	sc, err := reg.RegisterScript(context.Background(), "sim-1", "user-1", KindHousehold, validScript)
	require.NoError(t, err)

	require.NoError(t, reg.AttachScript(context.Background(), "sim-1", KindHousehold, "h1", sc.ScriptID, 3))

	covered, uncovered := reg.ResolveBindings("sim-1", KindHousehold, []string{"h1"}, 1)
	assert.Empty(t, covered)
	assert.Equal(t, []string{"h1"}, uncovered, "binding effective on day 3 should not apply on day 1")

	covered, uncovered = reg.ResolveBindings("sim-1", KindHousehold, []string{"h1"}, 3)
	assert.Equal(t, sc.ScriptID, covered["h1"])
	assert.Empty(t, uncovered)
}

func TestDetachScript_RevertsToUncovered(t *testing.T) {
	reg := New(newFakeStore(), 5)
	sc, err := reg.RegisterScript(context.Background(), "sim-1", "user-1", KindHousehold, validScript)
	require.NoError(t, err)
	require.NoError(t, reg.AttachScript(context.Background(), "sim-1", KindHousehold, "h1", sc.ScriptID, 0))
	require.NoError(t, reg.DetachScript(context.Background(), "sim-1", KindHousehold, "h1"))

	_, uncovered := reg.ResolveBindings("sim-1", KindHousehold, []string{"h1"}, 0)
	assert.Equal(t, []string{"h1"}, uncovered)
}

func TestDeleteScript_RefusesWhileBound(t *testing.T) {
	reg := New(newFakeStore(), 5)
	sc, err := reg.RegisterScript(context.Background(), "sim-1", "user-1", KindHousehold, validScript)
	require.NoError(t, err)
	require.NoError(t, reg.AttachScript(context.Background(), "sim-1", KindHousehold, "h1", sc.ScriptID, 0))

	err = reg.DeleteScript(context.Background(), "sim-1", sc.ScriptID, "user-1")
	require.Error(t, err)
}

func TestLoadBindings_RebuildsIndexFromDurableTier(t *testing.T) {
	store := newFakeStore()
	reg := New(store, 5)
	sc, err := reg.RegisterScript(context.Background(), "sim-1", "user-1", KindHousehold, validScript)
	require.NoError(t, err)
	require.NoError(t, reg.AttachScript(context.Background(), "sim-1", KindHousehold, "h1", sc.ScriptID, 0))

	// A fresh Registry over the same durable store should recover the
	// binding without ever calling AttachScript again.
	fresh := New(store, 5)
	require.NoError(t, fresh.LoadBindings(context.Background(), "sim-1"))
	covered, _ := fresh.ResolveBindings("sim-1", KindHousehold, []string{"h1"}, 0)
	assert.Equal(t, sc.ScriptID, covered["h1"])
}
