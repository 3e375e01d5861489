package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/talgya/macrosim/internal/errs"
)

// DurableStore is the subset of the durable State Store tier the registry
// needs. Kept as a narrow interface so tests can substitute a fake without
// spinning up sqlite.
type DurableStore interface {
	SaveScript(ctx context.Context, s *Script) error
	LoadScript(ctx context.Context, simID, scriptID string) (*Script, error)
	DeleteScript(ctx context.Context, simID, scriptID string) error
	ListUserScripts(ctx context.Context, simID, userID string) ([]*Script, error)
	ListSimulationScripts(ctx context.Context, simID string) ([]*Script, error)
	SaveBinding(ctx context.Context, b *Binding) error
	LoadBindings(ctx context.Context, simID string) (map[string]*Binding, error)
}

// Registry is the Script Registry: CRUD plus the in-memory
// (simulation_id, agent_kind, entity_id) -> script_id binding index,
// loaded per simulation from the durable tier by LoadBindings and updated
// in memory by AttachScript/DetachScript (design notes Section 9).
type Registry struct {
	store DurableStore

	mu       sync.Mutex
	bindings map[string]map[string]*Binding // simulation_id -> "kind/entity" -> binding
	quotas   map[string]*quotaLimiter       // simulation_id -> per-user quota
	limit    int
}

// New builds a Registry with a fixed per-simulation, per-user script quota.
func New(store DurableStore, perUserScriptLimit int) *Registry {
	return &Registry{
		store:    store,
		bindings: make(map[string]map[string]*Binding),
		quotas:   make(map[string]*quotaLimiter),
		limit:    perUserScriptLimit,
	}
}

func bindingKey(kind AgentKind, entityID string) string {
	return string(kind) + "/" + entityID
}

func (r *Registry) quotaFor(simID string) *quotaLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotas[simID]
	if !ok {
		q = newQuotaLimiter(r.limit)
		r.quotas[simID] = q
	}
	return q
}

// RegisterScript validates, quota-checks, and durably stores a new script,
// returning the assigned script id and code version. simID may be empty to
// register into the caller's personal (unbound) library; AttachScript later
// binds it into a specific simulation.
func (r *Registry) RegisterScript(ctx context.Context, simID, userID string, kind AgentKind, code string) (*Script, error) {
	if err := Validate(code); err != nil {
		return nil, err
	}

	q := r.quotaFor(simID)
	if !q.Reserve(userID) {
		return nil, errs.New(errs.KindQuotaExceeded, userID, "user has reached their script quota for this simulation")
	}

	now := time.Now().UTC()
	script := &Script{
		ScriptID:     newScriptID(),
		SimulationID: simID,
		UserID:       userID,
		AgentKind:    kind,
		Code:         code,
		CodeVersion:  newCodeVersion(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.store.SaveScript(ctx, script); err != nil {
		q.Release(userID)
		return nil, errs.Wrap(errs.KindDurableStoreError, script.ScriptID, "save script", err)
	}
	return script, nil
}

// UpdateScriptCode is permitted only at day boundaries: it validates and
// re-saves a script body, rotating code_version while retaining whatever
// binding the script already has.
func (r *Registry) UpdateScriptCode(ctx context.Context, simID, scriptID, newCode string, atDayBoundary bool) (*Script, error) {
	if !atDayBoundary {
		return nil, errs.New(errs.KindNotAtDayBoundary, scriptID, "script code may only be updated at a day boundary")
	}
	if err := Validate(newCode); err != nil {
		return nil, err
	}
	existing, err := r.store.LoadScript(ctx, simID, scriptID)
	if err != nil {
		return nil, errs.Wrap(errs.KindNotFound, scriptID, "script not found", err)
	}
	existing.Code = newCode
	existing.CodeVersion = newCodeVersion()
	existing.UpdatedAt = time.Now().UTC()
	if err := r.store.SaveScript(ctx, existing); err != nil {
		return nil, errs.Wrap(errs.KindDurableStoreError, scriptID, "update script code", err)
	}
	return existing, nil
}

// DeleteScript removes a script and releases the user's quota slot. A
// script that is currently bound to an entity cannot be deleted.
func (r *Registry) DeleteScript(ctx context.Context, simID, scriptID, userID string) error {
	r.mu.Lock()
	for _, b := range r.bindings[simID] {
		if b.ScriptID == scriptID {
			r.mu.Unlock()
			return errs.New(errs.KindConflictingBinding, scriptID, "script is currently bound to an entity")
		}
	}
	r.mu.Unlock()

	if err := r.store.DeleteScript(ctx, simID, scriptID); err != nil {
		return errs.Wrap(errs.KindDurableStoreError, scriptID, "delete script", err)
	}
	r.quotaFor(simID).Release(userID)
	return nil
}

// ListUserScripts returns every script a user has registered in a
// simulation (or in their personal library, when simID is empty).
func (r *Registry) ListUserScripts(ctx context.Context, simID, userID string) ([]*Script, error) {
	scripts, err := r.store.ListUserScripts(ctx, simID, userID)
	if err != nil {
		return nil, errs.Wrap(errs.KindDurableStoreError, userID, "list user scripts", err)
	}
	return scripts, nil
}

// ListSimulationScripts returns every script registered within a
// simulation, regardless of owner.
func (r *Registry) ListSimulationScripts(ctx context.Context, simID string) ([]*Script, error) {
	scripts, err := r.store.ListSimulationScripts(ctx, simID)
	if err != nil {
		return nil, errs.Wrap(errs.KindDurableStoreError, simID, "list simulation scripts", err)
	}
	return scripts, nil
}

// AttachScript binds a script to an (agent_kind, entity_id) pair, taking
// effect at the next day boundary (effectiveDay is computed by the
// caller — the orchestrator knows the current day index). The availability
// check and the in-memory index update happen under the single
// registry-wide lock; the durable write is attempted first, and the
// in-memory index is only updated on its success, matching the
// "durable-write-then-rollback-on-failure" rule from design notes Section 9
// (here realized as "don't mutate memory until the durable write succeeds",
// which makes rollback unnecessary rather than deferred).
func (r *Registry) AttachScript(ctx context.Context, simID string, kind AgentKind, entityID, scriptID string, effectiveDay int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindingKey(kind, entityID)
	if existing, ok := r.bindingsFor(simID)[key]; ok && existing.ScriptID != "" && existing.ScriptID != scriptID {
		return errs.New(errs.KindConflictingBinding, entityID, "entity already has a bound script")
	}

	binding := &Binding{SimulationID: simID, AgentKind: kind, EntityID: entityID, ScriptID: scriptID, EffectiveDay: effectiveDay}
	if err := r.store.SaveBinding(ctx, binding); err != nil {
		return errs.Wrap(errs.KindDurableStoreError, entityID, "save script binding", err)
	}
	r.bindingsFor(simID)[key] = binding
	return nil
}

// DetachScript removes an (agent_kind, entity_id) binding, reverting it to
// fallback coverage.
func (r *Registry) DetachScript(ctx context.Context, simID string, kind AgentKind, entityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.SaveBinding(ctx, &Binding{SimulationID: simID, AgentKind: kind, EntityID: entityID, ScriptID: "", EffectiveDay: 0}); err != nil {
		return errs.Wrap(errs.KindDurableStoreError, entityID, "detach script binding", err)
	}
	delete(r.bindingsFor(simID), bindingKey(kind, entityID))
	return nil
}

func (r *Registry) bindingsFor(simID string) map[string]*Binding {
	b, ok := r.bindings[simID]
	if !ok {
		b = make(map[string]*Binding)
		r.bindings[simID] = b
	}
	return b
}

// LoadBindings rebuilds the in-memory binding index for a simulation from
// the durable tier; the orchestrator calls it when a simulation is created
// and at the start of every tick.
func (r *Registry) LoadBindings(ctx context.Context, simID string) error {
	loaded, err := r.store.LoadBindings(ctx, simID)
	if err != nil {
		return errs.Wrap(errs.KindDurableStoreError, simID, "load script bindings", err)
	}
	index := make(map[string]*Binding, len(loaded))
	for _, b := range loaded {
		index[bindingKey(b.AgentKind, b.EntityID)] = b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[simID] = index
	return nil
}

// ResolveBindings returns, for a set of (agent_kind, entity_id) pairs and
// the current day index, which entities have a script binding in effect
// (effective_day <= currentDay) and their script id, and which are
// uncovered. Uncovered entities fall through to the Baseline Fallback
// Manager.
func (r *Registry) ResolveBindings(simID string, kind AgentKind, entityIDs []string, currentDay int) (covered map[string]string, uncovered []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	covered = make(map[string]string)
	index := r.bindings[simID]
	for _, id := range entityIDs {
		b, ok := index[bindingKey(kind, id)]
		if !ok || b.ScriptID == "" || b.EffectiveDay > currentDay {
			uncovered = append(uncovered, id)
			continue
		}
		covered[id] = b.ScriptID
	}
	return covered, uncovered
}

// LoadScript fetches one script body by id, used by the Sandbox Executor to
// resolve a binding into code to run.
func (r *Registry) LoadScript(ctx context.Context, simID, scriptID string) (*Script, error) {
	script, err := r.store.LoadScript(ctx, simID, scriptID)
	if err != nil {
		return nil, errs.Wrap(errs.KindNotFound, scriptID, fmt.Sprintf("script %s not found", scriptID), err)
	}
	return script, nil
}
