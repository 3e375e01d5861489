package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/macrosim/internal/config"
	"github.com/talgya/macrosim/internal/decision"
	"github.com/talgya/macrosim/internal/errs"
	"github.com/talgya/macrosim/internal/logic"
	"github.com/talgya/macrosim/internal/registry"
	"github.com/talgya/macrosim/internal/sandbox"
	"github.com/talgya/macrosim/internal/worldstate"
)

// CreateSimulation creates a simulation record and seeds its initial world
// state, or returns the existing one unchanged if id was already in use
// (design doc Section 6, create_simulation). cfg layers over process-wide
// defaults; an empty id is assigned a fresh one.
func (o *Orchestrator) CreateSimulation(ctx context.Context, id string, cfg config.Config, initial *worldstate.WorldState) (SimulationSummary, error) {
	if id == "" {
		id = uuid.New().String()
	}
	if err := cfg.Validate(); err != nil {
		return SimulationSummary{}, err
	}

	now := time.Now().UTC()
	sim := &worldstate.Simulation{
		ID:                      id,
		Status:                  worldstate.StatusReady,
		TickIndex:               0,
		TickInDay:               0,
		DayIndex:                0,
		TicksPerDay:             cfg.TicksPerDay,
		GlobalRNGSeed:           cfg.GlobalRNGSeed,
		ScriptLimit:             0,
		ShockEnabled:            cfg.Features.ShockEnabled,
		AllowFallbackForMissing: cfg.AllowFallbackForMissing,
		CreatedAt:               now,
		LastTickAt:              now,
	}
	initial.SimulationID = id

	saved, err := o.store.EnsureSimulation(ctx, sim, initial)
	if err != nil {
		return SimulationSummary{}, err
	}
	if err := o.registry.LoadBindings(ctx, id); err != nil {
		return SimulationSummary{}, err
	}
	return toSummary(saved), nil
}

func toSummary(sim *worldstate.Simulation) SimulationSummary {
	return SimulationSummary{
		ID:          sim.ID,
		Status:      string(sim.Status),
		TickIndex:   sim.TickIndex,
		DayIndex:    sim.DayIndex,
		TicksPerDay: sim.TicksPerDay,
	}
}

// GetState returns the current world state for a simulation.
func (o *Orchestrator) GetState(ctx context.Context, simID string) (*worldstate.WorldState, error) {
	return o.store.GetWorldState(ctx, simID)
}

// RunTick executes the ten-step tick algorithm for one simulation (design
// doc Section 4.8). admin overrides take precedence over both scripts and
// fallback in the Decision Merger.
func (o *Orchestrator) RunTick(ctx context.Context, simID string, admin decision.AdminOverrides) (TickResult, error) {
	lock := o.simLock(simID)
	lock.Lock()
	defer lock.Unlock()

	sim, err := o.store.LoadSimulationRecord(ctx, simID)
	if err != nil {
		return TickResult{}, err
	}
	if sim.Status == worldstate.StatusFailed {
		return TickResult{}, errs.New(errs.KindSimulationLocked, simID, "simulation is frozen after a prior failure")
	}
	if sim.Status == worldstate.StatusAdvancing || sim.Status == worldstate.StatusLocked {
		return TickResult{}, errs.New(errs.KindSimulationLocked, simID, "simulation is already advancing")
	}

	// Step 1: acquire the single-writer lock (state -> Advancing).
	sim.Status = worldstate.StatusAdvancing
	if err := o.store.SaveSimulationRecord(ctx, sim); err != nil {
		return TickResult{}, err
	}

	result, runErr := o.runTickLocked(ctx, sim, admin)
	if runErr != nil {
		if errs.KindOf(runErr) == errs.KindMissingAgentScripts {
			sim.Status = worldstate.StatusReady
			if err := o.store.SaveSimulationRecord(ctx, sim); err != nil {
				o.logger.Error("failed to revert simulation status after coverage gap", "simulation_id", simID, "error", err)
			}
			return TickResult{}, runErr
		}
		sim.Status = worldstate.StatusFailed
		sim.FailureMessage = runErr.Error()
		if err := o.store.SaveSimulationRecord(ctx, sim); err != nil {
			o.logger.Error("failed to persist failed simulation status", "simulation_id", simID, "error", err)
		}
		return TickResult{}, runErr
	}

	return result, nil
}

func (o *Orchestrator) runTickLocked(ctx context.Context, sim *worldstate.Simulation, admin decision.AdminOverrides) (TickResult, error) {
	simID := sim.ID

	// Step 2: read the world state.
	w, err := o.store.GetWorldState(ctx, simID)
	if err != nil {
		return TickResult{}, err
	}
	w = w.Clone()

	// Refresh the binding index from the durable tier, so a fresh process
	// (a CLI invocation or a restarted daemon) sees the attached scripts.
	if err := o.registry.LoadBindings(ctx, simID); err != nil {
		return TickResult{}, err
	}

	// Step 3: Coverage Guard.
	coverage := o.checkCoverage(simID, w, sim.DayIndex)
	if coverage.HasGaps() && !sim.AllowFallbackForMissing {
		missing := coverage.AllMissing()
		return TickResult{}, errs.New(errs.KindMissingAgentScripts, simID,
			fmt.Sprintf("missing script bindings for: %v", missing))
	}

	postAdvanceTickInDay := sim.TickInDay + 1
	if postAdvanceTickInDay >= sim.TicksPerDay {
		postAdvanceTickInDay = 0
	}

	// Step 4/5: resolve bindings, trim contexts, dispatch to the sandbox.
	bindings, bindingMeta, err := o.collectBindings(ctx, simID, w, sim, coverage, postAdvanceTickInDay)
	if err != nil {
		return TickResult{}, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, o.cfg.ScriptTimeout())
	defer cancel()
	results := o.pool.Dispatch(ctx, timeoutCtx, bindings)

	// Step 6/7: merge admin overrides, script overrides, and fallback.
	td, err := o.buildDecisions(w, sim, admin, bindingMeta, results)
	if err != nil {
		return TickResult{}, err
	}

	// Step 8: run logic modules in fixed order.
	cmds, logs, err := logic.RunTick(w, td, o.cfg, sim.GlobalRNGSeed, sim.TickIndex+1, postAdvanceTickInDay)
	if err != nil {
		return TickResult{}, errs.Wrap(errs.KindInvariantViolation, simID, "logic stage failed", err)
	}

	// Step 9: apply commands atomically and append the tick log.
	updated, err := o.store.ApplyUpdates(ctx, simID, sim.TickIndex+1, cmds)
	if err != nil {
		return TickResult{}, err
	}
	entries := make([]worldstate.TickLogEntry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, worldstate.TickLogEntry{
			SimulationID: simID,
			Tick:         sim.TickIndex + 1,
			Day:          sim.DayIndex,
			Message:      l.Message,
			Context:      l.Context,
			RecordedAt:   time.Now().UTC(),
		})
	}
	if err := o.store.RecordTick(ctx, simID, sim.TickIndex+1, entries); err != nil {
		return TickResult{}, err
	}

	// Step 10: advance cadence counters, return to Ready.
	sim.AdvanceTick()
	sim.Status = worldstate.StatusReady
	sim.LastTickAt = time.Now().UTC()
	if err := o.store.SaveSimulationRecord(ctx, sim); err != nil {
		return TickResult{}, err
	}

	macroSummary := toMacroSummary(updated.Macro)

	logSummaries := make([]TickLogSummary, 0, len(entries))
	for _, e := range entries {
		logSummaries = append(logSummaries, TickLogSummary{Message: e.Message, Context: e.Context})
	}

	return TickResult{
		NewTick: sim.TickIndex,
		NewDay:  sim.DayIndex,
		Logs:    logSummaries,
		Macro:   macroSummary,
	}, nil
}

func toMacroSummary(m worldstate.MacroState) MacroSummary {
	return MacroSummary{
		GDP:              m.GDP,
		Inflation:        m.Inflation,
		UnemploymentRate: m.UnemploymentRate,
		PriceIndex:       m.PriceIndex,
		WageIndex:        m.WageIndex,
	}
}

// bindingMeta records which agent kind and entity a dispatched sandbox
// binding belongs to, so results can be routed back during merge.
type bindingMeta struct {
	kind     registry.AgentKind
	entityID string
}

func (o *Orchestrator) collectBindings(ctx context.Context, simID string, w *worldstate.WorldState, sim *worldstate.Simulation, coverage CoverageResult, postAdvanceTickInDay int) ([]sandbox.Binding, []bindingMeta, error) {
	var bindings []sandbox.Binding
	var meta []bindingMeta

	addKind := func(kind registry.AgentKind) error {
		for entityID, scriptID := range coverage.Covered[kind] {
			sc, err := o.registry.LoadScript(ctx, simID, scriptID)
			if err != nil {
				return err
			}
			scCtx, ok := buildContext(w, o.cfg, kind, entityID, sim.TickIndex+1, postAdvanceTickInDay, sim.DayIndex)
			if !ok {
				continue
			}
			bindings = append(bindings, sandbox.Binding{
				EntityID:    entityID,
				Code:        sc.Code,
				CodeVersion: sc.CodeVersion,
				Context:     scCtx,
			})
			meta = append(meta, bindingMeta{kind: kind, entityID: entityID})
		}
		return nil
	}

	for _, kind := range singletonKinds {
		if err := addKind(kind); err != nil {
			return nil, nil, err
		}
	}
	if err := addKind(registry.KindHousehold); err != nil {
		return nil, nil, err
	}

	// Sort bindings and their meta together so meta[i] still describes bindings[i].
	order := make([]int, len(bindings))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return bindings[order[i]].EntityID < bindings[order[j]].EntityID })
	sortedBindings := make([]sandbox.Binding, len(order))
	sortedMeta := make([]bindingMeta, len(order))
	for i, idx := range order {
		sortedBindings[i] = bindings[idx]
		sortedMeta[i] = meta[idx]
	}
	return sortedBindings, sortedMeta, nil
}

// buildDecisions runs the Decision Merger over admin overrides, sandbox
// results (parsed per-kind), and fallback-manager output, in that
// precedence order (design doc Section 4.6).
func (o *Orchestrator) buildDecisions(w *worldstate.WorldState, sim *worldstate.Simulation, admin decision.AdminOverrides, meta []bindingMeta, results []sandbox.Result) (*decision.TickDecisions, error) {
	householdIDs := make([]string, 0, len(w.Households))
	for id := range w.Households {
		householdIDs = append(householdIDs, id)
	}
	td := decision.NewTickDecisions(householdIDs)

	scriptByKey := make(map[string]any)
	for i, r := range results {
		if i >= len(meta) {
			break
		}
		m := meta[i]
		if r.Err != nil {
			o.logger.Warn("script invocation failed, falling back to baseline",
				"simulation_id", sim.ID, "agent_kind", m.kind, "entity_id", m.entityID, "error", r.Err)
			continue
		}
		parsed, err := decision.ParseOverride(m.kind, r.Overrides)
		if err != nil {
			o.logger.Warn("script returned an invalid override, falling back to baseline",
				"simulation_id", sim.ID, "agent_kind", m.kind, "entity_id", m.entityID, "error", err)
			continue
		}
		scriptByKey[string(m.kind)+"/"+m.entityID] = parsed
	}

	for id, h := range w.Households {
		var script *decision.HouseholdDecision
		if v, ok := scriptByKey[string(registry.KindHousehold)+"/"+id].(*decision.HouseholdDecision); ok {
			script = v
		}
		fb := o.fallback.Household(h)
		td.Households[id] = o.merger.Household(id, admin.Households[id], script, fb)
	}

	if w.Firm != nil {
		var script *decision.FirmDecision
		if v, ok := scriptByKey[string(registry.KindFirm)+"/"+registry.SingletonEntityID(registry.KindFirm)].(*decision.FirmDecision); ok {
			script = v
		}
		fb := o.fallback.Firm(w.Firm, o.cfg)
		td.Firm = o.merger.Firm(admin.Firm, script, fb)
	}
	if w.Bank != nil {
		var script *decision.BankDecision
		if v, ok := scriptByKey[string(registry.KindBank)+"/"+registry.SingletonEntityID(registry.KindBank)].(*decision.BankDecision); ok {
			script = v
		}
		fb := o.fallback.Bank(w.Bank, w.CentralBank)
		td.Bank = o.merger.Bank(admin.Bank, script, fb)
	}
	if w.CentralBank != nil {
		var script *decision.CentralBankDecision
		if v, ok := scriptByKey[string(registry.KindCentralBank)+"/"+registry.SingletonEntityID(registry.KindCentralBank)].(*decision.CentralBankDecision); ok {
			script = v
		}
		fb := o.fallback.CentralBank(w.CentralBank, w.Macro)
		td.CentralBank = o.merger.CentralBank(admin.CentralBank, script, fb)
	}
	if w.Government != nil {
		var script *decision.GovernmentDecision
		if v, ok := scriptByKey[string(registry.KindGovernment)+"/"+registry.SingletonEntityID(registry.KindGovernment)].(*decision.GovernmentDecision); ok {
			script = v
		}
		fb := o.fallback.Government(w.Government, w.Macro)
		td.Government = o.merger.Government(admin.Government, script, fb)
	}

	return td, nil
}

// RunDay runs ticks until the simulation reaches its next day boundary, or
// ticksInDay ticks have executed, whichever comes first (design doc Section
// 6, run_day). Script rotation between days is effective immediately after
// the boundary tick, since AttachScript takes an effective_day checked
// against the now-current day index and UpdateScriptCode is accepted only
// at a day boundary.
func (o *Orchestrator) RunDay(ctx context.Context, simID string, ticksInDay int) (DayResult, error) {
	sim, err := o.store.LoadSimulationRecord(ctx, simID)
	if err != nil {
		return DayResult{}, err
	}
	if ticksInDay <= 0 {
		ticksInDay = sim.TicksPerDay
	}

	var last TickResult
	executed := 0
	for i := 0; i < ticksInDay; i++ {
		last, err = o.RunTick(ctx, simID, decision.AdminOverrides{})
		if err != nil {
			return DayResult{}, err
		}
		executed++
		sim, err = o.store.LoadSimulationRecord(ctx, simID)
		if err != nil {
			return DayResult{}, err
		}
		if sim.AtDayBoundary() {
			break
		}
	}

	return DayResult{
		TicksExecuted: executed,
		FinalTick:     last.NewTick,
		FinalDay:      last.NewDay,
		Macro:         last.Macro,
	}, nil
}

// ResetSimulation restores a simulation's cadence counters and world state
// to a caller-supplied snapshot.
func (o *Orchestrator) ResetSimulation(ctx context.Context, simID string, cfg config.Config, initial *worldstate.WorldState) error {
	lock := o.simLock(simID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	sim := &worldstate.Simulation{
		ID:                      simID,
		Status:                  worldstate.StatusReady,
		TickIndex:               0,
		TickInDay:               0,
		DayIndex:                0,
		TicksPerDay:             cfg.TicksPerDay,
		GlobalRNGSeed:           cfg.GlobalRNGSeed,
		ShockEnabled:            cfg.Features.ShockEnabled,
		AllowFallbackForMissing: cfg.AllowFallbackForMissing,
		CreatedAt:               now,
		LastTickAt:              now,
	}
	initial.SimulationID = simID
	return o.store.ResetSimulation(ctx, sim, initial)
}

// DeleteSimulation removes a simulation and its state from both store
// tiers. User scripts are detached into the owner's personal library, not
// erased.
func (o *Orchestrator) DeleteSimulation(ctx context.Context, simID string) error {
	return o.store.DeleteSimulation(ctx, simID)
}

// RegisterParticipant records that a user is participating in a simulation
// (owns at least one household binding slot).
func (o *Orchestrator) RegisterParticipant(ctx context.Context, simID, userID string) error {
	return o.store.RegisterParticipant(ctx, simID, userID)
}

// ListParticipants returns every registered participant of a simulation.
func (o *Orchestrator) ListParticipants(ctx context.Context, simID string) ([]string, error) {
	return o.store.ListParticipants(ctx, simID)
}

// ListTickLogs returns the most recent persisted tick logs for a
// simulation, decoded back into worldstate.TickLogEntry slices.
func (o *Orchestrator) ListTickLogs(ctx context.Context, simID string, limit int) ([][]worldstate.TickLogEntry, error) {
	rows, err := o.store.ListTickLogs(ctx, simID, limit)
	if err != nil {
		return nil, err
	}
	out := make([][]worldstate.TickLogEntry, 0, len(rows))
	for _, row := range rows {
		var entries []worldstate.TickLogEntry
		if err := json.Unmarshal([]byte(row.SummaryJSON), &entries); err != nil {
			return nil, errs.Wrap(errs.KindDurableStoreError, simID, "decode tick log row", err)
		}
		out = append(out, entries)
	}
	return out, nil
}

// RegisterScript registers a new user script, either into a simulation or
// into the caller's personal (unbound) library.
func (o *Orchestrator) RegisterScript(ctx context.Context, simID, userID string, kind registry.AgentKind, code string) (*registry.Script, error) {
	return o.registry.RegisterScript(ctx, simID, userID, kind, code)
}

// AttachScript binds a script to an (agent_kind, entity_id) pair, taking
// effect at the next day boundary.
func (o *Orchestrator) AttachScript(ctx context.Context, simID string, kind registry.AgentKind, entityID, scriptID string) error {
	sim, err := o.store.LoadSimulationRecord(ctx, simID)
	if err != nil {
		return err
	}
	effectiveDay := sim.DayIndex
	if !sim.AtDayBoundary() {
		effectiveDay = sim.DayIndex + 1
	}
	return o.registry.AttachScript(ctx, simID, kind, entityID, scriptID, effectiveDay)
}

// DetachScript removes a binding, reverting the entity to fallback
// coverage.
func (o *Orchestrator) DetachScript(ctx context.Context, simID string, kind registry.AgentKind, entityID string) error {
	return o.registry.DetachScript(ctx, simID, kind, entityID)
}

// UpdateScriptCode edits a script's body, permitted only when the
// simulation is currently positioned at a day boundary.
func (o *Orchestrator) UpdateScriptCode(ctx context.Context, simID, scriptID, newCode string) (*registry.Script, error) {
	sim, err := o.store.LoadSimulationRecord(ctx, simID)
	if err != nil {
		return nil, err
	}
	return o.registry.UpdateScriptCode(ctx, simID, scriptID, newCode, sim.AtDayBoundary())
}

// DeleteScript removes a script from the registry, releasing the owner's
// quota slot.
func (o *Orchestrator) DeleteScript(ctx context.Context, simID, scriptID, userID string) error {
	return o.registry.DeleteScript(ctx, simID, scriptID, userID)
}

// ListUserScripts returns every script a user owns in a simulation (or
// their personal library, when simID is empty).
func (o *Orchestrator) ListUserScripts(ctx context.Context, simID, userID string) ([]*registry.Script, error) {
	return o.registry.ListUserScripts(ctx, simID, userID)
}

// ListSimulationScripts returns every script registered within a
// simulation.
func (o *Orchestrator) ListSimulationScripts(ctx context.Context, simID string) ([]*registry.Script, error) {
	return o.registry.ListSimulationScripts(ctx, simID)
}
