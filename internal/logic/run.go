// Package logic implements the pure market-clearing and agent-evolution
// functions that turn a WorldState and a TickDecisions into the next
// WorldState. Every exported Run* function is deterministic in its
// (WorldState, TickDecisions, seed) inputs (design doc Section 4.7).
package logic

import (
	"fmt"

	"github.com/talgya/macrosim/internal/config"
	"github.com/talgya/macrosim/internal/decision"
	"github.com/talgya/macrosim/internal/worldstate"
)

// RunTick executes the fixed stage order required by the tick algorithm:
// shock injection, labor market (first tick of day only), agent planning,
// production, goods market, finance market, agent settlement, macro
// statistics (design doc Section 4.8 step 8). Each stage's commands are
// applied to w before the next stage runs, since later stages (production,
// goods market) read fields earlier stages just wrote (planned_production,
// price). The combined, in-order command log and tick log entries are
// returned for the caller to persist — applying them again from the same
// starting WorldState is a no-op check for determinism replay.
func RunTick(w *worldstate.WorldState, td *decision.TickDecisions, cfg config.Config, globalSeed int64, tickIndex uint64, tickInDay int) ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry, error) {
	var allCmds []worldstate.StateUpdateCommand
	var allLogs []worldstate.TickLogEntry

	stages := []func() ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry){
		func() ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
			return InjectShocks(w, cfg, globalSeed, tickIndex)
		},
		func() ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
			return ClearLaborMarket(w, td, globalSeed, tickIndex, tickInDay)
		},
		func() ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
			return PlanProduction(w, td), nil
		},
		func() ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
			return RunProduction(w), nil
		},
		func() ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
			return ClearGoodsMarket(w, td, globalSeed, tickIndex)
		},
		func() ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
			return ClearFinanceMarket(w, td, globalSeed, tickIndex)
		},
		func() ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
			return SettleAgents(w, cfg.TicksPerDay, tickInDay), nil
		},
		func() ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
			return RecomputeMacro(w)
		},
	}

	for i, stage := range stages {
		cmds, logs := stage()
		if err := worldstate.ApplyAll(w, cmds); err != nil {
			return allCmds, allLogs, fmt.Errorf("logic stage %d: %w", i, err)
		}
		allCmds = append(allCmds, cmds...)
		allLogs = append(allLogs, logs...)
	}
	return allCmds, allLogs, nil
}
