// Package orchestrator implements the Orchestrator: the control plane that
// creates/resets simulations, advances ticks and days, enforces the
// coverage invariant, and coordinates the Script Registry, Sandbox
// Executor, Baseline Fallback Manager, Decision Merger, and Logic Modules
// into atomic State Store writes (design doc Section 4.8).
package orchestrator

import (
	"log/slog"
	"sync"

	"github.com/talgya/macrosim/internal/config"
	"github.com/talgya/macrosim/internal/fallback"
	"github.com/talgya/macrosim/internal/merge"
	"github.com/talgya/macrosim/internal/registry"
	"github.com/talgya/macrosim/internal/sandbox"
	"github.com/talgya/macrosim/internal/store"
)

// ScriptAPIVersion is the currently supported script entry-point contract
// version, stamped into every trimmed context.
const ScriptAPIVersion = 1

// Orchestrator wires the other components behind the single-writer-per-
// simulation tick algorithm. One Orchestrator serves every simulation in
// the process; per-simulation serialization is via simLocks.
type Orchestrator struct {
	store    *store.Store
	registry *registry.Registry
	pool     *sandbox.Pool
	fallback *fallback.Manager
	merger   *merge.Merger
	cfg      config.Config
	logger   *slog.Logger

	locksMu  sync.Mutex
	simLocks map[string]*sync.Mutex
}

// New builds an Orchestrator over already-constructed components.
func New(st *store.Store, reg *registry.Registry, pool *sandbox.Pool, cfg config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    st,
		registry: reg,
		pool:     pool,
		fallback: fallback.New(),
		merger:   merge.New(logger),
		cfg:      cfg,
		logger:   logger,
		simLocks: make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) simLock(simID string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	l, ok := o.simLocks[simID]
	if !ok {
		l = &sync.Mutex{}
		o.simLocks[simID] = l
	}
	return l
}

// TickResult is run_tick's return value (design doc Section 6).
type TickResult struct {
	NewTick uint64
	NewDay  int
	Logs    []TickLogSummary
	Macro   MacroSummary
}

// DayResult is run_day's return value.
type DayResult struct {
	TicksExecuted int
	FinalTick     uint64
	FinalDay      int
	Macro         MacroSummary
}

// MacroSummary mirrors worldstate.MacroState for the external-facing result
// types, kept distinct so callers never depend on the internal data-model
// package directly.
type MacroSummary struct {
	GDP              float64
	Inflation        float64
	UnemploymentRate float64
	PriceIndex       float64
	WageIndex        float64
}

// TickLogSummary is one structured log line produced during a tick,
// returned to the caller alongside the persisted TickLogEntry.
type TickLogSummary struct {
	Message string
	Context map[string]any
}

// SimulationSummary is create_simulation's return value.
type SimulationSummary struct {
	ID          string
	Status      string
	TickIndex   uint64
	DayIndex    int
	TicksPerDay int
}
