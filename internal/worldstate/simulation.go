package worldstate

import "time"

// SimulationStatus is the orchestrator-visible lifecycle state (design doc
// Section 4.8).
type SimulationStatus string

const (
	StatusUninitialized SimulationStatus = "uninitialized"
	StatusReady         SimulationStatus = "ready"
	StatusAdvancing     SimulationStatus = "advancing"
	StatusLocked        SimulationStatus = "locked"
	StatusFailed        SimulationStatus = "failed"
)

// Simulation is the per-tenant control record: identity, cadence position,
// and the quota/feature settings layered over process-wide config.
type Simulation struct {
	ID             string           `json:"id" db:"id"`
	Status         SimulationStatus `json:"status" db:"status"`
	TickIndex      uint64           `json:"tick_index" db:"tick_index"`
	TickInDay      int              `json:"tick_in_day" db:"tick_in_day"`
	DayIndex       int              `json:"day_index" db:"day_index"`
	TicksPerDay    int              `json:"ticks_per_day" db:"ticks_per_day"`
	GlobalRNGSeed  int64            `json:"global_rng_seed" db:"global_rng_seed"`
	ScriptLimit    int              `json:"script_limit" db:"script_limit"`
	ShockEnabled   bool             `json:"shock_enabled" db:"shock_enabled"`
	AllowFallbackForMissing bool    `json:"allow_fallback_for_missing" db:"allow_fallback_for_missing"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	LastTickAt     time.Time        `json:"last_tick_at" db:"last_tick_at"`
	FailureMessage string           `json:"failure_message,omitempty" db:"failure_message"`
}

// AtDayBoundary reports whether the simulation is positioned at the start of
// a day (tick_in_day == 0), the only point at which script rotation between
// days takes effect.
func (s *Simulation) AtDayBoundary() bool {
	return s.TickInDay == 0
}

// AdvanceTick moves the cadence counters forward by one tick, wrapping
// tick_in_day and incrementing day_index at the day boundary.
func (s *Simulation) AdvanceTick() {
	s.TickIndex++
	s.TickInDay++
	if s.TickInDay >= s.TicksPerDay {
		s.TickInDay = 0
		s.DayIndex++
	}
}
