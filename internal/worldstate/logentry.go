package worldstate

import "time"

// TickLogEntry is one append-only structured log record produced during a
// tick, persisted to both the cache (bounded ring) and durable tier
// (design doc Section 3).
type TickLogEntry struct {
	SimulationID string         `json:"simulation_id" db:"simulation_id"`
	Tick         uint64         `json:"tick" db:"tick"`
	Day          int            `json:"day" db:"day"`
	Message      string         `json:"message" db:"message"`
	Context      map[string]any `json:"context,omitempty" db:"-"`
	RecordedAt   time.Time      `json:"recorded_at" db:"recorded_at"`
}
