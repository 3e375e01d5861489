// Package store implements the two-tier State Store: a redis cache tier
// used for all hot-path reads/writes during a tick, and a sqlx/sqlite
// durable tier written through after every successful cache write. The
// split and the migrate-then-prepare idiom below are grounded directly on
// the teacher's persistence layer.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/macrosim/internal/worldstate"
)

// Durable wraps the sqlite-backed durable tier: scripts, tick logs,
// per-simulation limits, and full world snapshots.
type Durable struct {
	conn *sqlx.DB
}

// OpenDurable opens or creates the sqlite database at path.
func OpenDurable(path string) (*Durable, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}
	d := &Durable{conn: conn}
	if err := d.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate durable store: %w", err)
	}
	return d, nil
}

// Close closes the underlying connection.
func (d *Durable) Close() error { return d.conn.Close() }

func (d *Durable) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS simulations (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		tick_index INTEGER NOT NULL,
		tick_in_day INTEGER NOT NULL,
		day_index INTEGER NOT NULL,
		ticks_per_day INTEGER NOT NULL,
		global_rng_seed INTEGER NOT NULL,
		script_limit INTEGER NOT NULL,
		shock_enabled INTEGER NOT NULL,
		allow_fallback_for_missing INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		last_tick_at TEXT NOT NULL,
		failure_message TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS world_snapshots (
		simulation_id TEXT PRIMARY KEY,
		tick_index INTEGER NOT NULL,
		world_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scripts (
		script_id TEXT PRIMARY KEY,
		simulation_id TEXT,
		user_id TEXT NOT NULL,
		agent_kind TEXT NOT NULL,
		code TEXT NOT NULL,
		code_version TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS script_bindings (
		simulation_id TEXT NOT NULL,
		agent_kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		script_id TEXT NOT NULL,
		effective_day INTEGER NOT NULL,
		PRIMARY KEY (simulation_id, agent_kind, entity_id)
	);

	CREATE TABLE IF NOT EXISTS tick_logs (
		simulation_id TEXT NOT NULL,
		tick_index INTEGER NOT NULL,
		summary_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (simulation_id, tick_index)
	);

	CREATE TABLE IF NOT EXISTS simulation_limits (
		simulation_id TEXT PRIMARY KEY,
		script_limit INTEGER NOT NULL,
		max_script_execution_concurrency INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scripts_sim ON scripts(simulation_id);
	CREATE INDEX IF NOT EXISTS idx_scripts_user ON scripts(user_id);
	CREATE INDEX IF NOT EXISTS idx_tick_logs_sim ON tick_logs(simulation_id);
	`
	_, err := d.conn.Exec(schema)
	return err
}

// SaveSimulation upserts the simulation control record.
func (d *Durable) SaveSimulation(ctx context.Context, sim *worldstate.Simulation) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO simulations
			(id, status, tick_index, tick_in_day, day_index, ticks_per_day,
			 global_rng_seed, script_limit, shock_enabled, allow_fallback_for_missing,
			 created_at, last_tick_at, failure_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, tick_index=excluded.tick_index,
			tick_in_day=excluded.tick_in_day, day_index=excluded.day_index,
			ticks_per_day=excluded.ticks_per_day, global_rng_seed=excluded.global_rng_seed,
			script_limit=excluded.script_limit, shock_enabled=excluded.shock_enabled,
			allow_fallback_for_missing=excluded.allow_fallback_for_missing,
			last_tick_at=excluded.last_tick_at, failure_message=excluded.failure_message`,
		sim.ID, string(sim.Status), sim.TickIndex, sim.TickInDay, sim.DayIndex, sim.TicksPerDay,
		sim.GlobalRNGSeed, sim.ScriptLimit, sim.ShockEnabled, sim.AllowFallbackForMissing,
		sim.CreatedAt.Format(time.RFC3339Nano),
		sim.LastTickAt.Format(time.RFC3339Nano), sim.FailureMessage,
	)
	if err != nil {
		return fmt.Errorf("save simulation %s: %w", sim.ID, err)
	}
	return nil
}

type simulationRow struct {
	ID                      string `db:"id"`
	Status                  string `db:"status"`
	TickIndex               uint64 `db:"tick_index"`
	TickInDay               int    `db:"tick_in_day"`
	DayIndex                int    `db:"day_index"`
	TicksPerDay             int    `db:"ticks_per_day"`
	GlobalRNGSeed           int64  `db:"global_rng_seed"`
	ScriptLimit             int    `db:"script_limit"`
	ShockEnabled            bool   `db:"shock_enabled"`
	AllowFallbackForMissing bool   `db:"allow_fallback_for_missing"`
	CreatedAt               string `db:"created_at"`
	LastTickAt              string `db:"last_tick_at"`
	FailureMessage          string `db:"failure_message"`
}

// LoadSimulation reads the simulation control record, or returns
// sql.ErrNoRows-wrapping error if it doesn't exist.
func (d *Durable) LoadSimulation(ctx context.Context, id string) (*worldstate.Simulation, error) {
	var row simulationRow
	if err := d.conn.GetContext(ctx, &row, "SELECT * FROM simulations WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("load simulation %s: %w", id, err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, row.CreatedAt)
	lastTickAt, _ := time.Parse(time.RFC3339Nano, row.LastTickAt)
	return &worldstate.Simulation{
		ID:                      row.ID,
		Status:                  worldstate.SimulationStatus(row.Status),
		TickIndex:               row.TickIndex,
		TickInDay:               row.TickInDay,
		DayIndex:                row.DayIndex,
		TicksPerDay:             row.TicksPerDay,
		GlobalRNGSeed:           row.GlobalRNGSeed,
		ScriptLimit:             row.ScriptLimit,
		ShockEnabled:            row.ShockEnabled,
		AllowFallbackForMissing: row.AllowFallbackForMissing,
		CreatedAt:               createdAt,
		LastTickAt:              lastTickAt,
		FailureMessage:          row.FailureMessage,
	}, nil
}

// DeleteSimulation removes a simulation's own durable rows, but preserves
// user scripts: they are detached (simulation_id cleared, reverting them to
// the owner's personal library) rather than erased, matching the "delete
// detaches bindings, never scripts" rule. Bindings themselves are
// simulation-scoped and do not survive.
func (d *Durable) DeleteSimulation(ctx context.Context, id string) error {
	tx, err := d.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE scripts SET simulation_id = '' WHERE simulation_id = ?", id); err != nil {
		return fmt.Errorf("detach scripts from %s: %w", id, err)
	}
	for _, table := range []string{"simulations", "world_snapshots", "script_bindings", "tick_logs", "simulation_limits"} {
		col := "id"
		if table != "simulations" {
			col = "simulation_id"
		}
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, col), id); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// SaveWorldSnapshot persists a full world-state blob, overwriting any prior
// snapshot for the simulation.
func (d *Durable) SaveWorldSnapshot(ctx context.Context, simID string, tickIndex uint64, w *worldstate.WorldState) error {
	blob, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal world snapshot: %w", err)
	}
	_, err = d.conn.ExecContext(ctx, `
		INSERT INTO world_snapshots (simulation_id, tick_index, world_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(simulation_id) DO UPDATE SET
			tick_index=excluded.tick_index, world_json=excluded.world_json, updated_at=excluded.updated_at`,
		simID, tickIndex, string(blob), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save world snapshot %s: %w", simID, err)
	}
	return nil
}

// LoadWorldSnapshot reads the last persisted full world-state blob.
func (d *Durable) LoadWorldSnapshot(ctx context.Context, simID string) (*worldstate.WorldState, error) {
	var blob string
	err := d.conn.GetContext(ctx, &blob, "SELECT world_json FROM world_snapshots WHERE simulation_id = ?", simID)
	if err != nil {
		return nil, fmt.Errorf("load world snapshot %s: %w", simID, err)
	}
	var w worldstate.WorldState
	if err := json.Unmarshal([]byte(blob), &w); err != nil {
		return nil, fmt.Errorf("unmarshal world snapshot %s: %w", simID, err)
	}
	return &w, nil
}

// AppendTickLog records one tick's summary for list_tick_logs.
func (d *Durable) AppendTickLog(ctx context.Context, simID string, tickIndex uint64, summary any) error {
	blob, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal tick log: %w", err)
	}
	_, err = d.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO tick_logs (simulation_id, tick_index, summary_json, created_at)
		VALUES (?, ?, ?, ?)`,
		simID, tickIndex, string(blob), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append tick log %s/%d: %w", simID, tickIndex, err)
	}
	return nil
}

// TickLogRow is one row returned by ListTickLogs.
type TickLogRow struct {
	TickIndex   uint64 `db:"tick_index"`
	SummaryJSON string `db:"summary_json"`
	CreatedAt   string `db:"created_at"`
}

// ListTickLogs returns up to limit most-recent tick log rows, newest first.
func (d *Durable) ListTickLogs(ctx context.Context, simID string, limit int) ([]TickLogRow, error) {
	var rows []TickLogRow
	err := d.conn.SelectContext(ctx, &rows,
		"SELECT tick_index, summary_json, created_at FROM tick_logs WHERE simulation_id = ? ORDER BY tick_index DESC LIMIT ?",
		simID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tick logs %s: %w", simID, err)
	}
	return rows, nil
}
