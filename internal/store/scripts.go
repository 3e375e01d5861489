package store

import (
	"context"
	"fmt"
	"time"

	"github.com/talgya/macrosim/internal/registry"
)

// SaveScript upserts a script row. Implements registry.DurableStore.
func (d *Durable) SaveScript(ctx context.Context, s *registry.Script) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO scripts (script_id, simulation_id, user_id, agent_kind, code, code_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(script_id) DO UPDATE SET
			code=excluded.code, code_version=excluded.code_version, updated_at=excluded.updated_at`,
		s.ScriptID, s.SimulationID, s.UserID, string(s.AgentKind), s.Code, s.CodeVersion,
		s.CreatedAt.Format(time.RFC3339Nano), s.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save script %s: %w", s.ScriptID, err)
	}
	return nil
}

type scriptRow struct {
	ScriptID     string `db:"script_id"`
	SimulationID string `db:"simulation_id"`
	UserID       string `db:"user_id"`
	AgentKind    string `db:"agent_kind"`
	Code         string `db:"code"`
	CodeVersion  string `db:"code_version"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func (row scriptRow) toScript() *registry.Script {
	createdAt, _ := time.Parse(time.RFC3339Nano, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, row.UpdatedAt)
	return &registry.Script{
		ScriptID:     row.ScriptID,
		SimulationID: row.SimulationID,
		UserID:       row.UserID,
		AgentKind:    registry.AgentKind(row.AgentKind),
		Code:         row.Code,
		CodeVersion:  row.CodeVersion,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
}

// LoadScript reads one script by id.
func (d *Durable) LoadScript(ctx context.Context, simID, scriptID string) (*registry.Script, error) {
	var row scriptRow
	err := d.conn.GetContext(ctx, &row,
		"SELECT * FROM scripts WHERE simulation_id = ? AND script_id = ?", simID, scriptID)
	if err != nil {
		return nil, fmt.Errorf("load script %s: %w", scriptID, err)
	}
	return row.toScript(), nil
}

// DeleteScript removes a script row.
func (d *Durable) DeleteScript(ctx context.Context, simID, scriptID string) error {
	_, err := d.conn.ExecContext(ctx,
		"DELETE FROM scripts WHERE simulation_id = ? AND script_id = ?", simID, scriptID)
	if err != nil {
		return fmt.Errorf("delete script %s: %w", scriptID, err)
	}
	return nil
}

// ListUserScripts returns every script a user owns within a simulation.
func (d *Durable) ListUserScripts(ctx context.Context, simID, userID string) ([]*registry.Script, error) {
	var rows []scriptRow
	err := d.conn.SelectContext(ctx, &rows,
		"SELECT * FROM scripts WHERE simulation_id = ? AND user_id = ? ORDER BY created_at", simID, userID)
	if err != nil {
		return nil, fmt.Errorf("list user scripts %s: %w", userID, err)
	}
	scripts := make([]*registry.Script, len(rows))
	for i, r := range rows {
		scripts[i] = r.toScript()
	}
	return scripts, nil
}

// ListSimulationScripts returns every script registered within a
// simulation, regardless of owner.
func (d *Durable) ListSimulationScripts(ctx context.Context, simID string) ([]*registry.Script, error) {
	var rows []scriptRow
	err := d.conn.SelectContext(ctx, &rows,
		"SELECT * FROM scripts WHERE simulation_id = ? ORDER BY created_at", simID)
	if err != nil {
		return nil, fmt.Errorf("list simulation scripts %s: %w", simID, err)
	}
	scripts := make([]*registry.Script, len(rows))
	for i, r := range rows {
		scripts[i] = r.toScript()
	}
	return scripts, nil
}

// SaveBinding upserts an (agent_kind, entity_id) script binding. A ScriptID
// of "" records a detach.
func (d *Durable) SaveBinding(ctx context.Context, b *registry.Binding) error {
	if b.ScriptID == "" {
		_, err := d.conn.ExecContext(ctx,
			"DELETE FROM script_bindings WHERE simulation_id = ? AND agent_kind = ? AND entity_id = ?",
			b.SimulationID, string(b.AgentKind), b.EntityID)
		if err != nil {
			return fmt.Errorf("delete binding %s/%s: %w", b.AgentKind, b.EntityID, err)
		}
		return nil
	}
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO script_bindings (simulation_id, agent_kind, entity_id, script_id, effective_day)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(simulation_id, agent_kind, entity_id) DO UPDATE SET
			script_id=excluded.script_id, effective_day=excluded.effective_day`,
		b.SimulationID, string(b.AgentKind), b.EntityID, b.ScriptID, b.EffectiveDay,
	)
	if err != nil {
		return fmt.Errorf("save binding %s/%s: %w", b.AgentKind, b.EntityID, err)
	}
	return nil
}

// LoadBindings reads every binding for a simulation. The map key is not
// authoritative — callers should index by (AgentKind, EntityID) from the
// returned values, since multiple agent kinds can share an entity_id
// sentinel (e.g. "firm" as both a kind name and its own entity id).
func (d *Durable) LoadBindings(ctx context.Context, simID string) (map[string]*registry.Binding, error) {
	var rows []registry.Binding
	err := d.conn.SelectContext(ctx, &rows,
		"SELECT simulation_id, agent_kind, entity_id, script_id, effective_day FROM script_bindings WHERE simulation_id = ?", simID)
	if err != nil {
		return nil, fmt.Errorf("load bindings %s: %w", simID, err)
	}
	out := make(map[string]*registry.Binding, len(rows))
	for i := range rows {
		key := string(rows[i].AgentKind) + "/" + rows[i].EntityID
		out[key] = &rows[i]
	}
	return out, nil
}
