// Package registry implements the Script Registry: CRUD over user scripts,
// static validation of untrusted script bodies, per-user quota enforcement,
// and the (simulation_id, agent_kind, entity_id) -> script_id binding index.
package registry

import (
	"time"

	"github.com/google/uuid"
)

// AgentKind names which entity kind a script governs.
type AgentKind string

const (
	KindHousehold  AgentKind = "household"
	KindFirm       AgentKind = "firm"
	KindBank       AgentKind = "bank"
	KindCentralBank AgentKind = "central_bank"
	KindGovernment AgentKind = "government"
)

// Script is one stored user script. CodeVersion changes on every update to
// Code, giving script bindings a stable point-in-time reference.
type Script struct {
	ScriptID     string    `json:"script_id" db:"script_id"`
	SimulationID string    `json:"simulation_id" db:"simulation_id"`
	UserID       string    `json:"user_id" db:"user_id"`
	AgentKind    AgentKind `json:"agent_kind" db:"agent_kind"`
	Code         string    `json:"code" db:"code"`
	CodeVersion  string    `json:"code_version" db:"code_version"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Binding maps one (agent_kind, entity_id) pair to the script currently
// governing it, plus the day it takes effect — bindings attached mid-day
// apply starting the next day boundary (design doc Section 4.2). For the
// four singleton agent kinds, entity_id is the kind name itself
// ("firm", "bank", "central_bank", "government"); for households it is the
// household id.
type Binding struct {
	SimulationID string    `json:"simulation_id" db:"simulation_id"`
	AgentKind    AgentKind `json:"agent_kind" db:"agent_kind"`
	EntityID     string    `json:"entity_id" db:"entity_id"`
	ScriptID     string    `json:"script_id" db:"script_id"`
	EffectiveDay int       `json:"effective_day" db:"effective_day"`
}

// SingletonEntityID returns the entity_id sentinel used for a singleton
// agent kind's binding. Households use their own id instead.
func SingletonEntityID(kind AgentKind) string {
	return string(kind)
}

func newScriptID() string    { return uuid.New().String() }
func newCodeVersion() string { return uuid.New().String() }
