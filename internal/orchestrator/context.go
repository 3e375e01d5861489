package orchestrator

import (
	"github.com/talgya/macrosim/internal/config"
	"github.com/talgya/macrosim/internal/registry"
	"github.com/talgya/macrosim/internal/worldstate"
)

// PublicMarketState carries the posted prices and rates every binding may
// see, regardless of agent kind — the firm's posted price and wage offer,
// the bank's posted rates, the central bank's policy rate, and the
// government's tax rate and benefit level. Full balance sheets stay private
// to their own singleton binding (design doc Section 4.4).
type PublicMarketState struct {
	FirmPrice               float64 `json:"firm_price"`
	FirmWageOffer           float64 `json:"firm_wage_offer"`
	BankDepositRate         float64 `json:"bank_deposit_rate"`
	BankLoanRate            float64 `json:"bank_loan_rate"`
	CentralBankPolicyRate   float64 `json:"central_bank_policy_rate"`
	GovernmentTaxRate       float64 `json:"government_tax_rate"`
	GovernmentBenefit       float64 `json:"government_unemployment_benefit"`
}

func publicMarketState(w *worldstate.WorldState) PublicMarketState {
	var p PublicMarketState
	if w.Firm != nil {
		p.FirmPrice = w.Firm.Price
		p.FirmWageOffer = w.Firm.WageOffer
	}
	if w.Bank != nil {
		p.BankDepositRate = w.Bank.DepositRate
		p.BankLoanRate = w.Bank.LoanRate
	}
	if w.CentralBank != nil {
		p.CentralBankPolicyRate = w.CentralBank.PolicyRate
	}
	if w.Government != nil {
		p.GovernmentTaxRate = w.Government.TaxRate
		p.GovernmentBenefit = w.Government.UnemploymentBenefit
	}
	return p
}

// TrimmedWorldState is the world_state key of a script's context: never the
// raw WorldState, always the subset a binding is entitled to see (design doc
// Section 4.4).
type TrimmedWorldState struct {
	TickIndex   uint64             `json:"tick_index"`
	TickInDay   int                `json:"tick_in_day"`
	DayIndex    int                `json:"day_index"`
	Macro       worldstate.MacroState `json:"macro"`
	PublicMarket PublicMarketState `json:"public_market"`
}

// ScriptContext is the full context object passed to a script's
// generate_decisions entry point, matching the wire contract of
// design doc Section 6.
type ScriptContext struct {
	WorldState      TrimmedWorldState `json:"world_state"`
	EntityState     any               `json:"entity_state"`
	Config          ScriptVisibleConfig `json:"config"`
	ScriptAPIVersion int              `json:"script_api_version"`
	AgentKind       registry.AgentKind `json:"agent_kind"`
	EntityID        string            `json:"entity_id"`
}

// ScriptVisibleConfig is the subset of process configuration every script
// may read — feature flags and cadence, never resource limits or
// connection strings.
type ScriptVisibleConfig struct {
	TicksPerDay  int                  `json:"ticks_per_day"`
	Features     config.FeatureFlags  `json:"features"`
}

func scriptVisibleConfig(cfg config.Config) ScriptVisibleConfig {
	return ScriptVisibleConfig{TicksPerDay: cfg.TicksPerDay, Features: cfg.Features}
}

// buildContext trims a world snapshot down to what one binding is entitled
// to see: a household sees only its own record, a singleton kind sees its
// own record; everyone sees macro, public market data, cadence, and
// feature flags (design doc Section 4.4).
func buildContext(w *worldstate.WorldState, cfg config.Config, kind registry.AgentKind, entityID string, tickIndex uint64, tickInDay, dayIndex int) (ScriptContext, bool) {
	trimmed := TrimmedWorldState{
		TickIndex:    tickIndex,
		TickInDay:    tickInDay,
		DayIndex:     dayIndex,
		Macro:        w.Macro,
		PublicMarket: publicMarketState(w),
	}

	var entityState any
	switch kind {
	case registry.KindHousehold:
		h, ok := w.Households[entityID]
		if !ok {
			return ScriptContext{}, false
		}
		entityState = h
	case registry.KindFirm:
		if w.Firm == nil {
			return ScriptContext{}, false
		}
		entityState = w.Firm
	case registry.KindBank:
		if w.Bank == nil {
			return ScriptContext{}, false
		}
		entityState = w.Bank
	case registry.KindCentralBank:
		if w.CentralBank == nil {
			return ScriptContext{}, false
		}
		entityState = w.CentralBank
	case registry.KindGovernment:
		if w.Government == nil {
			return ScriptContext{}, false
		}
		entityState = w.Government
	default:
		return ScriptContext{}, false
	}

	return ScriptContext{
		WorldState:       trimmed,
		EntityState:      entityState,
		Config:           scriptVisibleConfig(cfg),
		ScriptAPIVersion: ScriptAPIVersion,
		AgentKind:        kind,
		EntityID:         entityID,
	}, true
}
