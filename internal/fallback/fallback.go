// Package fallback implements the Baseline Fallback Manager: deterministic,
// per-agent-kind decision synthesis used whenever a script is missing,
// fails, or returns an override that fails schema validation. Adapted from
// the teacher's guardrail-clamped decision shape in
// internal/gardener/decide.go, generalized from single-intervention
// clamping to one pure function per agent kind.
package fallback

import (
	"github.com/talgya/macrosim/internal/config"
	"github.com/talgya/macrosim/internal/decision"
	"github.com/talgya/macrosim/internal/worldstate"
)

// Manager produces baseline decisions. It holds no mutable state: every
// method is a pure function of its arguments, so fallback output is as
// deterministic as the scripts it substitutes for.
type Manager struct{}

func New() *Manager { return &Manager{} }

func ptr(f float64) *float64 { return &f }

// Household returns a simple labor-supply-and-consume baseline: offer full
// labor supply unless studying, reserve wage at current skill-scaled
// level, consume a fixed fraction of liquid assets, and hold deposits
// otherwise. Every value already lies within the declared ranges the
// merger enforces, so fallback output never needs clamping in practice —
// the merger still clamps it defensively since fallback flows through the
// same path as script output.
func (m *Manager) Household(h *worldstate.HouseholdState) *decision.HouseholdDecision {
	laborSupply := 1.0
	if h.IsStudying {
		laborSupply = 0.0
	}
	reservationWage := 5.0 + 10.0*h.Skill
	consumptionRate := 0.7
	liquid := h.Cash + h.Deposits

	d := &decision.HouseholdDecision{
		LaborSupply:     ptr(laborSupply),
		ReservationWage: ptr(reservationWage),
		ConsumptionRate: ptr(consumptionRate),
		Provenance:      decision.ProvenanceFallback,
	}
	if h.EmploymentStatus == worldstate.Unemployed {
		d.BuyLimitPrice = ptr(0)
		d.BuyQuantity = ptr(0)
	} else {
		d.BuyLimitPrice = ptr(reservationWage)
		d.BuyQuantity = ptr(liquid * consumptionRate / maxFloat(reservationWage, 1))
	}
	if h.Cash > 0 {
		d.DepositAmount = ptr(h.Cash * 0.2)
	} else {
		d.DepositAmount = ptr(0)
	}
	d.WithdrawAmount = ptr(0)
	d.LoanRequest = ptr(0)
	d.BondBidQuantity = ptr(0)
	return d
}

// Firm keeps the firm's current posted price (floored at 0.1), offers a wage
// pegged to the firm's own productivity, plans production from productivity
// and capital stock, and carries the current hiring demand forward unchanged.
func (m *Manager) Firm(f *worldstate.FirmState, cfg config.Config) *decision.FirmDecision {
	price := f.Price
	if price < 0.1 {
		price = 0.1
	}
	wageOffer := 4.0 + 2.0*f.Productivity
	plannedProduction := f.Productivity * (f.CapitalStock + 1)
	hiring := f.HiringDemand

	return &decision.FirmDecision{
		Price:             ptr(price),
		WageOffer:         ptr(wageOffer),
		PlannedProduction: ptr(plannedProduction),
		HiringDemand:      intPtr(hiring),
		Provenance:        decision.ProvenanceFallback,
	}
}

// Bank returns rates pegged a fixed spread either side of the prevailing
// policy rate, so the bank's baseline tracks the central bank's fallback
// too (design doc Section 4.7, finance market clearing).
func (m *Manager) Bank(b *worldstate.BankState, cb *worldstate.CentralBankState) *decision.BankDecision {
	policyRate := 0.02
	if cb != nil {
		policyRate = cb.PolicyRate
	}
	return &decision.BankDecision{
		DepositRate: ptr(maxFloat(policyRate-0.01, 0)),
		LoanRate:    ptr(policyRate + 0.02),
		Provenance:  decision.ProvenanceFallback,
	}
}

// CentralBank returns a simple Taylor-style nudge toward the inflation and
// unemployment targets, clamped by the merger to [0, 0.4].
func (m *Manager) CentralBank(cb *worldstate.CentralBankState, macro worldstate.MacroState) *decision.CentralBankDecision {
	rate := cb.PolicyRate
	rate += 0.5 * (macro.Inflation - cb.InflationTarget)
	rate += 0.5 * (cb.UnemploymentTarget - macro.UnemploymentRate)
	return &decision.CentralBankDecision{
		PolicyRate: ptr(rate),
		Provenance: decision.ProvenanceFallback,
	}
}

// Government returns a balanced-budget-leaning baseline: hold tax rate and
// benefit steady, peg spending to current revenue.
func (m *Manager) Government(g *worldstate.GovernmentState, macro worldstate.MacroState) *decision.GovernmentDecision {
	return &decision.GovernmentDecision{
		TaxRate:             ptr(g.TaxRate),
		Spending:            ptr(g.TaxRate * macro.GDP),
		UnemploymentBenefit: ptr(g.UnemploymentBenefit),
		BondIssuancePlan:    ptr(g.BondIssuancePlan),
		Provenance:          decision.ProvenanceFallback,
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func intPtr(v int) *int { return &v }
