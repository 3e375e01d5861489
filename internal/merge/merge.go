// Package merge implements the Decision Merger: deep-merging admin, script,
// and fallback decision sources into one TickDecisions record with strict
// field-level precedence and numeric clamping. Implemented as explicit
// field-by-field struct-walking code rather than a generic dict-union —
// design notes Section 9 calls this out specifically ("do not rely on
// language-level dict union semantics").
package merge

import (
	"log/slog"

	"github.com/talgya/macrosim/internal/decision"
)

// Merger applies admin > script > fallback precedence per leaf field and
// clamps numeric fields to their declared ranges, logging a warning on
// every clamp.
type Merger struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{logger: logger}
}

// Household merges one household's three decision sources (any may be nil)
// into a single HouseholdDecision, clamped to declared ranges.
func (m *Merger) Household(id string, admin, script, fallback *decision.HouseholdDecision) *decision.HouseholdDecision {
	out := &decision.HouseholdDecision{Provenance: decision.ProvenanceFallback}

	pickFloat(&out.LaborSupply, &out.Provenance, 0, 1, id, "labor_supply", m.logger,
		fieldOf(admin, func(h *decision.HouseholdDecision) *float64 { return h.LaborSupply }, decision.ProvenanceAdmin),
		fieldOf(script, func(h *decision.HouseholdDecision) *float64 { return h.LaborSupply }, decision.ProvenanceScript),
		fieldOf(fallback, func(h *decision.HouseholdDecision) *float64 { return h.LaborSupply }, decision.ProvenanceFallback),
	)
	pickFloat(&out.ReservationWage, &out.Provenance, 0, 1e9, id, "reservation_wage", m.logger,
		fieldOf(admin, func(h *decision.HouseholdDecision) *float64 { return h.ReservationWage }, decision.ProvenanceAdmin),
		fieldOf(script, func(h *decision.HouseholdDecision) *float64 { return h.ReservationWage }, decision.ProvenanceScript),
		fieldOf(fallback, func(h *decision.HouseholdDecision) *float64 { return h.ReservationWage }, decision.ProvenanceFallback),
	)
	pickFloat(&out.ConsumptionRate, &out.Provenance, 0, 1, id, "consumption_rate", m.logger,
		fieldOf(admin, func(h *decision.HouseholdDecision) *float64 { return h.ConsumptionRate }, decision.ProvenanceAdmin),
		fieldOf(script, func(h *decision.HouseholdDecision) *float64 { return h.ConsumptionRate }, decision.ProvenanceScript),
		fieldOf(fallback, func(h *decision.HouseholdDecision) *float64 { return h.ConsumptionRate }, decision.ProvenanceFallback),
	)
	pickFloat(&out.BuyLimitPrice, &out.Provenance, 0, 1e9, id, "buy_limit_price", m.logger,
		fieldOf(admin, func(h *decision.HouseholdDecision) *float64 { return h.BuyLimitPrice }, decision.ProvenanceAdmin),
		fieldOf(script, func(h *decision.HouseholdDecision) *float64 { return h.BuyLimitPrice }, decision.ProvenanceScript),
		fieldOf(fallback, func(h *decision.HouseholdDecision) *float64 { return h.BuyLimitPrice }, decision.ProvenanceFallback),
	)
	pickFloat(&out.BuyQuantity, &out.Provenance, 0, 1e9, id, "buy_quantity", m.logger,
		fieldOf(admin, func(h *decision.HouseholdDecision) *float64 { return h.BuyQuantity }, decision.ProvenanceAdmin),
		fieldOf(script, func(h *decision.HouseholdDecision) *float64 { return h.BuyQuantity }, decision.ProvenanceScript),
		fieldOf(fallback, func(h *decision.HouseholdDecision) *float64 { return h.BuyQuantity }, decision.ProvenanceFallback),
	)
	pickFloat(&out.DepositAmount, &out.Provenance, 0, 1e9, id, "deposit_amount", m.logger,
		fieldOf(admin, func(h *decision.HouseholdDecision) *float64 { return h.DepositAmount }, decision.ProvenanceAdmin),
		fieldOf(script, func(h *decision.HouseholdDecision) *float64 { return h.DepositAmount }, decision.ProvenanceScript),
		fieldOf(fallback, func(h *decision.HouseholdDecision) *float64 { return h.DepositAmount }, decision.ProvenanceFallback),
	)
	pickFloat(&out.WithdrawAmount, &out.Provenance, 0, 1e9, id, "withdraw_amount", m.logger,
		fieldOf(admin, func(h *decision.HouseholdDecision) *float64 { return h.WithdrawAmount }, decision.ProvenanceAdmin),
		fieldOf(script, func(h *decision.HouseholdDecision) *float64 { return h.WithdrawAmount }, decision.ProvenanceScript),
		fieldOf(fallback, func(h *decision.HouseholdDecision) *float64 { return h.WithdrawAmount }, decision.ProvenanceFallback),
	)
	pickFloat(&out.LoanRequest, &out.Provenance, 0, 1e9, id, "loan_request", m.logger,
		fieldOf(admin, func(h *decision.HouseholdDecision) *float64 { return h.LoanRequest }, decision.ProvenanceAdmin),
		fieldOf(script, func(h *decision.HouseholdDecision) *float64 { return h.LoanRequest }, decision.ProvenanceScript),
		fieldOf(fallback, func(h *decision.HouseholdDecision) *float64 { return h.LoanRequest }, decision.ProvenanceFallback),
	)
	pickFloat(&out.LoanRateOffered, &out.Provenance, 0, 1, id, "loan_rate_offered", m.logger,
		fieldOf(admin, func(h *decision.HouseholdDecision) *float64 { return h.LoanRateOffered }, decision.ProvenanceAdmin),
		fieldOf(script, func(h *decision.HouseholdDecision) *float64 { return h.LoanRateOffered }, decision.ProvenanceScript),
		fieldOf(fallback, func(h *decision.HouseholdDecision) *float64 { return h.LoanRateOffered }, decision.ProvenanceFallback),
	)
	pickFloat(&out.BondBidPrice, &out.Provenance, 0, 1e9, id, "bond_bid_price", m.logger,
		fieldOf(admin, func(h *decision.HouseholdDecision) *float64 { return h.BondBidPrice }, decision.ProvenanceAdmin),
		fieldOf(script, func(h *decision.HouseholdDecision) *float64 { return h.BondBidPrice }, decision.ProvenanceScript),
		fieldOf(fallback, func(h *decision.HouseholdDecision) *float64 { return h.BondBidPrice }, decision.ProvenanceFallback),
	)
	pickFloat(&out.BondBidQuantity, &out.Provenance, 0, 1e9, id, "bond_bid_quantity", m.logger,
		fieldOf(admin, func(h *decision.HouseholdDecision) *float64 { return h.BondBidQuantity }, decision.ProvenanceAdmin),
		fieldOf(script, func(h *decision.HouseholdDecision) *float64 { return h.BondBidQuantity }, decision.ProvenanceScript),
		fieldOf(fallback, func(h *decision.HouseholdDecision) *float64 { return h.BondBidQuantity }, decision.ProvenanceFallback),
	)
	pickBool(&out.StudyNextDay,
		boolFieldOf(admin, func(h *decision.HouseholdDecision) *bool { return h.StudyNextDay }),
		boolFieldOf(script, func(h *decision.HouseholdDecision) *bool { return h.StudyNextDay }),
		boolFieldOf(fallback, func(h *decision.HouseholdDecision) *bool { return h.StudyNextDay }),
	)
	return out
}

// Firm merges the singleton firm's three decision sources.
func (m *Merger) Firm(admin, script, fallback *decision.FirmDecision) *decision.FirmDecision {
	out := &decision.FirmDecision{Provenance: decision.ProvenanceFallback}
	pickFloat(&out.Price, &out.Provenance, 0.1, 1e9, "firm", "price", m.logger,
		fieldOf(admin, func(f *decision.FirmDecision) *float64 { return f.Price }, decision.ProvenanceAdmin),
		fieldOf(script, func(f *decision.FirmDecision) *float64 { return f.Price }, decision.ProvenanceScript),
		fieldOf(fallback, func(f *decision.FirmDecision) *float64 { return f.Price }, decision.ProvenanceFallback),
	)
	pickFloat(&out.WageOffer, &out.Provenance, 0, 1e9, "firm", "wage_offer", m.logger,
		fieldOf(admin, func(f *decision.FirmDecision) *float64 { return f.WageOffer }, decision.ProvenanceAdmin),
		fieldOf(script, func(f *decision.FirmDecision) *float64 { return f.WageOffer }, decision.ProvenanceScript),
		fieldOf(fallback, func(f *decision.FirmDecision) *float64 { return f.WageOffer }, decision.ProvenanceFallback),
	)
	pickFloat(&out.PlannedProduction, &out.Provenance, 0, 1e12, "firm", "planned_production", m.logger,
		fieldOf(admin, func(f *decision.FirmDecision) *float64 { return f.PlannedProduction }, decision.ProvenanceAdmin),
		fieldOf(script, func(f *decision.FirmDecision) *float64 { return f.PlannedProduction }, decision.ProvenanceScript),
		fieldOf(fallback, func(f *decision.FirmDecision) *float64 { return f.PlannedProduction }, decision.ProvenanceFallback),
	)
	var hiringAdmin, hiringScript, hiringFallback *float64
	if admin != nil && admin.HiringDemand != nil {
		v := float64(*admin.HiringDemand)
		hiringAdmin = &v
	}
	if script != nil && script.HiringDemand != nil {
		v := float64(*script.HiringDemand)
		hiringScript = &v
	}
	if fallback != nil && fallback.HiringDemand != nil {
		v := float64(*fallback.HiringDemand)
		hiringFallback = &v
	}
	var hiring *float64
	pickFloat(&hiring, &out.Provenance, 0, 1e6, "firm", "hiring_demand", m.logger,
		pickEntry{hiringAdmin, decision.ProvenanceAdmin},
		pickEntry{hiringScript, decision.ProvenanceScript},
		pickEntry{hiringFallback, decision.ProvenanceFallback},
	)
	if hiring != nil {
		v := int(*hiring)
		out.HiringDemand = &v
	}
	return out
}

// Bank merges the singleton bank's three decision sources.
func (m *Merger) Bank(admin, script, fallback *decision.BankDecision) *decision.BankDecision {
	out := &decision.BankDecision{Provenance: decision.ProvenanceFallback}
	pickFloat(&out.DepositRate, &out.Provenance, 0, 1, "bank", "deposit_rate", m.logger,
		fieldOf(admin, func(b *decision.BankDecision) *float64 { return b.DepositRate }, decision.ProvenanceAdmin),
		fieldOf(script, func(b *decision.BankDecision) *float64 { return b.DepositRate }, decision.ProvenanceScript),
		fieldOf(fallback, func(b *decision.BankDecision) *float64 { return b.DepositRate }, decision.ProvenanceFallback),
	)
	pickFloat(&out.LoanRate, &out.Provenance, 0, 1, "bank", "loan_rate", m.logger,
		fieldOf(admin, func(b *decision.BankDecision) *float64 { return b.LoanRate }, decision.ProvenanceAdmin),
		fieldOf(script, func(b *decision.BankDecision) *float64 { return b.LoanRate }, decision.ProvenanceScript),
		fieldOf(fallback, func(b *decision.BankDecision) *float64 { return b.LoanRate }, decision.ProvenanceFallback),
	)
	return out
}

// CentralBank merges the singleton central bank's three decision sources.
func (m *Merger) CentralBank(admin, script, fallback *decision.CentralBankDecision) *decision.CentralBankDecision {
	out := &decision.CentralBankDecision{Provenance: decision.ProvenanceFallback}
	pickFloat(&out.PolicyRate, &out.Provenance, 0, 0.4, "central_bank", "policy_rate", m.logger,
		fieldOf(admin, func(c *decision.CentralBankDecision) *float64 { return c.PolicyRate }, decision.ProvenanceAdmin),
		fieldOf(script, func(c *decision.CentralBankDecision) *float64 { return c.PolicyRate }, decision.ProvenanceScript),
		fieldOf(fallback, func(c *decision.CentralBankDecision) *float64 { return c.PolicyRate }, decision.ProvenanceFallback),
	)
	return out
}

// Government merges the singleton government's three decision sources.
func (m *Merger) Government(admin, script, fallback *decision.GovernmentDecision) *decision.GovernmentDecision {
	out := &decision.GovernmentDecision{Provenance: decision.ProvenanceFallback}
	pickFloat(&out.TaxRate, &out.Provenance, 0, 0.9, "government", "tax_rate", m.logger,
		fieldOf(admin, func(g *decision.GovernmentDecision) *float64 { return g.TaxRate }, decision.ProvenanceAdmin),
		fieldOf(script, func(g *decision.GovernmentDecision) *float64 { return g.TaxRate }, decision.ProvenanceScript),
		fieldOf(fallback, func(g *decision.GovernmentDecision) *float64 { return g.TaxRate }, decision.ProvenanceFallback),
	)
	pickFloat(&out.Spending, &out.Provenance, 0, 1e12, "government", "spending", m.logger,
		fieldOf(admin, func(g *decision.GovernmentDecision) *float64 { return g.Spending }, decision.ProvenanceAdmin),
		fieldOf(script, func(g *decision.GovernmentDecision) *float64 { return g.Spending }, decision.ProvenanceScript),
		fieldOf(fallback, func(g *decision.GovernmentDecision) *float64 { return g.Spending }, decision.ProvenanceFallback),
	)
	pickFloat(&out.UnemploymentBenefit, &out.Provenance, 0, 1e9, "government", "unemployment_benefit", m.logger,
		fieldOf(admin, func(g *decision.GovernmentDecision) *float64 { return g.UnemploymentBenefit }, decision.ProvenanceAdmin),
		fieldOf(script, func(g *decision.GovernmentDecision) *float64 { return g.UnemploymentBenefit }, decision.ProvenanceScript),
		fieldOf(fallback, func(g *decision.GovernmentDecision) *float64 { return g.UnemploymentBenefit }, decision.ProvenanceFallback),
	)
	pickFloat(&out.BondIssuancePlan, &out.Provenance, 0, 1e12, "government", "bond_issuance_plan", m.logger,
		fieldOf(admin, func(g *decision.GovernmentDecision) *float64 { return g.BondIssuancePlan }, decision.ProvenanceAdmin),
		fieldOf(script, func(g *decision.GovernmentDecision) *float64 { return g.BondIssuancePlan }, decision.ProvenanceScript),
		fieldOf(fallback, func(g *decision.GovernmentDecision) *float64 { return g.BondIssuancePlan }, decision.ProvenanceFallback),
	)
	return out
}

type pickEntry struct {
	value      *float64
	provenance decision.Provenance
}

func fieldOf[T any](src *T, get func(*T) *float64, prov decision.Provenance) pickEntry {
	if src == nil {
		return pickEntry{nil, prov}
	}
	return pickEntry{get(src), prov}
}

func boolFieldOf[T any](src *T, get func(*T) *bool) *bool {
	if src == nil {
		return nil
	}
	return get(src)
}

// pickFloat takes the highest-precedence non-nil entry, clamps it to
// [lo, hi], logging a warning when clamping changed the value, and records
// which source won into *prov.
func pickFloat(dst **float64, prov *decision.Provenance, lo, hi float64, subject, field string, logger *slog.Logger, entries ...pickEntry) {
	for _, e := range entries {
		if e.value == nil {
			continue
		}
		v := *e.value
		clamped := v
		if clamped < lo {
			clamped = lo
		}
		if clamped > hi {
			clamped = hi
		}
		if clamped != v {
			logger.Warn("clamped override field to declared range",
				"subject", subject, "field", field, "value", v, "clamped_to", clamped)
		}
		*dst = &clamped
		*prov = e.provenance
		return
	}
}

func pickBool(dst **bool, entries ...*bool) {
	for _, e := range entries {
		if e != nil {
			v := *e
			*dst = &v
			return
		}
	}
}
