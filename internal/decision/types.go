// Package decision declares the TickDecisions sum-of-parts record that the
// Decision Merger produces and the Logic Modules consume. Every field is an
// explicit struct, never a dynamically-typed map — mirroring the tagged
// StateUpdateCommand convention in internal/worldstate.
package decision

// Provenance marks where a decision's values ultimately came from, after
// merge precedence has been applied.
type Provenance string

const (
	ProvenanceScript   Provenance = "script"
	ProvenanceFallback Provenance = "fallback"
	ProvenanceAdmin    Provenance = "admin"
)

// HouseholdDecision is one household's per-tick decision fields. Pointer
// fields are optional: nil means "no opinion from this source", letting the
// merger skip a field rather than overwrite it with a zero value.
type HouseholdDecision struct {
	LaborSupply     *float64 `json:"labor_supply,omitempty"`
	ReservationWage *float64 `json:"reservation_wage,omitempty"`
	ConsumptionRate *float64 `json:"consumption_rate,omitempty"`
	BuyLimitPrice   *float64 `json:"buy_limit_price,omitempty"`
	BuyQuantity     *float64 `json:"buy_quantity,omitempty"`
	DepositAmount   *float64 `json:"deposit_amount,omitempty"`
	WithdrawAmount  *float64 `json:"withdraw_amount,omitempty"`
	LoanRequest     *float64 `json:"loan_request,omitempty"`
	LoanRateOffered *float64 `json:"loan_rate_offered,omitempty"`
	BondBidPrice    *float64 `json:"bond_bid_price,omitempty"`
	BondBidQuantity *float64 `json:"bond_bid_quantity,omitempty"`
	StudyNextDay    *bool    `json:"study_next_day,omitempty"`

	Provenance Provenance `json:"-"`
}

// FirmDecision is the singleton firm's per-tick decision fields.
type FirmDecision struct {
	Price             *float64 `json:"price,omitempty"`
	WageOffer         *float64 `json:"wage_offer,omitempty"`
	PlannedProduction *float64 `json:"planned_production,omitempty"`
	HiringDemand      *int     `json:"hiring_demand,omitempty"`

	Provenance Provenance `json:"-"`
}

// BankDecision is the singleton bank's per-tick decision fields.
type BankDecision struct {
	DepositRate *float64 `json:"deposit_rate,omitempty"`
	LoanRate    *float64 `json:"loan_rate,omitempty"`

	Provenance Provenance `json:"-"`
}

// CentralBankDecision is the singleton central bank's per-tick decision
// fields.
type CentralBankDecision struct {
	PolicyRate *float64 `json:"policy_rate,omitempty"`

	Provenance Provenance `json:"-"`
}

// GovernmentDecision is the singleton government's per-tick decision fields.
type GovernmentDecision struct {
	TaxRate             *float64 `json:"tax_rate,omitempty"`
	Spending            *float64 `json:"spending,omitempty"`
	UnemploymentBenefit *float64 `json:"unemployment_benefit,omitempty"`
	BondIssuancePlan    *float64 `json:"bond_issuance_plan,omitempty"`

	Provenance Provenance `json:"-"`
}

// TickDecisions is the merged decision record consumed by the Logic
// Modules: sub-records per agent kind and per household, keyed by household
// id (design doc Section 4.6).
type TickDecisions struct {
	Households  map[string]*HouseholdDecision
	Firm        *FirmDecision
	Bank        *BankDecision
	CentralBank *CentralBankDecision
	Government  *GovernmentDecision
}

// NewTickDecisions builds an empty decision record with households
// pre-populated (nil fields, so downstream merge has somewhere to write).
func NewTickDecisions(householdIDs []string) *TickDecisions {
	td := &TickDecisions{
		Households:  make(map[string]*HouseholdDecision, len(householdIDs)),
		Firm:        &FirmDecision{},
		Bank:        &BankDecision{},
		CentralBank: &CentralBankDecision{},
		Government:  &GovernmentDecision{},
	}
	for _, id := range householdIDs {
		td.Households[id] = &HouseholdDecision{}
	}
	return td
}
