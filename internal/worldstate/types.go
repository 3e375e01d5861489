// Package worldstate declares the explicit tagged-record schemas for every
// entity in the data model (design doc Section 3) and the
// StateUpdateCommand sum type logic modules use to describe mutations.
// Every persisted field carries both a json tag (cache-tier blob) and a db
// tag (durable relational column), mirroring the teacher's dual-tag
// persistence convention.
package worldstate

// EmploymentStatus enumerates a household's labor-market position.
type EmploymentStatus string

const (
	Unemployed         EmploymentStatus = "unemployed"
	EmployedFirm       EmploymentStatus = "employed_firm"
	EmployedGovernment EmploymentStatus = "employed_government"
)

// HouseholdState is a household's balance sheet and labor-market record.
// Invariant: EmployerID == nil iff EmploymentStatus == Unemployed; IsStudying
// forbids any EmploymentStatus other than Unemployed.
type HouseholdState struct {
	ID               string           `json:"id" db:"id"`
	Cash             float64          `json:"cash" db:"cash"`
	Deposits         float64          `json:"deposits" db:"deposits"`
	Loans            float64          `json:"loans" db:"loans"`
	BondHoldings     float64          `json:"bond_holdings" db:"bond_holdings"`
	Skill            float64          `json:"skill" db:"skill"`
	EducationLevel   float64          `json:"education_level" db:"education_level"`
	EmploymentStatus EmploymentStatus `json:"employment_status" db:"employment_status"`
	EmployerID       *string          `json:"employer_id,omitempty" db:"employer_id"`
	IsStudying       bool             `json:"is_studying" db:"is_studying"`
	LaborSupply      float64          `json:"labor_supply" db:"labor_supply"`
	WageIncome       float64          `json:"wage_income" db:"wage_income"`
	LastConsumption  float64          `json:"last_consumption" db:"last_consumption"`
	ReservationWage  float64          `json:"reservation_wage" db:"reservation_wage"`
}

// Validate checks the household-level invariants from design doc Section 3
// and Section 8.
func (h *HouseholdState) Validate() error {
	if (h.EmployerID == nil) != (h.EmploymentStatus == Unemployed) {
		return invariantErr("household", h.ID, "employer_id null iff unemployed")
	}
	if h.IsStudying && h.EmploymentStatus != Unemployed {
		return invariantErr("household", h.ID, "studying household must be unemployed")
	}
	if h.BondHoldings < 0 {
		return invariantErr("household", h.ID, "bond_holdings must be >= 0")
	}
	if h.EducationLevel < 0 || h.EducationLevel > 1.5 {
		return invariantErr("household", h.ID, "education_level out of [0,1.5]")
	}
	if h.LaborSupply < 0 || h.LaborSupply > 1 {
		return invariantErr("household", h.ID, "labor_supply out of [0,1]")
	}
	return nil
}

// FirmState is the singleton firm balance sheet and production record.
// Employees is derived at read time from the household employer_id index —
// never stored or mutated independently (design notes Section 9).
type FirmState struct {
	Cash              float64 `json:"cash" db:"cash"`
	Deposits          float64 `json:"deposits" db:"deposits"`
	Loans             float64 `json:"loans" db:"loans"`
	Price             float64 `json:"price" db:"price"`
	WageOffer         float64 `json:"wage_offer" db:"wage_offer"`
	PlannedProduction float64 `json:"planned_production" db:"planned_production"`
	Inventory         float64 `json:"inventory" db:"inventory"`
	CapitalStock      float64 `json:"capital_stock" db:"capital_stock"`
	Productivity      float64 `json:"productivity" db:"productivity"`
	HiringDemand      int     `json:"hiring_demand" db:"hiring_demand"`
}

func (f *FirmState) Validate() error {
	if f.Price < 0.1 {
		return invariantErr("firm", "", "price must be >= 0.1")
	}
	if f.WageOffer < 0 || f.PlannedProduction < 0 || f.Inventory < 0 || f.CapitalStock < 0 {
		return invariantErr("firm", "", "balance sheet fields must be >= 0")
	}
	return nil
}

// BankState is the singleton bank balance sheet. Loans are keyed by
// household id.
type BankState struct {
	Reserves     float64            `json:"reserves" db:"reserves"`
	Deposits     float64            `json:"deposits" db:"deposits"`
	Loans        map[string]float64 `json:"loans" db:"-"`
	BondHoldings float64            `json:"bond_holdings" db:"bond_holdings"`
	DepositRate  float64            `json:"deposit_rate" db:"deposit_rate"`
	LoanRate     float64            `json:"loan_rate" db:"loan_rate"`
}

// ReserveRatioOK reports whether reserves satisfy the required ratio; when
// false, no new loans may be approved this tick (design doc Section 3).
func (b *BankState) ReserveRatioOK(reserveRatio float64) bool {
	return b.Reserves >= reserveRatio*b.Deposits
}

// CentralBankState is the singleton monetary-policy record.
type CentralBankState struct {
	PolicyRate         float64 `json:"policy_rate" db:"policy_rate"`
	ReserveRatio       float64 `json:"reserve_ratio" db:"reserve_ratio"`
	InflationTarget    float64 `json:"inflation_target" db:"inflation_target"`
	UnemploymentTarget float64 `json:"unemployment_target" db:"unemployment_target"`
}

func (c *CentralBankState) Validate() error {
	if c.PolicyRate < 0 || c.PolicyRate > 0.4 {
		return invariantErr("central_bank", "", "policy_rate out of [0,0.4]")
	}
	if c.ReserveRatio < 0.05 || c.ReserveRatio > 0.2 {
		return invariantErr("central_bank", "", "reserve_ratio out of [0.05,0.2]")
	}
	return nil
}

// GovernmentState is the singleton fiscal-policy record. Employees is
// derived at read time from the household employer_id index via
// WorldState.GovernmentEmployees — never stored or mutated independently
// (design notes Section 9).
type GovernmentState struct {
	TaxRate             float64 `json:"tax_rate" db:"tax_rate"`
	Spending            float64 `json:"spending" db:"spending"`
	UnemploymentBenefit float64 `json:"unemployment_benefit" db:"unemployment_benefit"`
	OutstandingDebt     float64 `json:"outstanding_debt" db:"outstanding_debt"`
	BondIssuancePlan    float64 `json:"bond_issuance_plan" db:"bond_issuance_plan"`
}

// MacroState is the aggregate statistics record.
type MacroState struct {
	GDP              float64 `json:"gdp" db:"gdp"`
	Inflation        float64 `json:"inflation" db:"inflation"`
	UnemploymentRate float64 `json:"unemployment_rate" db:"unemployment_rate"`
	PriceIndex       float64 `json:"price_index" db:"price_index"`
	WageIndex        float64 `json:"wage_index" db:"wage_index"`
}

// WorldState is the per-simulation aggregate. It exists iff the owning
// Simulation exists, and every persisted update is the result of a
// completed tick or a reset (design doc Section 3).
type WorldState struct {
	SimulationID string                     `json:"simulation_id"`
	Households   map[string]*HouseholdState `json:"households"`
	Firm         *FirmState                 `json:"firm"`
	Bank         *BankState                 `json:"bank"`
	CentralBank  *CentralBankState          `json:"central_bank"`
	Government   *GovernmentState           `json:"government"`
	Macro        MacroState                 `json:"macro"`
}

// FirmEmployees derives firm.employees as the set of household ids whose
// employer_id equals "firm" — the single source of truth is employer_id on
// the household (design notes Section 9).
func (w *WorldState) FirmEmployees() []string {
	return w.employeesOf(FirmEmployerID)
}

// GovernmentEmployees derives government.employees the same way.
func (w *WorldState) GovernmentEmployees() []string {
	return w.employeesOf(GovernmentEmployerID)
}

func (w *WorldState) employeesOf(employerID string) []string {
	var ids []string
	for id, h := range w.Households {
		if h.EmployerID != nil && *h.EmployerID == employerID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Sentinel employer ids for the two non-household employer kinds.
const (
	FirmEmployerID       = "firm"
	GovernmentEmployerID = "government"
)

// Clone deep-copies the WorldState so logic modules and sandbox context
// trimming never hand out a pointer an observer could mutate (design doc
// Section 5, "all other readers see immutable snapshots").
func (w *WorldState) Clone() *WorldState {
	clone := &WorldState{
		SimulationID: w.SimulationID,
		Households:   make(map[string]*HouseholdState, len(w.Households)),
		Macro:        w.Macro,
	}
	for id, h := range w.Households {
		hCopy := *h
		if h.EmployerID != nil {
			eid := *h.EmployerID
			hCopy.EmployerID = &eid
		}
		clone.Households[id] = &hCopy
	}
	if w.Firm != nil {
		f := *w.Firm
		clone.Firm = &f
	}
	if w.Bank != nil {
		b := *w.Bank
		b.Loans = make(map[string]float64, len(w.Bank.Loans))
		for k, v := range w.Bank.Loans {
			b.Loans[k] = v
		}
		clone.Bank = &b
	}
	if w.CentralBank != nil {
		cb := *w.CentralBank
		clone.CentralBank = &cb
	}
	if w.Government != nil {
		g := *w.Government
		clone.Government = &g
	}
	return clone
}

// Validate runs every entity-level invariant check over the whole world.
func (w *WorldState) Validate() error {
	for id, h := range w.Households {
		if h.ID != id {
			return invariantErr("household", id, "map key must equal household id")
		}
		if err := h.Validate(); err != nil {
			return err
		}
	}
	if w.Firm != nil {
		if err := w.Firm.Validate(); err != nil {
			return err
		}
		want := make(map[string]bool)
		for _, id := range w.FirmEmployees() {
			want[id] = true
		}
		_ = want // employees is derived, nothing further to cross-check here
	}
	if w.CentralBank != nil {
		if err := w.CentralBank.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func invariantErr(kind, id, msg string) error {
	return &InvariantError{Kind: kind, ID: id, Message: msg}
}

// InvariantError reports a violated data-model invariant.
type InvariantError struct {
	Kind    string
	ID      string
	Message string
}

func (e *InvariantError) Error() string {
	if e.ID != "" {
		return e.Kind + " " + e.ID + ": " + e.Message
	}
	return e.Kind + ": " + e.Message
}
