package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/macrosim/internal/config"
	"github.com/talgya/macrosim/internal/decision"
	"github.com/talgya/macrosim/internal/worldstate"
)

func TestHousehold_StudyingHasZeroLaborSupply(t *testing.T) {
	m := New()
	h := &worldstate.HouseholdState{IsStudying: true, EmploymentStatus: worldstate.Unemployed}
	d := m.Household(h)
	require.NotNil(t, d.LaborSupply)
	assert.Equal(t, 0.0, *d.LaborSupply)
	assert.Equal(t, decision.ProvenanceFallback, d.Provenance)
}

func TestHousehold_UnemployedBuysNothing(t *testing.T) {
	m := New()
	h := &worldstate.HouseholdState{EmploymentStatus: worldstate.Unemployed, Skill: 1, Cash: 100}
	d := m.Household(h)
	require.NotNil(t, d.BuyQuantity)
	assert.Equal(t, 0.0, *d.BuyQuantity)
}

func TestHousehold_EmployedBuysProportionalToLiquidAssets(t *testing.T) {
	m := New()
	h := &worldstate.HouseholdState{EmploymentStatus: worldstate.EmployedFirm, Skill: 1, Cash: 100, Deposits: 50}
	d := m.Household(h)
	require.NotNil(t, d.BuyQuantity)
	assert.Greater(t, *d.BuyQuantity, 0.0)
}

func TestFirm_PriceFloorEnforced(t *testing.T) {
	m := New()
	f := &worldstate.FirmState{Price: 0.0, Productivity: 1, CapitalStock: 10}
	d := m.Firm(f, config.Default())
	require.NotNil(t, d.Price)
	assert.Equal(t, 0.1, *d.Price)
}

func TestBank_TracksCentralBankPolicyRateWithSpread(t *testing.T) {
	m := New()
	cb := &worldstate.CentralBankState{PolicyRate: 0.05}
	d := m.Bank(&worldstate.BankState{}, cb)
	require.NotNil(t, d.DepositRate)
	require.NotNil(t, d.LoanRate)
	assert.Equal(t, 0.04, *d.DepositRate)
	assert.Equal(t, 0.07, *d.LoanRate)
}

func TestBank_FallsBackToDefaultPolicyRateWhenCentralBankMissing(t *testing.T) {
	m := New()
	d := m.Bank(&worldstate.BankState{}, nil)
	require.NotNil(t, d.DepositRate)
	assert.Equal(t, 0.01, *d.DepositRate)
}

func TestCentralBank_NudgesTowardTargets(t *testing.T) {
	m := New()
	cb := &worldstate.CentralBankState{PolicyRate: 0.03, InflationTarget: 0.02, UnemploymentTarget: 0.05}
	macro := worldstate.MacroState{Inflation: 0.04, UnemploymentRate: 0.05}
	d := m.CentralBank(cb, macro)
	require.NotNil(t, d.PolicyRate)
	// Inflation is 2pp above target, unemployment is at target: rate should
	// rise by 0.5*0.02 = 0.01 over the starting policy rate.
	assert.InDelta(t, 0.04, *d.PolicyRate, 1e-9)
}

func TestGovernment_PegsSpendingToTaxRateTimesGDP(t *testing.T) {
	m := New()
	g := &worldstate.GovernmentState{TaxRate: 0.2}
	macro := worldstate.MacroState{GDP: 1000}
	d := m.Government(g, macro)
	require.NotNil(t, d.Spending)
	assert.Equal(t, 200.0, *d.Spending)
}
