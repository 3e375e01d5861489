package worldstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorld() *WorldState {
	return &WorldState{
		Households: map[string]*HouseholdState{
			"h1": {ID: "h1", Cash: 100, EmploymentStatus: Unemployed},
		},
		Firm:        &FirmState{Price: 1.0, CapitalStock: 10},
		Bank:        &BankState{Reserves: 50, Loans: map[string]float64{}},
		CentralBank: &CentralBankState{PolicyRate: 0.03},
		Government:  &GovernmentState{TaxRate: 0.2},
		Macro:       MacroState{GDP: 100},
	}
}

func TestApplyAll_AssignHouseholdField(t *testing.T) {
	w := newWorld()
	require.NoError(t, ApplyAll(w, []StateUpdateCommand{Assign("households.h1.cash", 250.0)}))
	assert.Equal(t, 250.0, w.Households["h1"].Cash)
}

func TestApplyAll_DeltaFirmField(t *testing.T) {
	w := newWorld()
	require.NoError(t, ApplyAll(w, []StateUpdateCommand{Delta("firm.price", 0.5)}))
	assert.Equal(t, 1.5, w.Firm.Price)
}

func TestApplyAll_DeltaAppliesInOrder(t *testing.T) {
	w := newWorld()
	cmds := []StateUpdateCommand{
		Delta("macro.gdp", 10),
		Delta("macro.gdp", -5),
	}
	require.NoError(t, ApplyAll(w, cmds))
	assert.Equal(t, 105.0, w.Macro.GDP)
}

func TestApplyAll_StopsAtFirstError(t *testing.T) {
	w := newWorld()
	cmds := []StateUpdateCommand{
		Assign("macro.gdp", 200.0),
		Assign("macro.not_a_field", 1.0),
		Assign("macro.inflation", 0.5),
	}
	err := ApplyAll(w, cmds)
	assert.Error(t, err)
	assert.Equal(t, 200.0, w.Macro.GDP, "command before the error should still apply")
	assert.Equal(t, 0.0, w.Macro.Inflation, "command after the error should not apply")
}

func TestApplyAll_UnknownHouseholdIDErrors(t *testing.T) {
	w := newWorld()
	err := ApplyAll(w, []StateUpdateCommand{Assign("households.ghost.cash", 1.0)})
	assert.Error(t, err)
}

func TestApplyAll_EmploymentStatusAssignsEnumFromString(t *testing.T) {
	w := newWorld()
	require.NoError(t, ApplyAll(w, []StateUpdateCommand{Assign("households.h1.employment_status", "employed_firm")}))
	assert.Equal(t, EmployedFirm, w.Households["h1"].EmploymentStatus)
}

func TestApplyAll_EmployerIDAssignAndClearToNil(t *testing.T) {
	w := newWorld()
	require.NoError(t, ApplyAll(w, []StateUpdateCommand{Assign("households.h1.employer_id", "firm")}))
	require.NotNil(t, w.Households["h1"].EmployerID)
	assert.Equal(t, "firm", *w.Households["h1"].EmployerID)

	require.NoError(t, ApplyAll(w, []StateUpdateCommand{Assign("households.h1.employer_id", nil)}))
	assert.Nil(t, w.Households["h1"].EmployerID)
}

func TestApplyAll_BankLoansKeyedByHouseholdID(t *testing.T) {
	w := newWorld()
	require.NoError(t, ApplyAll(w, []StateUpdateCommand{Assign("bank.loans.h1", 75.0)}))
	assert.Equal(t, 75.0, w.Bank.Loans["h1"])

	require.NoError(t, ApplyAll(w, []StateUpdateCommand{Delta("bank.loans.h1", 25.0)}))
	assert.Equal(t, 100.0, w.Bank.Loans["h1"])
}

func TestApplyAll_HiringDemandIsIntConversion(t *testing.T) {
	w := newWorld()
	require.NoError(t, ApplyAll(w, []StateUpdateCommand{Assign("firm.hiring_demand", 3.0)}))
	assert.Equal(t, 3, w.Firm.HiringDemand)

	require.NoError(t, ApplyAll(w, []StateUpdateCommand{Delta("firm.hiring_demand", 2.0)}))
	assert.Equal(t, 5, w.Firm.HiringDemand)
}

func TestApplyAll_DeltaNotSupportedOnEnumFields(t *testing.T) {
	w := newWorld()
	err := ApplyAll(w, []StateUpdateCommand{{Op: OpDelta, Path: "households.h1.employment_status", Delta: 1}})
	assert.Error(t, err)
}

func TestApplyAll_TooFewPathSegmentsErrors(t *testing.T) {
	w := newWorld()
	err := ApplyAll(w, []StateUpdateCommand{Assign("firm", 1.0)})
	assert.Error(t, err)
}

func TestApplyAll_UnknownRootErrors(t *testing.T) {
	w := newWorld()
	err := ApplyAll(w, []StateUpdateCommand{Assign("spaceship.hull", 1.0)})
	assert.Error(t, err)
}

func TestApplyAll_StringValueCoercedToNumber(t *testing.T) {
	w := newWorld()
	require.NoError(t, ApplyAll(w, []StateUpdateCommand{Assign("macro.gdp", "150.5")}))
	assert.Equal(t, 150.5, w.Macro.GDP)
}
