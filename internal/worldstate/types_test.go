package worldstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHouseholdState_ValidateRequiresEmployerIDIffUnemployed(t *testing.T) {
	h := &HouseholdState{ID: "h1", EmploymentStatus: Unemployed}
	assert.NoError(t, h.Validate())

	employer := "firm"
	h.EmployerID = &employer
	assert.Error(t, h.Validate(), "employed household state without a non-unemployed status is invalid")
}

func TestHouseholdState_ValidateRejectsStudyingWhileEmployed(t *testing.T) {
	employer := "firm"
	h := &HouseholdState{ID: "h1", EmploymentStatus: EmployedFirm, EmployerID: &employer, IsStudying: true}
	assert.Error(t, h.Validate())
}

func TestHouseholdState_ValidateRejectsOutOfRangeLaborSupply(t *testing.T) {
	h := &HouseholdState{ID: "h1", EmploymentStatus: Unemployed, LaborSupply: 1.5}
	assert.Error(t, h.Validate())
}

func TestHouseholdState_ValidateRejectsNegativeBondHoldings(t *testing.T) {
	h := &HouseholdState{ID: "h1", EmploymentStatus: Unemployed, BondHoldings: -1}
	assert.Error(t, h.Validate())
}

func TestFirmState_ValidateEnforcesPriceFloor(t *testing.T) {
	f := &FirmState{Price: 0.05}
	assert.Error(t, f.Validate())

	f.Price = 0.1
	assert.NoError(t, f.Validate())
}

func TestCentralBankState_ValidateEnforcesPolicyRateRange(t *testing.T) {
	cb := &CentralBankState{PolicyRate: 0.5, ReserveRatio: 0.1}
	assert.Error(t, cb.Validate())

	cb.PolicyRate = 0.1
	assert.NoError(t, cb.Validate())
}

func TestBankState_ReserveRatioOK(t *testing.T) {
	b := &BankState{Reserves: 10, Deposits: 100}
	assert.True(t, b.ReserveRatioOK(0.1))
	assert.False(t, b.ReserveRatioOK(0.2))
}

func TestWorldState_FirmAndGovernmentEmployeesDerivedFromEmployerID(t *testing.T) {
	firmEmp := FirmEmployerID
	govEmp := GovernmentEmployerID
	w := &WorldState{Households: map[string]*HouseholdState{
		"h1": {ID: "h1", EmployerID: &firmEmp},
		"h2": {ID: "h2", EmployerID: &govEmp},
		"h3": {ID: "h3"},
	}}
	assert.ElementsMatch(t, []string{"h1"}, w.FirmEmployees())
	assert.ElementsMatch(t, []string{"h2"}, w.GovernmentEmployees())
}

func TestWorldState_CloneIsIndependentOfOriginal(t *testing.T) {
	employer := "firm"
	w := &WorldState{
		Households: map[string]*HouseholdState{"h1": {ID: "h1", Cash: 10, EmployerID: &employer}},
		Firm:       &FirmState{Price: 1},
		Bank:        &BankState{Loans: map[string]float64{"h1": 5}},
		CentralBank: &CentralBankState{PolicyRate: 0.03},
		Government:  &GovernmentState{TaxRate: 0.2},
	}
	clone := w.Clone()

	clone.Households["h1"].Cash = 999
	*clone.Households["h1"].EmployerID = "government"
	clone.Firm.Price = 5
	clone.Bank.Loans["h1"] = 999
	clone.Government.TaxRate = 0.9

	assert.Equal(t, 10.0, w.Households["h1"].Cash)
	assert.Equal(t, "firm", *w.Households["h1"].EmployerID)
	assert.Equal(t, 1.0, w.Firm.Price)
	assert.Equal(t, 5.0, w.Bank.Loans["h1"])
	assert.Equal(t, 0.2, w.Government.TaxRate)
}

func TestWorldState_ValidateRejectsMismatchedHouseholdKey(t *testing.T) {
	w := &WorldState{Households: map[string]*HouseholdState{
		"h1": {ID: "h2", EmploymentStatus: Unemployed},
	}}
	err := w.Validate()
	require.Error(t, err)
	var invErr *InvariantError
	assert.ErrorAs(t, err, &invErr)
}

func TestWorldState_ValidatePropagatesEntityInvariantErrors(t *testing.T) {
	w := &WorldState{
		Households:  map[string]*HouseholdState{"h1": {ID: "h1", EmploymentStatus: Unemployed}},
		Firm:        &FirmState{Price: 0.01},
		CentralBank: &CentralBankState{PolicyRate: 0.03, ReserveRatio: 0.1},
	}
	assert.Error(t, w.Validate())
}

func TestInvariantError_ErrorMessageIncludesIDWhenPresent(t *testing.T) {
	err := &InvariantError{Kind: "household", ID: "h1", Message: "boom"}
	assert.Equal(t, "household h1: boom", err.Error())

	err2 := &InvariantError{Kind: "firm", Message: "boom"}
	assert.Equal(t, "firm: boom", err2.Error())
}
