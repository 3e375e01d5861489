package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/macrosim/internal/config"
	"github.com/talgya/macrosim/internal/decision"
	"github.com/talgya/macrosim/internal/worldstate"
)

func ptr(f float64) *float64 { return &f }

func newTestWorld() *worldstate.WorldState {
	return &worldstate.WorldState{
		SimulationID: "sim-1",
		Households: map[string]*worldstate.HouseholdState{
			"000": {ID: "000", Cash: 100, Skill: 0.5, EmploymentStatus: worldstate.Unemployed},
			"001": {ID: "001", Cash: 80, Deposits: 20, Skill: 0.8, EmploymentStatus: worldstate.Unemployed},
		},
		Firm: &worldstate.FirmState{
			Cash: 1000, Price: 10, Inventory: 50, WageOffer: 5,
			PlannedProduction: 20, Productivity: 1.0, CapitalStock: 10, HiringDemand: 1,
		},
		Bank: &worldstate.BankState{
			Reserves: 200, Deposits: 20, Loans: map[string]float64{}, DepositRate: 0.02, LoanRate: 0.05,
		},
		CentralBank: &worldstate.CentralBankState{
			PolicyRate: 0.03, ReserveRatio: 0.1, InflationTarget: 0.02, UnemploymentTarget: 0.05,
		},
		Government: &worldstate.GovernmentState{
			TaxRate: 0.2, Spending: 0, UnemploymentBenefit: 1, BondIssuancePlan: 100,
		},
	}
}

func TestClearLaborMarket_HiresBySkillAndTiebreak(t *testing.T) {
	w := newTestWorld()
	td := decision.NewTickDecisions([]string{"000", "001"})
	td.Households["000"].LaborSupply = ptr(1)
	td.Households["000"].ReservationWage = ptr(1)
	td.Households["001"].LaborSupply = ptr(1)
	td.Households["001"].ReservationWage = ptr(1)

	cmds, logs := ClearLaborMarket(w, td, 42, 1, 1)
	require.NotEmpty(t, cmds)
	require.NoError(t, worldstate.ApplyAll(w, cmds))

	// Only one opening (HiringDemand: 1); the higher-skill household should
	// be the one hired since it dominates the 0.8-weighted skill term.
	assert.Equal(t, worldstate.EmployedFirm, w.Households["001"].EmploymentStatus)
	assert.Equal(t, worldstate.Unemployed, w.Households["000"].EmploymentStatus)
	assert.NotEmpty(t, logs)
}

func TestClearLaborMarket_SkipsOutsideFirstTickOfDay(t *testing.T) {
	w := newTestWorld()
	td := decision.NewTickDecisions([]string{"000", "001"})
	cmds, logs := ClearLaborMarket(w, td, 42, 1, 2)
	assert.Nil(t, cmds)
	assert.Nil(t, logs)
}

func TestClearGoodsMarket_FillsHighestBidderFirst(t *testing.T) {
	w := newTestWorld()
	w.Firm.Inventory = 5
	td := decision.NewTickDecisions([]string{"000", "001"})
	td.Households["000"].BuyLimitPrice = ptr(12)
	td.Households["000"].BuyQuantity = ptr(4)
	td.Households["001"].BuyLimitPrice = ptr(15)
	td.Households["001"].BuyQuantity = ptr(4)

	cmds, logs := ClearGoodsMarket(w, td, 42, 1)
	require.NoError(t, worldstate.ApplyAll(w, cmds))

	// 001 bid higher, so it should be filled in full (4 units) before 000
	// gets the remaining unit of the 5-unit inventory.
	assert.InDelta(t, 4, w.Households["001"].LastConsumption, 1e-9)
	assert.InDelta(t, 1, w.Households["000"].LastConsumption, 1e-9)
	assert.InDelta(t, 0, w.Firm.Inventory, 1e-9)
	assert.NotEmpty(t, logs)
}

func TestClearGoodsMarket_RejectsOrdersBelowPostedPrice(t *testing.T) {
	w := newTestWorld()
	td := decision.NewTickDecisions([]string{"000"})
	td.Households["000"].BuyLimitPrice = ptr(5) // below firm.price of 10
	td.Households["000"].BuyQuantity = ptr(3)

	cmds, _ := ClearGoodsMarket(w, td, 42, 1)
	assert.Nil(t, cmds)
}

func TestClearFinanceMarket_SkipsLoansBelowReserveRatio(t *testing.T) {
	w := newTestWorld()
	w.Bank.Reserves = 1 // far under the 10% reserve ratio against deposits of 20
	td := decision.NewTickDecisions([]string{"000"})
	td.Households["000"].LoanRequest = ptr(50)
	td.Households["000"].LoanRateOffered = ptr(0.1)

	cmds, logs := ClearFinanceMarket(w, td, 42, 1)
	for _, c := range cmds {
		assert.NotContains(t, c.Path, "loans")
	}
	assert.NotEmpty(t, logs)
}

func TestClearFinanceMarket_BondAuctionNeverOverfills(t *testing.T) {
	w := newTestWorld()
	w.Government.BondIssuancePlan = 10
	w.Households["000"].Cash = 1000
	w.Households["001"].Cash = 1000
	td := decision.NewTickDecisions([]string{"000", "001"})
	td.Households["000"].BondBidPrice = ptr(1)
	td.Households["000"].BondBidQuantity = ptr(8)
	td.Households["001"].BondBidPrice = ptr(1)
	td.Households["001"].BondBidQuantity = ptr(8)

	cmds, _ := ClearFinanceMarket(w, td, 42, 1)
	require.NoError(t, worldstate.ApplyAll(w, cmds))

	assert.InDelta(t, 10, w.Households["000"].BondHoldings+w.Households["001"].BondHoldings, 1e-9)
	assert.InDelta(t, 0, w.Government.BondIssuancePlan, 1e-9)
}

func TestClearFinanceMarket_BondAuctionIsDeterministicAcrossRuns(t *testing.T) {
	build := func() (*worldstate.WorldState, *decision.TickDecisions) {
		w := newTestWorld()
		w.Government.BondIssuancePlan = 5
		ids := []string{"000", "001", "002", "003", "004", "005"}
		td := decision.NewTickDecisions(ids)
		for i, id := range ids {
			w.Households[id] = &worldstate.HouseholdState{ID: id, Cash: 1000}
			td.Households[id].BondBidPrice = ptr(1)
			td.Households[id].BondBidQuantity = ptr(float64(i + 1))
		}
		return w, td
	}

	w1, td1 := build()
	cmds1, logs1 := ClearFinanceMarket(w1, td1, 42, 1)

	w2, td2 := build()
	cmds2, logs2 := ClearFinanceMarket(w2, td2, 42, 1)

	assert.Equal(t, cmds1, cmds2, "same seed and tick must yield identical bond auction fills regardless of map iteration order")
	assert.Equal(t, logs1, logs2)
}

func TestRunTick_DeterministicReplay(t *testing.T) {
	cfg := config.Default()
	cfg.TicksPerDay = 3

	w1 := newTestWorld()
	w2 := newTestWorld()
	td1 := decision.NewTickDecisions([]string{"000", "001"})
	td2 := decision.NewTickDecisions([]string{"000", "001"})

	cmds1, logs1, err1 := RunTick(w1, td1, cfg, 42, 1, 1)
	require.NoError(t, err1)
	cmds2, logs2, err2 := RunTick(w2, td2, cfg, 42, 1, 1)
	require.NoError(t, err2)

	assert.Equal(t, w1, w2)
	assert.Equal(t, cmds1, cmds2)
	assert.Equal(t, len(logs1), len(logs2))
}

func TestRunTick_ShockDisabledLeavesProductivityUntouched(t *testing.T) {
	cfg := config.Default()
	cfg.Features.ShockEnabled = false
	w := newTestWorld()
	before := w.Firm.Productivity

	_, _, err := RunTick(w, decision.NewTickDecisions([]string{"000", "001"}), cfg, 42, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, before, w.Firm.Productivity)
}

func TestRunTick_ShockEnabledStaysWithinTruncationBound(t *testing.T) {
	cfg := config.Default()
	cfg.Features.ShockEnabled = true
	w := newTestWorld()
	before := w.Firm.Productivity
	sigma := 0.05 * before

	_, _, err := RunTick(w, decision.NewTickDecisions([]string{"000", "001"}), cfg, 42, 1, 1)
	require.NoError(t, err)
	assert.InDelta(t, before, w.Firm.Productivity, shockTruncationSigma*sigma+1e-9)
}

func TestRunTick_WagePaymentOnlyOnFirstTickOfDay(t *testing.T) {
	cfg := config.Default()
	w := newTestWorld()
	w.Households["000"].EmploymentStatus = worldstate.EmployedFirm
	firmEmployer := worldstate.FirmEmployerID
	w.Households["000"].EmployerID = &firmEmployer
	cashBefore := w.Households["000"].Cash

	_, _, err := RunTick(w, decision.NewTickDecisions([]string{"000", "001"}), cfg, 42, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, cashBefore, w.Households["000"].Cash, "wages must not be paid outside tick_in_day==1")
}
