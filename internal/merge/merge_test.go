package merge

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/macrosim/internal/decision"
)

func ptr(f float64) *float64 { return &f }
func iptr(i int) *int        { return &i }

func newMerger() *Merger { return New(slog.Default()) }

func TestHousehold_AdminBeatsScriptBeatsFallback(t *testing.T) {
	m := newMerger()
	admin := &decision.HouseholdDecision{LaborSupply: ptr(0.9)}
	script := &decision.HouseholdDecision{LaborSupply: ptr(0.5), ConsumptionRate: ptr(0.3)}
	fallback := &decision.HouseholdDecision{LaborSupply: ptr(0.1), ConsumptionRate: ptr(0.1), ReservationWage: ptr(5)}

	out := m.Household("h1", admin, script, fallback)

	require.NotNil(t, out.LaborSupply)
	assert.Equal(t, 0.9, *out.LaborSupply, "admin value must win over script and fallback")

	require.NotNil(t, out.ConsumptionRate)
	assert.Equal(t, 0.3, *out.ConsumptionRate, "script should win where admin has no opinion")

	require.NotNil(t, out.ReservationWage)
	assert.Equal(t, 5.0, *out.ReservationWage, "fallback should win where neither admin nor script has an opinion")
}

func TestHousehold_ProvenanceTracksWinningFieldSource(t *testing.T) {
	m := newMerger()
	// Only one field set anywhere, so provenance is unambiguous: whichever
	// source supplied labor_supply is the one recorded.
	out := m.Household("h1", nil, nil, &decision.HouseholdDecision{LaborSupply: ptr(0.4)})
	require.NotNil(t, out.LaborSupply)
	assert.Equal(t, decision.ProvenanceFallback, out.Provenance)
}

func TestHousehold_ClampsOutOfRangeLaborSupply(t *testing.T) {
	m := newMerger()
	script := &decision.HouseholdDecision{LaborSupply: ptr(1.5)}
	out := m.Household("h1", nil, script, &decision.HouseholdDecision{})
	require.NotNil(t, out.LaborSupply)
	assert.Equal(t, 1.0, *out.LaborSupply)
}

func TestHousehold_AllNilSourcesYieldAllNilFields(t *testing.T) {
	m := newMerger()
	out := m.Household("h1", nil, nil, &decision.HouseholdDecision{})
	assert.Nil(t, out.LaborSupply)
	assert.Nil(t, out.ReservationWage)
}

func TestFirm_HiringDemandRoundTripsThroughIntConversion(t *testing.T) {
	m := newMerger()
	fallback := &decision.FirmDecision{HiringDemand: iptr(3)}
	out := m.Firm(nil, nil, fallback)
	require.NotNil(t, out.HiringDemand)
	assert.Equal(t, 3, *out.HiringDemand)
}

func TestFirm_PriceClampedToMinimum(t *testing.T) {
	m := newMerger()
	admin := &decision.FirmDecision{Price: ptr(0.0)}
	out := m.Firm(admin, nil, &decision.FirmDecision{Price: ptr(1.0)})
	require.NotNil(t, out.Price)
	assert.Equal(t, 0.1, *out.Price, "price has a hard floor of 0.1")
}

func TestCentralBank_PolicyRateClampedToRange(t *testing.T) {
	m := newMerger()
	script := &decision.CentralBankDecision{PolicyRate: ptr(0.9)}
	out := m.CentralBank(nil, script, &decision.CentralBankDecision{PolicyRate: ptr(0.03)})
	require.NotNil(t, out.PolicyRate)
	assert.Equal(t, 0.4, *out.PolicyRate)
}
