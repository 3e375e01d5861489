package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/macrosim/internal/config"
	"github.com/talgya/macrosim/internal/registry"
	"github.com/talgya/macrosim/internal/worldstate"
)

func testWorldForContext() *worldstate.WorldState {
	return &worldstate.WorldState{
		Households: map[string]*worldstate.HouseholdState{"h1": {ID: "h1", Cash: 50}},
		Firm:       &worldstate.FirmState{Price: 2, WageOffer: 12},
		Bank:       &worldstate.BankState{DepositRate: 0.01, LoanRate: 0.05},
		CentralBank: &worldstate.CentralBankState{PolicyRate: 0.03},
		Government: &worldstate.GovernmentState{TaxRate: 0.2, UnemploymentBenefit: 5},
		Macro:      worldstate.MacroState{GDP: 1000},
	}
}

func TestBuildContext_HouseholdSeesOnlyOwnRecord(t *testing.T) {
	w := testWorldForContext()
	ctx, ok := buildContext(w, config.Default(), registry.KindHousehold, "h1", 7, 2, 1)
	require.True(t, ok)

	h, ok := ctx.EntityState.(*worldstate.HouseholdState)
	require.True(t, ok)
	assert.Equal(t, 50.0, h.Cash)
	assert.Equal(t, uint64(7), ctx.WorldState.TickIndex)
	assert.Equal(t, 2, ctx.WorldState.TickInDay)
	assert.Equal(t, 1, ctx.WorldState.DayIndex)
	assert.Equal(t, registry.KindHousehold, ctx.AgentKind)
	assert.Equal(t, "h1", ctx.EntityID)
}

func TestBuildContext_MissingHouseholdReturnsFalse(t *testing.T) {
	w := testWorldForContext()
	_, ok := buildContext(w, config.Default(), registry.KindHousehold, "ghost", 0, 0, 0)
	assert.False(t, ok)
}

func TestBuildContext_MissingSingletonReturnsFalse(t *testing.T) {
	w := testWorldForContext()
	w.Firm = nil
	_, ok := buildContext(w, config.Default(), registry.KindFirm, registry.SingletonEntityID(registry.KindFirm), 0, 0, 0)
	assert.False(t, ok)
}

func TestBuildContext_PublicMarketStateExposesPostedPricesOnly(t *testing.T) {
	w := testWorldForContext()
	ctx, ok := buildContext(w, config.Default(), registry.KindHousehold, "h1", 0, 0, 0)
	require.True(t, ok)

	assert.Equal(t, 2.0, ctx.WorldState.PublicMarket.FirmPrice)
	assert.Equal(t, 12.0, ctx.WorldState.PublicMarket.FirmWageOffer)
	assert.Equal(t, 0.03, ctx.WorldState.PublicMarket.CentralBankPolicyRate)
	assert.Equal(t, 0.2, ctx.WorldState.PublicMarket.GovernmentTaxRate)
}

func TestBuildContext_SingletonSeesOwnBalanceSheet(t *testing.T) {
	w := testWorldForContext()
	ctx, ok := buildContext(w, config.Default(), registry.KindBank, registry.SingletonEntityID(registry.KindBank), 0, 0, 0)
	require.True(t, ok)

	b, ok := ctx.EntityState.(*worldstate.BankState)
	require.True(t, ok)
	assert.Equal(t, 0.01, b.DepositRate)
}

func TestBuildContext_CarriesFeatureFlagsAndCadenceFromConfig(t *testing.T) {
	w := testWorldForContext()
	cfg := config.Default()
	cfg.TicksPerDay = 8
	cfg.Features.ShockEnabled = true

	ctx, ok := buildContext(w, cfg, registry.KindHousehold, "h1", 0, 0, 0)
	require.True(t, ok)
	assert.Equal(t, 8, ctx.Config.TicksPerDay)
	assert.True(t, ctx.Config.Features.ShockEnabled)
	assert.Equal(t, ScriptAPIVersion, ctx.ScriptAPIVersion)
}

func TestBuildContext_UnknownAgentKindReturnsFalse(t *testing.T) {
	w := testWorldForContext()
	_, ok := buildContext(w, config.Default(), registry.AgentKind("alien"), "x", 0, 0, 0)
	assert.False(t, ok)
}
