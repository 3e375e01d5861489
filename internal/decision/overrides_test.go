package decision

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/macrosim/internal/registry"
)

func TestParseOverride_HouseholdRoundTrips(t *testing.T) {
	raw := json.RawMessage(`{"labor_supply": 0.8, "reservation_wage": 12.5}`)
	got, err := ParseOverride(registry.KindHousehold, raw)
	require.NoError(t, err)

	hd, ok := got.(*HouseholdDecision)
	require.True(t, ok)
	require.NotNil(t, hd.LaborSupply)
	assert.Equal(t, 0.8, *hd.LaborSupply)
	require.NotNil(t, hd.ReservationWage)
	assert.Equal(t, 12.5, *hd.ReservationWage)
}

func TestParseOverride_RejectsUnknownFields(t *testing.T) {
	raw := json.RawMessage(`{"labor_supply": 0.8, "steal_from_bank": true}`)
	_, err := ParseOverride(registry.KindHousehold, raw)
	require.Error(t, err)
}

func TestParseOverride_RejectsCrossKindFields(t *testing.T) {
	// A household script cannot smuggle firm-only fields into its own
	// decision payload — strict decoding rejects them structurally.
	raw := json.RawMessage(`{"price": 5}`)
	_, err := ParseOverride(registry.KindHousehold, raw)
	require.Error(t, err)
}

func TestParseOverride_EmptyOrNullYieldsNil(t *testing.T) {
	got, err := ParseOverride(registry.KindFirm, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseOverride(registry.KindFirm, json.RawMessage("null"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseOverride_UnknownKindErrors(t *testing.T) {
	_, err := ParseOverride(registry.AgentKind("alien"), json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestNewTickDecisions_PrePopulatesHouseholdsAndSingletons(t *testing.T) {
	td := NewTickDecisions([]string{"h1", "h2"})
	assert.Len(t, td.Households, 2)
	assert.NotNil(t, td.Households["h1"])
	assert.NotNil(t, td.Firm)
	assert.NotNil(t, td.Bank)
	assert.NotNil(t, td.CentralBank)
	assert.NotNil(t, td.Government)
}
