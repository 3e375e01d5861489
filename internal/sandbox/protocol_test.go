package sandbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_MarshalsExpectedWireFields(t *testing.T) {
	req := Request{
		Code:        "function generate_decisions(context) { return {}; }",
		CodeVersion: "v3",
		EntityID:    "household-001",
		Context:     json.RawMessage(`{"tick_index":7}`),
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)

	var round map[string]any
	require.NoError(t, json.Unmarshal(raw, &round))
	assert.Equal(t, req.Code, round["code"])
	assert.Equal(t, "v3", round["code_version"])
	assert.Equal(t, "household-001", round["entity_id"])
	assert.Contains(t, round, "context")
}

func TestResponse_OmitsEmptyOptionalFields(t *testing.T) {
	raw, err := json.Marshal(Response{Overrides: json.RawMessage(`{"labor_supply":0.5}`)})
	require.NoError(t, err)

	var round map[string]any
	require.NoError(t, json.Unmarshal(raw, &round))
	assert.Contains(t, round, "overrides")
	assert.NotContains(t, round, "error_kind")
	assert.NotContains(t, round, "message")
}

func TestResponse_RoundTripsErrorFields(t *testing.T) {
	raw := []byte(`{"error_kind":"script_failure","message":"timed out"}`)
	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Nil(t, resp.Overrides)
	assert.Equal(t, "script_failure", resp.ErrorKind)
	assert.Equal(t, "timed out", resp.Message)
}

func TestLimits_ZeroValueHasNoImplicitCaps(t *testing.T) {
	var l Limits
	assert.Equal(t, 0, l.CPUSeconds)
	assert.Equal(t, 0, l.MemoryMB)
}
