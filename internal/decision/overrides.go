package decision

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/talgya/macrosim/internal/registry"
)

// ParseOverride decodes a single entity's raw override payload (as returned
// by a script, or supplied by an admin) into the decision struct for its
// agent_kind. Unknown fields are rejected with an error the caller should
// surface as InvalidOverride — this also enforces script isolation
// structurally: a household script's return value can only ever populate
// that one household's HouseholdDecision, never another entity's record or
// another agent kind's fields (design doc Section 4.6/8).
func ParseOverride(kind registry.AgentKind, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch kind {
	case registry.KindHousehold:
		var hd HouseholdDecision
		if err := strictDecode(raw, &hd); err != nil {
			return nil, err
		}
		return &hd, nil
	case registry.KindFirm:
		var fd FirmDecision
		if err := strictDecode(raw, &fd); err != nil {
			return nil, err
		}
		return &fd, nil
	case registry.KindBank:
		var bd BankDecision
		if err := strictDecode(raw, &bd); err != nil {
			return nil, err
		}
		return &bd, nil
	case registry.KindCentralBank:
		var cd CentralBankDecision
		if err := strictDecode(raw, &cd); err != nil {
			return nil, err
		}
		return &cd, nil
	case registry.KindGovernment:
		var gd GovernmentDecision
		if err := strictDecode(raw, &gd); err != nil {
			return nil, err
		}
		return &gd, nil
	default:
		return nil, fmt.Errorf("unknown agent kind %q", kind)
	}
}

func strictDecode(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode override: %w", err)
	}
	return nil
}

// AdminOverrides is the shape passed explicitly to run_tick: a sparse map of
// per-entity overrides, keyed the same way script bindings are (agent_kind
// and, for households, entity id).
type AdminOverrides struct {
	Households  map[string]*HouseholdDecision `json:"households,omitempty"`
	Firm        *FirmDecision                 `json:"firm,omitempty"`
	Bank        *BankDecision                  `json:"bank,omitempty"`
	CentralBank *CentralBankDecision           `json:"central_bank,omitempty"`
	Government  *GovernmentDecision            `json:"government,omitempty"`
}
