package orchestrator

import (
	"fmt"
	"sort"

	"github.com/talgya/macrosim/internal/registry"
	"github.com/talgya/macrosim/internal/worldstate"
)

// singletonKinds are the four agent kinds with exactly one binding slot per
// simulation, keyed under registry.SingletonEntityID(kind) (design doc
// Section 3).
var singletonKinds = []registry.AgentKind{
	registry.KindFirm,
	registry.KindBank,
	registry.KindCentralBank,
	registry.KindGovernment,
}

// CoverageResult is the Coverage Guard's verdict: which (kind, entity_id)
// pairs have a script bound and which do not (design doc Section 4.8 step 3).
type CoverageResult struct {
	Covered   map[registry.AgentKind]map[string]string
	Uncovered map[registry.AgentKind][]string
}

// AllMissing renders every uncovered (kind, entity_id) pair as "kind/id",
// sorted, for use in a MissingAgentScripts error message.
func (c CoverageResult) AllMissing() []string {
	var out []string
	for kind, ids := range c.Uncovered {
		for _, id := range ids {
			out = append(out, fmt.Sprintf("%s/%s", kind, id))
		}
	}
	sort.Strings(out)
	return out
}

// HasGaps reports whether any (kind, entity_id) pair lacks a binding.
func (c CoverageResult) HasGaps() bool {
	for _, ids := range c.Uncovered {
		if len(ids) > 0 {
			return true
		}
	}
	return false
}

// checkCoverage resolves bindings for every singleton kind and every
// household present in the world against the registry's in-memory index.
func (o *Orchestrator) checkCoverage(simID string, w *worldstate.WorldState, dayIndex int) CoverageResult {
	result := CoverageResult{
		Covered:   make(map[registry.AgentKind]map[string]string),
		Uncovered: make(map[registry.AgentKind][]string),
	}

	for _, kind := range singletonKinds {
		covered, uncovered := o.registry.ResolveBindings(simID, kind, []string{registry.SingletonEntityID(kind)}, dayIndex)
		result.Covered[kind] = covered
		if len(uncovered) > 0 {
			result.Uncovered[kind] = uncovered
		}
	}

	householdIDs := make([]string, 0, len(w.Households))
	for id := range w.Households {
		householdIDs = append(householdIDs, id)
	}
	sort.Strings(householdIDs)

	covered, uncovered := o.registry.ResolveBindings(simID, registry.KindHousehold, householdIDs, dayIndex)
	result.Covered[registry.KindHousehold] = covered
	if len(uncovered) > 0 {
		result.Uncovered[registry.KindHousehold] = uncovered
	}

	return result
}
