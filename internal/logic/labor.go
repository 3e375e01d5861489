package logic

import (
	"fmt"
	"sort"

	"github.com/talgya/macrosim/internal/decision"
	"github.com/talgya/macrosim/internal/detrand"
	"github.com/talgya/macrosim/internal/worldstate"
)

type laborCandidate struct {
	id    string
	skill float64
	score float64
}

// ClearLaborMarket runs hiring matching, restricted to the first tick of
// each day (design doc Section 4.7). Candidates are unemployed,
// non-studying households offering positive labor supply; they are scored
// 0.8*normalizedSkill + 0.2*seeded-noise, sorted descending, and assigned
// to the firm's open positions up to hiring_demand. Ties are broken by
// score, then by ascending agent id (sort.SliceStable over an
// already-id-sorted slice makes the ordering reproducible).
func ClearLaborMarket(w *worldstate.WorldState, td *decision.TickDecisions, globalSeed int64, tickIndex uint64, tickInDay int) ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
	if tickInDay != 1 || w.Firm == nil {
		return nil, nil
	}

	var candidates []laborCandidate
	maxSkill := 0.0
	for id, h := range w.Households {
		if h.EmploymentStatus != worldstate.Unemployed || h.IsStudying {
			continue
		}
		hd := td.Households[id]
		if hd == nil || hd.LaborSupply == nil || *hd.LaborSupply <= 0 {
			continue
		}
		if h.Skill > maxSkill {
			maxSkill = h.Skill
		}
		candidates = append(candidates, laborCandidate{id: id, skill: h.Skill})
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].id < candidates[j].id })

	for i := range candidates {
		normalizedSkill := 0.0
		if maxSkill > 0 {
			normalizedSkill = candidates[i].skill / maxSkill
		}
		noise := detrand.Float64(globalSeed, tickIndex, "labor", candidates[i].id)
		candidates[i].score = 0.8*normalizedSkill + 0.2*noise
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	hiringDemand := w.Firm.HiringDemand
	if td.Firm != nil && td.Firm.HiringDemand != nil {
		hiringDemand = *td.Firm.HiringDemand
	}
	if hiringDemand > len(candidates) {
		hiringDemand = len(candidates)
	}
	if hiringDemand < 0 {
		hiringDemand = 0
	}

	var cmds []worldstate.StateUpdateCommand
	var logs []worldstate.TickLogEntry
	wageOffer := w.Firm.WageOffer
	if td.Firm != nil && td.Firm.WageOffer != nil {
		wageOffer = *td.Firm.WageOffer
	}

	hired := candidates[:hiringDemand]
	hiredCount := 0
	for _, c := range hired {
		wage := wageOffer
		reservation := 0.0
		if hd := td.Households[c.id]; hd != nil && hd.ReservationWage != nil {
			reservation = *hd.ReservationWage
		}
		if wage < reservation {
			continue // firm's offer does not clear this candidate's reservation wage
		}
		cmds = append(cmds,
			worldstate.Assign("households."+c.id+".employment_status", string(worldstate.EmployedFirm)),
			worldstate.Assign("households."+c.id+".employer_id", worldstate.FirmEmployerID),
		)
		logs = append(logs, worldstate.TickLogEntry{
			Message: "labor market: hired household " + c.id,
			Context: map[string]any{"household_id": c.id, "score": c.score, "wage": wage},
		})
		hiredCount++
	}
	logs = append(logs, worldstate.TickLogEntry{
		Message: fmt.Sprintf("labor market: %d candidates, %d hired", len(candidates), hiredCount),
	})
	return cmds, logs
}
