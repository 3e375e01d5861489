package logic

import (
	"fmt"
	"math"

	"github.com/talgya/macrosim/internal/decision"
	"github.com/talgya/macrosim/internal/worldstate"
)

// PlanProduction applies the firm's merged planned_production and price
// decisions directly onto the world (the "agent planning" step of the tick
// algorithm, design doc Section 4.8).
func PlanProduction(w *worldstate.WorldState, td *decision.TickDecisions) []worldstate.StateUpdateCommand {
	if w.Firm == nil || td.Firm == nil {
		return nil
	}
	var cmds []worldstate.StateUpdateCommand
	if td.Firm.Price != nil {
		cmds = append(cmds, worldstate.Assign("firm.price", *td.Firm.Price))
	}
	if td.Firm.WageOffer != nil {
		cmds = append(cmds, worldstate.Assign("firm.wage_offer", *td.Firm.WageOffer))
	}
	if td.Firm.PlannedProduction != nil {
		cmds = append(cmds, worldstate.Assign("firm.planned_production", *td.Firm.PlannedProduction))
	}
	if td.Firm.HiringDemand != nil {
		cmds = append(cmds, worldstate.Assign("firm.hiring_demand", *td.Firm.HiringDemand))
	}
	return cmds
}

// RunProduction adds planned_production * productivity to the firm's
// inventory (the "production" step of the tick algorithm).
func RunProduction(w *worldstate.WorldState) []worldstate.StateUpdateCommand {
	if w.Firm == nil {
		return nil
	}
	output := w.Firm.PlannedProduction * w.Firm.Productivity
	if output <= 0 {
		return nil
	}
	return []worldstate.StateUpdateCommand{worldstate.Delta("firm.inventory", output)}
}

// SettleAgents pays wages on the first tick of each day and accrues
// savings interest every tick at the per-tick rate implied by the bank's
// posted annual deposit rate: (1+annualRate)^(1/(ticksPerDay*365)) - 1
// (design doc Section 4.7).
func SettleAgents(w *worldstate.WorldState, ticksPerDay int, tickInDay int) []worldstate.StateUpdateCommand {
	var cmds []worldstate.StateUpdateCommand

	if tickInDay == 1 && w.Firm != nil {
		for id, h := range w.Households {
			if h.EmploymentStatus == worldstate.EmployedFirm {
				cmds = append(cmds,
					worldstate.Delta("households."+id+".cash", w.Firm.WageOffer),
					worldstate.Assign("households."+id+".wage_income", w.Firm.WageOffer),
					worldstate.Delta("firm.cash", -w.Firm.WageOffer),
				)
			}
		}
	}
	if tickInDay == 1 && w.Government != nil {
		for _, id := range w.GovernmentEmployees() {
			h, ok := w.Households[id]
			if !ok {
				continue
			}
			wage := h.ReservationWage
			cmds = append(cmds,
				worldstate.Delta("households."+id+".cash", wage),
				worldstate.Assign("households."+id+".wage_income", wage),
				worldstate.Delta("government.spending", wage),
			)
		}
	}

	if w.Bank != nil && w.Bank.DepositRate > 0 && ticksPerDay > 0 {
		perTickRate := perTickFromAnnual(w.Bank.DepositRate, ticksPerDay)
		for id, h := range w.Households {
			if h.Deposits <= 0 {
				continue
			}
			cmds = append(cmds,
				worldstate.Delta("households."+id+".deposits", h.Deposits*perTickRate),
				worldstate.Delta("bank.deposits", h.Deposits*perTickRate),
				worldstate.Delta("bank.reserves", -h.Deposits*perTickRate),
			)
		}
	}
	if w.Bank != nil && w.Bank.LoanRate > 0 && ticksPerDay > 0 {
		perTickRate := perTickFromAnnual(w.Bank.LoanRate, ticksPerDay)
		for id, h := range w.Households {
			if h.Loans <= 0 {
				continue
			}
			cmds = append(cmds,
				worldstate.Delta("households."+id+".loans", h.Loans*perTickRate),
				worldstate.Delta("bank.loans."+id, h.Loans*perTickRate),
			)
		}
	}
	return cmds
}

// perTickFromAnnual converts an annual rate to the compounding per-tick
// rate for a calendar of ticksPerDay*365 ticks per year.
func perTickFromAnnual(annualRate float64, ticksPerDay int) float64 {
	n := float64(ticksPerDay) * 365
	return math.Pow(1+annualRate, 1/n) - 1
}

// RecomputeMacro recalculates the aggregate statistics from the
// (already-updated) world, the final step of the tick algorithm.
func RecomputeMacro(w *worldstate.WorldState) ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
	total := len(w.Households)
	if total == 0 {
		return nil, nil
	}
	unemployed := 0
	totalWage := 0.0
	for _, h := range w.Households {
		if h.EmploymentStatus == worldstate.Unemployed {
			unemployed++
		}
		totalWage += h.WageIncome
	}
	unemploymentRate := float64(unemployed) / float64(total)
	wageIndex := totalWage / float64(total)

	gdp := 0.0
	if w.Firm != nil {
		gdp = w.Firm.PlannedProduction * w.Firm.Productivity * w.Firm.Price
	}

	priceIndex := 1.0
	if w.Firm != nil {
		priceIndex = w.Firm.Price
	}
	inflation := 0.0
	if w.Macro.PriceIndex > 0 {
		inflation = (priceIndex - w.Macro.PriceIndex) / w.Macro.PriceIndex
	}

	cmds := []worldstate.StateUpdateCommand{
		worldstate.Assign("macro.gdp", gdp),
		worldstate.Assign("macro.unemployment_rate", unemploymentRate),
		worldstate.Assign("macro.wage_index", wageIndex),
		worldstate.Assign("macro.price_index", priceIndex),
		worldstate.Assign("macro.inflation", inflation),
	}
	logs := []worldstate.TickLogEntry{{
		Message: fmt.Sprintf("macro: gdp=%.2f unemployment=%.4f inflation=%.4f", gdp, unemploymentRate, inflation),
		Context: map[string]any{"gdp": gdp, "unemployment_rate": unemploymentRate, "inflation": inflation},
	}}
	return cmds, logs
}
