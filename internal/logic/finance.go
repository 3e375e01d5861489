package logic

import (
	"fmt"
	"sort"

	"github.com/talgya/macrosim/internal/decision"
	"github.com/talgya/macrosim/internal/detrand"
	"github.com/talgya/macrosim/internal/worldstate"
)

// ClearFinanceMarket runs every tick in the fixed order withdrawals →
// deposits → loan approvals → bond auction (design doc Section 4.7).
func ClearFinanceMarket(w *worldstate.WorldState, td *decision.TickDecisions, globalSeed int64, tickIndex uint64) ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
	var cmds []worldstate.StateUpdateCommand
	var logs []worldstate.TickLogEntry

	if w.Bank == nil {
		return nil, nil
	}

	reserveRatio := 0.1
	if w.CentralBank != nil {
		reserveRatio = w.CentralBank.ReserveRatio
	}

	cmds = append(cmds, withdrawals(w, td)...)
	cmds = append(cmds, deposits(w, td)...)

	loanCmds, loanLogs := loanApprovals(w, td, reserveRatio)
	cmds = append(cmds, loanCmds...)
	logs = append(logs, loanLogs...)

	if w.Government != nil {
		bondCmds, bondLogs := bondAuction(w, td, globalSeed, tickIndex)
		cmds = append(cmds, bondCmds...)
		logs = append(logs, bondLogs...)
	}
	return cmds, logs
}

func withdrawals(w *worldstate.WorldState, td *decision.TickDecisions) []worldstate.StateUpdateCommand {
	var cmds []worldstate.StateUpdateCommand
	for id, h := range w.Households {
		hd := td.Households[id]
		if hd == nil || hd.WithdrawAmount == nil || *hd.WithdrawAmount <= 0 {
			continue
		}
		amount := *hd.WithdrawAmount
		if amount > h.Deposits {
			amount = h.Deposits
		}
		if amount <= 0 {
			continue
		}
		cmds = append(cmds,
			worldstate.Delta("households."+id+".deposits", -amount),
			worldstate.Delta("households."+id+".cash", amount),
			worldstate.Delta("bank.deposits", -amount),
			worldstate.Delta("bank.reserves", -amount),
		)
	}
	return cmds
}

func deposits(w *worldstate.WorldState, td *decision.TickDecisions) []worldstate.StateUpdateCommand {
	var cmds []worldstate.StateUpdateCommand
	for id, h := range w.Households {
		hd := td.Households[id]
		if hd == nil || hd.DepositAmount == nil || *hd.DepositAmount <= 0 {
			continue
		}
		amount := *hd.DepositAmount
		if amount > h.Cash {
			amount = h.Cash
		}
		if amount <= 0 {
			continue
		}
		cmds = append(cmds,
			worldstate.Delta("households."+id+".cash", -amount),
			worldstate.Delta("households."+id+".deposits", amount),
			worldstate.Delta("bank.deposits", amount),
			worldstate.Delta("bank.reserves", amount),
		)
	}
	return cmds
}

// loanApprovals rejects a request if the offered rate undercuts the bank's
// posted rate, or if collateralScore < 0.3. No new loans are approved this
// tick at all if the bank is already below its reserve ratio requirement
// (design doc Section 3, BankState invariant).
func loanApprovals(w *worldstate.WorldState, td *decision.TickDecisions, reserveRatio float64) ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
	var cmds []worldstate.StateUpdateCommand
	var logs []worldstate.TickLogEntry
	if !w.Bank.ReserveRatioOK(reserveRatio) {
		logs = append(logs, worldstate.TickLogEntry{
			Message: "finance market: loan approvals skipped, bank below reserve ratio",
		})
		return cmds, logs
	}
	for id, h := range w.Households {
		hd := td.Households[id]
		if hd == nil || hd.LoanRequest == nil || *hd.LoanRequest <= 0 {
			continue
		}
		amount := *hd.LoanRequest
		offeredRate := w.Bank.LoanRate
		if hd.LoanRateOffered != nil {
			offeredRate = *hd.LoanRateOffered
		}
		if offeredRate < w.Bank.LoanRate {
			continue
		}
		collateralScore := (h.Deposits + h.BondHoldings) / (amount + 1)
		if collateralScore > 1 {
			collateralScore = 1
		}
		if collateralScore < 0.3 {
			continue
		}
		if amount > w.Bank.Reserves {
			amount = w.Bank.Reserves
		}
		if amount <= 0 {
			continue
		}
		cmds = append(cmds,
			worldstate.Delta("households."+id+".loans", amount),
			worldstate.Delta("households."+id+".cash", amount),
			worldstate.Delta("bank.loans."+id, amount),
			worldstate.Delta("bank.reserves", -amount),
		)
		logs = append(logs, worldstate.TickLogEntry{
			Message: fmt.Sprintf("finance market: loan approved for household %s", id),
			Context: map[string]any{"household_id": id, "amount": amount},
		})
	}
	return cmds, logs
}

type bondBid struct {
	householdID string
	price       float64
	quantity    float64
}

// bondAuction sorts bids by household id (map iteration order is not
// deterministic, and a deterministic shuffle over it would not be either),
// then does a Fisher-Yates shuffle seeded via internal/detrand, then fills
// sequentially until the government's bond_issuance_plan volume is
// exhausted — partial fill on the bid that crosses the remaining volume,
// never an overfill (design doc Section 8 boundary behavior).
func bondAuction(w *worldstate.WorldState, td *decision.TickDecisions, globalSeed int64, tickIndex uint64) ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
	var bids []bondBid
	for id, hd := range td.Households {
		if hd == nil || hd.BondBidQuantity == nil || *hd.BondBidQuantity <= 0 {
			continue
		}
		price := 1.0
		if hd.BondBidPrice != nil {
			price = *hd.BondBidPrice
		}
		bids = append(bids, bondBid{householdID: id, price: price, quantity: *hd.BondBidQuantity})
	}
	if len(bids) == 0 {
		return nil, nil
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].householdID < bids[j].householdID })

	rng := detrand.Source(globalSeed, tickIndex, "bond_auction", "")
	for i := len(bids) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		bids[i], bids[j] = bids[j], bids[i]
	}

	remaining := w.Government.BondIssuancePlan
	var cmds []worldstate.StateUpdateCommand
	var logs []worldstate.TickLogEntry
	var totalFilled float64
	for _, b := range bids {
		if remaining <= 0 {
			break
		}
		qty := b.quantity
		if qty > remaining {
			qty = remaining
		}
		cost := qty * b.price
		cmds = append(cmds,
			worldstate.Delta("households."+b.householdID+".cash", -cost),
			worldstate.Delta("households."+b.householdID+".bond_holdings", qty),
		)
		remaining -= qty
		totalFilled += qty
	}
	if totalFilled > 0 {
		cmds = append(cmds,
			worldstate.Delta("government.outstanding_debt", totalFilled),
			worldstate.Assign("government.bond_issuance_plan", remaining),
		)
		logs = append(logs, worldstate.TickLogEntry{
			Message: fmt.Sprintf("bond auction: filled %.2f of issuance volume", totalFilled),
			Context: map[string]any{"filled": totalFilled, "remaining": remaining, "bids": len(bids)},
		})
	}
	return cmds, logs
}
