package logic

import (
	"fmt"
	"sort"

	"github.com/talgya/macrosim/internal/decision"
	"github.com/talgya/macrosim/internal/detrand"
	"github.com/talgya/macrosim/internal/worldstate"
)

type buyOrder struct {
	householdID string
	limitPrice  float64
	quantity    float64
	tieBreak    float64
}

// ClearGoodsMarket runs every tick: buy orders are sorted by limit price
// descending (ties broken by a deterministic per-order seed, then by
// household id), then filled sequentially against the firm's inventory.
// The clearing price is the firm's posted price unless inventory runs out
// mid-book, in which case it rises to the first unmatched order's limit
// price — adapted from the teacher's supply/demand/price-resolution shape
// in internal/economy/goods.go, generalized to order-book clearing.
func ClearGoodsMarket(w *worldstate.WorldState, td *decision.TickDecisions, globalSeed int64, tickIndex uint64) ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
	if w.Firm == nil {
		return nil, nil
	}

	var orders []buyOrder
	for id, hd := range td.Households {
		if hd == nil || hd.BuyQuantity == nil || *hd.BuyQuantity <= 0 {
			continue
		}
		limitPrice := w.Firm.Price
		if hd.BuyLimitPrice != nil {
			limitPrice = *hd.BuyLimitPrice
		}
		if limitPrice < w.Firm.Price {
			continue // order does not clear the posted price at all
		}
		orders = append(orders, buyOrder{
			householdID: id,
			limitPrice:  limitPrice,
			quantity:    *hd.BuyQuantity,
			tieBreak:    detrand.Float64(globalSeed, tickIndex, "goods", id),
		})
	}
	if len(orders) == 0 {
		return nil, nil
	}

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].limitPrice != orders[j].limitPrice {
			return orders[i].limitPrice > orders[j].limitPrice
		}
		if orders[i].tieBreak != orders[j].tieBreak {
			return orders[i].tieBreak > orders[j].tieBreak
		}
		return orders[i].householdID < orders[j].householdID
	})

	remaining := w.Firm.Inventory
	clearingPrice := w.Firm.Price
	type fill struct {
		householdID string
		quantity    float64
	}
	var fills []fill
	for i, o := range orders {
		if remaining <= 0 {
			clearingPrice = maxFloat(clearingPrice, o.limitPrice)
			continue
		}
		qty := o.quantity
		if qty > remaining {
			qty = remaining
		}
		remaining -= qty
		fills = append(fills, fill{householdID: o.householdID, quantity: qty})
		if qty < o.quantity && i+1 < len(orders) {
			clearingPrice = maxFloat(clearingPrice, orders[i+1].limitPrice)
		}
	}

	var cmds []worldstate.StateUpdateCommand
	var logs []worldstate.TickLogEntry
	var totalQty, totalRevenue float64
	for _, f := range fills {
		if f.quantity <= 0 {
			continue
		}
		cost := f.quantity * clearingPrice
		cmds = append(cmds,
			worldstate.Delta("households."+f.householdID+".cash", -cost),
			worldstate.Assign("households."+f.householdID+".last_consumption", f.quantity),
		)
		totalQty += f.quantity
		totalRevenue += cost
	}
	if totalQty > 0 {
		cmds = append(cmds,
			worldstate.Delta("firm.inventory", -totalQty),
			worldstate.Delta("firm.cash", totalRevenue),
		)
		logs = append(logs, worldstate.TickLogEntry{
			Message: fmt.Sprintf("goods market: cleared %.2f units at price %.4f", totalQty, clearingPrice),
			Context: map[string]any{"quantity": totalQty, "clearing_price": clearingPrice, "orders": len(orders)},
		})
	}
	return cmds, logs
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
