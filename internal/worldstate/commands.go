package worldstate

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandOp distinguishes the two mutation shapes logic modules may emit.
// StateUpdateCommand is always this explicit tagged union — never a
// dynamically typed map (design notes Section 9).
type CommandOp string

const (
	OpAssign CommandOp = "assign"
	OpDelta  CommandOp = "delta"
)

// StateUpdateCommand targets one field of one entity by a dotted path, e.g.
// "households.h-3.cash" or "firm.price" or "macro.gdp". Assign replaces the
// field outright (any JSON-representable scalar); Delta adds a numeric
// amount to the current value and is only valid against numeric fields.
type StateUpdateCommand struct {
	Op    CommandOp
	Path  string
	Value any // for OpAssign: string | float64 | bool | nil
	Delta float64
}

// Assign builds an assign command.
func Assign(path string, value any) StateUpdateCommand {
	return StateUpdateCommand{Op: OpAssign, Path: path, Value: value}
}

// Delta builds a delta command.
func Delta(path string, amount float64) StateUpdateCommand {
	return StateUpdateCommand{Op: OpDelta, Path: path, Delta: amount}
}

// ApplyAll applies commands to w in order, returning the first error
// encountered. w is mutated in place; callers that need atomicity should
// Clone first and swap on success.
func ApplyAll(w *WorldState, cmds []StateUpdateCommand) error {
	for _, c := range cmds {
		if err := apply(w, c); err != nil {
			return err
		}
	}
	return nil
}

func apply(w *WorldState, c StateUpdateCommand) error {
	segs := strings.Split(c.Path, ".")
	if len(segs) < 2 {
		return fmt.Errorf("state update path %q: too few segments", c.Path)
	}
	switch segs[0] {
	case "households":
		if len(segs) != 3 {
			return fmt.Errorf("state update path %q: want households.<id>.<field>", c.Path)
		}
		h, ok := w.Households[segs[1]]
		if !ok {
			return fmt.Errorf("state update path %q: unknown household", c.Path)
		}
		return applyHousehold(h, segs[2], c)
	case "firm":
		if len(segs) != 2 || w.Firm == nil {
			return fmt.Errorf("state update path %q: invalid firm path", c.Path)
		}
		return applyFirm(w.Firm, segs[1], c)
	case "bank":
		if w.Bank == nil {
			return fmt.Errorf("state update path %q: no bank", c.Path)
		}
		return applyBank(w.Bank, segs[1:], c)
	case "central_bank":
		if len(segs) != 2 || w.CentralBank == nil {
			return fmt.Errorf("state update path %q: invalid central_bank path", c.Path)
		}
		return applyCentralBank(w.CentralBank, segs[1], c)
	case "government":
		if len(segs) != 2 || w.Government == nil {
			return fmt.Errorf("state update path %q: invalid government path", c.Path)
		}
		return applyGovernment(w.Government, segs[1], c)
	case "macro":
		if len(segs) != 2 {
			return fmt.Errorf("state update path %q: invalid macro path", c.Path)
		}
		return applyMacro(&w.Macro, segs[1], c)
	default:
		return fmt.Errorf("state update path %q: unknown root %q", c.Path, segs[0])
	}
}

func numVal(c StateUpdateCommand) (float64, error) {
	if c.Op == OpDelta {
		return c.Delta, nil
	}
	switch v := c.Value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("field expects a number, got %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field expects a number, got %T", c.Value)
	}
}

func strVal(c StateUpdateCommand) (string, error) {
	s, ok := c.Value.(string)
	if !ok {
		return "", fmt.Errorf("field expects a string, got %T", c.Value)
	}
	return s, nil
}

func boolVal(c StateUpdateCommand) (bool, error) {
	b, ok := c.Value.(bool)
	if !ok {
		return false, fmt.Errorf("field expects a bool, got %T", c.Value)
	}
	return b, nil
}

func applyHousehold(h *HouseholdState, field string, c StateUpdateCommand) error {
	switch field {
	case "cash":
		return applyNum(&h.Cash, field, c)
	case "deposits":
		return applyNum(&h.Deposits, field, c)
	case "loans":
		return applyNum(&h.Loans, field, c)
	case "bond_holdings":
		return applyNum(&h.BondHoldings, field, c)
	case "skill":
		return applyNum(&h.Skill, field, c)
	case "education_level":
		return applyNum(&h.EducationLevel, field, c)
	case "labor_supply":
		return applyNum(&h.LaborSupply, field, c)
	case "wage_income":
		return applyNum(&h.WageIncome, field, c)
	case "last_consumption":
		return applyNum(&h.LastConsumption, field, c)
	case "reservation_wage":
		return applyNum(&h.ReservationWage, field, c)
	case "is_studying":
		if c.Op != OpAssign {
			return fmt.Errorf("field %q does not support delta", field)
		}
		v, err := boolVal(c)
		if err != nil {
			return err
		}
		h.IsStudying = v
		return nil
	case "employment_status":
		if c.Op != OpAssign {
			return fmt.Errorf("field %q does not support delta", field)
		}
		v, err := strVal(c)
		if err != nil {
			return err
		}
		h.EmploymentStatus = EmploymentStatus(v)
		return nil
	case "employer_id":
		if c.Op != OpAssign {
			return fmt.Errorf("field %q does not support delta", field)
		}
		if c.Value == nil {
			h.EmployerID = nil
			return nil
		}
		v, err := strVal(c)
		if err != nil {
			return err
		}
		h.EmployerID = &v
		return nil
	default:
		return fmt.Errorf("unknown household field %q", field)
	}
}

func applyFirm(f *FirmState, field string, c StateUpdateCommand) error {
	switch field {
	case "cash":
		return applyNum(&f.Cash, field, c)
	case "deposits":
		return applyNum(&f.Deposits, field, c)
	case "loans":
		return applyNum(&f.Loans, field, c)
	case "price":
		return applyNum(&f.Price, field, c)
	case "wage_offer":
		return applyNum(&f.WageOffer, field, c)
	case "planned_production":
		return applyNum(&f.PlannedProduction, field, c)
	case "inventory":
		return applyNum(&f.Inventory, field, c)
	case "capital_stock":
		return applyNum(&f.CapitalStock, field, c)
	case "productivity":
		return applyNum(&f.Productivity, field, c)
	case "hiring_demand":
		v, err := numVal(c)
		if err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
		if c.Op == OpDelta {
			f.HiringDemand += int(v)
		} else {
			f.HiringDemand = int(v)
		}
		return nil
	default:
		return fmt.Errorf("unknown firm field %q", field)
	}
}

func applyBank(b *BankState, segs []string, c StateUpdateCommand) error {
	if len(segs) == 2 && segs[0] == "loans" {
		v, err := numVal(c)
		if err != nil {
			return err
		}
		if c.Op == OpDelta {
			b.Loans[segs[1]] += v
		} else {
			b.Loans[segs[1]] = v
		}
		return nil
	}
	if len(segs) != 1 {
		return fmt.Errorf("invalid bank path segment %v", segs)
	}
	switch segs[0] {
	case "reserves":
		return applyNum(&b.Reserves, segs[0], c)
	case "deposits":
		return applyNum(&b.Deposits, segs[0], c)
	case "bond_holdings":
		return applyNum(&b.BondHoldings, segs[0], c)
	case "deposit_rate":
		return applyNum(&b.DepositRate, segs[0], c)
	case "loan_rate":
		return applyNum(&b.LoanRate, segs[0], c)
	default:
		return fmt.Errorf("unknown bank field %q", segs[0])
	}
}

func applyCentralBank(cb *CentralBankState, field string, c StateUpdateCommand) error {
	switch field {
	case "policy_rate":
		return applyNum(&cb.PolicyRate, field, c)
	case "reserve_ratio":
		return applyNum(&cb.ReserveRatio, field, c)
	case "inflation_target":
		return applyNum(&cb.InflationTarget, field, c)
	case "unemployment_target":
		return applyNum(&cb.UnemploymentTarget, field, c)
	default:
		return fmt.Errorf("unknown central_bank field %q", field)
	}
}

func applyGovernment(g *GovernmentState, field string, c StateUpdateCommand) error {
	switch field {
	case "tax_rate":
		return applyNum(&g.TaxRate, field, c)
	case "spending":
		return applyNum(&g.Spending, field, c)
	case "unemployment_benefit":
		return applyNum(&g.UnemploymentBenefit, field, c)
	case "outstanding_debt":
		return applyNum(&g.OutstandingDebt, field, c)
	case "bond_issuance_plan":
		return applyNum(&g.BondIssuancePlan, field, c)
	default:
		return fmt.Errorf("unknown government field %q", field)
	}
}

func applyMacro(m *MacroState, field string, c StateUpdateCommand) error {
	switch field {
	case "gdp":
		return applyNum(&m.GDP, field, c)
	case "inflation":
		return applyNum(&m.Inflation, field, c)
	case "unemployment_rate":
		return applyNum(&m.UnemploymentRate, field, c)
	case "price_index":
		return applyNum(&m.PriceIndex, field, c)
	case "wage_index":
		return applyNum(&m.WageIndex, field, c)
	default:
		return fmt.Errorf("unknown macro field %q", field)
	}
}

func applyNum(dst *float64, field string, c StateUpdateCommand) error {
	v, err := numVal(c)
	if err != nil {
		return fmt.Errorf("field %q: %w", field, err)
	}
	if c.Op == OpDelta {
		*dst += v
	} else {
		*dst = v
	}
	return nil
}
