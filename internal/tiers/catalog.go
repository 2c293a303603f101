package tiers

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// Definition describes one membership tier. Discount is the fraction off the
// list price a member of this tier pays; MonthlyTarget is the inclusive
// team-sales lower bound that grants the tier.
type Definition struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	Discount      decimal.Decimal `json:"discount"`
	MonthlyTarget decimal.Decimal `json:"monthly_target"`
}

// PurchasePlan is the fixed-price shop bundle: an entry fee buys Units units
// at UnitPrice each, plus one gift unit per floor(1/GiftRatio) purchased.
type PurchasePlan struct {
	EntryFee  decimal.Decimal `json:"entry_fee"`
	Units     int             `json:"units"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	GiftRatio decimal.Decimal `json:"gift_ratio"`
}

// GiftUnits returns the whole gift units bundled with the plan.
func (p PurchasePlan) GiftUnits() int {
	per := decimal.NewFromInt(1).Div(p.GiftRatio).IntPart()
	if per <= 0 {
		return 0
	}
	return p.Units / int(per)
}

// DiscountedFee applies a tier's discount to the plan entry fee, rounded to
// two decimal places.
func (p PurchasePlan) DiscountedFee(def Definition) decimal.Decimal {
	return p.EntryFee.Mul(decimal.NewFromInt(1).Sub(def.Discount)).Round(2)
}

// Catalog is the process-wide, immutable tier configuration. It is loaded
// once at startup and never mutated afterwards.
type Catalog struct {
	defs []Definition
	plan PurchasePlan
}

type catalogFile struct {
	Tiers []Definition `json:"tiers"`
	Plan  PurchasePlan `json:"plan"`
}

// Default returns the compiled-in catalog.
func Default() *Catalog {
	c, err := New([]Definition{
		{ID: 1, Name: "member", Discount: decimal.RequireFromString("0.05"), MonthlyTarget: decimal.Zero},
		{ID: 2, Name: "shop", Discount: decimal.RequireFromString("0.10"), MonthlyTarget: decimal.NewFromInt(5000)},
		{ID: 3, Name: "cloud_shop", Discount: decimal.RequireFromString("0.20"), MonthlyTarget: decimal.NewFromInt(15000)},
	}, PurchasePlan{
		EntryFee:  decimal.NewFromInt(5000),
		Units:     50,
		UnitPrice: decimal.NewFromInt(100),
		GiftRatio: decimal.RequireFromString("0.1"),
	})
	if err != nil {
		panic(fmt.Sprintf("default catalog invalid: %v", err))
	}
	return c
}

// Load builds the catalog from the given JSON file, or the compiled-in
// defaults when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	var file catalogFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %q: %w", path, err)
	}
	return New(file.Tiers, file.Plan)
}

// New validates the definitions and plan and builds the catalog.
func New(defs []Definition, plan PurchasePlan) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("catalog requires at least one tier")
	}

	one := decimal.NewFromInt(1)
	for i, def := range defs {
		if def.ID != i+1 {
			return nil, fmt.Errorf("tier ids must be consecutive from 1, got %d at position %d", def.ID, i)
		}
		if def.Name == "" {
			return nil, fmt.Errorf("tier %d missing name", def.ID)
		}
		if !def.Discount.IsPositive() || def.Discount.GreaterThan(one) {
			return nil, fmt.Errorf("tier %d discount %s out of range (0,1]", def.ID, def.Discount)
		}
		if def.MonthlyTarget.IsNegative() {
			return nil, fmt.Errorf("tier %d target %s is negative", def.ID, def.MonthlyTarget)
		}
		if i > 0 {
			prev := defs[i-1]
			if def.Discount.LessThan(prev.Discount) {
				return nil, fmt.Errorf("tier %d discount %s below tier %d discount %s", def.ID, def.Discount, prev.ID, prev.Discount)
			}
			if def.MonthlyTarget.LessThan(prev.MonthlyTarget) {
				return nil, fmt.Errorf("tier %d target %s below tier %d target %s", def.ID, def.MonthlyTarget, prev.ID, prev.MonthlyTarget)
			}
		}
	}
	if !defs[0].MonthlyTarget.IsZero() {
		return nil, fmt.Errorf("tier 1 target must be zero so every member maps to a tier")
	}

	if !plan.EntryFee.IsPositive() {
		return nil, fmt.Errorf("plan entry fee must be positive")
	}
	if plan.Units <= 0 {
		return nil, fmt.Errorf("plan units must be positive")
	}
	if !plan.UnitPrice.IsPositive() {
		return nil, fmt.Errorf("plan unit price must be positive")
	}
	if !plan.GiftRatio.IsPositive() || plan.GiftRatio.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("plan gift ratio %s out of range (0,1)", plan.GiftRatio)
	}

	// Entry fee must match the bundle value within 1% promotional rounding.
	listValue := plan.UnitPrice.Mul(decimal.NewFromInt(int64(plan.Units)))
	tolerance := plan.EntryFee.Mul(decimal.RequireFromString("0.01"))
	if plan.EntryFee.Sub(listValue).Abs().GreaterThan(tolerance) {
		return nil, fmt.Errorf("plan entry fee %s does not match %d x %s", plan.EntryFee, plan.Units, plan.UnitPrice)
	}

	out := &Catalog{
		defs: make([]Definition, len(defs)),
		plan: plan,
	}
	copy(out.defs, defs)
	return out, nil
}

// Definitions returns the ordered tier definitions.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Definition returns the tier with the given id.
func (c *Catalog) Definition(id int) (Definition, bool) {
	if id < 1 || id > len(c.defs) {
		return Definition{}, false
	}
	return c.defs[id-1], true
}

// Highest returns the top tier.
func (c *Catalog) Highest() Definition {
	return c.defs[len(c.defs)-1]
}

// TierForSales returns the highest tier whose monthly target is met.
// Targets are inclusive lower bounds: sales exactly at a threshold grant the
// higher tier.
func (c *Catalog) TierForSales(sales decimal.Decimal) int {
	tier := c.defs[0].ID
	for _, def := range c.defs {
		if sales.GreaterThanOrEqual(def.MonthlyTarget) {
			tier = def.ID
		}
	}
	return tier
}

// Plan returns the shop purchase plan.
func (c *Catalog) Plan() PurchasePlan {
	return c.plan
}
