package tiers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	defs := c.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(defs))
	}
	if defs[0].ID != 1 || defs[2].ID != 3 {
		t.Fatalf("unexpected tier ids: %v", defs)
	}
	if c.Highest().Name != "cloud_shop" {
		t.Fatalf("unexpected top tier %q", c.Highest().Name)
	}

	plan := c.Plan()
	if plan.Units != 50 {
		t.Fatalf("expected 50 units, got %d", plan.Units)
	}
	if plan.GiftUnits() != 5 {
		t.Fatalf("expected 5 gift units, got %d", plan.GiftUnits())
	}
}

func TestTierForSalesInclusiveThresholds(t *testing.T) {
	c := Default()

	cases := []struct {
		sales string
		want  int
	}{
		{"0", 1},
		{"4999.99", 1},
		{"5000", 2},
		{"5000.01", 2},
		{"14999.99", 2},
		{"15000", 3},
		{"250000", 3},
	}
	for _, tc := range cases {
		got := c.TierForSales(decimal.RequireFromString(tc.sales))
		if got != tc.want {
			t.Errorf("TierForSales(%s) = %d, want %d", tc.sales, got, tc.want)
		}
	}
}

func TestDiscountedFee(t *testing.T) {
	c := Default()

	def, ok := c.Definition(3)
	if !ok {
		t.Fatal("tier 3 missing")
	}
	got := c.Plan().DiscountedFee(def)
	if !got.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("tier 3 fee = %s, want 4000", got)
	}

	def, _ = c.Definition(1)
	got = c.Plan().DiscountedFee(def)
	if !got.Equal(decimal.NewFromInt(4750)) {
		t.Fatalf("tier 1 fee = %s, want 4750", got)
	}
}

func TestNewRejectsBadCatalogs(t *testing.T) {
	plan := Default().Plan()

	cases := []struct {
		name string
		defs []Definition
	}{
		{"empty", nil},
		{"gap in ids", []Definition{
			{ID: 1, Name: "a", Discount: decimal.RequireFromString("0.05"), MonthlyTarget: decimal.Zero},
			{ID: 3, Name: "b", Discount: decimal.RequireFromString("0.10"), MonthlyTarget: decimal.NewFromInt(100)},
		}},
		{"decreasing discount", []Definition{
			{ID: 1, Name: "a", Discount: decimal.RequireFromString("0.10"), MonthlyTarget: decimal.Zero},
			{ID: 2, Name: "b", Discount: decimal.RequireFromString("0.05"), MonthlyTarget: decimal.NewFromInt(100)},
		}},
		{"decreasing target", []Definition{
			{ID: 1, Name: "a", Discount: decimal.RequireFromString("0.05"), MonthlyTarget: decimal.Zero},
			{ID: 2, Name: "b", Discount: decimal.RequireFromString("0.10"), MonthlyTarget: decimal.NewFromInt(500)},
			{ID: 3, Name: "c", Discount: decimal.RequireFromString("0.20"), MonthlyTarget: decimal.NewFromInt(100)},
		}},
		{"nonzero base target", []Definition{
			{ID: 1, Name: "a", Discount: decimal.RequireFromString("0.05"), MonthlyTarget: decimal.NewFromInt(10)},
		}},
	}
	for _, tc := range cases {
		if _, err := New(tc.defs, plan); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}

func TestNewRejectsBadPlans(t *testing.T) {
	defs := Default().Definitions()

	cases := []struct {
		name string
		plan PurchasePlan
	}{
		{"zero fee", PurchasePlan{Units: 50, UnitPrice: decimal.NewFromInt(100), GiftRatio: decimal.RequireFromString("0.1")}},
		{"gift ratio one", PurchasePlan{EntryFee: decimal.NewFromInt(5000), Units: 50, UnitPrice: decimal.NewFromInt(100), GiftRatio: decimal.NewFromInt(1)}},
		{"fee mismatch", PurchasePlan{EntryFee: decimal.NewFromInt(5000), Units: 50, UnitPrice: decimal.NewFromInt(200), GiftRatio: decimal.RequireFromString("0.1")}},
	}
	for _, tc := range cases {
		if _, err := New(defs, tc.plan); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	body := `{
		"tiers": [
			{"id": 1, "name": "base", "discount": "0.05", "monthly_target": "0"},
			{"id": 2, "name": "plus", "discount": "0.15", "monthly_target": "8000"}
		],
		"plan": {"entry_fee": "2000", "units": 20, "unit_price": "100", "gift_ratio": "0.2"}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Definitions()) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(c.Definitions()))
	}
	if got := c.TierForSales(decimal.NewFromInt(8000)); got != 2 {
		t.Fatalf("TierForSales(8000) = %d, want 2", got)
	}
	if got := c.Plan().GiftUnits(); got != 4 {
		t.Fatalf("gift units = %d, want 4", got)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Highest().ID != 3 {
		t.Fatalf("expected default catalog, got top tier %d", c.Highest().ID)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
