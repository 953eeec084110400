package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculatePrice(t *testing.T) {
	tests := []struct {
		name       string
		basePrice  string
		commission string
		totalPrice string
	}{
		{"reference price", "1000", "150", "1150"},
		{"zero base", "0", "0", "0"},
		{"fractional base", "333.33", "50", "383.33"},
		{"rounds half up", "10.01", "1.5", "11.51"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := CalculatePrice(dec(tt.basePrice))
			if err != nil {
				t.Fatalf("CalculatePrice(%s) error: %v", tt.basePrice, err)
			}
			if !quote.Commission.Equal(dec(tt.commission)) {
				t.Errorf("commission = %s; want %s", quote.Commission, tt.commission)
			}
			if !quote.TotalPrice.Equal(dec(tt.totalPrice)) {
				t.Errorf("total = %s; want %s", quote.TotalPrice, tt.totalPrice)
			}
		})
	}
}

func TestCalculatePriceNegative(t *testing.T) {
	if _, err := CalculatePrice(dec("-1")); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("CalculatePrice(-1) error = %v; want ErrNegativeAmount", err)
	}
}

// The total must reconcile against base + commission to the cent for any
// non-negative base price.
func TestCalculatePriceReconciles(t *testing.T) {
	bases := []string{"0", "0.01", "0.03", "1", "9.99", "100.55", "1000", "12345.67", "999999.99"}
	for _, b := range bases {
		quote, err := CalculatePrice(dec(b))
		if err != nil {
			t.Fatalf("CalculatePrice(%s) error: %v", b, err)
		}
		sum := quote.BasePrice.Add(quote.Commission)
		if !quote.TotalPrice.Equal(sum) {
			t.Errorf("base %s: total %s != base+commission %s", b, quote.TotalPrice, sum)
		}
	}
}

func TestCalculateTotalPrice(t *testing.T) {
	// Commission applies once to the aggregate base, not per line item.
	items := []LineItem{
		{UnitBasePrice: dec("100.55"), Quantity: 3},
		{UnitBasePrice: dec("250"), Quantity: 2},
	}
	quote, err := CalculateTotalPrice(items)
	if err != nil {
		t.Fatalf("CalculateTotalPrice error: %v", err)
	}
	if !quote.BasePrice.Equal(dec("801.65")) {
		t.Errorf("aggregate base = %s; want 801.65", quote.BasePrice)
	}
	if !quote.TotalPrice.Equal(quote.BasePrice.Add(quote.Commission)) {
		t.Errorf("total %s does not reconcile with base+commission", quote.TotalPrice)
	}
}

func TestCalculateTotalPriceValidation(t *testing.T) {
	if _, err := CalculateTotalPrice([]LineItem{{UnitBasePrice: dec("10"), Quantity: 0}}); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("zero quantity error = %v; want ErrInvalidQuantity", err)
	}
	if _, err := CalculateTotalPrice([]LineItem{{UnitBasePrice: dec("-10"), Quantity: 1}}); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("negative unit price error = %v; want ErrNegativeAmount", err)
	}
}

func TestCalculateOperatingCosts(t *testing.T) {
	costs, err := CalculateOperatingCosts(dec("1150"))
	if err != nil {
		t.Fatalf("CalculateOperatingCosts error: %v", err)
	}
	if !costs.MercadoPagoCommission.Equal(dec("49.68")) {
		t.Errorf("mercadopago commission = %s; want 49.68", costs.MercadoPagoCommission)
	}
	if !costs.IVACommission.Equal(dec("10.47")) {
		t.Errorf("iva commission = %s; want 10.47", costs.IVACommission)
	}
	if !costs.IIBBRetention.Equal(dec("28.75")) {
		t.Errorf("iibb retention = %s; want 28.75", costs.IIBBRetention)
	}
	if !costs.Total.Equal(dec("88.90")) {
		t.Errorf("total = %s; want 88.90", costs.Total)
	}
}

// In per-component mode the total always equals the sum of the three rounded
// components, whatever the input.
func TestOperatingCostsTotalReconciles(t *testing.T) {
	totals := []string{"0", "0.01", "1", "99.99", "1150", "3333.33", "1000000"}
	for _, amount := range totals {
		costs, err := CalculateOperatingCostsMode(dec(amount), CostRoundingPerComponent)
		if err != nil {
			t.Fatalf("CalculateOperatingCostsMode(%s) error: %v", amount, err)
		}
		sum := costs.MercadoPagoCommission.Add(costs.IVACommission).Add(costs.IIBBRetention)
		if !costs.Total.Equal(sum) {
			t.Errorf("amount %s: total %s != component sum %s", amount, costs.Total, sum)
		}
	}
}

func TestOperatingCostsRoundingModes(t *testing.T) {
	// 19.99 produces components whose individual roundings drift a cent from
	// the rounded exact sum: 0.863568 + 0.181909 + 0.49975 = 1.545227, but
	// rounded components give 0.86 + 0.18 + 0.50 = 1.54.
	perComponent, err := CalculateOperatingCostsMode(dec("19.99"), CostRoundingPerComponent)
	if err != nil {
		t.Fatal(err)
	}
	onSum, err := CalculateOperatingCostsMode(dec("19.99"), CostRoundingOnSum)
	if err != nil {
		t.Fatal(err)
	}
	if !perComponent.Total.Equal(dec("1.54")) {
		t.Errorf("per-component total = %s; want 1.54", perComponent.Total)
	}
	if !onSum.Total.Equal(dec("1.55")) {
		t.Errorf("on-sum total = %s; want 1.55", onSum.Total)
	}
}

func TestCalculateFinancialBreakdown(t *testing.T) {
	purchasedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	b, err := CalculateFinancialBreakdown(dec("1000"), purchasedAt)
	if err != nil {
		t.Fatalf("CalculateFinancialBreakdown error: %v", err)
	}

	if !b.TotalAmount.Equal(dec("1150")) {
		t.Errorf("total = %s; want 1150", b.TotalAmount)
	}
	if !b.CommissionAmount.Equal(dec("150")) {
		t.Errorf("commission = %s; want 150", b.CommissionAmount)
	}
	if !b.NetAmount.Equal(dec("1061.10")) {
		t.Errorf("net = %s; want 1061.10", b.NetAmount)
	}
	if !b.NetMargin.Equal(dec("61.10")) {
		t.Errorf("net margin = %s; want 61.10", b.NetMargin)
	}
	wantRelease := purchasedAt.Add(240 * time.Hour)
	if !b.MoneyReleaseDate.Equal(wantRelease) {
		t.Errorf("release date = %v; want %v", b.MoneyReleaseDate, wantRelease)
	}
}

// The composer must be deterministic: same inputs, identical output, no
// hidden clock dependency.
func TestFinancialBreakdownDeterministic(t *testing.T) {
	purchasedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	first, err := CalculateFinancialBreakdown(dec("437.77"), purchasedAt)
	if err != nil {
		t.Fatal(err)
	}
	second, err := CalculateFinancialBreakdown(dec("437.77"), purchasedAt)
	if err != nil {
		t.Fatal(err)
	}

	if !first.TotalAmount.Equal(second.TotalAmount) ||
		!first.NetAmount.Equal(second.NetAmount) ||
		!first.NetMargin.Equal(second.NetMargin) ||
		!first.MoneyReleaseDate.Equal(second.MoneyReleaseDate) {
		t.Errorf("breakdown not deterministic: %+v vs %+v", first, second)
	}
}

func TestFinancialBreakdownZeroTimestamp(t *testing.T) {
	if _, err := CalculateFinancialBreakdown(dec("100"), time.Time{}); !errors.Is(err, ErrZeroTimestamp) {
		t.Errorf("zero timestamp error = %v; want ErrZeroTimestamp", err)
	}
}

func TestCanTransferAt(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	release := createdAt.Add(240 * time.Hour)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"just purchased", createdAt, false},
		{"one second before release", release.Add(-time.Second), false},
		{"exactly at release", release, true},
		{"after release", release.Add(time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransferAt(createdAt, tt.now); got != tt.want {
				t.Errorf("CanTransferAt(%v) = %v; want %v", tt.now, got, tt.want)
			}
		})
	}
}

// Once the gate opens for a purchase it never closes again.
func TestCanTransferMonotonic(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	opened := false
	for h := 0; h <= 480; h++ {
		now := createdAt.Add(time.Duration(h) * time.Hour)
		got := CanTransferAt(createdAt, now)
		if opened && !got {
			t.Fatalf("gate closed again at +%dh", h)
		}
		if got {
			opened = true
		}
	}
	if !opened {
		t.Fatal("gate never opened within 480h")
	}
}

func TestRemainingReleaseHoursAt(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	release := createdAt.Add(240 * time.Hour)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"at purchase", createdAt, 240},
		{"partial hours round up", createdAt.Add(30 * time.Minute), 240},
		{"one hour in", createdAt.Add(time.Hour), 239},
		{"one second before release", release.Add(-time.Second), 1},
		{"exactly at release", release, 0},
		{"long after release", release.Add(100 * time.Hour), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RemainingReleaseHoursAt(createdAt, tt.now); got != tt.want {
				t.Errorf("RemainingReleaseHoursAt(%v) = %d; want %d", tt.now, got, tt.want)
			}
		})
	}
}
