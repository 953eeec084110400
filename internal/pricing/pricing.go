package pricing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Platform rates. All monetary math in this package runs on decimals and is
// rounded half-up to 2 places before anything is stored or returned.
var (
	// CommissionRate is the platform cut added on top of the producer price.
	CommissionRate = decimal.RequireFromString("0.15")

	// MercadoPagoFeeRate is the processor fee applied on the total charged.
	MercadoPagoFeeRate = decimal.RequireFromString("0.0432")

	// IVARate is the VAT withheld on the total charged.
	IVARate = decimal.RequireFromString("0.0091")

	// IIBBRate is the gross-income tax retention on the total charged.
	IIBBRate = decimal.RequireFromString("0.0250")
)

// MoneyReleaseDelay is how long after purchase the funds are held before they
// can be transferred to the producer.
const MoneyReleaseDelay = 240 * time.Hour

var (
	// ErrNegativeAmount is returned when a monetary input is negative.
	ErrNegativeAmount = errors.New("pricing: amount must not be negative")

	// ErrInvalidQuantity is returned when a line item quantity is not positive.
	ErrInvalidQuantity = errors.New("pricing: quantity must be positive")

	// ErrZeroTimestamp is returned when a required timestamp is the zero value.
	ErrZeroTimestamp = errors.New("pricing: timestamp must be set")
)

// CostRoundingMode selects how the operating-cost total is derived.
type CostRoundingMode string

const (
	// CostRoundingPerComponent sums the three already-rounded components.
	// This matches the line items the processor reports, so it is the default.
	CostRoundingPerComponent CostRoundingMode = "per_component"

	// CostRoundingOnSum rounds the exact sum of the unrounded components once.
	CostRoundingOnSum CostRoundingMode = "on_sum"
)

// DefaultCostRounding is the mode used by CalculateOperatingCosts. It is set
// once at boot from configuration and never changed afterwards.
var DefaultCostRounding = CostRoundingPerComponent

// round2 rounds half-up to 2 decimal places.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// PriceQuote is the customer-facing price derived from a producer base price.
type PriceQuote struct {
	BasePrice  decimal.Decimal `json:"base_price"`
	Commission decimal.Decimal `json:"commission"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// LineItem is one ticket type within a checkout.
type LineItem struct {
	UnitBasePrice decimal.Decimal
	Quantity      int
}

// OperatingCosts is the processor/tax overhead decomposition of a total
// charged amount.
type OperatingCosts struct {
	MercadoPagoCommission decimal.Decimal `json:"mercadopago_commission"`
	IVACommission         decimal.Decimal `json:"iva_commission"`
	IIBBRetention         decimal.Decimal `json:"iibb_retention"`
	Total                 decimal.Decimal `json:"total"`
}

// FinancialBreakdown is the complete per-purchase ledger entry.
type FinancialBreakdown struct {
	TotalAmount      decimal.Decimal `json:"total_amount"`
	BaseAmount       decimal.Decimal `json:"base_amount"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	OperatingCosts   OperatingCosts  `json:"operating_costs"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	NetMargin        decimal.Decimal `json:"net_margin"`
	MoneyReleaseDate time.Time       `json:"money_release_date"`
}

// CalculatePrice converts a producer base price into the total charged to the
// buyer. Commission and total are rounded independently, and the total is
// derived from the rounded commission so that
// TotalPrice = BasePrice + Commission holds to the cent.
func CalculatePrice(basePrice decimal.Decimal) (PriceQuote, error) {
	if basePrice.IsNegative() {
		return PriceQuote{}, ErrNegativeAmount
	}

	base := round2(basePrice)
	commission := round2(base.Mul(CommissionRate))
	total := round2(base.Add(commission))

	return PriceQuote{
		BasePrice:  base,
		Commission: commission,
		TotalPrice: total,
	}, nil
}

// CalculateTotalPrice aggregates the base prices of all line items and applies
// the commission once to the aggregate. Applying commission per line and
// summing the totals can differ by a cent from this, so the aggregate-first
// order is the source of truth for what the buyer is charged.
func CalculateTotalPrice(items []LineItem) (PriceQuote, error) {
	base := decimal.Zero
	for _, item := range items {
		if item.UnitBasePrice.IsNegative() {
			return PriceQuote{}, ErrNegativeAmount
		}
		if item.Quantity <= 0 {
			return PriceQuote{}, ErrInvalidQuantity
		}
		base = base.Add(item.UnitBasePrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return CalculatePrice(base)
}

// CalculateOperatingCosts decomposes a total charged amount into processor
// fee, VAT and gross-income retention using DefaultCostRounding for the total.
func CalculateOperatingCosts(totalAmount decimal.Decimal) (OperatingCosts, error) {
	return CalculateOperatingCostsMode(totalAmount, DefaultCostRounding)
}

// CalculateOperatingCostsMode is CalculateOperatingCosts with an explicit
// total-rounding mode. Each component is always rounded on its own; the mode
// only decides whether Total sums the rounded components or rounds the exact
// sum once.
func CalculateOperatingCostsMode(totalAmount decimal.Decimal, mode CostRoundingMode) (OperatingCosts, error) {
	if totalAmount.IsNegative() {
		return OperatingCosts{}, ErrNegativeAmount
	}

	exactMP := totalAmount.Mul(MercadoPagoFeeRate)
	exactIVA := totalAmount.Mul(IVARate)
	exactIIBB := totalAmount.Mul(IIBBRate)

	costs := OperatingCosts{
		MercadoPagoCommission: round2(exactMP),
		IVACommission:         round2(exactIVA),
		IIBBRetention:         round2(exactIIBB),
	}

	switch mode {
	case CostRoundingOnSum:
		costs.Total = round2(exactMP.Add(exactIVA).Add(exactIIBB))
	default:
		costs.Total = round2(costs.MercadoPagoCommission.Add(costs.IVACommission).Add(costs.IIBBRetention))
	}

	return costs, nil
}

// CalculateFinancialBreakdown composes the full ledger entry for a purchase.
// It is a pure function of its inputs: the money release date comes from the
// given purchase timestamp, never from the wall clock.
func CalculateFinancialBreakdown(baseAmount decimal.Decimal, purchasedAt time.Time) (FinancialBreakdown, error) {
	if purchasedAt.IsZero() {
		return FinancialBreakdown{}, ErrZeroTimestamp
	}

	quote, err := CalculatePrice(baseAmount)
	if err != nil {
		return FinancialBreakdown{}, err
	}

	costs, err := CalculateOperatingCosts(quote.TotalPrice)
	if err != nil {
		return FinancialBreakdown{}, err
	}

	net := round2(quote.TotalPrice.Sub(costs.Total))
	margin := round2(net.Sub(quote.BasePrice))

	return FinancialBreakdown{
		TotalAmount:      quote.TotalPrice,
		BaseAmount:       quote.BasePrice,
		CommissionAmount: quote.Commission,
		OperatingCosts:   costs,
		NetAmount:        net,
		NetMargin:        margin,
		MoneyReleaseDate: MoneyReleaseDate(purchasedAt),
	}, nil
}

// MoneyReleaseDate returns the instant the funds of a purchase made at
// createdAt become transferable.
func MoneyReleaseDate(createdAt time.Time) time.Time {
	return createdAt.Add(MoneyReleaseDelay)
}

// CanTransferAt reports whether the release hold has elapsed at the given
// instant. Once true for a createdAt it stays true for any later instant.
func CanTransferAt(createdAt, now time.Time) bool {
	return !now.Before(MoneyReleaseDate(createdAt))
}

// CanTransfer is CanTransferAt against the wall clock.
func CanTransfer(createdAt time.Time) bool {
	return CanTransferAt(createdAt, time.Now())
}

// RemainingReleaseHoursAt returns how many whole hours remain until the funds
// release, rounding partial hours up, and 0 once the hold has elapsed.
func RemainingReleaseHoursAt(createdAt, now time.Time) int {
	remaining := MoneyReleaseDate(createdAt).Sub(now)
	if remaining <= 0 {
		return 0
	}
	hours := int(remaining / time.Hour)
	if remaining%time.Hour != 0 {
		hours++
	}
	return hours
}

// RemainingReleaseHours is RemainingReleaseHoursAt against the wall clock.
func RemainingReleaseHours(createdAt time.Time) int {
	return RemainingReleaseHoursAt(createdAt, time.Now())
}
