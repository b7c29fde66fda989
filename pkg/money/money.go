package money

import "github.com/shopspring/decimal"

// ToMinorUnits converts a major-unit amount into the smallest unit of the
// settlement currency: amount x rate, shifted by the minor-unit scale and
// rounded half away from zero. For a two-decimal currency the scale is 2,
// so 20.00 at rate 415.25 becomes 830500 minor units.
func ToMinorUnits(amount, rate decimal.Decimal, scale int32) int64 {
	return amount.Mul(rate).Shift(scale).Round(0).IntPart()
}

// Round2 normalizes a monetary amount to two decimal places.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// Format renders an amount for display with exactly two decimal places.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
