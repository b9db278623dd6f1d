package pricing

import "math"

// Round2 rounds a currency amount to 2 decimal places, half away from zero.
// Only final amounts are rounded; per-unit intermediates stay unrounded so
// rounding error cannot compound across many line items.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// ApplyPercentDiscount reduces amount by percent (0-100).
func ApplyPercentDiscount(amount, percent float64) float64 {
	return Round2(amount * (1 - percent/100))
}

// ApplyFixedDiscount subtracts value from amount, clamped at zero. An invoice
// never goes negative however large the discount.
func ApplyFixedDiscount(amount, value float64) float64 {
	out := amount - value
	if out < 0 {
		return 0
	}
	return Round2(out)
}

// ApplyTax increases amount by percent.
func ApplyTax(amount, percent float64) float64 {
	return Round2(amount * (1 + percent/100))
}
