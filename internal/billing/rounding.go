package billing

import "github.com/shopspring/decimal"

// RoundCents rounds a decimal amount to whole cents using half-away-from-zero
// rounding. Every monetary rounding in the calculators goes through here so
// the policy is applied in exactly one place.
func RoundCents(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
