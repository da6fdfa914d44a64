// Package pricing converts source-currency figures into target-currency
// retail prices. All operations are pure and deterministic.
package pricing

import "math"

// Normalizer applies the configured conversion rate, margin rule, and
// denomination rounding.
type Normalizer struct {
	// ExchangeRate converts source-currency units into target-currency units.
	ExchangeRate float64
	// MarginPercent is the retail margin applied on top of the base price.
	MarginPercent float64
	// RoundUnit is the denomination the final price is rounded up to.
	RoundUnit int64
}

// ConvertBase converts a source-currency price into a target-currency base
// price, before margin. Zero or negative input yields zero.
func (n Normalizer) ConvertBase(sourcePrice float64) int64 {
	if sourcePrice <= 0 {
		return 0
	}
	return int64(math.Round(sourcePrice * n.ExchangeRate))
}

// Normalize applies the margin to a base price and rounds up to the nearest
// RoundUnit. Zero or negative input yields zero.
func (n Normalizer) Normalize(basePrice int64) int64 {
	if basePrice <= 0 {
		return 0
	}
	withMargin := float64(basePrice) * (1.0 + n.MarginPercent/100.0)
	unit := float64(n.RoundUnit)
	return int64(math.Ceil(withMargin/unit)) * n.RoundUnit
}
