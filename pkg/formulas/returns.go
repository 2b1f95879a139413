// Package formulas holds the return arithmetic shared by the performance and ledger code.
package formulas

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

// Ratio returns numerator/denominator, or 0 when the denominator is 0
func Ratio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// PercentChange returns ((current / base) - 1) * 100, or 0 when base is 0
func PercentChange(current, base float64) float64 {
	if base == 0 {
		return 0
	}
	return (current/base - 1) * 100
}

// Round2 rounds to two decimals, half away from zero.
// Non-finite values are returned unchanged.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Sum adds values; an empty slice sums to 0
func Sum(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Sum(values)
}

// DollarWeightedReturn is the percent change of the summed current values over the summed
// buy values. Larger positions weigh more than in a mean of per-position percentages.
func DollarWeightedReturn(buyValues, currentValues []float64) float64 {
	return PercentChange(Sum(currentValues), Sum(buyValues))
}
