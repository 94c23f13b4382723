// Package robust provides zero-resistant statistics and money rounding
// for noisy historical unit-economics data.
package robust

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// MedianNonZero computes the median of the non-zero values in vals.
// Historical records store missing cost dimensions as 0, so zeros are
// treated as "no data" and excluded. Returns 0 when nothing remains.
func MedianNonZero(vals []float64) float64 {
	filtered := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v != 0 {
			filtered = append(filtered, v)
		}
	}
	if len(filtered) == 0 {
		return 0
	}
	sort.Float64s(filtered)
	mid := len(filtered) / 2
	if len(filtered)%2 == 1 {
		return filtered[mid]
	}
	return (filtered[mid-1] + filtered[mid]) / 2
}

// SampleStdDev computes the sample standard deviation (n-1 divisor).
// Returns 0 with fewer than two observations.
func SampleStdDev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

// Money rounds a monetary value half-up to two decimal places.
// Accepts numbers, numeric strings and json.Number; anything that
// cannot be interpreted as a number comes back as 0.0 so that one
// malformed historical record never fails a whole estimate.
func Money(v any) float64 {
	d, ok := toDecimal(v)
	if !ok {
		return 0.0
	}
	f, _ := d.Round(2).Float64()
	return f
}

// Num converts a loosely typed metadata value to float64, returning 0
// when the value is absent or unparseable.
func Num(v any) float64 {
	d, ok := toDecimal(v)
	if !ok {
		return 0.0
	}
	f, _ := d.Float64()
	return f
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Decimal{}, false
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		return decimal.NewFromFloat32(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(x)
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}

// Round2 is shorthand for rounding an already-numeric float.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
