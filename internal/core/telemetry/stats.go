package telemetry

import (
	"math"

	"github.com/shopspring/decimal"
)

// statsPrecision is the number of decimal places kept for derived statistics.
const statsPrecision = 10

// Mean returns the arithmetic mean of values. ok is false for an empty slice.
func Mean(values []decimal.Decimal) (mean decimal.Decimal, ok bool) {
	if len(values) == 0 {
		return decimal.Zero, false
	}
	return decimal.Sum(values[0], values[1:]...).
		DivRound(decimal.NewFromInt(int64(len(values))), statsPrecision), true
}

// SampleStdDev returns the sample (n-1) standard deviation of values.
// ok is false when fewer than two values are present: the statistic is
// undefined, not zero.
func SampleStdDev(values []decimal.Decimal) (stdDev decimal.Decimal, ok bool) {
	if len(values) < 2 {
		return decimal.Zero, false
	}
	mean, _ := Mean(values)

	sumSq := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sumSq = sumSq.Add(diff.Mul(diff))
	}
	variance := sumSq.Div(decimal.NewFromInt(int64(len(values) - 1)))

	// decimal has no square root; float64 keeps ~15 significant digits which is
	// well beyond sensor precision.
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64())).Round(statsPrecision), true
}

// Summarize computes the window statistics for one field.
func Summarize(values []decimal.Decimal) FieldStats {
	var s FieldStats
	if len(values) == 0 {
		return s
	}

	mean, _ := Mean(values)
	s.Avg = decimal.NewNullDecimal(mean)
	s.Min = decimal.NewNullDecimal(decimal.Min(values[0], values[1:]...))
	s.Max = decimal.NewNullDecimal(decimal.Max(values[0], values[1:]...))
	if sd, ok := SampleStdDev(values); ok {
		s.StdDev = decimal.NewNullDecimal(sd)
	}
	return s
}

// FieldValues collects the non-null values of one field in reading order.
func FieldValues(readings []Reading, n FieldNumber) []decimal.Decimal {
	values := make([]decimal.Decimal, 0, len(readings))
	for _, r := range readings {
		if v := r.value(n); v.Valid {
			values = append(values, v.Decimal)
		}
	}
	return values
}
