package telemetry

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultZThreshold and DefaultAnomalyLookbackDays are the detector defaults.
const (
	DefaultZThreshold          = 3.0
	DefaultAnomalyLookbackDays = 30
)

// ValidateThreshold rejects a Z-score threshold that is negative or not a
// finite number.
func ValidateThreshold(param string, threshold float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return InvalidArgument(param, threshold, "must be a finite number")
	}
	if threshold < 0 {
		return InvalidArgument(param, threshold, "must not be negative")
	}
	return nil
}

// Population is the mean and sample standard deviation of one field.
type Population struct {
	Count  int
	Mean   decimal.Decimal
	StdDev decimal.Decimal
	// Defined is false when the standard deviation is zero or undefined; no
	// reading can then be judged anomalous.
	Defined bool
}

// Describe computes the population statistics of a field over readings.
func Describe(readings []Reading, field FieldNumber) Population {
	values := FieldValues(readings, field)
	p := Population{Count: len(values)}
	p.Mean, _ = Mean(values)

	sd, ok := SampleStdDev(values)
	if ok && !sd.IsZero() {
		p.StdDev = sd
		p.Defined = true
	}
	return p
}

// DetectOutliers returns every reading whose field value deviates from the
// population mean by more than threshold standard deviations, newest first.
func DetectOutliers(readings []Reading, field FieldNumber, threshold decimal.Decimal) ([]AnomalyRecord, error) {
	if err := field.Validate(); err != nil {
		return nil, err
	}
	if threshold.IsNegative() {
		return nil, InvalidArgument("threshold", threshold.String(), "must not be negative")
	}

	pop := Describe(readings, field)
	if !pop.Defined {
		return []AnomalyRecord{}, nil
	}
	return pop.Outliers(readings, field, threshold), nil
}

// Outliers applies an already computed population to readings.
func (p Population) Outliers(readings []Reading, field FieldNumber, threshold decimal.Decimal) []AnomalyRecord {
	out := []AnomalyRecord{}
	if !p.Defined {
		return out
	}

	limit := threshold.Mul(p.StdDev)
	for _, r := range readings {
		v := r.value(field)
		if !v.Valid {
			continue
		}
		dev := v.Decimal.Sub(p.Mean)
		if dev.Abs().LessThanOrEqual(limit) {
			continue
		}
		out = append(out, AnomalyRecord{
			ChannelID:  r.ChannelID,
			EntryID:    r.EntryID,
			ObservedAt: r.ObservedAt,
			Field:      field,
			Value:      v.Decimal,
			Mean:       p.Mean,
			StdDev:     p.StdDev,
			ZScore:     dev.DivRound(p.StdDev, 4),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].EntryID > out[j].EntryID
		}
		return out[i].ObservedAt.After(out[j].ObservedAt)
	})
	return out
}
