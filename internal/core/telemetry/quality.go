package telemetry

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quality score weights.
var (
	weightMissing    = decimal.NewFromInt(30)
	weightOutOfRange = decimal.NewFromInt(40)
	weightAnomalies  = decimal.NewFromInt(30)
	maxScore         = decimal.NewFromInt(100)
)

// QualityCounts are the raw tallies behind a quality score.
type QualityCounts struct {
	Total      int64
	Missing    int64
	OutOfRange int64
	Anomalies  int64
}

// ValidityRule decides whether a present field value is within the valid range.
type ValidityRule func(field FieldNumber, v decimal.Decimal) bool

// NonNegative is the default validity rule: sensor values must not be negative.
func NonNegative(_ FieldNumber, v decimal.Decimal) bool {
	return !v.IsNegative()
}

// CountQuality tallies missing and out-of-range readings over the tracked fields.
// A reading is missing when every tracked field is null, and out of range when
// any tracked field fails the rule.
func CountQuality(readings []Reading, valid ValidityRule) QualityCounts {
	if valid == nil {
		valid = NonNegative
	}

	c := QualityCounts{Total: int64(len(readings))}
	for _, r := range readings {
		present := 0
		bad := false
		for _, f := range TrackedFields() {
			v := r.value(f)
			if !v.Valid {
				continue
			}
			present++
			if !valid(f, v.Decimal) {
				bad = true
			}
		}
		if present == 0 {
			c.Missing++
		}
		if bad {
			c.OutOfRange++
		}
	}
	return c
}

// Score computes 100 − 30·missing/total − 40·outOfRange/total − 30·anomalies/total,
// clamped at 0 and rounded to two places. An empty day scores 0.
func (c QualityCounts) Score() decimal.Decimal {
	if c.Total <= 0 {
		return decimal.Zero
	}
	total := decimal.NewFromInt(c.Total)
	penalty := weightMissing.Mul(decimal.NewFromInt(c.Missing)).
		Add(weightOutOfRange.Mul(decimal.NewFromInt(c.OutOfRange))).
		Add(weightAnomalies.Mul(decimal.NewFromInt(c.Anomalies))).
		DivRound(total, statsPrecision)

	score := maxScore.Sub(penalty)
	if score.IsNegative() {
		return decimal.Zero
	}
	return score.Round(2)
}

// Record builds the quality log entry for a channel-day.
func (c QualityCounts) Record(channelID int64, checkDate, checkedAt time.Time) QualityRecord {
	return QualityRecord{
		ChannelID:  channelID,
		CheckDate:  StartOfDay(checkDate),
		Total:      c.Total,
		Missing:    c.Missing,
		OutOfRange: c.OutOfRange,
		Anomalies:  c.Anomalies,
		Score:      c.Score(),
		CheckedAt:  checkedAt.UTC(),
	}
}

// CountAnomalousReadings counts the distinct readings in day that are flagged
// on any tracked field against the given per-field populations.
func CountAnomalousReadings(day []Reading, populations map[FieldNumber]Population, threshold decimal.Decimal) int64 {
	type readingKey struct{ channel, entry int64 }
	flagged := make(map[readingKey]struct{})
	for _, f := range TrackedFields() {
		pop, ok := populations[f]
		if !ok {
			continue
		}
		for _, a := range pop.Outliers(day, f, threshold) {
			flagged[readingKey{a.ChannelID, a.EntryID}] = struct{}{}
		}
	}
	return int64(len(flagged))
}
