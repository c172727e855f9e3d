package telemetry

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// FieldCount is the number of numeric field slots a reading carries.
	FieldCount = 8

	// TrackedFieldCount is the number of leading fields (field1..field4) that
	// aggregate windows and quality checks cover.
	TrackedFieldCount = 4
)

// Reading is one sensor observation as appended by the ingestion side.
// (ChannelID, EntryID) is the idempotency key; readings are never mutated here.
type Reading struct {
	ChannelID  int64
	EntryID    int64
	ObservedAt time.Time

	// Fields holds field1..field8 at index 0..7. Access goes through Field so the
	// selector is always bounds-checked.
	Fields [FieldCount]decimal.NullDecimal

	Latitude  decimal.NullDecimal
	Longitude decimal.NullDecimal
	Elevation decimal.NullDecimal
	Status    string

	ImportedAt time.Time
}

// Field returns the value of the given field selector.
func (r Reading) Field(n FieldNumber) (decimal.NullDecimal, error) {
	if err := n.Validate(); err != nil {
		return decimal.NullDecimal{}, err
	}
	return r.Fields[n.index()], nil
}

// value is Field for selectors that were already validated.
func (r Reading) value(n FieldNumber) decimal.NullDecimal {
	return r.Fields[n.index()]
}

// FieldStats is the per-field summary of one aggregate window.
// StdDev is null when fewer than two non-null values contributed.
type FieldStats struct {
	Avg    decimal.NullDecimal `json:"avg"`
	Min    decimal.NullDecimal `json:"min"`
	Max    decimal.NullDecimal `json:"max"`
	StdDev decimal.NullDecimal `json:"stddev"`
}

// Equal reports whether both summaries hold the same statistics.
func (s FieldStats) Equal(o FieldStats) bool {
	return nullEqual(s.Avg, o.Avg) &&
		nullEqual(s.Min, o.Min) &&
		nullEqual(s.Max, o.Max) &&
		nullEqual(s.StdDev, o.StdDev)
}

// WindowKey uniquely identifies an aggregate row.
type WindowKey struct {
	ChannelID   int64
	Granularity Granularity
	WindowStart time.Time
}

// AggregateWindow is the materialized summary of one channel window.
type AggregateWindow struct {
	ChannelID    int64                         `json:"channel_id"`
	Granularity  Granularity                   `json:"granularity"`
	WindowStart  time.Time                     `json:"window_start"` // inclusive
	WindowEnd    time.Time                     `json:"window_end"`   // exclusive
	Fields       [TrackedFieldCount]FieldStats `json:"fields"`
	ReadingCount int64                         `json:"reading_count"`
	ComputedAt   time.Time                     `json:"computed_at"`
}

// Key returns the upsert key of the window.
func (w AggregateWindow) Key() WindowKey {
	return WindowKey{
		ChannelID:   w.ChannelID,
		Granularity: w.Granularity,
		WindowStart: w.WindowStart.UTC(),
	}
}

// SameStatistics reports whether two rows for the same key carry identical
// statistics. ComputedAt is ignored.
func (w AggregateWindow) SameStatistics(o AggregateWindow) bool {
	if w.ReadingCount != o.ReadingCount || !w.WindowEnd.Equal(o.WindowEnd) {
		return false
	}
	for i := range w.Fields {
		if !w.Fields[i].Equal(o.Fields[i]) {
			return false
		}
	}
	return true
}

// AnomalyRecord is a reading whose field value deviates from the lookback
// population by more than the requested number of standard deviations.
type AnomalyRecord struct {
	ChannelID  int64           `json:"channel_id"`
	EntryID    int64           `json:"entry_id"`
	ObservedAt time.Time       `json:"observed_at"`
	Field      FieldNumber     `json:"field"`
	Value      decimal.Decimal `json:"value"`
	Mean       decimal.Decimal `json:"mean"`
	StdDev     decimal.Decimal `json:"std_dev"`
	ZScore     decimal.Decimal `json:"z_score"`
}

// QualityRecord is one entry of the append-only data quality log.
type QualityRecord struct {
	ID         int64           `json:"id"`
	ChannelID  int64           `json:"channel_id"`
	CheckDate  time.Time       `json:"check_date"`
	Total      int64           `json:"total_readings"`
	Missing    int64           `json:"missing_readings"`
	OutOfRange int64           `json:"out_of_range_readings"`
	Anomalies  int64           `json:"anomaly_count"`
	Score      decimal.Decimal `json:"quality_score"`
	CheckedAt  time.Time       `json:"checked_at"`
}

// Trend labels.
const (
	TrendIncreasing = "Increasing"
	TrendDecreasing = "Decreasing"
	TrendStable     = "Stable"
)

// TrendPoint summarizes one calendar day of a single field.
type TrendPoint struct {
	Date          time.Time           `json:"date"`
	Avg           decimal.Decimal     `json:"daily_avg"`
	Min           decimal.Decimal     `json:"daily_min"`
	Max           decimal.Decimal     `json:"daily_max"`
	ReadingCount  int64               `json:"reading_count"`
	Change        decimal.NullDecimal `json:"day_over_day_change"`
	MovingAverage decimal.Decimal     `json:"moving_avg_7day"`
	Trend         string              `json:"trend"`
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}
