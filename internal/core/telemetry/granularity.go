package telemetry

import (
	"strings"
	"time"
)

// Granularity is the aggregation window size tag.
type Granularity string

const (
	GranularityHourly Granularity = "HOURLY"
	GranularityDaily  Granularity = "DAILY"
	GranularityWeekly Granularity = "WEEKLY"
)

var granularitySteps = map[Granularity]time.Duration{
	GranularityHourly: time.Hour,
	GranularityDaily:  24 * time.Hour,
	GranularityWeekly: 7 * 24 * time.Hour,
}

// ParseGranularity accepts a tag case-insensitively.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToUpper(strings.TrimSpace(s)))
	if err := g.Validate(); err != nil {
		return "", &ValidationError{Kind: ErrInvalidGranularity, Param: "granularity", Value: s}
	}
	return g, nil
}

// Validate rejects unrecognized tags.
func (g Granularity) Validate() error {
	if _, ok := granularitySteps[g]; !ok {
		return &ValidationError{Kind: ErrInvalidGranularity, Param: "granularity", Value: string(g)}
	}
	return nil
}

// Step returns the nominal window length. Zero for unknown tags.
func (g Granularity) Step() time.Duration {
	return granularitySteps[g]
}

func (g Granularity) String() string { return string(g) }

// FieldNumber selects one of field1..field8.
type FieldNumber int

// Validate checks the selector before it is used to index a reading.
func (n FieldNumber) Validate() error {
	if n < 1 || n > FieldCount {
		return &ValidationError{
			Kind:   ErrInvalidField,
			Param:  "field",
			Value:  int(n),
			Reason: "must be between 1 and 8",
		}
	}
	return nil
}

func (n FieldNumber) index() int { return int(n) - 1 }

// TrackedFields returns field1..field4.
func TrackedFields() []FieldNumber {
	out := make([]FieldNumber, TrackedFieldCount)
	for i := range out {
		out[i] = FieldNumber(i + 1)
	}
	return out
}
