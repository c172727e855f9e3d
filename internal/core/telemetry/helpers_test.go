package telemetry

import (
	"time"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)

// newReading builds a reading with field1..fieldN set from values; nil leaves
// a field null.
func newReading(channel, entry int64, at time.Time, values ...*float64) Reading {
	r := Reading{ChannelID: channel, EntryID: entry, ObservedAt: at, ImportedAt: at}
	for i, v := range values {
		if v != nil {
			r.Fields[i] = decimal.NewNullDecimal(decimal.NewFromFloat(*v))
		}
	}
	return r
}

func f(v float64) *float64 { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
