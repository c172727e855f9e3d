package telemetry

import (
	"time"
)

// Period is a half-open window [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// GeneratePeriods partitions [start, end) into contiguous windows of the
// granularity step. The last window is cut short at end when the range does
// not divide evenly.
func GeneratePeriods(start, end time.Time, g Granularity) ([]Period, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, InvalidRange(start, end)
	}

	step := g.Step()
	n := int(end.Sub(start) / step)
	if end.Sub(start)%step != 0 {
		n++
	}

	periods := make([]Period, 0, n)
	for cur := start; cur.Before(end); {
		next := cur.Add(step)
		if next.After(end) {
			next = end
		}
		periods = append(periods, Period{Start: cur, End: next})
		cur = next
	}
	return periods, nil
}

// BucketFor truncates a timestamp to the granularity boundary in UTC.
// Weekly buckets start on Monday.
// Example: BucketFor(10:35:42, HOURLY) → 10:00:00
func BucketFor(t time.Time, g Granularity) time.Time {
	step := g.Step()
	if step <= 0 {
		return t.UTC()
	}
	return t.UTC().Truncate(step)
}

// StartOfDay returns midnight UTC of t's calendar date.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
