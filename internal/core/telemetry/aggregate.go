package telemetry

import (
	"time"
)

// WindowReducer turns the readings of one window into its aggregate row.
// ok is false when the window has no contributing readings and must be skipped.
type WindowReducer func(readings []Reading) (w AggregateWindow, ok bool)

// ComputeWindow summarizes the readings that fall inside p for one channel.
// Readings outside the window or for another channel are ignored.
func ComputeWindow(channelID int64, g Granularity, p Period, readings []Reading, computedAt time.Time) (AggregateWindow, bool) {
	in := make([]Reading, 0, len(readings))
	for _, r := range readings {
		if r.ChannelID == channelID && p.Contains(r.ObservedAt) {
			in = append(in, r)
		}
	}
	if len(in) == 0 {
		return AggregateWindow{}, false
	}

	w := AggregateWindow{
		ChannelID:    channelID,
		Granularity:  g,
		WindowStart:  p.Start.UTC(),
		WindowEnd:    p.End.UTC(),
		ReadingCount: int64(len(in)),
		ComputedAt:   computedAt.UTC(),
	}
	for i, field := range TrackedFields() {
		w.Fields[i] = Summarize(FieldValues(in, field))
	}
	return w, true
}

// Reducer binds ComputeWindow to one window so storage can call it inside the
// transaction that read the readings.
func Reducer(channelID int64, g Granularity, p Period, computedAt time.Time) WindowReducer {
	return func(readings []Reading) (AggregateWindow, bool) {
		return ComputeWindow(channelID, g, p, readings, computedAt)
	}
}
