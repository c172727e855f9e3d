package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
)

// ReadingStore is the append-only store of raw sensor readings. The engine only
// reads from it; AppendReadings belongs to the ingestion side.
type ReadingStore interface {
	// AppendReadings inserts readings, skipping any (channel_id, entry_id) that
	// already exists. Returns the number of rows actually inserted.
	AppendReadings(ctx context.Context, readings []telemetry.Reading) (int, error)

	// ReadingsInRange returns one channel's readings with observed_at in
	// [start, end), ordered by observed_at then entry_id.
	ReadingsInRange(ctx context.Context, channelID int64, start, end time.Time) ([]telemetry.Reading, error)
}

// RefreshOutcome reports what RefreshWindow did with one window.
type RefreshOutcome int

const (
	// RefreshSkipped means the window had no readings; nothing was written.
	RefreshSkipped RefreshOutcome = iota
	// RefreshUnchanged means the stored row already held identical statistics.
	RefreshUnchanged
	// RefreshWritten means a row was inserted or its statistics replaced.
	RefreshWritten
)

func (o RefreshOutcome) String() string {
	switch o {
	case RefreshSkipped:
		return "skipped"
	case RefreshUnchanged:
		return "unchanged"
	case RefreshWritten:
		return "written"
	default:
		return fmt.Sprintf("RefreshOutcome(%d)", int(o))
	}
}

// AggregateStore persists aggregate windows.
//
// Contract: RefreshWindow reads the channel's readings in the window and
// upserts the reduced row in one transaction, so a concurrent reading insert
// is either fully reflected or not at all. Each window is its own unit; a
// failure never touches rows written by earlier calls.
type AggregateStore interface {
	RefreshWindow(
		ctx context.Context,
		channelID int64,
		granularity telemetry.Granularity,
		window telemetry.Period,
		reduce telemetry.WindowReducer,
	) (RefreshOutcome, error)

	// QueryWindows returns stored windows whose start lies in [start, end),
	// ordered by window_start ASC.
	QueryWindows(
		ctx context.Context,
		channelID int64,
		granularity telemetry.Granularity,
		start time.Time,
		end time.Time,
	) ([]telemetry.AggregateWindow, error)
}

// QualityLog is the append-only data quality history.
type QualityLog interface {
	// AppendQuality inserts a new record and sets its generated ID.
	AppendQuality(ctx context.Context, rec *telemetry.QualityRecord) error

	// QualityHistory returns records with check_date in [start, end), oldest first.
	QualityHistory(ctx context.Context, channelID int64, start, end time.Time) ([]telemetry.QualityRecord, error)
}
