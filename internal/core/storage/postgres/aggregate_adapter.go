package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/sensor-rollup/internal/core/storage"
	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
)

// AggregateAdapter implements storage.AggregateStore on PostgreSQL.
type AggregateAdapter struct {
	db *sql.DB
}

func NewAggregateAdapter(db *sql.DB) *AggregateAdapter {
	return &AggregateAdapter{db: db}
}

// RefreshWindow recomputes one window inside a REPEATABLE READ transaction:
// the readings it reduces and the row it writes come from one snapshot.
func (a *AggregateAdapter) RefreshWindow(
	ctx context.Context,
	channelID int64,
	granularity telemetry.Granularity,
	window telemetry.Period,
	reduce telemetry.WindowReducer,
) (storage.RefreshOutcome, error) {
	fail := func(step string, err error) (storage.RefreshOutcome, error) {
		return storage.RefreshSkipped, &storage.PersistenceError{
			Op:          "refresh window: " + step,
			ChannelID:   channelID,
			Granularity: granularity,
			Window:      window,
			Code:        sqlState(err),
			Err:         err,
		}
	}

	tx, err := a.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fail("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, queryReadingsInRange, channelID, window.Start.UTC(), window.End.UTC())
	if err != nil {
		return fail("read readings", err)
	}
	readings, err := collectReadings(rows)
	rows.Close()
	if err != nil {
		return fail("read readings", err)
	}

	w, ok := reduce(readings)
	if !ok {
		return storage.RefreshSkipped, nil
	}

	res, err := tx.ExecContext(ctx, queryUpsertAggregateWindow, aggregateArgs(w)...)
	if err != nil {
		return fail("upsert", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fail("rows affected", err)
	}

	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}

	if affected == 0 {
		return storage.RefreshUnchanged, nil
	}

	slog.Debug("[AggregateAdapter] Window written",
		"channel_id", channelID,
		"granularity", granularity,
		"window_start", w.WindowStart,
		"reading_count", w.ReadingCount)
	return storage.RefreshWritten, nil
}

// QueryWindows returns stored windows whose start lies in [start, end).
func (a *AggregateAdapter) QueryWindows(
	ctx context.Context,
	channelID int64,
	granularity telemetry.Granularity,
	start time.Time,
	end time.Time,
) ([]telemetry.AggregateWindow, error) {
	rows, err := a.db.QueryContext(ctx, queryRangeAggregateWindows, channelID, string(granularity), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregate windows: %w", err)
	}
	defer rows.Close()

	var windows []telemetry.AggregateWindow
	for rows.Next() {
		w, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aggregate windows: %w", err)
	}
	return windows, nil
}
