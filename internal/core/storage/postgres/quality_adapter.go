package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aevon-lab/sensor-rollup/internal/core/storage"
	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
)

// QualityAdapter implements storage.QualityLog on PostgreSQL.
type QualityAdapter struct {
	db *sql.DB
}

func NewQualityAdapter(db *sql.DB) *QualityAdapter {
	return &QualityAdapter{db: db}
}

// AppendQuality inserts rec and sets rec.ID. Existing records are never touched.
func (a *QualityAdapter) AppendQuality(ctx context.Context, rec *telemetry.QualityRecord) error {
	var id int64
	err := a.db.QueryRowContext(ctx, queryInsertQuality,
		rec.ChannelID,
		telemetry.StartOfDay(rec.CheckDate),
		rec.Total,
		rec.Missing,
		rec.OutOfRange,
		rec.Anomalies,
		rec.Score,
		rec.CheckedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return &storage.PersistenceError{
			Op:        "append quality",
			ChannelID: rec.ChannelID,
			Date:      telemetry.StartOfDay(rec.CheckDate),
			Code:      sqlState(err),
			Err:       err,
		}
	}
	rec.ID = id
	return nil
}

// QualityHistory returns records with check_date in [start, end), oldest first.
func (a *QualityAdapter) QualityHistory(ctx context.Context, channelID int64, start, end time.Time) ([]telemetry.QualityRecord, error) {
	rows, err := a.db.QueryContext(ctx, queryQualityHistory, channelID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query quality history: %w", err)
	}
	defer rows.Close()

	var out []telemetry.QualityRecord
	for rows.Next() {
		var rec telemetry.QualityRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.ChannelID,
			&rec.CheckDate,
			&rec.Total,
			&rec.Missing,
			&rec.OutOfRange,
			&rec.Anomalies,
			&rec.Score,
			&rec.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quality row: %w", err)
		}
		rec.CheckDate = rec.CheckDate.UTC()
		rec.CheckedAt = rec.CheckedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quality rows: %w", err)
	}
	return out, nil
}
