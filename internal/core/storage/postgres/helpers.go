package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
	"github.com/lib/pq"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// readingArgs flattens a reading into queryInsertReading parameters.
func readingArgs(r telemetry.Reading) []interface{} {
	args := make([]interface{}, 0, 16)
	args = append(args, r.ChannelID, r.EntryID, r.ObservedAt.UTC())
	for _, v := range r.Fields {
		args = append(args, v)
	}
	var status sql.NullString
	if r.Status != "" {
		status = sql.NullString{String: r.Status, Valid: true}
	}
	args = append(args, r.Latitude, r.Longitude, r.Elevation, status, r.ImportedAt.UTC())
	return args
}

// scanReading scans one readingColumns row.
func scanReading(row scanner) (telemetry.Reading, error) {
	var r telemetry.Reading
	var status sql.NullString

	dest := make([]interface{}, 0, 16)
	dest = append(dest, &r.ChannelID, &r.EntryID, &r.ObservedAt)
	for i := range r.Fields {
		dest = append(dest, &r.Fields[i])
	}
	dest = append(dest, &r.Latitude, &r.Longitude, &r.Elevation, &status, &r.ImportedAt)

	if err := row.Scan(dest...); err != nil {
		return telemetry.Reading{}, fmt.Errorf("failed to scan reading row: %w", err)
	}
	r.Status = status.String
	r.ObservedAt = r.ObservedAt.UTC()
	r.ImportedAt = r.ImportedAt.UTC()
	return r, nil
}

// aggregateArgs flattens a window into queryUpsertAggregateWindow parameters.
func aggregateArgs(w telemetry.AggregateWindow) []interface{} {
	args := make([]interface{}, 0, 22)
	args = append(args, w.ChannelID, string(w.Granularity), w.WindowStart.UTC(), w.WindowEnd.UTC())
	for _, s := range w.Fields {
		args = append(args, s.Avg, s.Min, s.Max, s.StdDev)
	}
	args = append(args, w.ReadingCount, w.ComputedAt.UTC())
	return args
}

// scanAggregate scans one aggregateColumns row.
func scanAggregate(row scanner) (telemetry.AggregateWindow, error) {
	var w telemetry.AggregateWindow
	var granularity string

	dest := make([]interface{}, 0, 22)
	dest = append(dest, &w.ChannelID, &granularity, &w.WindowStart, &w.WindowEnd)
	for i := range w.Fields {
		s := &w.Fields[i]
		dest = append(dest, &s.Avg, &s.Min, &s.Max, &s.StdDev)
	}
	dest = append(dest, &w.ReadingCount, &w.ComputedAt)

	if err := row.Scan(dest...); err != nil {
		return telemetry.AggregateWindow{}, fmt.Errorf("failed to scan aggregate row: %w", err)
	}
	w.Granularity = telemetry.Granularity(granularity)
	w.WindowStart = w.WindowStart.UTC()
	w.WindowEnd = w.WindowEnd.UTC()
	w.ComputedAt = w.ComputedAt.UTC()
	return w, nil
}

// sqlState extracts the SQLSTATE of a driver error, if any.
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
