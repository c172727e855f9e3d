package postgres

// SQL for readings, aggregate windows and the quality log.

const (
	readingColumns = `
			channel_id, entry_id, observed_at,
			field1, field2, field3, field4, field5, field6, field7, field8,
			latitude, longitude, elevation, status, imported_at`

	// queryInsertReading skips rows whose (channel_id, entry_id) already exists.
	// RETURNING yields no row (sql.ErrNoRows) for a duplicate.
	queryInsertReading = `
		INSERT INTO sensor_readings (` + readingColumns + `
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (channel_id, entry_id) DO NOTHING
		RETURNING id
	`

	// queryReadingsInRange serves both window refreshes and the analysis reads.
	queryReadingsInRange = `
		SELECT` + readingColumns + `
		FROM sensor_readings
		WHERE channel_id = $1
		  AND observed_at >= $2
		  AND observed_at < $3
		ORDER BY observed_at ASC, entry_id ASC
	`

	aggregateColumns = `
			channel_id, granularity, window_start, window_end,
			field1_avg, field1_min, field1_max, field1_stddev,
			field2_avg, field2_min, field2_max, field2_stddev,
			field3_avg, field3_min, field3_max, field3_stddev,
			field4_avg, field4_min, field4_max, field4_stddev,
			reading_count, computed_at`

	// queryUpsertAggregateWindow replaces a window's statistics only when they
	// differ from the stored row, so re-running over unchanged readings leaves
	// the row (computed_at included) untouched and affects zero rows.
	queryUpsertAggregateWindow = `
		INSERT INTO aggregate_windows (` + aggregateColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (channel_id, granularity, window_start)
		DO UPDATE SET
			window_end    = EXCLUDED.window_end,
			field1_avg    = EXCLUDED.field1_avg,
			field1_min    = EXCLUDED.field1_min,
			field1_max    = EXCLUDED.field1_max,
			field1_stddev = EXCLUDED.field1_stddev,
			field2_avg    = EXCLUDED.field2_avg,
			field2_min    = EXCLUDED.field2_min,
			field2_max    = EXCLUDED.field2_max,
			field2_stddev = EXCLUDED.field2_stddev,
			field3_avg    = EXCLUDED.field3_avg,
			field3_min    = EXCLUDED.field3_min,
			field3_max    = EXCLUDED.field3_max,
			field3_stddev = EXCLUDED.field3_stddev,
			field4_avg    = EXCLUDED.field4_avg,
			field4_min    = EXCLUDED.field4_min,
			field4_max    = EXCLUDED.field4_max,
			field4_stddev = EXCLUDED.field4_stddev,
			reading_count = EXCLUDED.reading_count,
			computed_at   = EXCLUDED.computed_at
		WHERE (
			aggregate_windows.window_end,
			aggregate_windows.field1_avg,
			aggregate_windows.field1_min,
			aggregate_windows.field1_max,
			aggregate_windows.field1_stddev,
			aggregate_windows.field2_avg,
			aggregate_windows.field2_min,
			aggregate_windows.field2_max,
			aggregate_windows.field2_stddev,
			aggregate_windows.field3_avg,
			aggregate_windows.field3_min,
			aggregate_windows.field3_max,
			aggregate_windows.field3_stddev,
			aggregate_windows.field4_avg,
			aggregate_windows.field4_min,
			aggregate_windows.field4_max,
			aggregate_windows.field4_stddev,
			aggregate_windows.reading_count
		) IS DISTINCT FROM (
			EXCLUDED.window_end,
			EXCLUDED.field1_avg,
			EXCLUDED.field1_min,
			EXCLUDED.field1_max,
			EXCLUDED.field1_stddev,
			EXCLUDED.field2_avg,
			EXCLUDED.field2_min,
			EXCLUDED.field2_max,
			EXCLUDED.field2_stddev,
			EXCLUDED.field3_avg,
			EXCLUDED.field3_min,
			EXCLUDED.field3_max,
			EXCLUDED.field3_stddev,
			EXCLUDED.field4_avg,
			EXCLUDED.field4_min,
			EXCLUDED.field4_max,
			EXCLUDED.field4_stddev,
			EXCLUDED.reading_count
		)
	`

	queryRangeAggregateWindows = `
		SELECT` + aggregateColumns + `
		FROM aggregate_windows
		WHERE channel_id = $1
		  AND granularity = $2
		  AND window_start >= $3
		  AND window_start < $4
		ORDER BY window_start ASC
	`

	queryInsertQuality = `
		INSERT INTO data_quality_log (
			channel_id, check_date, total_readings, missing_readings,
			out_of_range_readings, anomaly_count, quality_score, checked_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	queryQualityHistory = `
		SELECT
			id, channel_id, check_date, total_readings, missing_readings,
			out_of_range_readings, anomaly_count, quality_score, checked_at
		FROM data_quality_log
		WHERE channel_id = $1
		  AND check_date >= $2
		  AND check_date < $3
		ORDER BY check_date ASC, id ASC
	`

	// queryRequiredTables checks that migrations have been applied.
	queryRequiredTables = `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_name IN ('sensor_readings', 'aggregate_windows', 'data_quality_log')
	`
)
