package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/sensor-rollup/internal/core/storage"
	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
	"github.com/aevon-lab/sensor-rollup/internal/metrics"
	"github.com/shopspring/decimal"
)

const (
	day = 24 * time.Hour

	defaultQualityHistoryDays = 30
)

// Options are the service-wide defaults. Zero values fall back to the
// package defaults in telemetry.
type Options struct {
	Threshold    float64
	LookbackDays int
	TrendDays    int
	// DetectAnomaliesInQuality runs the Z-score detector for the anomalies
	// term of the quality score. When false the term is zero.
	DetectAnomaliesInQuality bool
	// Clock resolves omitted "now" inputs. Defaults to time.Now in UTC.
	Clock func() time.Time
}

func (o Options) normalized() Options {
	n := o
	if n.Threshold <= 0 {
		n.Threshold = telemetry.DefaultZThreshold
	}
	if n.LookbackDays <= 0 {
		n.LookbackDays = telemetry.DefaultAnomalyLookbackDays
	}
	if n.TrendDays <= 0 {
		n.TrendDays = telemetry.DefaultTrendDays
	}
	if n.Clock == nil {
		n.Clock = func() time.Time {
			return time.Now().UTC()
		}
	}
	return n
}

// AnomalyRequest parameters. Nil Threshold and zero LookbackDays take the
// service defaults; a zero AsOf means now.
type AnomalyRequest struct {
	ChannelID    int64
	Field        telemetry.FieldNumber
	Threshold    *float64
	LookbackDays int
	AsOf         time.Time
}

// QualityRequest parameters. A zero CheckDate means today (UTC).
type QualityRequest struct {
	ChannelID int64
	CheckDate time.Time
}

// TrendRequest parameters. Zero Days takes the service default; a zero AsOf
// means today.
type TrendRequest struct {
	ChannelID int64
	Field     telemetry.FieldNumber
	Days      int
	AsOf      time.Time
}

// Service runs the read-side analyses over stored readings and keeps the
// quality log.
type Service struct {
	readings storage.ReadingStore
	quality  storage.QualityLog
	opts     Options
	nowFn    func() time.Time
}

func NewService(readings storage.ReadingStore, quality storage.QualityLog, opts Options) *Service {
	opts = opts.normalized()
	slog.Info("[Analysis] Service configured",
		"threshold", opts.Threshold,
		"lookback_days", opts.LookbackDays,
		"trend_days", opts.TrendDays,
		"quality_anomalies", opts.DetectAnomaliesInQuality)

	return &Service{
		readings: readings,
		quality:  quality,
		opts:     opts,
		nowFn:    opts.Clock,
	}
}

// DetectAnomalies returns the readings of one field whose value lies more
// than threshold sample standard deviations from the lookback mean, newest
// first. A zero or undefined deviation yields an empty result.
func (s *Service) DetectAnomalies(ctx context.Context, req AnomalyRequest) (anomalies []telemetry.AnomalyRecord, err error) {
	began := time.Now()
	defer func() { metrics.ObserveOperation("detect_anomalies", began, err) }()

	if err := req.Field.Validate(); err != nil {
		return nil, err
	}
	if err := validateChannel(req.ChannelID); err != nil {
		return nil, err
	}
	threshold := s.opts.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if err := telemetry.ValidateThreshold("threshold", threshold); err != nil {
		return nil, err
	}
	lookback, err := positiveOr(req.LookbackDays, s.opts.LookbackDays, "lookback_days")
	if err != nil {
		return nil, err
	}

	asOf := s.resolve(req.AsOf)
	start := asOf.AddDate(0, 0, -lookback)
	// The lookback includes a reading observed exactly at asOf.
	readings, err := s.readings.ReadingsInRange(ctx, req.ChannelID, start, asOf.Add(time.Microsecond))
	if err != nil {
		return nil, fmt.Errorf("detect anomalies: read readings: %w", err)
	}

	anomalies, err = telemetry.DetectOutliers(readings, req.Field, decimal.NewFromFloat(threshold))
	if err != nil {
		return nil, err
	}

	metrics.AnomaliesFound.WithLabelValues(metrics.FieldLabel(int(req.Field))).Add(float64(len(anomalies)))
	slog.Info("[Analysis] Anomaly detection complete",
		"channel_id", req.ChannelID,
		"field", int(req.Field),
		"threshold", threshold,
		"lookback_days", lookback,
		"readings", len(readings),
		"anomalies", len(anomalies))
	return anomalies, nil
}

// CalculateDataQuality scores one channel-day and appends the result to the
// quality log. Every call appends a new record.
func (s *Service) CalculateDataQuality(ctx context.Context, req QualityRequest) (rec *telemetry.QualityRecord, err error) {
	began := time.Now()
	defer func() { metrics.ObserveOperation("calculate_data_quality", began, err) }()

	if err := validateChannel(req.ChannelID); err != nil {
		return nil, err
	}

	if s.opts.DetectAnomaliesInQuality {
		if err := telemetry.ValidateThreshold("threshold", s.opts.Threshold); err != nil {
			return nil, err
		}
	}

	checkDate := telemetry.StartOfDay(s.resolve(req.CheckDate))
	dayEnd := checkDate.Add(day)

	from := checkDate
	if s.opts.DetectAnomaliesInQuality {
		from = dayEnd.AddDate(0, 0, -s.opts.LookbackDays)
	}
	readings, err := s.readings.ReadingsInRange(ctx, req.ChannelID, from, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("calculate data quality: read readings: %w", err)
	}

	today := readings
	if from.Before(checkDate) {
		today = readingsOnOrAfter(readings, checkDate)
	}

	counts := telemetry.CountQuality(today, telemetry.NonNegative)
	if s.opts.DetectAnomaliesInQuality {
		populations := make(map[telemetry.FieldNumber]telemetry.Population, telemetry.TrackedFieldCount)
		for _, f := range telemetry.TrackedFields() {
			populations[f] = telemetry.Describe(readings, f)
		}
		counts.Anomalies = telemetry.CountAnomalousReadings(today, populations, decimal.NewFromFloat(s.opts.Threshold))
	}

	record := counts.Record(req.ChannelID, checkDate, s.nowFn())
	if err := s.quality.AppendQuality(ctx, &record); err != nil {
		var perr *storage.PersistenceError
		if !errors.As(err, &perr) {
			err = &storage.PersistenceError{
				Op:        "append quality",
				ChannelID: req.ChannelID,
				Date:      checkDate,
				Err:       err,
			}
		}
		return nil, err
	}

	score, _ := record.Score.Float64()
	metrics.QualityScore.WithLabelValues(metrics.ChannelLabel(req.ChannelID)).Set(score)
	slog.Info("[Analysis] Data quality recorded",
		"channel_id", req.ChannelID,
		"check_date", checkDate.Format(time.DateOnly),
		"total", record.Total,
		"missing", record.Missing,
		"out_of_range", record.OutOfRange,
		"anomalies", record.Anomalies,
		"score", record.Score.String())
	return &record, nil
}

// GetTrendAnalysis returns one point per day with data over the trailing
// window ending with AsOf's date, newest first.
func (s *Service) GetTrendAnalysis(ctx context.Context, req TrendRequest) (points []telemetry.TrendPoint, err error) {
	began := time.Now()
	defer func() { metrics.ObserveOperation("get_trend_analysis", began, err) }()

	if err := req.Field.Validate(); err != nil {
		return nil, err
	}
	if err := validateChannel(req.ChannelID); err != nil {
		return nil, err
	}
	days, err := positiveOr(req.Days, s.opts.TrendDays, "days")
	if err != nil {
		return nil, err
	}

	asOfDate := telemetry.StartOfDay(s.resolve(req.AsOf))
	start := asOfDate.AddDate(0, 0, -days)
	readings, err := s.readings.ReadingsInRange(ctx, req.ChannelID, start, asOfDate.Add(day))
	if err != nil {
		return nil, fmt.Errorf("trend analysis: read readings: %w", err)
	}

	return telemetry.BuildTrend(readings, req.Field)
}

// QualityHistory returns logged quality records with check dates in
// [start, end). Zero bounds default to the last 30 days through today.
func (s *Service) QualityHistory(ctx context.Context, channelID int64, start, end time.Time) ([]telemetry.QualityRecord, error) {
	if err := validateChannel(channelID); err != nil {
		return nil, err
	}
	if end.IsZero() {
		end = telemetry.StartOfDay(s.nowFn()).Add(day)
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -defaultQualityHistoryDays)
	}
	if !end.After(start) {
		return nil, telemetry.InvalidRange(start, end)
	}
	records, err := s.quality.QualityHistory(ctx, channelID, start, end)
	if err != nil {
		return nil, fmt.Errorf("quality history: %w", err)
	}
	return records, nil
}

func (s *Service) resolve(t time.Time) time.Time {
	if t.IsZero() {
		return s.nowFn().UTC()
	}
	return t.UTC()
}

func validateChannel(channelID int64) error {
	if channelID <= 0 {
		return telemetry.InvalidArgument("channel_id", channelID, "must be positive")
	}
	return nil
}

// positiveOr returns v, or def when v is zero. Negative values are rejected.
func positiveOr(v, def int, param string) (int, error) {
	switch {
	case v < 0:
		return 0, telemetry.InvalidArgument(param, v, "must be positive")
	case v == 0:
		return def, nil
	default:
		return v, nil
	}
}

// readingsOnOrAfter keeps readings observed at or after t. Input is ordered
// by observed_at.
func readingsOnOrAfter(readings []telemetry.Reading, t time.Time) []telemetry.Reading {
	for i, r := range readings {
		if !r.ObservedAt.Before(t) {
			return readings[i:]
		}
	}
	return nil
}
