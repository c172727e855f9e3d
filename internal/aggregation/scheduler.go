package aggregation

import (
	"context"
	"log/slog"
	"time"

	"github.com/aevon-lab/sensor-rollup/internal/analysis"
	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
)

// AnomalyDetector is the part of the analysis service the scheduler drives.
type AnomalyDetector interface {
	DetectAnomalies(ctx context.Context, req analysis.AnomalyRequest) ([]telemetry.AnomalyRecord, error)
}

// QualityScorer is the part of the analysis service the scheduler drives.
type QualityScorer interface {
	CalculateDataQuality(ctx context.Context, req analysis.QualityRequest) (*telemetry.QualityRecord, error)
}

// CycleSummary counts what one scheduler pass did across all channels.
type CycleSummary struct {
	Channels       int
	Aggregations   int
	WindowsWritten int
	Anomalies      int
	QualityChecks  int
	Errors         int
}

// Scheduler runs the per-channel pipeline on a fixed interval: aggregation for
// every configured granularity, anomaly detection for the configured fields,
// then the daily quality check.
type Scheduler struct {
	interval  time.Duration
	merger    *Merger
	anomalies AnomalyDetector
	quality   QualityScorer
	channels  []telemetry.ChannelDefinition
}

func NewScheduler(
	interval time.Duration,
	merger *Merger,
	anomalies AnomalyDetector,
	quality QualityScorer,
	channels []telemetry.ChannelDefinition,
) *Scheduler {
	return &Scheduler{
		interval:  interval,
		merger:    merger,
		anomalies: anomalies,
		quality:   quality,
		channels:  channels,
	}
}

// Start runs one cycle immediately and then one per tick until ctx is
// cancelled. Cancellation stops new work; the window in flight completes.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting channel pipeline scheduler",
		"interval", s.interval,
		"channels", len(s.channels))

	s.RunCycle(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunCycle(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")
			return nil
		}
	}
}

// RunCycle processes every configured channel once.
func (s *Scheduler) RunCycle(ctx context.Context) CycleSummary {
	began := time.Now()
	var sum CycleSummary

	for _, ch := range s.channels {
		if ctx.Err() != nil {
			slog.Info("[Scheduler] Cycle interrupted by context cancellation",
				"channels_processed", sum.Channels)
			return sum
		}
		s.runChannel(ctx, ch, &sum)
		sum.Channels++
	}

	slog.Info("[Scheduler] Cycle complete",
		"channels", sum.Channels,
		"aggregations", sum.Aggregations,
		"windows_written", sum.WindowsWritten,
		"anomalies", sum.Anomalies,
		"quality_checks", sum.QualityChecks,
		"errors", sum.Errors,
		"duration", time.Since(began))
	return sum
}

func (s *Scheduler) runChannel(ctx context.Context, ch telemetry.ChannelDefinition, sum *CycleSummary) {
	for _, g := range ch.Granularities {
		if ctx.Err() != nil {
			return
		}
		res, err := s.merger.ProcessAggregation(ctx, Request{ChannelID: ch.ChannelID, Granularity: g})
		if res != nil {
			sum.Aggregations++
			sum.WindowsWritten += res.Written
		}
		if err != nil {
			sum.Errors++
			slog.Error("[Scheduler] Aggregation failed",
				"channel_id", ch.ChannelID,
				"granularity", g,
				"error", err)
		}
	}

	threshold := ch.AnomalyThreshold
	for _, field := range ch.AnomalyFields {
		if ctx.Err() != nil {
			return
		}
		found, err := s.anomalies.DetectAnomalies(ctx, analysis.AnomalyRequest{
			ChannelID:    ch.ChannelID,
			Field:        field,
			Threshold:    &threshold,
			LookbackDays: ch.LookbackDays,
		})
		if err != nil {
			sum.Errors++
			slog.Error("[Scheduler] Anomaly detection failed",
				"channel_id", ch.ChannelID,
				"field", int(field),
				"error", err)
			continue
		}
		sum.Anomalies += len(found)
	}

	if ctx.Err() != nil {
		return
	}
	if _, err := s.quality.CalculateDataQuality(ctx, analysis.QualityRequest{ChannelID: ch.ChannelID}); err != nil {
		sum.Errors++
		slog.Error("[Scheduler] Quality check failed",
			"channel_id", ch.ChannelID,
			"error", err)
		return
	}
	sum.QualityChecks++
}
