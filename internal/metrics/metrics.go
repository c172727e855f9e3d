// Package metrics exposes engine counters on the default Prometheus registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WindowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollup_windows_total",
			Help: "Aggregate windows processed, by granularity and outcome",
		},
		[]string{"granularity", "outcome"},
	)

	AnomaliesFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollup_anomalies_total",
			Help: "Readings flagged by the Z-score detector",
		},
		[]string{"field"},
	)

	QualityScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollup_quality_score",
			Help: "Most recent data quality score per channel",
		},
		[]string{"channel_id"},
	)

	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollup_readings_ingested_total",
			Help: "Readings received by the ingestion endpoint, by result",
		},
		[]string{"result"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollup_operation_duration_seconds",
			Help:    "Engine operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
)

// ObserveOperation records the latency of one engine call.
func ObserveOperation(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OperationDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

// ChannelLabel formats a channel id as a label value.
func ChannelLabel(channelID int64) string {
	return strconv.FormatInt(channelID, 10)
}

// FieldLabel formats a field selector as a label value.
func FieldLabel(field int) string {
	return "field" + strconv.Itoa(field)
}
