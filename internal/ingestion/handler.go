package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	httperr "github.com/aevon-lab/sensor-rollup/internal/core/errors"
	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
	"github.com/aevon-lab/sensor-rollup/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgPersistFailed  = "Failed to persist readings"
)

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// ReadingPayload is one reading as sent by a collector. Field values accept
// JSON numbers, numeric strings or null.
type ReadingPayload struct {
	EntryID    int64               `json:"entry_id"`
	ObservedAt time.Time           `json:"observed_at"`
	Field1     decimal.NullDecimal `json:"field1"`
	Field2     decimal.NullDecimal `json:"field2"`
	Field3     decimal.NullDecimal `json:"field3"`
	Field4     decimal.NullDecimal `json:"field4"`
	Field5     decimal.NullDecimal `json:"field5"`
	Field6     decimal.NullDecimal `json:"field6"`
	Field7     decimal.NullDecimal `json:"field7"`
	Field8     decimal.NullDecimal `json:"field8"`
	Latitude   decimal.NullDecimal `json:"latitude"`
	Longitude  decimal.NullDecimal `json:"longitude"`
	Elevation  decimal.NullDecimal `json:"elevation"`
	Status     string              `json:"status"`
}

type ingestRequest struct {
	Readings []ReadingPayload `json:"readings"`
}

func (p ReadingPayload) toReading(channelID int64, importedAt time.Time) telemetry.Reading {
	return telemetry.Reading{
		ChannelID:  channelID,
		EntryID:    p.EntryID,
		ObservedAt: p.ObservedAt.UTC(),
		Fields: [telemetry.FieldCount]decimal.NullDecimal{
			p.Field1, p.Field2, p.Field3, p.Field4,
			p.Field5, p.Field6, p.Field7, p.Field8,
		},
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Elevation:  p.Elevation,
		Status:     p.Status,
		ImportedAt: importedAt,
	}
}

// IngestHandler handles POST /v1/channels/:channel_id/readings.
// Readings whose (channel_id, entry_id) already exists are counted as
// duplicates and skipped, so collectors can resend a page safely.
func (s *Service) IngestHandler(c *gin.Context) {
	channelID, err := strconv.ParseInt(c.Param("channel_id"), 10, 64)
	if err != nil || channelID <= 0 {
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    "channel_id must be a positive integer",
			details:    map[string]interface{}{"channel_id": c.Param("channel_id")},
		})
		return
	}

	payload, payloadSize, ierr := s.parseReadings(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	if ierr := s.validateReadings(payload); ierr != nil {
		writeError(c, ierr)
		return
	}

	importedAt := s.nowFn()
	readings := make([]telemetry.Reading, len(payload.Readings))
	for i, p := range payload.Readings {
		readings[i] = p.toReading(channelID, importedAt)
	}

	inserted, ierr := s.persistReadings(c.Request.Context(), channelID, readings)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	duplicates := len(readings) - inserted
	metrics.ReadingsIngested.WithLabelValues("inserted").Add(float64(inserted))
	metrics.ReadingsIngested.WithLabelValues("duplicate").Add(float64(duplicates))

	slog.Info("[Ingestion] Readings received",
		"channel_id", channelID,
		"received", len(readings),
		"inserted", inserted,
		"duplicates", duplicates,
		"payload_size", payloadSize)

	c.JSON(http.StatusAccepted, gin.H{
		"status":     "accepted",
		"received":   len(readings),
		"inserted":   inserted,
		"duplicates": duplicates,
	})
}

// parseReadings reads the raw request body and binds it into an ingestRequest.
// Returns the parsed request and the raw payload size (used for structured logging upstream).
func (s *Service) parseReadings(c *gin.Context) (*ingestRequest, int, *ingestionError) {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("[Ingestion] Failed to read request body", "error", err)
		return nil, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("[Ingestion] Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("[Ingestion] Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
			details:    err.Error(),
		}
	}
	return &req, len(bodyBytes), nil
}

// validateReadings checks the batch shape and each reading's identity.
func (s *Service) validateReadings(req *ingestRequest) *ingestionError {
	if len(req.Readings) == 0 {
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    "readings must not be empty",
		}
	}
	if len(req.Readings) > s.maxReadings {
		return &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpValidationError,
			message:    fmt.Sprintf("at most %d readings per request", s.maxReadings),
		}
	}

	seen := make(map[int64]struct{}, len(req.Readings))
	for i, r := range req.Readings {
		var reason string
		switch {
		case r.EntryID <= 0:
			reason = "entry_id must be positive"
		case r.ObservedAt.IsZero():
			reason = "observed_at is required"
		}
		if _, dup := seen[r.EntryID]; reason == "" && dup {
			reason = "entry_id repeated within the request"
		}
		if reason != "" {
			return &ingestionError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpValidationError,
				message:    reason,
				details: map[string]interface{}{
					"index":    i,
					"entry_id": r.EntryID,
				},
			}
		}
		seen[r.EntryID] = struct{}{}
	}
	return nil
}

// persistReadings appends the batch to the reading store.
func (s *Service) persistReadings(ctx context.Context, channelID int64, readings []telemetry.Reading) (int, *ingestionError) {
	inserted, err := s.store.AppendReadings(ctx, readings)
	if err != nil {
		slog.Error("[Ingestion] Failed to persist readings", "error", err, "channel_id", channelID)
		return 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpPersistenceError,
			message:    msgPersistFailed,
		}
	}
	return inserted, nil
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
