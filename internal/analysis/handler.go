package analysis

import (
	"log/slog"
	"net/http"
	"time"

	httperr "github.com/aevon-lab/sensor-rollup/internal/core/errors"
	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
	"github.com/gin-gonic/gin"
)

type channelURI struct {
	ChannelID int64 `uri:"channel_id" binding:"required"`
}

// RegisterRoutes registers the analysis endpoints.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	ch := r.Group("/v1/channels/:channel_id")
	ch.GET("/anomalies", s.HandleDetectAnomalies)
	ch.POST("/quality", s.HandleCalculateQuality)
	ch.GET("/quality", s.HandleQualityHistory)
	ch.GET("/trends", s.HandleTrendAnalysis)
}

// HandleDetectAnomalies handles GET /v1/channels/:channel_id/anomalies
// Query parameters: field (required), threshold, lookback_days, as_of
func (s *Service) HandleDetectAnomalies(c *gin.Context) {
	var uri channelURI
	var query struct {
		Field        int       `form:"field" binding:"required"`
		Threshold    *float64  `form:"threshold"`
		LookbackDays int       `form:"lookback_days"`
		AsOf         time.Time `form:"as_of" time_format:"2006-01-02T15:04:05Z07:00"`
	}
	if !bindRequest(c, &uri, &query) {
		return
	}

	anomalies, err := s.DetectAnomalies(c.Request.Context(), AnomalyRequest{
		ChannelID:    uri.ChannelID,
		Field:        telemetry.FieldNumber(query.Field),
		Threshold:    query.Threshold,
		LookbackDays: query.LookbackDays,
		AsOf:         query.AsOf,
	})
	if err != nil {
		writeError(c, "Failed to detect anomalies", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel_id": uri.ChannelID,
		"field":      query.Field,
		"count":      len(anomalies),
		"anomalies":  anomalies,
	})
}

// HandleCalculateQuality handles POST /v1/channels/:channel_id/quality
// Optional JSON body: {"check_date": "2026-02-11"}
func (s *Service) HandleCalculateQuality(c *gin.Context) {
	var uri channelURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.NewErrorResponse(httperr.HttpInvalidRequestError, "Invalid path parameters", err))
		return
	}

	var body struct {
		CheckDate string `json:"check_date"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, httperr.NewErrorResponse(httperr.HttpInvalidJsonError, "Invalid JSON body", err))
			return
		}
	}

	var checkDate time.Time
	if body.CheckDate != "" {
		d, err := time.Parse(time.DateOnly, body.CheckDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, httperr.NewErrorResponse(httperr.HttpInvalidRequestError, "check_date must be YYYY-MM-DD", err))
			return
		}
		checkDate = d
	}

	rec, err := s.CalculateDataQuality(c.Request.Context(), QualityRequest{
		ChannelID: uri.ChannelID,
		CheckDate: checkDate,
	})
	if err != nil {
		writeError(c, "Failed to calculate data quality", err)
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// HandleQualityHistory handles GET /v1/channels/:channel_id/quality
// Query parameters: start, end (YYYY-MM-DD, end exclusive)
func (s *Service) HandleQualityHistory(c *gin.Context) {
	var uri channelURI
	var query struct {
		Start time.Time `form:"start" time_format:"2006-01-02"`
		End   time.Time `form:"end" time_format:"2006-01-02"`
	}
	if !bindRequest(c, &uri, &query) {
		return
	}

	records, err := s.QualityHistory(c.Request.Context(), uri.ChannelID, query.Start, query.End)
	if err != nil {
		writeError(c, "Failed to query quality history", err)
		return
	}
	if records == nil {
		records = []telemetry.QualityRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"channel_id": uri.ChannelID,
		"records":    records,
	})
}

// HandleTrendAnalysis handles GET /v1/channels/:channel_id/trends
// Query parameters: field (required), days, as_of (YYYY-MM-DD)
func (s *Service) HandleTrendAnalysis(c *gin.Context) {
	var uri channelURI
	var query struct {
		Field int       `form:"field" binding:"required"`
		Days  int       `form:"days"`
		AsOf  time.Time `form:"as_of" time_format:"2006-01-02"`
	}
	if !bindRequest(c, &uri, &query) {
		return
	}

	points, err := s.GetTrendAnalysis(c.Request.Context(), TrendRequest{
		ChannelID: uri.ChannelID,
		Field:     telemetry.FieldNumber(query.Field),
		Days:      query.Days,
		AsOf:      query.AsOf,
	})
	if err != nil {
		writeError(c, "Failed to compute trend", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel_id": uri.ChannelID,
		"field":      query.Field,
		"points":     points,
	})
}

func bindRequest(c *gin.Context, uri, query interface{}) bool {
	if err := c.ShouldBindUri(uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.NewErrorResponse(httperr.HttpInvalidRequestError, "Invalid path parameters", err))
		return false
	}
	if err := c.ShouldBindQuery(query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.NewErrorResponse(httperr.HttpInvalidRequestError, "Invalid query parameters", err))
		return false
	}
	return true
}

func writeError(c *gin.Context, message string, err error) {
	status, errType := httperr.Classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("[Analysis] Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, httperr.NewErrorResponse(errType, message, err))
}
