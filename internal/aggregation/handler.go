package aggregation

import (
	"log/slog"
	"net/http"
	"time"

	httperr "github.com/aevon-lab/sensor-rollup/internal/core/errors"
	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the aggregation endpoints.
func (m *Merger) RegisterRoutes(r gin.IRouter) {
	ch := r.Group("/v1/channels/:channel_id")
	ch.POST("/aggregations", m.HandleProcessAggregation)
	ch.GET("/aggregates", m.HandleQueryWindows)
}

type channelURI struct {
	ChannelID int64 `uri:"channel_id" binding:"required"`
}

// HandleProcessAggregation handles POST /v1/channels/:channel_id/aggregations
// JSON body: {"granularity": "HOURLY", "start": RFC3339?, "end": RFC3339?}
func (m *Merger) HandleProcessAggregation(c *gin.Context) {
	var uri channelURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.NewErrorResponse(httperr.HttpInvalidRequestError, "Invalid path parameters", err))
		return
	}

	var body struct {
		Granularity string    `json:"granularity" binding:"required"`
		Start       time.Time `json:"start"`
		End         time.Time `json:"end"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, httperr.NewErrorResponse(httperr.HttpInvalidJsonError, "Invalid JSON body", err))
		return
	}

	g, err := telemetry.ParseGranularity(body.Granularity)
	if err != nil {
		writeError(c, "Invalid granularity", err)
		return
	}

	res, err := m.ProcessAggregation(c.Request.Context(), Request{
		ChannelID:   uri.ChannelID,
		Granularity: g,
		Start:       body.Start,
		End:         body.End,
	})
	if err != nil {
		if res == nil {
			writeError(c, "Aggregation rejected", err)
			return
		}
		// Windows that did persist stay persisted; report both.
		status, errType := httperr.Classify(err)
		slog.Error("[Merger] Aggregation request finished with errors",
			"channel_id", uri.ChannelID,
			"run_id", res.RunID,
			"error", err)
		c.JSON(status, httperr.ErrorResponse{
			ErrorType: errType,
			Message:   "Aggregation completed with failures",
			Details: gin.H{
				"result": res,
				"error":  err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, res)
}

// HandleQueryWindows handles GET /v1/channels/:channel_id/aggregates
// Query parameters: granularity, start, end (RFC3339, end exclusive)
func (m *Merger) HandleQueryWindows(c *gin.Context) {
	var uri channelURI
	var query struct {
		Granularity string    `form:"granularity" binding:"required"`
		Start       time.Time `form:"start" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
		End         time.Time `form:"end" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.NewErrorResponse(httperr.HttpInvalidRequestError, "Invalid path parameters", err))
		return
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.NewErrorResponse(httperr.HttpInvalidRequestError, "Invalid query parameters", err))
		return
	}

	g, err := telemetry.ParseGranularity(query.Granularity)
	if err != nil {
		writeError(c, "Invalid granularity", err)
		return
	}

	windows, err := m.Windows(c.Request.Context(), uri.ChannelID, g, query.Start, query.End)
	if err != nil {
		writeError(c, "Failed to query aggregates", err)
		return
	}
	if windows == nil {
		windows = []telemetry.AggregateWindow{}
	}

	c.JSON(http.StatusOK, gin.H{
		"channel_id":  uri.ChannelID,
		"granularity": g,
		"windows":     windows,
	})
}

func writeError(c *gin.Context, message string, err error) {
	status, errType := httperr.Classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("[Merger] Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, httperr.NewErrorResponse(errType, message, err))
}
