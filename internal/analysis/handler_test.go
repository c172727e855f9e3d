package analysis

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httperr "github.com/aevon-lab/sensor-rollup/internal/core/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, _ := newTestService(t, Options{}, spikeDay()...)
	r := gin.New()
	svc.RegisterRoutes(r)
	return r
}

func TestHandlers_StatusMapping(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "anomalies ok",
			method:         http.MethodGet,
			path:           "/v1/channels/7/anomalies?field=1",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "anomalies field out of range",
			method:         http.MethodGet,
			path:           "/v1/channels/7/anomalies?field=9",
			expectedStatus: http.StatusBadRequest,
			expectedType:   httperr.HttpValidationError,
		},
		{
			name:           "anomalies nan threshold",
			method:         http.MethodGet,
			path:           "/v1/channels/7/anomalies?field=1&threshold=NaN",
			expectedStatus: http.StatusBadRequest,
			expectedType:   httperr.HttpValidationError,
		},
		{
			name:           "anomalies infinite threshold",
			method:         http.MethodGet,
			path:           "/v1/channels/7/anomalies?field=1&threshold=Inf",
			expectedStatus: http.StatusBadRequest,
			expectedType:   httperr.HttpValidationError,
		},
		{
			name:           "anomalies missing field",
			method:         http.MethodGet,
			path:           "/v1/channels/7/anomalies",
			expectedStatus: http.StatusBadRequest,
			expectedType:   httperr.HttpInvalidRequestError,
		},
		{
			name:           "quality for a date",
			method:         http.MethodPost,
			path:           "/v1/channels/7/quality",
			body:           `{"check_date":"2026-02-11"}`,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "quality bad date",
			method:         http.MethodPost,
			path:           "/v1/channels/7/quality",
			body:           `{"check_date":"11/02/2026"}`,
			expectedStatus: http.StatusBadRequest,
			expectedType:   httperr.HttpInvalidRequestError,
		},
		{
			name:           "quality history",
			method:         http.MethodGet,
			path:           "/v1/channels/7/quality?start=2026-02-01&end=2026-02-12",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "trends negative days",
			method:         http.MethodGet,
			path:           "/v1/channels/7/trends?field=1&days=-2",
			expectedStatus: http.StatusBadRequest,
			expectedType:   httperr.HttpValidationError,
		},
		{
			name:           "trends ok",
			method:         http.MethodGet,
			path:           "/v1/channels/7/trends?field=1&days=7",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			if tc.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code, w.Body.String())
			if tc.expectedType != "" {
				var resp httperr.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				require.Equal(t, tc.expectedType, resp.ErrorType)
			}
		})
	}
}

func TestHandleDetectAnomalies_Body(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/channels/7/anomalies?field=1&threshold=3", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count     int `json:"count"`
		Anomalies []struct {
			EntryID    int64     `json:"entry_id"`
			ObservedAt time.Time `json:"observed_at"`
			Value      string    `json:"value"`
		} `json:"anomalies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	require.Equal(t, int64(21), resp.Anomalies[0].EntryID)
	require.Equal(t, "100", resp.Anomalies[0].Value)
}

func TestHandleCalculateQuality_DefaultsToToday(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/channels/7/quality", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var rec struct {
		CheckDate time.Time `json:"check_date"`
		Total     int64     `json:"total_readings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	require.Equal(t, checkDay, rec.CheckDate.UTC())
	require.Equal(t, int64(1), rec.Total)
}
