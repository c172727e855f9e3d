package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/aevon-lab/sensor-rollup/internal/core/storage"
	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "bad field",
			err:        telemetry.FieldNumber(9).Validate(),
			wantStatus: http.StatusBadRequest,
			wantType:   HttpValidationError,
		},
		{
			name:       "wrapped persistence failure",
			err:        fmt.Errorf("quality: %w", &storage.PersistenceError{Op: "append quality", Err: fmt.Errorf("disk full")}),
			wantStatus: http.StatusInternalServerError,
			wantType:   HttpPersistenceError,
		},
		{
			name:       "cancelled",
			err:        fmt.Errorf("read: %w", context.Canceled),
			wantStatus: http.StatusServiceUnavailable,
			wantType:   HttpCancelledError,
		},
		{
			name:       "anything else",
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   HttpInternalError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, errType := Classify(tc.err)
			require.Equal(t, tc.wantStatus, status)
			require.Equal(t, tc.wantType, errType)
		})
	}
}
