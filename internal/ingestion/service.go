package ingestion

import (
	"time"

	"github.com/aevon-lab/sensor-rollup/internal/core/storage"
	"github.com/gin-gonic/gin"
)

const defaultMaxReadings = 5000

// Service is the ingestion side of the reading store: it validates readings
// pushed by collectors and appends them. The engine itself never writes readings.
type Service struct {
	store            storage.ReadingStore
	maxBodySizeBytes int
	maxReadings      int
	nowFn            func() time.Time
}

func NewService(store storage.ReadingStore, maxBodySizeMB int) *Service {
	if store == nil {
		panic("ingestion: store must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		store:            store,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
		maxReadings:      defaultMaxReadings,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RegisterRoutes registers the ingestion routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/channels/:channel_id/readings", s.IngestHandler)
}
