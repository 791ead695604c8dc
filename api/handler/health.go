package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/persistcheck/models"
	"github.com/use-agent/persistcheck/store"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// SessionStatter reports browser session utilisation.
type SessionStatter interface {
	Stats() models.SessionStats
}

// Health returns a handler for GET /api/v1/health.
//
// Reports "degraded" when every browser session is busy, since new
// synchronous checks will queue.
func Health(sessions SessionStatter, st *store.Store, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sessions.Stats()

		status := "healthy"
		if stats.MaxSessions > 0 && stats.ActiveSessions >= stats.MaxSessions {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			SessionStats: stats,
			StoredRuns:   st.Len(),
			Version:      Version,
		})
	}
}
