package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/persistcheck/models"
	"github.com/use-agent/persistcheck/store"
)

// GetScreenshot returns a handler for GET /api/v1/checks/:id/screenshots/:name.
// Only files listed in the run's report are served.
func GetScreenshot(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID, name := c.Param("id"), c.Param("name")

		_, rep, ok := st.Get(runID)
		if !ok || rep == nil {
			notFound(c, "check run not found or still running")
			return
		}

		for _, path := range rep.Screenshots {
			if filepath.Base(path) == name {
				c.File(path)
				return
			}
		}
		notFound(c, "screenshot not found")
	}
}

func notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeNotFound,
			Message: msg,
		},
	})
}
