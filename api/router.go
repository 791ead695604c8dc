package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/persistcheck/api/handler"
	"github.com/use-agent/persistcheck/api/middleware"
	"github.com/use-agent/persistcheck/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(cfg *config.Config, checks *handler.CheckDeps, sessions handler.SessionStatter, limiters *middleware.Limiters, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(sessions, checks.Store, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(limiters.Middleware())

	protected.POST("/checks", handler.PostCheck(checks))
	protected.GET("/checks/:id", handler.GetCheck(checks.Store))
	protected.GET("/checks/:id/screenshots/:name", handler.GetScreenshot(checks.Store))

	return r
}
