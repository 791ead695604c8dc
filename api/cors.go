package api

import (
	"net/http"

	"github.com/rs/cors"
)

// WithCORS wraps h so dashboards served from origins can call the API.
// With no origins h is returned unchanged.
func WithCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
		MaxAge:         600,
	})
	return c.Handler(h)
}
