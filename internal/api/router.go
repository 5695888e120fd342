// Package api provides the REST API router.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	// MetricsPath exposes the Prometheus endpoint when non-empty.
	MetricsPath string
	// RequestTimeout bounds the total time spent handling one request.
	// Defaults to 60 seconds.
	RequestTimeout time.Duration
}

// NewRouter creates a new API router.
func NewRouter(handler *Handler, logger zerolog.Logger, config RouterConfig) *chi.Mux {
	timeout := config.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	if handler.metrics != nil {
		r.Use(NewMetricsMiddleware(handler.metrics))
	}

	// Health check
	r.Get("/healthz", handler.Healthz)

	// Prometheus metrics
	if config.MetricsPath != "" {
		r.Handle(config.MetricsPath, promhttp.Handler())
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/message", func(r chi.Router) {
			r.Post("/", handler.PostMessage)
			r.Post("/text", handler.PostTextMessage)
			r.Post("/simple", handler.PostSimpleMessage)
			r.Post("/card", handler.PostCardMessage)
			r.Patch("/", handler.PatchMessage)
			r.Delete("/", handler.DeleteMessage)
		})
	})

	return r
}
