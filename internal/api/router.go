// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds the router-level settings.
type RouterConfig struct {
	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration
}

// NewRouter builds the chi router for the API.
func NewRouter(h *Handler, cfg RouterConfig) chi.Router {
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}

	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(cfg.AllowedOrigins))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(cfg.RateLimit, cfg.RateWindow))
		r.Use(RequestLogging())

		r.Post("/events", h.SubmitEvent)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.ListAlerts)
			r.Get("/stats", h.AlertStats)
			r.Get("/{id}", h.GetAlert)
			r.Post("/{id}/resolve", h.ResolveAlert)
			r.Post("/{id}/dismiss", h.DismissAlert)
		})

		r.Get("/presence", h.Presence)
		r.Get("/roster", h.Roster)
	})

	r.Get("/health", h.Health)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/ws", h.WebSocket)

	return r
}
