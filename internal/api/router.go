// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package api is the ops HTTP surface: health, Prometheus metrics, poller
// status, player statistics and the manual processing trigger.
//
// Routes:
//
//	GET  /healthz
//	GET  /readyz
//	GET  /metrics
//	GET  /api/v1/status
//	GET  /api/v1/servers/{serverID}/leaderboard?limit=
//	GET  /api/v1/servers/{serverID}/players/{playerID}
//	GET  /api/v1/servers/{serverID}/events?limit=
//	GET  /api/v1/servers/{serverID}/events/counts
//	POST /api/v1/servers/{serverID}/process?pipeline=&minutes=   (admin token)
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/killfeed/internal/cache"
	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/database"
	"github.com/tomtom215/killfeed/internal/events"
	"github.com/tomtom215/killfeed/internal/poller"
	"github.com/tomtom215/killfeed/internal/stats"
)

// Pipeline is a poller as seen by the API.
type Pipeline interface {
	Pipeline() events.Pipeline
	Known(serverID string) bool
	Status() poller.Status
	Trigger(ctx context.Context, serverID string, lookback time.Duration) (poller.Result, error)
}

// StatsReader serves the read endpoints.
type StatsReader interface {
	Ping(ctx context.Context) error
	Leaderboard(ctx context.Context, serverID string, limit int) ([]database.PlayerStats, error)
	GetPlayer(ctx context.Context, serverID, playerID string) (database.PlayerStats, error)
	RecentEvents(ctx context.Context, serverID string, limit int) ([]stats.Document, error)
	CountEvents(ctx context.Context, serverID string) (map[string]int64, error)
}

// DedupStats exposes the coordinator's fingerprint counters.
type DedupStats interface {
	Stats() cache.SeenStats
}

// Deps are the handler collaborators. Stats and Dedup may be nil.
type Deps struct {
	Pipelines []Pipeline
	Stats     StatsReader
	Dedup     DedupStats
	Version   string
}

// Handler holds the request handlers.
type Handler struct {
	deps      Deps
	startTime time.Time
}

// NewRouter builds the chi router for cfg.
func NewRouter(cfg config.APIConfig, deps Deps) http.Handler {
	h := &Handler{deps: deps, startTime: time.Now()}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMetrics)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/status", h.Status)

		r.Route("/servers/{serverID}", func(r chi.Router) {
			r.Get("/leaderboard", h.Leaderboard)
			r.Get("/players/{playerID}", h.Player)
			r.Get("/events", h.Events)
			r.Get("/events/counts", h.EventCounts)

			r.With(requireAdmin(cfg.AdminToken)).Post("/process", h.Process)
		})
	})

	return r
}

// NewServer wraps handler in an http.Server with the timeouts used for
// every listener.
func NewServer(cfg config.APIConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Manual processing downloads files synchronously.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}
