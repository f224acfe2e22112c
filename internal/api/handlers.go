// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/killfeed/internal/database"
	"github.com/tomtom215/killfeed/internal/events"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/poller"
	"github.com/tomtom215/killfeed/internal/premium"
	"github.com/tomtom215/killfeed/internal/stats"
	"github.com/tomtom215/killfeed/internal/validation"
)

// HealthStatus is the body of /healthz and /readyz.
type HealthStatus struct {
	Status            string  `json:"status"`
	Version           string  `json:"version,omitempty"`
	DatabaseConnected bool    `json:"database_connected"`
	Uptime            float64 `json:"uptime_seconds"`
}

// DedupStatus mirrors the coordinator counters.
type DedupStatus struct {
	Fingerprints int   `json:"fingerprints"`
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Expired      int64 `json:"expired"`
	Pruned       int64 `json:"pruned"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Pipelines []poller.Status `json:"pipelines"`
	Dedup     *DedupStatus    `json:"dedup,omitempty"`
}

// ProcessResponse is the body of POST .../process.
type ProcessResponse struct {
	ServerID string                   `json:"server_id"`
	Minutes  int                      `json:"minutes,omitempty"`
	Results  map[string]poller.Result `json:"results"`
}

type serverRequest struct {
	ServerID string `validate:"required,server_id"`
	Limit    int    `validate:"gte=0,lte=500"`
}

type playerRequest struct {
	ServerID string `validate:"required,server_id"`
	PlayerID string `validate:"required,max=128"`
}

type processRequest struct {
	ServerID string `validate:"required,server_id"`
	Pipeline string `validate:"omitempty,oneof=csv log"`
	Minutes  int    `validate:"gte=0,lte=10080"`
}

// Health reports liveness. It never touches the database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	newResponseWriter(w, r).success(http.StatusOK, HealthStatus{
		Status:            "healthy",
		Version:           h.deps.Version,
		DatabaseConnected: h.deps.Stats != nil,
		Uptime:            time.Since(h.startTime).Seconds(),
	})
}

// Ready reports readiness: the database must answer a ping.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	connected := h.deps.Stats != nil && h.deps.Stats.Ping(r.Context()) == nil
	status := HealthStatus{
		Status:            "ready",
		Version:           h.deps.Version,
		DatabaseConnected: connected,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if !connected {
		status.Status = "degraded"
		rw.error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Database is not reachable", status)
		return
	}
	rw.success(http.StatusOK, status)
}

// Status reports every poller and the deduplication counters.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Pipelines: make([]poller.Status, 0, len(h.deps.Pipelines))}
	for _, p := range h.deps.Pipelines {
		resp.Pipelines = append(resp.Pipelines, p.Status())
	}
	if h.deps.Dedup != nil {
		s := h.deps.Dedup.Stats()
		resp.Dedup = &DedupStatus{
			Fingerprints: s.Size,
			Hits:         s.Hits,
			Misses:       s.Misses,
			Expired:      s.Expired,
			Pruned:       s.Pruned,
		}
	}
	newResponseWriter(w, r).success(http.StatusOK, resp)
}

// Leaderboard returns the top killers of a server.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	req, ok := h.serverRequest(rw, r)
	if !ok {
		return
	}

	players, err := h.deps.Stats.Leaderboard(r.Context(), req.ServerID, req.Limit)
	if err != nil {
		rw.databaseError(err)
		return
	}
	if players == nil {
		players = []database.PlayerStats{}
	}
	rw.success(http.StatusOK, players)
}

// Player returns one player's aggregates.
func (h *Handler) Player(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	if h.deps.Stats == nil {
		rw.error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Statistics are not available", nil)
		return
	}

	req := playerRequest{
		ServerID: chi.URLParam(r, "serverID"),
		PlayerID: chi.URLParam(r, "playerID"),
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.validationError(verr)
		return
	}

	player, err := h.deps.Stats.GetPlayer(r.Context(), req.ServerID, req.PlayerID)
	if errors.Is(err, database.ErrPlayerNotFound) {
		rw.error(http.StatusNotFound, ErrCodeNotFound, "Player not found", nil)
		return
	}
	if err != nil {
		rw.databaseError(err)
		return
	}
	rw.success(http.StatusOK, player)
}

// Events returns the most recent stored event documents.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	req, ok := h.serverRequest(rw, r)
	if !ok {
		return
	}

	docs, err := h.deps.Stats.RecentEvents(r.Context(), req.ServerID, req.Limit)
	if err != nil {
		rw.databaseError(err)
		return
	}
	if docs == nil {
		docs = []stats.Document{}
	}
	rw.success(http.StatusOK, docs)
}

// EventCounts returns stored document counts per kind.
func (h *Handler) EventCounts(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	req, ok := h.serverRequest(rw, r)
	if !ok {
		return
	}

	counts, err := h.deps.Stats.CountEvents(r.Context(), req.ServerID)
	if err != nil {
		rw.databaseError(err)
		return
	}
	rw.success(http.StatusOK, counts)
}

// Process runs the requested pipelines for one server now. Without a
// pipeline parameter every pipeline that knows the server runs, CSV first.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)

	q := r.URL.Query()
	req := processRequest{
		ServerID: chi.URLParam(r, "serverID"),
		Pipeline: q.Get("pipeline"),
	}
	if raw := q.Get("minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil {
			rw.error(http.StatusBadRequest, ErrCodeBadRequest, "minutes must be an integer", nil)
			return
		}
		req.Minutes = minutes
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.validationError(verr)
		return
	}

	targets := h.pipelinesFor(req.ServerID, events.Pipeline(req.Pipeline))
	if len(targets) == 0 {
		rw.error(http.StatusNotFound, ErrCodeNotFound, "Server is not configured for the requested pipeline", nil)
		return
	}

	lookback := time.Duration(req.Minutes) * time.Minute
	resp := ProcessResponse{
		ServerID: req.ServerID,
		Minutes:  req.Minutes,
		Results:  make(map[string]poller.Result, len(targets)),
	}
	for _, p := range targets {
		res, err := p.Trigger(r.Context(), req.ServerID, lookback)
		if err != nil {
			h.triggerError(rw, p.Pipeline(), req.ServerID, err)
			return
		}
		resp.Results[string(p.Pipeline())] = res
	}

	logging.Info().
		Str("server_id", req.ServerID).
		Int("minutes", req.Minutes).
		Int("pipelines", len(targets)).
		Msg("Manual processing completed")
	rw.success(http.StatusOK, resp)
}

func (h *Handler) serverRequest(rw *responseWriter, r *http.Request) (serverRequest, bool) {
	if h.deps.Stats == nil {
		rw.error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Statistics are not available", nil)
		return serverRequest{}, false
	}

	req := serverRequest{ServerID: chi.URLParam(r, "serverID")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			rw.error(http.StatusBadRequest, ErrCodeBadRequest, "limit must be an integer", nil)
			return serverRequest{}, false
		}
		req.Limit = limit
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.validationError(verr)
		return serverRequest{}, false
	}
	return req, true
}

func (h *Handler) pipelinesFor(serverID string, only events.Pipeline) []Pipeline {
	var out []Pipeline
	for _, p := range h.deps.Pipelines {
		if only != "" && p.Pipeline() != only {
			continue
		}
		if p.Known(serverID) {
			out = append(out, p)
		}
	}
	return out
}

func (h *Handler) triggerError(rw *responseWriter, p events.Pipeline, serverID string, err error) {
	var locked *premium.LockedError
	switch {
	case errors.As(err, &locked):
		rw.error(http.StatusForbidden, ErrCodePremiumRequired, locked.Error(), map[string]interface{}{
			"feature":       locked.Feature,
			"required_tier": locked.Required,
			"server_tier":   locked.Tier,
		})
	case errors.Is(err, poller.ErrServerBusy):
		rw.error(http.StatusConflict, ErrCodeConflict, "Server is already being processed", map[string]interface{}{
			"pipeline": string(p),
		})
	case errors.Is(err, poller.ErrUnknownServer):
		rw.error(http.StatusNotFound, ErrCodeNotFound, "Unknown server", nil)
	default:
		logging.Error().Err(err).Str("pipeline", string(p)).Str("server_id", serverID).Msg("Manual processing failed")
		rw.error(http.StatusBadGateway, ErrCodeInternalError, "Processing failed: "+err.Error(), map[string]interface{}{
			"pipeline": string(p),
		})
	}
}
