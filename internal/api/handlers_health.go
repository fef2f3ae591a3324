// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/collector/internal/models"
	"github.com/tomtom215/collector/internal/supervisor"
)

// Health reports database, live stream and websocket state. The collector
// is degraded when the database is unreachable or an enabled stream is not
// connected; the status code stays 200 so health checkers can read the body.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.db != nil && h.db.Ping(r.Context()) == nil

	status := models.HealthStatus{
		Status:            "healthy",
		DatabaseConnected: dbConnected,
		Stream:            "disabled",
		Uptime:            time.Since(h.startTime).Seconds(),
		Timestamp:         time.Now().UTC(),
	}
	if h.stream != nil {
		state := h.stream.State()
		status.Stream = state.String()
		status.StreamConnections = h.stream.Connections()
		if state != supervisor.StateConnected {
			status.Status = "degraded"
		}
	}
	if h.clients != nil {
		status.WebSocketClients = h.clients.GetClientCount()
	}
	if !dbConnected {
		status.Status = "degraded"
	}

	respondJSON(w, http.StatusOK, status)
}

// Live always answers 200 while the process serves HTTP.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
