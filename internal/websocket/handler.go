// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/collector/internal/logging"
)

// Handler upgrades HTTP requests to client connections.
type Handler struct {
	hub            *Hub
	engine         *Engine
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewHandler creates the upgrade handler. Requests without an Origin header
// (non-browser clients) are accepted; browser origins must be listed, or
// the list must contain "*".
func NewHandler(hub *Hub, engine *Engine, allowedOrigins []string) *Handler {
	h := &Handler{hub: hub, engine: engine, allowedOrigins: allowedOrigins}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	NewClient(h.hub, h.engine, conn).Start()
}
