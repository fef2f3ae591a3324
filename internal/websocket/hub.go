// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/metrics"
	"github.com/tomtom215/collector/internal/models"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Hub tracks connected clients and fans stored events out to subscribers.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*Client]bool
	broadcast chan []byte
}

// NewHub creates a hub. RunWithContext must be running for broadcasts to
// be delivered.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*Client]bool),
		broadcast: make(chan []byte, 1024),
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(n))
	logging.Info().Uint64("client", c.id).Int("total_clients", n).Msg("websocket client connected")
}

// Unregister removes a client and closes it. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		metrics.WSConnections.Set(float64(n))
		logging.Info().Uint64("client", c.id).Int("total_clients", n).Msg("websocket client disconnected")
	}
}

// RunWithContext delivers broadcasts until ctx is cancelled, then closes
// every client. It implements the body of a suture service.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Shutdown wins over pending broadcasts.
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case frame := <-h.broadcast:
			h.broadcastToClients(frame)
		}
	}
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// sortedClients returns clients in connection order. Caller holds h.mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients offers frame to every subscribed client. Clients that
// cannot take it are removed.
func (h *Hub) broadcastToClients(frame []byte) {
	h.mu.Lock()
	var dropped []*Client
	for _, c := range h.sortedClients() {
		if !c.Subscribed() {
			continue
		}
		if c.offer(frame) {
			metrics.WSFramesSent.WithLabelValues("event").Inc()
			continue
		}
		dropped = append(dropped, c)
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	for _, c := range dropped {
		c.close()
		metrics.WSClientsDropped.Inc()
		logging.Warn().Uint64("client", c.id).Msg("Dropping websocket client that cannot keep up")
	}
	if len(dropped) > 0 {
		metrics.WSConnections.Set(float64(n))
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := h.sortedClients()
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	metrics.WSConnections.Set(0)
}

// BroadcastEvent queues a stored event for subscribed clients. It never
// blocks, so it can be registered directly as a store listener.
func (h *Hub) BroadcastEvent(ev models.Event) {
	frame, err := json.Marshal(models.EventFrame{
		CoreID:      ev.DeviceID,
		PublishedAt: ev.PublishedAt,
		Name:        ev.Name,
		Data:        ev.Data,
	})
	if err != nil {
		logging.Error().Err(err).Str("device", ev.DeviceID).Msg("failed to marshal broadcast frame")
		return
	}

	select {
	case h.broadcast <- frame:
	default:
		logging.Warn().Str("device", ev.DeviceID).Msg("broadcast channel full, dropping event")
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
