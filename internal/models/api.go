// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package models

import "time"

// APIError is the body of every failed HTTP response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps APIError.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// HealthStatus is returned by GET /health.
type HealthStatus struct {
	Status            string    `json:"status"`
	DatabaseConnected bool      `json:"database_connected"`
	Stream            string    `json:"stream"`
	StreamConnections int64     `json:"stream_connections"`
	WebSocketClients  int       `json:"websocket_clients"`
	Uptime            float64   `json:"uptime_seconds"`
	Timestamp         time.Time `json:"timestamp"`
}
