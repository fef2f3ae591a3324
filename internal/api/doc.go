// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package api serves the collector's HTTP surface with chi:
//
//	GET /ws                     websocket protocol (subscribe, query)
//	GET /device/{id}            stored events, ascending; ?generation= &since=
//	GET /deadletters            journal of failed writes; ?limit=
//	GET /health                 stream, database and client state
//	GET /health/live            liveness only
//	GET /metrics                Prometheus
//
// Read endpoints are rate limited per client IP with httprate. CORS is
// handled globally with go-chi/cors so browser dashboards can call them.
package api
