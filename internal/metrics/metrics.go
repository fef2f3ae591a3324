// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion outcomes for EventsHandled.
const (
	OutcomeInserted    = "inserted"
	OutcomeDuplicate   = "duplicate"
	OutcomeUnparseable = "unparseable"
	OutcomeControl     = "control"
	OutcomeFailed      = "failed"
)

var (
	// Ingestion
	EventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_events_handled_total",
			Help: "Events passed to the event store, by outcome",
		},
		[]string{"outcome"},
	)

	DuplicateEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_duplicate_events_total",
			Help: "Duplicate events ignored, by kind (upstream, live, replay)",
		},
		[]string{"kind"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collector_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB statements in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_duckdb_query_errors_total",
			Help: "DuckDB statement errors",
		},
		[]string{"operation"},
	)

	DeadLetterEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_deadletter_entries_total",
			Help: "Events written to the dead-letter journal after a failed insert",
		},
	)

	// Replay
	ReplayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_replay_requests_total",
			Help: "Replay requests sent to devices, by result",
		},
		[]string{"result"},
	)

	// Stream supervision
	StreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_stream_connected",
			Help: "1 while the live event stream is connected",
		},
	)

	StreamDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_stream_disconnects_total",
			Help: "Live stream disconnections, by reason (inactivity, closed, error)",
		},
		[]string{"reason"},
	)

	// WebSocket hub
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_websocket_connections",
			Help: "Open WebSocket client connections",
		},
	)

	WSFramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_websocket_frames_sent_total",
			Help: "Frames queued to clients, by type (event, query, complete, error)",
		},
		[]string{"type"},
	)

	WSClientsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_websocket_clients_dropped_total",
			Help: "Clients removed because their send buffer was full",
		},
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collector_query_duration_seconds",
			Help:    "Duration of client query commands",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collector_http_request_duration_seconds",
			Help:    "HTTP request duration, by method, route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_http_active_requests",
			Help: "HTTP requests in flight",
		},
	)

	// Pollers
	PollerFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_poller_fetches_total",
			Help: "HTTP poller fetches, by poller and status",
		},
		[]string{"poller", "status"},
	)

	// Relay
	RelayMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_relay_messages_total",
			Help: "NATS relay messages, by direction and status",
		},
		[]string{"direction", "status"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "collector_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_circuit_breaker_requests_total",
			Help: "Calls through a circuit breaker, by result (success, failure, rejected)",
		},
		[]string{"name", "result"},
	)
)

// RecordDBQuery records the duration of a DuckDB statement and counts errors.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordEvent counts one HandleEvent outcome.
func RecordEvent(outcome string) {
	EventsHandled.WithLabelValues(outcome).Inc()
}

// RecordDuplicate counts a duplicate by kind.
func RecordDuplicate(kind string) {
	EventsHandled.WithLabelValues(OutcomeDuplicate).Inc()
	DuplicateEvents.WithLabelValues(kind).Inc()
}

// RecordReplay counts one replay request result.
func RecordReplay(result string) {
	ReplayRequests.WithLabelValues(result).Inc()
}

// RecordStreamState sets the connected gauge.
func RecordStreamState(connected bool) {
	if connected {
		StreamConnected.Set(1)
		return
	}
	StreamConnected.Set(0)
}

// RecordStreamDisconnect counts a disconnect and clears the connected gauge.
func RecordStreamDisconnect(reason string) {
	StreamDisconnects.WithLabelValues(reason).Inc()
	StreamConnected.Set(0)
}

// RecordPollerFetch counts a poller fetch.
func RecordPollerFetch(poller string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	PollerFetches.WithLabelValues(poller, status).Inc()
}

// RecordRelay counts a relay message in the given direction ("out" or "in").
func RecordRelay(direction string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RelayMessages.WithLabelValues(direction, status).Inc()
}

// RecordHTTPRequest observes one finished HTTP request.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
