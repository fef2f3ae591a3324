// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package main is the entry point for the collector.
//
// The collector ingests device telemetry from the vendor cloud's live event
// stream and optional local pollers, stores each event once in DuckDB, asks
// devices to replay what was missed, and serves stored and live events to
// WebSocket clients.
//
// # Startup
//
//  1. Configuration: defaults, config.yaml, then environment (Koanf v2)
//  2. Database: DuckDB raw event log
//  3. Dead-letter journal: BadgerDB, for events whose insert failed
//  4. Event store, device registry and blacklist
//  5. Replay coordinator (needs ACCESS_TOKEN)
//  6. NATS relay (optional, RELAY_ENABLED / RELAY_UPSTREAM_ENABLED)
//  7. Supervisor tree: ingest, delivery and api layers
//
// # Shutdown
//
// SIGINT and SIGTERM exit with code 0. Losing the live stream under
// STREAM_POLICY=shutdown exits with code 1 so that the process manager
// restarts the collector. Either way the steps run in this order: pollers,
// live stream, HTTP server, the rest of the tree, relay, database,
// dead-letter journal.
//
// # Example
//
//	export ACCESS_TOKEN=...
//	export DUCKDB_PATH=/data/collector.duckdb
//	export ENDPOINT_VAC=http://192.168.1.20/vacuum
//	./collector
package main
