// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package database is the DuckDB data layer of the collector.
//
// # Schema
//
// A single append-only table holds every event ever received:
//
//	raw_events(id, device_id, published_at, generation_id, serial_no, raw_data, received_at)
//
// UNIQUE (device_id, generation_id, serial_no) is the dedup key. SQL NULLs
// are distinct, so unparseable rows (NULL generation and serial) never
// collide with each other or with later events.
//
// # Files
//
//   - database.go: connection lifecycle and pool configuration
//   - schema.go: table and sequence creation
//   - raw_events.go: insert, existence check, heads
//   - query.go: filtered streaming reads
//   - errors.go: close helpers
//
// # Concurrency
//
// The pool allows parallel readers. Writers are expected to be serialized by
// the caller (the event store holds a single writer mutex); the unique
// constraint with ON CONFLICT DO NOTHING is the final guard.
package database
