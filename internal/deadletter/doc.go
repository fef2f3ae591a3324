// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package deadletter stores events whose database write failed.
//
// The journal is a BadgerDB keyspace with one JSON entry per failed event.
// Entries carry a native TTL so the journal never grows without bound.
// Operators read it through GET /deadletters.
package deadletter
