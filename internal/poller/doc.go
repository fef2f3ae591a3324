// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package poller holds the synthetic producers: services that fetch sensor
// readings over HTTP on a fixed interval and turn each reading into an event
// with a locally assigned generation and serial.
//
// A producer bootstraps its generation from the store when it starts, so a
// quick restart continues the previous generation and the store's normal
// deduplication absorbs any overlap.
package poller
