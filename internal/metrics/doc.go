// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package metrics declares the collector's Prometheus collectors.
//
// Collectors are registered with the default registry through promauto and
// exposed by the API router at /metrics. Components call the Record helpers
// rather than touching the vectors directly.
package metrics
