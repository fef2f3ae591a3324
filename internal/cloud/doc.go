// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package cloud is the HTTP binding to the device cloud.
//
// It provides the live event stream (Server-Sent Events), remote function
// calls used for replay requests, and the device listing that seeds the
// registry. All requests carry the configured bearer token.
package cloud
