// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

/*
Package middleware provides the collector's HTTP middleware in chi form.

  - RequestID: X-Request-ID propagation and a logging correlation ID
  - PrometheusMetrics: request duration by chi route pattern

Both keep the wrapped writer hijackable so /ws upgrades pass through.

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
