// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package relay forwards stored events between collectors over NATS using
// watermill.
//
// Publisher is registered as an event store listener. It queues each newly
// inserted event without blocking ingestion and publishes it to
// "<subject>.<device>" behind a circuit breaker. Events that themselves came
// from upstream are not forwarded again.
//
// Upstream subscribes to a peer collector's subject and hands every event to
// the store marked Upstream, so re-deliveries are logged as expected
// duplicates.
//
// EmbeddedServer runs an in-process NATS server for single-host setups and
// tests.
package relay
