// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package logging provides the zerolog-based structured logger shared by every
// collector component.
//
// The global logger is configured once from main via Init. Components derive
// child loggers with a "component" field (WithComponent) and log through them;
// libraries that only accept *slog.Logger (suture, watermill) are given
// NewSlogLogger, which writes into the same zerolog sink.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("device", id).Msg("Device connected")
//
// Always terminate log chains with .Msg() or .Send(); an unterminated
// event is never written.
//
// # Correlation IDs
//
// Every WebSocket connection and every query command carries a short
// correlation ID in its context. Ctx(ctx) returns a logger with that ID
// attached so a query can be followed across the hub and the store.
package logging
