// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package services adapts components whose lifecycle is not already a
// suture Serve method.
//
// HTTPServerService turns ListenAndServe/Shutdown into Serve. On
// cancellation the listener stops accepting and open requests, including
// websocket upgrades in progress, get the shutdown timeout to finish.
//
// HubService runs the websocket hub's broadcast loop.
//
// The live stream, pollers, replay scheduler and relay implement Serve
// themselves and are added to the tree directly.
package services
