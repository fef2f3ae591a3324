// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package models defines the data shared by the collector components: the
// inbound Event, the persisted RawEvent, the decoded Payload, and the
// client command and frame types of the WebSocket protocol.
//
// An event is identified by (device, generation, serial). Generation is a
// boot identifier chosen by the producer; serial increases within one
// generation. Events whose payload does not carry both numbers are kept as
// unparseable rows with NULL generation and serial.
package models
