// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package models

import (
	"strings"
	"time"
)

// Event is an event as delivered by a producer: the live device stream, a
// local poller, or an upstream collector. Field names on the wire follow the
// device cloud's event format.
type Event struct {
	DeviceID    string `json:"coreid"`
	PublishedAt string `json:"published_at"`
	Name        string `json:"name"`
	Data        string `json:"data"`

	// Upstream marks events relayed from another collector. Duplicates of
	// upstream events are expected and logged quietly.
	Upstream bool `json:"upstream,omitempty"`
}

// Control event name prefixes. These are vendor system notifications, not
// telemetry.
var controlPrefixes = []string{
	"spark/",
	"particle/",
}

// IsControl reports whether the event is a vendor control notification
// (status, flash progress, device updates, heartbeats).
func (e *Event) IsControl() bool {
	for _, p := range controlPrefixes {
		if strings.HasPrefix(e.Name, p) {
			return true
		}
	}
	return false
}

// IsLive reports whether the producer marked the event as a live emission
// rather than a replay. Firmware names live events ".../live/..." and
// replayed ones ".../replay/...".
func (e *Event) IsLive() bool {
	return strings.Contains(e.Name, "/live/")
}

// RawEvent is one row of the append-only event log.
type RawEvent struct {
	// ID is the insertion sequence number.
	ID           int64   `json:"id"`
	DeviceID     string  `json:"device_id"`
	PublishedAt  *string `json:"published_at"`
	GenerationID *int64  `json:"generation_id"`
	SerialNo     *int64  `json:"serial_no"`
	RawData      string  `json:"raw_data"`
}

// Parseable reports whether the row carries both generation and serial.
func (r *RawEvent) Parseable() bool {
	return r.GenerationID != nil && r.SerialNo != nil
}

// Position is the (generation, serial) head of a device's event log.
type Position struct {
	DeviceID     string
	GenerationID int64

	// SerialNo is nil when no serial is known for the generation.
	SerialNo *int64

	// WrittenAt is when the collector stored the head row.
	WrittenAt time.Time
}

// QueryFilter restricts Store.Query. Nil fields are unset.
type QueryFilter struct {
	Device     *string
	Generation *int64
	After      *int64
	Limit      *int
}
