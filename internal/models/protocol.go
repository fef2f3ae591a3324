// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package models

import (
	"github.com/goccy/go-json"
)

// Client commands.
const (
	CommandSubscribe = "subscribe"
	CommandQuery     = "query"
)

// Names of frames generated by the collector itself.
const (
	FrameQueryComplete = "collector/querycomplete"
	FrameError         = "collector/error"
	FrameQueryDefault  = "collector/query"
)

// Command is a client command.
//
//	{"command":"subscribe"}
//	{"command":"query","device":"abc","generation":1700000000,"after":41,"limit":100}
type Command struct {
	Command    string  `json:"command"`
	Device     *string `json:"device,omitempty"`
	Generation *int64  `json:"generation,omitempty"`
	After      *int64  `json:"after,omitempty"`
	Limit      *int    `json:"limit,omitempty" validate:"omitempty,gt=0"`
}

// Filter converts a query command to a store filter.
func (c *Command) Filter() QueryFilter {
	return QueryFilter{
		Device:     c.Device,
		Generation: c.Generation,
		After:      c.After,
		Limit:      c.Limit,
	}
}

// EventFrame is an event as sent to clients, for both live broadcasts
// and query results. Data is a JSON document encoded as a string.
type EventFrame struct {
	CoreID      string `json:"coreid"`
	PublishedAt string `json:"published_at"`
	Name        string `json:"name"`
	Data        string `json:"data"`
}

// ControlFrame is a collector generated frame (errors, query completion).
type ControlFrame struct {
	Name string      `json:"name"`
	Data interface{} `json:"data"`
}

// ErrorData is the data of a collector/error frame. Command echoes the
// offending command when one could be decoded.
type ErrorData struct {
	Message string          `json:"message"`
	Command json.RawMessage `json:"command,omitempty"`
}

// QueryCompleteData is the data of a collector/querycomplete frame.
type QueryCompleteData struct {
	Command json.RawMessage `json:"command"`
	Filter  string          `json:"filter"`
	Sent    int             `json:"sent"`
}
