// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package models

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Payload field names written by device firmware.
const (
	FieldGeneration = "generation"
	FieldSerial     = "noSerie"
	FieldName       = "eName"
)

// Payload is the decoded data of an Event: exactly one of ParsedPayload or
// UnparseablePayload.
type Payload interface {
	isPayload()
}

// ParsedPayload is a payload carrying a usable (generation, serial) key.
type ParsedPayload struct {
	Generation int64
	Serial     int64

	// Name is the payload's eName, empty when absent.
	Name string

	// Normalized is the payload as valid JSON, which is what gets stored.
	Normalized string
}

// UnparseablePayload is a payload that could not be keyed. Raw is kept
// verbatim for forensic recovery.
type UnparseablePayload struct {
	Raw    string
	Reason string
}

func (ParsedPayload) isPayload()      {}
func (UnparseablePayload) isPayload() {}

// ParsePayload decodes event data. Firmware emits single-quoted JSON, so
// quotes are normalised before decoding.
func ParsePayload(data string) Payload {
	normalized := strings.ReplaceAll(data, "'", `"`)

	fields, err := DecodeFields(normalized)
	if err != nil {
		return UnparseablePayload{Raw: data, Reason: err.Error()}
	}

	gen, ok := numberField(fields, FieldGeneration)
	if !ok {
		return UnparseablePayload{Raw: data, Reason: "missing or invalid " + FieldGeneration}
	}
	serial, ok := numberField(fields, FieldSerial)
	if !ok {
		return UnparseablePayload{Raw: data, Reason: "missing or invalid " + FieldSerial}
	}

	name, _ := fields[FieldName].(string)
	return ParsedPayload{
		Generation: gen,
		Serial:     serial,
		Name:       name,
		Normalized: normalized,
	}
}

// DecodeFields decodes a JSON object keeping numbers as json.Number so
// that large serials survive unchanged.
func DecodeFields(data string) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("decode payload: not a JSON object")
	}
	return fields, nil
}

func numberField(fields map[string]interface{}, key string) (int64, bool) {
	switch v := fields[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		f, err := v.Float64()
		if err != nil || f != float64(int64(f)) {
			return 0, false
		}
		return int64(f), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
