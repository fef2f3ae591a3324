// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package poller

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

var (
	leadingZeros  = regexp.MustCompile(`([A-Z])0+(\d)`)
	numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// NormalizeLabel strips zero padding after the first letter that has any,
// so "EB-V01" becomes "EB-V1" while "EB-V10" is unchanged.
func NormalizeLabel(label string) string {
	loc := leadingZeros.FindStringSubmatchIndex(label)
	if loc == nil {
		return label
	}
	return label[:loc[0]] + label[loc[2]:loc[3]] + label[loc[4]:loc[5]] + label[loc[1]:]
}

// parseFloatOrZero reads a leading decimal number from v the way sensor
// gateways format them ("12.5 kPa" is 12.5); anything else is 0.
func parseFloatOrZero(v interface{}) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		f, _ = n.Float64()
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		m := numericPrefix.FindString(strings.TrimSpace(n))
		if m == "" {
			return 0
		}
		f, _ = strconv.ParseFloat(m, 64)
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// orZero replaces empty values (nil, false, 0, "") with 0.
func orZero(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if !x {
			return 0
		}
	case string:
		if x == "" {
			return 0
		}
	case float64:
		if x == 0 || math.IsNaN(x) {
			return 0
		}
	}
	return v
}
