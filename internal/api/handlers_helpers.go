// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/models"
)

// sanitizeLogValue escapes control characters so request input cannot
// forge log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// arrayWriter streams a JSON array one element at a time. The status line is
// committed with the first element, so a handler can still answer with
// respondError until then.
type arrayWriter struct {
	w       http.ResponseWriter
	enc     *json.Encoder
	started bool
}

func newArrayWriter(w http.ResponseWriter) *arrayWriter {
	return &arrayWriter{w: w, enc: json.NewEncoder(w)}
}

func (a *arrayWriter) open() error {
	a.started = true
	a.w.Header().Set("Content-Type", "application/json")
	a.w.Header().Set("Cache-Control", "no-store")
	a.w.WriteHeader(http.StatusOK)
	_, err := io.WriteString(a.w, "[")
	return err
}

// Write appends one element.
func (a *arrayWriter) Write(v interface{}) error {
	if !a.started {
		if err := a.open(); err != nil {
			return err
		}
	} else if _, err := io.WriteString(a.w, ","); err != nil {
		return err
	}
	return a.enc.Encode(v)
}

// Close terminates the array, writing "[]" when nothing was written.
func (a *arrayWriter) Close() error {
	if !a.started {
		if err := a.open(); err != nil {
			return err
		}
	}
	_, err := io.WriteString(a.w, "]")
	return err
}

func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", code).Str("error", sanitizeLogValue(err.Error())).Msg("API error")
	}
	respondJSON(w, status, models.ErrorResponse{Error: models.APIError{Code: code, Message: message}})
}

// optionalInt64 parses an optional integer query parameter.
func optionalInt64(r *http.Request, key string) (*int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parameter '%s' must be an integer", key)
	}
	return &v, nil
}

func getIntParam(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}
