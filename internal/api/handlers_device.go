// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/collector/internal/eventstore"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/models"
	"github.com/tomtom215/collector/internal/websocket"
)

// Device streams a device's stored events in ascending (generation, serial)
// order, with the same row filtering as websocket queries.
//
//	GET /device/{id}?generation=1714550400&since=42
func (h *Handler) Device(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	generation, err := optionalInt64(r, "generation")
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	since, err := optionalInt64(r, "since")
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	filter := models.QueryFilter{Device: &deviceID, Generation: generation, After: since}
	if problems := eventstore.FilterProblems(filter); len(problems) > 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", strings.Join(problems, "; "), nil)
		return
	}

	out := newArrayWriter(w)
	sent := 0
	_, err = h.store.Query(r.Context(), filter, func(row *models.RawEvent) error {
		if row.PublishedAt == nil || !row.Parseable() || h.blacklist.Blacklisted(row) {
			return nil
		}
		frame, err := websocket.QueryFrame(row)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Int64("id", row.ID).Msg("Skipping stored event with undecodable data")
			return nil
		}
		if err := out.Write(frame); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		sent++
		return nil
	})
	if err != nil {
		if !out.started {
			respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "failed to query events", err)
			return
		}
		// Status already sent. The array stays unterminated.
		logging.Ctx(r.Context()).Error().Err(err).Str("device", sanitizeLogValue(deviceID)).Int("sent", sent).Msg("Device query failed mid-response")
		return
	}
	if err := out.Close(); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to write JSON response")
	}
}
