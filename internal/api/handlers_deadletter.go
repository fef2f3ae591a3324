// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package api

import (
	"net/http"

	"github.com/tomtom215/collector/internal/deadletter"
)

const (
	defaultDeadLetterLimit = 100
	maxDeadLetterLimit     = 1000
)

// DeadLetters lists events whose insert failed, newest first.
//
//	GET /deadletters?limit=50
func (h *Handler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	if h.deadLetters == nil {
		respondError(w, http.StatusNotFound, "DEADLETTER_DISABLED", "dead-letter journal is disabled", nil)
		return
	}

	limit := getIntParam(r, "limit", defaultDeadLetterLimit)
	if limit <= 0 || limit > maxDeadLetterLimit {
		limit = defaultDeadLetterLimit
	}

	entries, err := h.deadLetters.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DEADLETTER_ERROR", "failed to read dead-letter journal", err)
		return
	}
	if entries == nil {
		entries = []deadletter.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}
