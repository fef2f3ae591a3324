// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package eventstore

import (
	"context"
	"time"

	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/metrics"
	"github.com/tomtom215/collector/internal/models"
)

// Parameter problems reported by FilterProblems.
const (
	ProblemAfterWithoutDevice     = "parameter 'device' is mandatory with 'after' parameter"
	ProblemAfterWithoutGeneration = "parameter 'generation' is mandatory with 'after' parameter"
)

// FilterProblems lists parameter dependency violations in f. A filter with
// problems can still be executed.
func FilterProblems(f models.QueryFilter) []string {
	if f.After == nil {
		return nil
	}
	var problems []string
	if f.Device == nil {
		problems = append(problems, ProblemAfterWithoutDevice)
	}
	if f.Generation == nil {
		problems = append(problems, ProblemAfterWithoutGeneration)
	}
	return problems
}

// Query streams rows matching f to fn and returns the SQL used.
//
// With a limit, rows come newest first (generation DESC, serial DESC) and
// are capped. Without one, rows come oldest first with no cap. Returning
// an error from fn, or cancelling ctx, stops the scan.
func (s *Store) Query(ctx context.Context, f models.QueryFilter, fn func(*models.RawEvent) error) (string, error) {
	for _, p := range FilterProblems(f) {
		logging.Ctx(ctx).Warn().Str("problem", p).Msg("Query parameter error")
	}

	start := time.Now()
	sql, err := s.db.QueryEvents(ctx, f, fn)
	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	return sql, err
}
