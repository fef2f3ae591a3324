// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package replay

import (
	"context"
	"time"

	"github.com/tomtom215/collector/internal/logging"
)

// Service runs replay passes on a fixed interval. It implements
// suture.Service.
type Service struct {
	coord    *Coordinator
	interval time.Duration
}

// NewService creates a periodic replay service.
func NewService(coord *Coordinator, interval time.Duration) *Service {
	return &Service{coord: coord, interval: interval}
}

// Serve runs until ctx is cancelled.
func (s *Service) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.coord.RequestAllDeviceReplay(ctx); err != nil && ctx.Err() == nil {
				logging.Error().Err(err).Msg("Periodic replay pass failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *Service) String() string {
	return "replay-scheduler"
}
