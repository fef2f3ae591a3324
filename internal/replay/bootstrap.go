// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package replay

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/collector/internal/logging"
)

// SerialCounter hands out (generation, serial) pairs for a local producer.
type SerialCounter struct {
	mu         sync.Mutex
	generation int64
	serial     int64
}

// NewSerialCounter starts a counter at (generation, serial). The first call
// to Next returns serial+1.
func NewSerialCounter(generation, serial int64) *SerialCounter {
	return &SerialCounter{generation: generation, serial: serial}
}

// Next increments the serial and returns the new pair.
func (c *SerialCounter) Next() (generation, serial int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serial++
	return c.generation, c.serial
}

// Current returns the last pair handed out.
func (c *SerialCounter) Current() (generation, serial int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, c.serial
}

// BootstrapLocalGeneration resumes the namespace's last generation if it was
// written to within the generation gap, otherwise starts a new generation
// numbered with the current Unix time.
func (c *Coordinator) BootstrapLocalGeneration(ctx context.Context, namespace string) (*SerialCounter, error) {
	pos, err := c.state.LatestPosition(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("load latest position for %s: %w", namespace, err)
	}

	now := c.now()
	if pos == nil || pos.SerialNo == nil {
		logging.Info().Str("producer", namespace).Int64("generation", now.Unix()).Msg("No previous generation, starting a new one")
		return NewSerialCounter(now.Unix(), 0), nil
	}

	age := now.Sub(pos.WrittenAt)
	if age > c.gap {
		logging.Info().
			Str("producer", namespace).
			Int64("previous_generation", pos.GenerationID).
			Dur("age", age).
			Int64("generation", now.Unix()).
			Msg("Previous generation is stale, starting a new one")
		return NewSerialCounter(now.Unix(), 0), nil
	}

	logging.Info().
		Str("producer", namespace).
		Int64("generation", pos.GenerationID).
		Int64("serial", *pos.SerialNo).
		Msg("Resuming previous generation")
	return NewSerialCounter(pos.GenerationID, *pos.SerialNo), nil
}
