// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package replay asks devices to resend events the collector has not seen
// and bootstraps generation/serial state for local producers.
package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/collector/internal/config"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/metrics"
	"github.com/tomtom215/collector/internal/models"
)

// FunctionName is the device function that triggers a replay.
const FunctionName = "replay"

// Outcome is a device's answer to a replay request.
type Outcome int

const (
	OutcomeSuccess           Outcome = 0
	OutcomeGenericFailure    Outcome = -1
	OutcomeAlreadyInProgress Outcome = -2
	OutcomeInvalidGeneration Outcome = -99
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeGenericFailure:
		return "generic_failure"
	case OutcomeAlreadyInProgress:
		return "already_in_progress"
	case OutcomeInvalidGeneration:
		return "invalid_generation"
	default:
		return "unknown"
	}
}

// DeviceController invokes a named function on a remote device and returns
// the device's integer reply.
type DeviceController interface {
	CallFunction(ctx context.Context, deviceID, name, arg string) (int, error)
}

// State is the slice of the event store the coordinator reads.
type State interface {
	DeviceHeads(ctx context.Context) ([]models.Position, error)
	LatestPosition(ctx context.Context, deviceID string) (*models.Position, error)
	DevString(deviceID string) string
}

// Coordinator issues replay requests and bootstraps local producers.
type Coordinator struct {
	state State
	ctrl  DeviceController
	gap   time.Duration
	now   func() time.Time

	// passMu keeps replay passes from overlapping and guards local.
	passMu sync.Mutex
	local  map[string]struct{}
}

// NewCoordinator creates a coordinator. ctrl may be nil when no device
// cloud is configured; replay passes are then skipped.
func NewCoordinator(state State, ctrl DeviceController, cfg config.ReplayConfig) *Coordinator {
	gap := cfg.GenerationGap
	if gap <= 0 {
		gap = 300 * time.Second
	}
	return &Coordinator{
		state: state,
		ctrl:  ctrl,
		gap:   gap,
		now:   time.Now,
		local: make(map[string]struct{}),
	}
}

// SkipLocal excludes device namespaces written by in-process producers
// from replay passes. Those producers have no cloud function to call.
func (c *Coordinator) SkipLocal(deviceIDs ...string) {
	c.passMu.Lock()
	defer c.passMu.Unlock()
	for _, id := range deviceIDs {
		c.local[id] = struct{}{}
	}
}

// ReplayArgument formats the device argument "<serial+1>,<generation>".
// The serial is -1 when no serial is known for the generation.
func ReplayArgument(pos models.Position) string {
	next := int64(-1)
	if pos.SerialNo != nil {
		next = *pos.SerialNo + 1
	}
	return fmt.Sprintf("%d,%d", next, pos.GenerationID)
}

// RequestAllDeviceReplay asks every device with stored events to resend
// anything after its last stored serial. Refusals and call errors are
// logged per device and never retried.
func (c *Coordinator) RequestAllDeviceReplay(ctx context.Context) error {
	if c.ctrl == nil {
		logging.Debug().Msg("No device controller configured, skipping replay pass")
		return nil
	}

	c.passMu.Lock()
	defer c.passMu.Unlock()

	heads, err := c.state.DeviceHeads(ctx)
	if err != nil {
		return fmt.Errorf("load device heads: %w", err)
	}

	logging.Info().Int("devices", len(heads)).Msg("Requesting replay from all devices")
	for _, pos := range heads {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, ok := c.local[pos.DeviceID]; ok {
			continue
		}
		c.requestReplay(ctx, pos)
	}
	return nil
}

func (c *Coordinator) requestReplay(ctx context.Context, pos models.Position) {
	arg := ReplayArgument(pos)
	dev := c.state.DevString(pos.DeviceID)

	code, err := c.ctrl.CallFunction(ctx, pos.DeviceID, FunctionName, arg)
	if err != nil {
		logging.Error().Err(err).Str("device", dev).Str("arg", arg).Msg("Replay request failed, events may be lost")
		metrics.RecordReplay("error")
		return
	}

	outcome := Outcome(code)
	metrics.RecordReplay(outcome.String())

	switch outcome {
	case OutcomeSuccess:
		logging.Info().Str("device", dev).Str("arg", arg).Msg("Replay requested")
	case OutcomeAlreadyInProgress:
		logging.Warn().Str("device", dev).Str("arg", arg).Msg("Replay already in progress, events may be lost")
	case OutcomeInvalidGeneration:
		logging.Warn().Str("device", dev).Str("arg", arg).Msg("Device rejected replay generation, events may be lost")
	case OutcomeGenericFailure:
		logging.Error().Str("device", dev).Str("arg", arg).Msg("Device failed to start replay, events may be lost")
	default:
		logging.Error().Str("device", dev).Str("arg", arg).Int("code", code).Msg("Unknown replay response, events may be lost")
	}
}
