// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/collector/internal/cloud"
	"github.com/tomtom215/collector/internal/eventstore"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/metrics"
	"github.com/tomtom215/collector/internal/models"
)

var (
	// ErrInactivity is returned when no event arrived within the
	// inactivity timeout.
	ErrInactivity = errors.New("live stream inactive")

	// ErrStreamClosed is returned when the source ended the stream.
	ErrStreamClosed = errors.New("live stream closed")
)

// Policy decides what happens when the live connection is lost.
type Policy string

const (
	// PolicyReconnect returns the error to suture, which restarts the
	// service after its backoff.
	PolicyReconnect Policy = "reconnect"

	// PolicyShutdown escalates to a full process shutdown so an external
	// supervisor can restart the collector.
	PolicyShutdown Policy = "shutdown"
)

// State is the live connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// EventSink receives live events. *eventstore.Store implements it.
type EventSink interface {
	HandleEvent(ctx context.Context, ev models.Event) (eventstore.Result, error)
}

// Replayer runs a replay pass. *replay.Coordinator implements it.
type Replayer interface {
	RequestAllDeviceReplay(ctx context.Context) error
}

// Escalator triggers process shutdown. *Shutdown implements it.
type Escalator interface {
	Trigger(code int, reason string)
}

// StreamOptions configures a StreamService.
type StreamOptions struct {
	InactivityTimeout time.Duration
	Policy            Policy

	// Replayer, if set, runs after every successful connect.
	Replayer Replayer

	// Shutdown is required for PolicyShutdown.
	Shutdown Escalator
}

// StreamService owns the single live event connection. Each Serve call is
// one connection attempt: Disconnected, Connecting, Connected, then back to
// Disconnected when the stream errors, closes or goes silent.
type StreamService struct {
	source cloud.EventSource
	sink   EventSink
	opts   StreamOptions

	state atomic.Int32
	conns atomic.Int64
}

// NewStreamService creates the live stream service.
func NewStreamService(source cloud.EventSource, sink EventSink, opts StreamOptions) *StreamService {
	if opts.InactivityTimeout <= 0 {
		opts.InactivityTimeout = 240 * time.Second
	}
	if opts.Policy == "" {
		opts.Policy = PolicyReconnect
	}
	return &StreamService{source: source, sink: sink, opts: opts}
}

// State returns the current connection state.
func (s *StreamService) State() State {
	return State(s.state.Load())
}

// Connections returns how many times the stream has connected.
func (s *StreamService) Connections() int64 {
	return s.conns.Load()
}

func (s *StreamService) setState(st State) {
	s.state.Store(int32(st))
	metrics.RecordStreamState(st == StateConnected)
}

// Serve implements suture.Service.
func (s *StreamService) Serve(ctx context.Context) error {
	s.setState(StateConnecting)
	logging.Info().Msg("Connecting to live event stream")

	stream, err := s.source.Connect(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.lost(ctx, "connect_error", fmt.Errorf("connect live stream: %w", err))
	}

	s.setState(StateConnected)
	s.conns.Add(1)
	logging.Info().Dur("inactivity_timeout", s.opts.InactivityTimeout).Msg("Live event stream connected")

	var wg sync.WaitGroup
	replayCtx, cancelReplay := context.WithCancel(ctx)
	if s.opts.Replayer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.opts.Replayer.RequestAllDeviceReplay(replayCtx); err != nil {
				logging.Error().Err(err).Msg("Replay pass after connect failed")
			}
		}()
	}

	reason, cause := s.pump(ctx, stream)

	cancelReplay()
	if err := stream.Close(); err != nil {
		logging.Debug().Err(err).Msg("Closing live stream")
	}
	wg.Wait()
	s.setState(StateDisconnected)

	if ctx.Err() != nil {
		logging.Info().Msg("Live event stream stopped")
		return ctx.Err()
	}
	return s.lost(ctx, reason, cause)
}

// pump forwards events to the sink until the stream fails, ends or goes
// quiet for longer than the inactivity timeout.
func (s *StreamService) pump(ctx context.Context, stream cloud.Stream) (string, error) {
	watchdog := time.NewTimer(s.opts.InactivityTimeout)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return "shutdown", ctx.Err()

		case <-watchdog.C:
			return "inactivity", fmt.Errorf("%w: no event for %s", ErrInactivity, s.opts.InactivityTimeout)

		case ev, ok := <-stream.Events():
			if !ok {
				if err := stream.Err(); err != nil && !errors.Is(err, cloud.ErrStreamEnded) {
					return "error", fmt.Errorf("%w: %w", ErrStreamClosed, err)
				}
				return "closed", ErrStreamClosed
			}

			// Vendor timeout notices arrive as control events and still
			// count as traffic.
			if !watchdog.Stop() {
				select {
				case <-watchdog.C:
				default:
				}
			}
			watchdog.Reset(s.opts.InactivityTimeout)

			if _, err := s.sink.HandleEvent(ctx, ev); err != nil {
				logging.Ctx(ctx).Error().Err(err).Str("device", ev.DeviceID).Str("event", ev.Name).Msg("Live event not stored")
			}
		}
	}
}

// lost applies the connection-loss policy.
func (s *StreamService) lost(ctx context.Context, reason string, cause error) error {
	metrics.RecordStreamDisconnect(reason)

	if s.opts.Policy == PolicyShutdown && s.opts.Shutdown != nil {
		logging.Error().Err(cause).Str("reason", reason).Msg("Live event stream lost, shutting down")
		s.opts.Shutdown.Trigger(ExitPolicy, "live stream "+reason)
		<-ctx.Done()
		return ctx.Err()
	}

	logging.Warn().Err(cause).Str("reason", reason).Msg("Live event stream lost, reconnecting")
	return cause
}

func (s *StreamService) String() string {
	return "live-stream"
}
