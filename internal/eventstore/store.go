// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package eventstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/collector/internal/cache"
	"github.com/tomtom215/collector/internal/database"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/metrics"
	"github.com/tomtom215/collector/internal/models"
	"github.com/tomtom215/collector/internal/registry"
)

// ErrStorageWrite wraps any failure to append a row.
var ErrStorageWrite = errors.New("storage write failed")

// Result is the outcome of HandleEvent.
type Result int

const (
	ResultInserted Result = iota
	ResultDuplicate
	ResultUnparseable
	ResultControl
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultInserted:
		return metrics.OutcomeInserted
	case ResultDuplicate:
		return metrics.OutcomeDuplicate
	case ResultUnparseable:
		return metrics.OutcomeUnparseable
	case ResultControl:
		return metrics.OutcomeControl
	case ResultFailed:
		return metrics.OutcomeFailed
	default:
		return "unknown"
	}
}

// Backend is the persistence the store needs. *database.DB implements it.
type Backend interface {
	InsertRawEvent(ctx context.Context, ev *database.NewRawEvent) (bool, error)
	ContainsEvent(ctx context.Context, deviceID string, generationID, serialNo int64) (bool, error)
	QueryEvents(ctx context.Context, f models.QueryFilter, fn func(*models.RawEvent) error) (string, error)
	LatestPosition(ctx context.Context, deviceID string) (*models.Position, error)
	DeviceHeads(ctx context.Context) ([]models.Position, error)
}

// DeadLetters receives events whose write failed. *deadletter.Journal
// implements it.
type DeadLetters interface {
	Record(ctx context.Context, ev models.Event, cause error) (string, error)
}

// Options tune a Store. The zero value is usable.
type Options struct {
	// RecentKeys bounds the in-memory set of keys this process has already
	// seen, which answers repeat deliveries without touching the database.
	RecentKeys int
	RecentTTL  time.Duration

	// Now overrides the clock used for received_at.
	Now func() time.Time
}

// Store owns the raw event log, its listeners and the device registry.
type Store struct {
	db       Backend
	registry *registry.Registry
	dead     DeadLetters
	recent   *cache.Recent
	now      func() time.Time

	// writeMu serializes inserts and the notifications that follow them.
	writeMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []listenerEntry
	nextID      uint64
}

// New creates a Store. reg and dead may be nil.
func New(db Backend, reg *registry.Registry, dead DeadLetters, opts Options) *Store {
	if reg == nil {
		reg = registry.New()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		db:       db,
		registry: reg,
		dead:     dead,
		recent:   cache.NewRecent(opts.RecentKeys, opts.RecentTTL),
		now:      now,
	}
}

// HandleEvent ingests one event.
//
// Duplicates and control events are not errors. The only error is a failed
// write, which wraps ErrStorageWrite.
func (s *Store) HandleEvent(ctx context.Context, ev models.Event) (Result, error) {
	if ev.IsControl() {
		logging.Debug().
			Str("device", s.DevString(ev.DeviceID)).
			Str("name", ev.Name).
			Str("data", ev.Data).
			Msg("Ignoring control event")
		metrics.RecordEvent(metrics.OutcomeControl)
		return ResultControl, nil
	}

	switch p := models.ParsePayload(ev.Data).(type) {
	case models.ParsedPayload:
		return s.storeParsed(ctx, ev, p)
	case models.UnparseablePayload:
		return s.storeUnparseable(ctx, ev, p)
	default:
		return ResultFailed, fmt.Errorf("unexpected payload type %T", p)
	}
}

func (s *Store) storeParsed(ctx context.Context, ev models.Event, p models.ParsedPayload) (Result, error) {
	key := dedupKey(ev.DeviceID, p.Generation, p.Serial)
	if s.recent.Contains(key) {
		s.logDuplicate(ev, p)
		return ResultDuplicate, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	gen, serial := p.Generation, p.Serial
	inserted, err := s.db.InsertRawEvent(ctx, &database.NewRawEvent{
		DeviceID:     ev.DeviceID,
		PublishedAt:  ev.PublishedAt,
		GenerationID: &gen,
		SerialNo:     &serial,
		RawData:      p.Normalized,
		ReceivedAt:   s.now(),
	})
	if err != nil {
		return ResultFailed, s.writeFailed(ctx, ev, err)
	}
	s.recent.Add(key)

	if !inserted {
		s.logDuplicate(ev, p)
		return ResultDuplicate, nil
	}

	logging.Debug().
		Str("device", s.DevString(ev.DeviceID)).
		Int64("generation", gen).
		Int64("serial", serial).
		Str("name", ev.Name).
		Msg("Event stored")
	metrics.RecordEvent(metrics.OutcomeInserted)
	s.notify(ev)
	return ResultInserted, nil
}

func (s *Store) storeUnparseable(ctx context.Context, ev models.Event, p models.UnparseablePayload) (Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.InsertRawEvent(ctx, &database.NewRawEvent{
		DeviceID:    ev.DeviceID,
		PublishedAt: ev.PublishedAt,
		RawData:     p.Raw,
		ReceivedAt:  s.now(),
	})
	if err != nil {
		return ResultFailed, s.writeFailed(ctx, ev, err)
	}

	logging.Warn().
		Str("device", s.DevString(ev.DeviceID)).
		Str("name", ev.Name).
		Str("data", ev.Data).
		Str("reason", p.Reason).
		Msg("Stored unparseable event without deduplication")
	metrics.RecordEvent(metrics.OutcomeUnparseable)
	s.notify(ev)
	return ResultUnparseable, nil
}

func (s *Store) logDuplicate(ev models.Event, p models.ParsedPayload) {
	dev := s.DevString(ev.DeviceID)
	switch {
	case ev.Upstream:
		logging.Info().
			Str("device", dev).
			Int64("generation", p.Generation).
			Int64("serial", p.Serial).
			Msg("Ignoring duplicate event from upstream")
		metrics.RecordDuplicate("upstream")
	case ev.IsLive():
		logging.Warn().
			Str("device", dev).
			Int64("generation", p.Generation).
			Int64("serial", p.Serial).
			Str("name", ev.Name).
			Msg("Live event already stored, possible data loss upstream")
		metrics.RecordDuplicate("live")
	default:
		logging.Info().
			Str("device", dev).
			Int64("generation", p.Generation).
			Int64("serial", p.Serial).
			Msg("Ignoring duplicate event")
		metrics.RecordDuplicate("replay")
	}
}

func (s *Store) writeFailed(ctx context.Context, ev models.Event, cause error) error {
	err := fmt.Errorf("%w: %w", ErrStorageWrite, cause)
	metrics.RecordEvent(metrics.OutcomeFailed)

	logEvent := logging.Error().
		Err(cause).
		Str("device", s.DevString(ev.DeviceID)).
		Str("name", ev.Name).
		Str("data", ev.Data)

	if s.dead != nil {
		id, dlErr := s.dead.Record(context.WithoutCancel(ctx), ev, cause)
		if dlErr != nil {
			logging.Error().Err(dlErr).Str("device", ev.DeviceID).Msg("Failed to record dead letter")
		} else if id != "" {
			logEvent = logEvent.Str("dead_letter_id", id)
		}
	}
	logEvent.Msg("Failed to store event, event dropped")
	return err
}

// ContainsEvent reports whether the key is already stored.
func (s *Store) ContainsEvent(ctx context.Context, deviceID string, generationID, serialNo int64) (bool, error) {
	if s.recent.Contains(dedupKey(deviceID, generationID, serialNo)) {
		return true, nil
	}
	return s.db.ContainsEvent(ctx, deviceID, generationID, serialNo)
}

// LatestPosition returns the head of deviceID's log, or nil when it has no
// parseable rows.
func (s *Store) LatestPosition(ctx context.Context, deviceID string) (*models.Position, error) {
	return s.db.LatestPosition(ctx, deviceID)
}

// DeviceHeads returns the head position of every device with a parseable row.
func (s *Store) DeviceHeads(ctx context.Context) ([]models.Position, error) {
	return s.db.DeviceHeads(ctx)
}

// SetAttributes records display attributes for a device.
func (s *Store) SetAttributes(deviceID string, attrs registry.Attributes) {
	s.registry.Set(deviceID, attrs)
}

// DevString formats a device for logs as "name (id)".
func (s *Store) DevString(deviceID string) string {
	return s.registry.String(deviceID)
}

// Registry exposes the device registry backing DevString.
func (s *Store) Registry() *registry.Registry {
	return s.registry
}

func dedupKey(deviceID string, generation, serial int64) string {
	return deviceID + "\x00" + strconv.FormatInt(generation, 10) + "\x00" + strconv.FormatInt(serial, 10)
}
