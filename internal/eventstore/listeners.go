// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package eventstore

import (
	"sync"

	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/models"
)

// Listener is called once for every row the store writes.
//
// Listeners run on the ingesting goroutine while the writer lock is held,
// so they must hand work off rather than block.
type Listener func(models.Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Subscription detaches a listener.
type Subscription struct {
	store *Store
	id    uint64
	once  sync.Once
}

// Unsubscribe removes the listener. Safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.store.removeListener(sub.id)
	})
}

// OnEvent registers fn. Listeners are invoked in registration order.
func (s *Store) OnEvent(fn Listener) *Subscription {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.nextID++
	s.listeners = append(s.listeners, listenerEntry{id: s.nextID, fn: fn})
	return &Subscription{store: s, id: s.nextID}
}

func (s *Store) removeListener(id uint64) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

// notify must be called with writeMu held.
func (s *Store) notify(ev models.Event) {
	s.listenersMu.RLock()
	snapshot := s.listeners
	s.listenersMu.RUnlock()

	for _, l := range snapshot {
		s.invoke(l, ev)
	}
}

func (s *Store) invoke(l listenerEntry, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Interface("panic", r).
				Uint64("listener", l.id).
				Str("device", ev.DeviceID).
				Msg("Event listener panicked")
		}
	}()
	l.fn(ev)
}
