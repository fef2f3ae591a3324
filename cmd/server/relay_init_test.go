// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package main

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/tomtom215/collector/internal/config"
	"github.com/tomtom215/collector/internal/eventstore"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

type fakeRelayStore struct {
	mu        sync.Mutex
	listeners int
}

func (f *fakeRelayStore) HandleEvent(context.Context, models.Event) (eventstore.Result, error) {
	return eventstore.ResultInserted, nil
}

func (f *fakeRelayStore) OnEvent(eventstore.Listener) *eventstore.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners++
	return nil
}

func TestRelayComponents_NilSafe(t *testing.T) {
	var c *RelayComponents
	if c.Publisher() != nil || c.Upstream() != nil {
		t.Error("nil components returned services")
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on nil = %v", err)
	}
}

func TestInitRelay_Disabled(t *testing.T) {
	c, err := InitRelay(&config.RelayConfig{}, &fakeRelayStore{})
	if err != nil || c != nil {
		t.Errorf("InitRelay = %v, %v; want nil, nil", c, err)
	}
}

func TestInitRelay_EmbeddedServer(t *testing.T) {
	store := &fakeRelayStore{}
	c, err := InitRelay(&config.RelayConfig{
		Enabled:        true,
		Subject:        "collector.events",
		EmbeddedServer: true,
		EmbeddedPort:   -1,
	}, store)
	if err != nil {
		t.Fatalf("InitRelay: %v", err)
	}
	if c.Publisher() == nil {
		t.Fatal("publisher not created")
	}
	if c.Upstream() != nil {
		t.Error("upstream created while disabled")
	}
	if store.listeners != 1 {
		t.Errorf("listeners registered = %d, want 1", store.listeners)
	}
	if !c.server.IsRunning() {
		t.Error("embedded server not running")
	}

	if err := c.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if c.server.IsRunning() {
		t.Error("embedded server still running after Shutdown")
	}
}
