// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package registry keeps the in-memory map of device IDs to display
// attributes. It only feeds log output; nothing is persisted.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/collector/internal/logging"
)

// Attributes describe a device for display.
type Attributes struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Lister enumerates the devices known to the device cloud.
type Lister interface {
	ListDevices(ctx context.Context) ([]Attributes, error)
}

// Registry is a concurrency-safe device attribute map.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Attributes
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{devices: make(map[string]Attributes)}
}

// Set stores or replaces the attributes of a device.
func (r *Registry) Set(deviceID string, attrs Attributes) {
	if attrs.ID == "" {
		attrs.ID = deviceID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[deviceID] = attrs
}

// Get returns the attributes of a device.
func (r *Registry) Get(deviceID string) (Attributes, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attrs, ok := r.devices[deviceID]
	return attrs, ok
}

// String renders a device as "name (id)", or "? (id)" when unknown.
func (r *Registry) String(deviceID string) string {
	attrs, ok := r.Get(deviceID)
	if !ok || attrs.Name == "" {
		return fmt.Sprintf("? (%s)", deviceID)
	}
	return fmt.Sprintf("%s (%s)", attrs.Name, deviceID)
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// LoadFrom populates the registry from a device listing. Existing entries
// not present in the listing are kept.
func (r *Registry) LoadFrom(ctx context.Context, lister Lister) error {
	devices, err := lister.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	for _, d := range devices {
		r.Set(d.ID, d)
	}
	logging.Info().Int("devices", len(devices)).Msg("Device registry loaded")
	return nil
}
