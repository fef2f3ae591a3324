// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/collector/internal/config"
)

// Tree is the collector's supervisor hierarchy:
//
//	collector
//	├── ingest-layer    live stream, pollers, upstream relay
//	├── delivery-layer  websocket hub, relay publisher, replay scheduler
//	└── api-layer       HTTP server
//
// A pollers crash loop does not take the API down with it.
type Tree struct {
	root     *suture.Supervisor
	ingest   *suture.Supervisor
	delivery *suture.Supervisor
	api      *suture.Supervisor
	config   config.SupervisorConfig
}

// NewTree builds the hierarchy. Zero config values get suture's defaults.
func NewTree(logger *slog.Logger, cfg config.SupervisorConfig) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5.0
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30.0
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	// MustHook has a pointer receiver.
	handler := &sutureslog.Handler{Logger: logger}

	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}

	t := &Tree{
		root:     suture.New("collector", rootSpec),
		ingest:   suture.New("ingest-layer", childSpec),
		delivery: suture.New("delivery-layer", childSpec),
		api:      suture.New("api-layer", childSpec),
		config:   cfg,
	}
	t.root.Add(t.ingest)
	t.root.Add(t.delivery)
	t.root.Add(t.api)
	return t
}

// AddIngestService adds a producer: the live stream, a poller or the
// upstream relay.
func (t *Tree) AddIngestService(svc suture.Service) suture.ServiceToken {
	return t.ingest.Add(svc)
}

// AddDeliveryService adds a consumer of stored events.
func (t *Tree) AddDeliveryService(svc suture.Service) suture.ServiceToken {
	return t.delivery.Add(svc)
}

// AddAPIService adds the HTTP server.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// StopIngest removes an ingest service and waits for it to return.
func (t *Tree) StopIngest(token suture.ServiceToken) error {
	return t.ingest.RemoveAndWait(token, t.config.ShutdownTimeout)
}

// StopDelivery removes a delivery service and waits for it to return.
func (t *Tree) StopDelivery(token suture.ServiceToken) error {
	return t.delivery.RemoveAndWait(token, t.config.ShutdownTimeout)
}

// StopAPI removes an API service and waits for it to return.
func (t *Tree) StopAPI(token suture.ServiceToken) error {
	return t.api.RemoveAndWait(token, t.config.ShutdownTimeout)
}

// Serve runs the tree until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel receives the
// result when the tree stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that missed the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
