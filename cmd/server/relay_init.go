// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/collector/internal/config"
	"github.com/tomtom215/collector/internal/eventstore"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/relay"
)

// relayStore is the slice of *eventstore.Store the relay needs.
type relayStore interface {
	relay.Sink
	OnEvent(fn eventstore.Listener) *eventstore.Subscription
}

// RelayComponents holds the NATS relay for lifecycle management.
type RelayComponents struct {
	server       *relay.EmbeddedServer
	publisher    *relay.Publisher
	upstream     *relay.Upstream
	subscription *eventstore.Subscription
	url          string
}

// InitRelay starts the embedded NATS server if configured, registers the
// publisher as an event store listener and creates the upstream
// subscriber. It returns nil when the relay is disabled.
func InitRelay(cfg *config.RelayConfig, store relayStore) (*RelayComponents, error) {
	if !cfg.Enabled && !cfg.UpstreamEnabled {
		logging.Info().Msg("NATS relay disabled (RELAY_ENABLED=false)")
		return nil, nil
	}

	c := &RelayComponents{url: cfg.URL}

	if cfg.EmbeddedServer {
		srv, err := relay.NewEmbeddedServer("127.0.0.1", cfg.EmbeddedPort, cfg.StoreDir)
		if err != nil {
			return nil, err
		}
		c.server = srv
		c.url = srv.ClientURL()
		logging.Info().Str("url", c.url).Msg("Embedded NATS server started")
	}

	if cfg.Enabled {
		pub, err := relay.NewPublisher(c.url, cfg.Subject)
		if err != nil {
			c.Shutdown(context.Background())
			return nil, err
		}
		c.publisher = pub
		c.subscription = store.OnEvent(pub.Enqueue)
		logging.Info().Str("url", c.url).Str("subject", cfg.Subject).Msg("Relay publisher ready")
	}

	if cfg.UpstreamEnabled {
		up, err := relay.NewUpstream(cfg.UpstreamURL, cfg.UpstreamSubject, cfg.QueueGroup, store)
		if err != nil {
			c.Shutdown(context.Background())
			return nil, fmt.Errorf("relay upstream: %w", err)
		}
		c.upstream = up
		logging.Info().Str("url", cfg.UpstreamURL).Str("subject", cfg.UpstreamSubject).Msg("Relay upstream ready")
	}

	return c, nil
}

// Publisher returns the publisher service, or nil.
func (c *RelayComponents) Publisher() *relay.Publisher {
	if c == nil {
		return nil
	}
	return c.publisher
}

// Upstream returns the upstream service, or nil.
func (c *RelayComponents) Upstream() *relay.Upstream {
	if c == nil {
		return nil
	}
	return c.upstream
}

// Shutdown detaches the publisher, closes both NATS clients and stops the
// embedded server. Safe on a nil receiver.
func (c *RelayComponents) Shutdown(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.subscription != nil {
		c.subscription.Unsubscribe()
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if c.upstream != nil {
		if err := c.upstream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close upstream: %w", err))
		}
	}
	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop embedded server: %w", err))
		}
	}
	return errors.Join(errs...)
}
