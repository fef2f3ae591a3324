// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/collector/internal/validation"
)

// Validate checks struct tags first, then the cross-field rules tags
// cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.validatePoller(); err != nil {
		return err
	}
	if err := c.validateRelay(); err != nil {
		return err
	}
	return c.validateBlacklist()
}

func (c *Config) validatePoller() error {
	if c.Poller.Enabled && c.Poller.URL == "" {
		return fmt.Errorf("ENDPOINT_VAC (poller.url) is required when the poller is enabled")
	}
	if c.Poller.Enabled && c.Poller.Spacing >= c.Poller.Interval {
		return fmt.Errorf("poller.spacing (%s) must be shorter than poller.interval (%s)",
			c.Poller.Spacing, c.Poller.Interval)
	}
	return nil
}

func (c *Config) validateRelay() error {
	if c.Relay.UpstreamEnabled && c.Relay.Enabled && c.Relay.UpstreamURL == c.Relay.URL &&
		c.Relay.UpstreamSubject == c.Relay.Subject {
		return fmt.Errorf("relay.upstream_subject must differ from relay.subject on the same server")
	}
	return nil
}

func (c *Config) validateBlacklist() error {
	for i, rule := range c.Blacklist {
		if rule.Until == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, rule.Until); err != nil {
			return fmt.Errorf("blacklist[%d].timestamp_until %q is not RFC3339: %w", i, rule.Until, err)
		}
	}
	return nil
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ShutdownOnDisconnect reports whether a dropped stream stops the process.
func (s StreamConfig) ShutdownOnDisconnect() bool {
	return s.Policy == "shutdown"
}
