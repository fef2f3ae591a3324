// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package blacklist hides stored rows from client output without deleting
// them.
//
// A rule matches a row when its device is unset or equal to the row's
// device, and its timestamp is unset or strictly before the row's
// published time. Note the direction: a rule with a timestamp hides what
// was published after it.
package blacklist

import (
	"fmt"
	"time"

	"github.com/tomtom215/collector/internal/config"
	"github.com/tomtom215/collector/internal/models"
)

// Rule is one blacklist entry. Zero Device matches all devices and zero
// Until matches any publish time.
type Rule struct {
	Device string
	Until  time.Time
	Reason string
}

// threshold is the folded form of every rule applying to one device.
type threshold struct {
	// always is set when a rule without a timestamp applies.
	always       bool
	alwaysReason string

	// after is the earliest timestamp among timed rules; rows published
	// strictly after it are hidden.
	after       time.Time
	afterReason string
	hasAfter    bool
}

func (th *threshold) add(r Rule) {
	if r.Until.IsZero() {
		if !th.always {
			th.always = true
			th.alwaysReason = r.Reason
		}
		return
	}
	if !th.hasAfter || r.Until.Before(th.after) {
		th.after = r.Until
		th.afterReason = r.Reason
		th.hasAfter = true
	}
}

// Index answers blacklist lookups in constant time per row. It is built
// once and read-only afterwards.
type Index struct {
	global   threshold
	byDevice map[string]threshold
	size     int
}

// NewIndex folds rules into per-device thresholds.
func NewIndex(rules []Rule) *Index {
	ix := &Index{byDevice: make(map[string]threshold), size: len(rules)}

	for _, r := range rules {
		if r.Device == "" {
			ix.global.add(r)
		}
	}
	for _, r := range rules {
		if r.Device == "" {
			continue
		}
		th, ok := ix.byDevice[r.Device]
		if !ok {
			th = ix.global
		}
		th.add(r)
		ix.byDevice[r.Device] = th
	}
	return ix
}

// FromConfig parses configured rules.
func FromConfig(rules []config.BlacklistRule) (*Index, error) {
	parsed := make([]Rule, 0, len(rules))
	for i, r := range rules {
		rule := Rule{Device: r.Device, Reason: r.Reason}
		if r.Until != "" {
			until, err := time.Parse(time.RFC3339, r.Until)
			if err != nil {
				return nil, fmt.Errorf("blacklist rule %d: %w", i, err)
			}
			rule.Until = until
		}
		parsed = append(parsed, rule)
	}
	return NewIndex(parsed), nil
}

// Len returns the number of rules the index was built from.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.size
}

// Match reports whether a row of deviceID published at publishedAt is
// hidden, and the reason of the matching rule. A nil or unparseable
// publishedAt is only hidden by rules without a timestamp.
func (ix *Index) Match(deviceID string, publishedAt *string) (string, bool) {
	if ix == nil {
		return "", false
	}
	th, ok := ix.byDevice[deviceID]
	if !ok {
		th = ix.global
	}

	if th.always {
		return th.alwaysReason, true
	}
	if !th.hasAfter || publishedAt == nil {
		return "", false
	}
	pub, err := time.Parse(time.RFC3339Nano, *publishedAt)
	if err != nil {
		return "", false
	}
	if th.after.Before(pub) {
		return th.afterReason, true
	}
	return "", false
}

// Blacklisted reports whether a stored row is hidden.
func (ix *Index) Blacklisted(row *models.RawEvent) bool {
	_, hidden := ix.Match(row.DeviceID, row.PublishedAt)
	return hidden
}
