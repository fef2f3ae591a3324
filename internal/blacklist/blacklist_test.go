// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package blacklist

import (
	"testing"
	"time"

	"github.com/tomtom215/collector/internal/config"
	"github.com/tomtom215/collector/internal/models"
)

func ts(s string) *string { return &s }

// linearMatch is the rule-by-rule scan the index must agree with.
func linearMatch(rules []Rule, device string, publishedAt *string) bool {
	for _, r := range rules {
		if r.Device != "" && r.Device != device {
			continue
		}
		if r.Until.IsZero() {
			return true
		}
		if publishedAt == nil {
			continue
		}
		pub, err := time.Parse(time.RFC3339Nano, *publishedAt)
		if err == nil && r.Until.Before(pub) {
			return true
		}
	}
	return false
}

func TestBoundary(t *testing.T) {
	until := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ix := NewIndex([]Rule{{Device: "D1", Until: until, Reason: "replaced"}})

	tests := []struct {
		name   string
		device string
		pub    *string
		hidden bool
	}{
		{"after until", "D1", ts("2024-03-01T12:00:00.001Z"), true},
		{"equal to until", "D1", ts("2024-03-01T12:00:00Z"), false},
		{"before until", "D1", ts("2024-02-28T00:00:00Z"), false},
		{"other device", "D2", ts("2025-01-01T00:00:00Z"), false},
		{"null published_at", "D1", nil, false},
		{"garbage published_at", "D1", ts("yesterday"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, hidden := ix.Match(tt.device, tt.pub)
			if hidden != tt.hidden {
				t.Errorf("Match = %v, want %v", hidden, tt.hidden)
			}
			if hidden && reason != "replaced" {
				t.Errorf("reason = %q", reason)
			}
		})
	}
}

func TestIndexAgreesWithLinearScan(t *testing.T) {
	early := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	ruleSets := map[string][]Rule{
		"empty":          nil,
		"global timed":   {{Until: late}},
		"global always":  {{}},
		"device always":  {{Device: "A"}},
		"mixed":          {{Device: "A", Until: late}, {Until: early}, {Device: "B"}},
		"two per device": {{Device: "A", Until: late}, {Device: "A", Until: early}},
	}
	devices := []string{"A", "B", "C"}
	pubs := []*string{nil, ts("2022-06-01T00:00:00Z"), ts("2023-06-01T00:00:00Z"), ts("2024-06-01T00:00:00Z")}

	for name, rules := range ruleSets {
		ix := NewIndex(rules)
		for _, d := range devices {
			for _, p := range pubs {
				_, got := ix.Match(d, p)
				if want := linearMatch(rules, d, p); got != want {
					pv := "<nil>"
					if p != nil {
						pv = *p
					}
					t.Errorf("%s: Match(%s, %s) = %v, linear scan = %v", name, d, pv, got, want)
				}
			}
		}
	}
}

func TestFromConfig(t *testing.T) {
	ix, err := FromConfig([]config.BlacklistRule{
		{Device: "D1", Until: "2024-03-01T12:00:00Z", Reason: "bad sensor"},
	})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if ix.Len() != 1 {
		t.Errorf("Len = %d", ix.Len())
	}
	row := &models.RawEvent{DeviceID: "D1", PublishedAt: ts("2024-03-02T00:00:00Z")}
	if !ix.Blacklisted(row) {
		t.Error("row after the rule timestamp should be hidden")
	}

	if _, err := FromConfig([]config.BlacklistRule{{Until: "soon"}}); err == nil {
		t.Error("expected parse error")
	}

	var nilIndex *Index
	if nilIndex.Blacklisted(row) {
		t.Error("nil index hides nothing")
	}
}
