// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package validation

import (
	"errors"
	"strings"
	"testing"
)

type sample struct {
	Name   string `validate:"required,min=2"`
	Limit  int    `validate:"gte=0,lte=1000"`
	Policy string `validate:"oneof=reconnect shutdown"`
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same singleton instance")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		input   sample
		wantErr string
	}{
		{"valid", sample{Name: "ok", Limit: 10, Policy: "reconnect"}, ""},
		{"missing name", sample{Limit: 1, Policy: "shutdown"}, "sample.Name is required"},
		{"short name", sample{Name: "x", Policy: "shutdown"}, "at least 2 characters"},
		{"limit too large", sample{Name: "ok", Limit: 5000, Policy: "shutdown"}, "less than or equal to 1000"},
		{"bad policy", sample{Name: "ok", Policy: "restart"}, "must be one of: reconnect shutdown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
			var ve Errors
			if !errors.As(err, &ve) || len(ve) == 0 {
				t.Errorf("expected validation.Errors, got %T", err)
			}
		})
	}
}
