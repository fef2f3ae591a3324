// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package validation wraps go-playground/validator v10 behind a singleton
// and translates field errors into short messages. Configuration sections
// and client query commands are both checked through ValidateStruct.
package validation
