// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package database

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS raw_events_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS raw_events (
		id            BIGINT NOT NULL DEFAULT nextval('raw_events_id_seq'),
		device_id     VARCHAR NOT NULL,
		published_at  VARCHAR,
		generation_id BIGINT,
		serial_no     BIGINT,
		raw_data      VARCHAR NOT NULL,
		received_at   TIMESTAMP NOT NULL,
		UNIQUE (device_id, generation_id, serial_no)
	)`,
}

func (db *DB) createTables(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
