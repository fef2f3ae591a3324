// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/collector/internal/metrics"
	"github.com/tomtom215/collector/internal/models"
)

const selectRawEvents = "SELECT id, device_id, published_at, generation_id, serial_no, raw_data FROM raw_events"

// BuildEventQuery renders the SQL and arguments for a filter.
//
// With a limit the newest rows come first (generation and serial
// descending) and at most limit rows are returned. Without a limit every
// matching row is returned oldest first.
func BuildEventQuery(f models.QueryFilter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if f.Device != nil {
		where = append(where, "device_id = ?")
		args = append(args, *f.Device)
	}
	if f.After != nil {
		where = append(where, "serial_no > ?")
		args = append(args, *f.After)
	}
	if f.Generation != nil {
		where = append(where, "generation_id = ?")
		args = append(args, *f.Generation)
	}

	var sb strings.Builder
	sb.WriteString(selectRawEvents)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	if f.Limit != nil {
		sb.WriteString(" ORDER BY generation_id DESC, serial_no DESC, id DESC LIMIT ?")
		args = append(args, *f.Limit)
	} else {
		sb.WriteString(" ORDER BY generation_id, serial_no, id")
	}
	return sb.String(), args
}

// QueryEvents streams rows matching f to fn in query order and returns the
// SQL that was executed. Iteration stops at the first error returned by fn
// or when ctx is cancelled.
//
// No default timeout is applied: a full forward scan can legitimately run
// for a long time, and the caller's context bounds it.
func (db *DB) QueryEvents(ctx context.Context, f models.QueryFilter, fn func(*models.RawEvent) error) (string, error) {
	query, args := BuildEventQuery(f)

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.RecordDBQuery("query_events", time.Since(start), err)
		return query, fmt.Errorf("failed to query events: %w", err)
	}
	defer closeWithLog(rows, "rows")

	err = scanEvents(ctx, rows, fn)
	metrics.RecordDBQuery("query_events", time.Since(start), err)
	return query, err
}

func scanEvents(ctx context.Context, rows *sql.Rows, fn func(*models.RawEvent) error) error {
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			ev          models.RawEvent
			publishedAt sql.NullString
			gen, serial sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &ev.DeviceID, &publishedAt, &gen, &serial, &ev.RawData); err != nil {
			return fmt.Errorf("failed to scan raw event: %w", err)
		}
		if publishedAt.Valid {
			ev.PublishedAt = &publishedAt.String
		}
		if gen.Valid {
			ev.GenerationID = &gen.Int64
		}
		if serial.Valid {
			ev.SerialNo = &serial.Int64
		}

		if err := fn(&ev); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate raw events: %w", err)
	}
	return nil
}
