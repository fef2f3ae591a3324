// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/collector/internal/metrics"
	"github.com/tomtom215/collector/internal/models"
)

// NewRawEvent is a row to append to raw_events.
type NewRawEvent struct {
	DeviceID    string
	PublishedAt string

	// GenerationID and SerialNo are nil for unparseable events.
	GenerationID *int64
	SerialNo     *int64

	RawData    string
	ReceivedAt time.Time
}

// InsertRawEvent appends a row unless the (device, generation, serial) key
// is already present. It reports whether a row was written.
//
// Unparseable rows (nil key) are always written: NULLs never conflict.
func (db *DB) InsertRawEvent(ctx context.Context, ev *NewRawEvent) (bool, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}

	var publishedAt interface{}
	if ev.PublishedAt != "" {
		publishedAt = ev.PublishedAt
	}

	start := time.Now()
	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO raw_events (device_id, published_at, generation_id, serial_no, raw_data, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		ev.DeviceID, publishedAt, nullInt64(ev.GenerationID), nullInt64(ev.SerialNo), ev.RawData, ev.ReceivedAt.UTC())
	metrics.RecordDBQuery("insert_raw_event", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to insert raw event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// ContainsEvent reports whether the dedup key is already stored.
func (db *DB) ContainsEvent(ctx context.Context, deviceID string, generationID, serialNo int64) (bool, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var exists bool
	err := db.conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM raw_events
			WHERE device_id = ? AND generation_id = ? AND serial_no = ?
		)`, deviceID, generationID, serialNo).Scan(&exists)
	metrics.RecordDBQuery("contains_event", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to check event existence: %w", err)
	}
	return exists, nil
}

// LatestPosition returns the highest (generation, serial) stored for a
// device, or nil when the device has no parseable rows.
func (db *DB) LatestPosition(ctx context.Context, deviceID string) (*models.Position, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var (
		gen, serial int64
		writtenAt   time.Time
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT generation_id, serial_no, received_at
		FROM raw_events
		WHERE device_id = ? AND generation_id IS NOT NULL AND serial_no IS NOT NULL
		ORDER BY generation_id DESC, serial_no DESC
		LIMIT 1`, deviceID).Scan(&gen, &serial, &writtenAt)
	metrics.RecordDBQuery("latest_position", time.Since(start), ignoreNoRows(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest position for %s: %w", deviceID, err)
	}

	return &models.Position{
		DeviceID:     deviceID,
		GenerationID: gen,
		SerialNo:     &serial,
		WrittenAt:    writtenAt,
	}, nil
}

// DeviceHeads returns, for every device with a parseable row, its highest
// generation and the highest serial within that generation.
func (db *DB) DeviceHeads(ctx context.Context) ([]models.Position, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		WITH heads AS (
			SELECT device_id, max(generation_id) AS generation_id
			FROM raw_events
			WHERE generation_id IS NOT NULL
			GROUP BY device_id
		)
		SELECT h.device_id, h.generation_id, max(r.serial_no), max(r.received_at)
		FROM heads h
		JOIN raw_events r ON r.device_id = h.device_id AND r.generation_id = h.generation_id
		GROUP BY h.device_id, h.generation_id
		ORDER BY h.device_id`)
	metrics.RecordDBQuery("device_heads", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query device heads: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var heads []models.Position
	for rows.Next() {
		var (
			pos    models.Position
			serial sql.NullInt64
		)
		if err := rows.Scan(&pos.DeviceID, &pos.GenerationID, &serial, &pos.WrittenAt); err != nil {
			return nil, fmt.Errorf("failed to scan device head: %w", err)
		}
		if serial.Valid {
			s := serial.Int64
			pos.SerialNo = &s
		}
		heads = append(heads, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device heads: %w", err)
	}
	return heads, nil
}

// CountEvents returns the number of stored rows for a device, or for all
// devices when deviceID is empty.
func (db *DB) CountEvents(ctx context.Context, deviceID string) (int64, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	query := "SELECT count(*) FROM raw_events"
	var args []interface{}
	if deviceID != "" {
		query += " WHERE device_id = ?"
		args = append(args, deviceID)
	}

	var n int64
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// nullInt64 maps a nil pointer to SQL NULL.
func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func ignoreNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
