// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

/*
Package eventstore is the ingestion core of the collector.

Every producer (live stream, pollers, upstream relay) hands events to
Store.HandleEvent. The store decodes the payload once, deduplicates on the
(device, generation, serial) key and appends the row to raw_events. Rows that
were actually written are announced to listeners registered with OnEvent, in
insertion order.

Deduplication rests on the table's unique constraint: the insert uses
ON CONFLICT DO NOTHING and a zero row count is the duplicate branch. All
inserts additionally go through one writer mutex so that listener
notifications follow insertion order. Queries never take the mutex.

Events with an unusable payload are stored with NULL generation and serial.
They never conflict, so they are never deduplicated and never match a
generation filter.

A write that fails is logged, recorded in the dead-letter journal and
returned to the caller as ErrStorageWrite. It is not retried.
*/
package eventstore
