// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

package deadletter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/collector/internal/config"
	"github.com/tomtom215/collector/internal/logging"
	"github.com/tomtom215/collector/internal/metrics"
	"github.com/tomtom215/collector/internal/models"
)

const keyPrefix = "dl:"

// ErrClosed is returned when the journal has already been closed.
var ErrClosed = errors.New("dead-letter journal is closed")

// Entry is one event that could not be stored.
type Entry struct {
	ID        string       `json:"id"`
	Event     models.Event `json:"event"`
	Cause     string       `json:"cause"`
	CreatedAt time.Time    `json:"created_at"`
}

// Journal keeps events whose storage write failed so an operator can
// inspect or re-inject them. Entries expire after the configured TTL.
type Journal struct {
	db  *badger.DB
	ttl time.Duration

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the journal at cfg.Path.
func Open(cfg config.DeadLetterConfig) (*Journal, error) {
	if cfg.Path == "" {
		return nil, errors.New("dead-letter path is required")
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Dur("ttl", cfg.TTL).Msg("Dead-letter journal opened")
	return &Journal{db: db, ttl: cfg.TTL}, nil
}

// Record appends ev with the error that prevented it from being stored.
// A nil journal is a no-op so callers can leave the feature disabled.
func (j *Journal) Record(ctx context.Context, ev models.Event, cause error) (string, error) {
	if j == nil {
		return "", nil
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	entry := Entry{
		ID:        uuid.New().String(),
		Event:     ev,
		CreatedAt: time.Now().UTC(),
	}
	if cause != nil {
		entry.Cause = cause.Error()
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}

	key := []byte(keyPrefix + entry.ID)
	err = j.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, data)
		if j.ttl > 0 {
			e = e.WithTTL(j.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return "", fmt.Errorf("write to BadgerDB: %w", err)
	}

	metrics.DeadLetterEntries.Inc()
	return entry.ID, nil
}

// List returns up to limit entries, newest first. A limit <= 0 returns all.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}

	var entries []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var entry Entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping unreadable dead-letter entry")
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate dead-letter entries: %w", err)
	}

	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].CreatedAt.After(entries[b].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Delete removes an entry, typically after it was re-injected.
func (j *Journal) Delete(id string) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + id))
	})
}

// Close flushes and closes the underlying store. Safe to call twice.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("Dead-letter journal closed")
	return nil
}
