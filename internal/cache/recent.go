// Collector - Sensor Telemetry Event Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/collector

// Package cache holds the in-memory structures the ingestion path uses to
// avoid database round trips.
package cache

import (
	"sync"
	"time"
)

type node struct {
	key       string
	expiresAt time.Time
	prev      *node
	next      *node
}

// Recent is a thread-safe LRU set of keys with a TTL.
//
// It is exact: a key is reported as present only if it was added and has
// neither expired nor been evicted. A miss says nothing about the key.
type Recent struct {
	mu sync.Mutex

	capacity int
	ttl      time.Duration
	now      func() time.Time

	items map[string]*node

	// head.next is the most recently used entry, tail.prev the least.
	head *node
	tail *node

	hits   int64
	misses int64
}

// NewRecent returns a cache holding at most capacity keys for ttl each.
func NewRecent(capacity int, ttl time.Duration) *Recent {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c := &Recent{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*node, capacity),
		head:     &node{},
		tail:     &node{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Contains reports whether key is present, refreshing its recency.
func (c *Recent) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		c.misses++
		return false
	}
	if c.now().After(n.expiresAt) {
		c.unlink(n)
		c.misses++
		return false
	}
	c.unlinkList(n)
	c.pushFront(n)
	c.hits++
	return true
}

// Add records key, evicting the least recently used key when full.
func (c *Recent) Add(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if n, ok := c.items[key]; ok {
		n.expiresAt = expiresAt
		c.unlinkList(n)
		c.pushFront(n)
		return
	}

	n := &node{key: key, expiresAt: expiresAt}
	c.pushFront(n)
	c.items[key] = n
	for len(c.items) > c.capacity {
		c.unlink(c.tail.prev)
	}
}

// Len returns the number of keys held, expired ones included.
func (c *Recent) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns hit and miss counts since creation.
func (c *Recent) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// lock held for all helpers below

func (c *Recent) pushFront(n *node) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *Recent) unlinkList(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (c *Recent) unlink(n *node) {
	c.unlinkList(n)
	delete(c.items, n.key)
}
