// Riskgate - Fraud and Intrusion Risk Analysis
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/riskgate

// Package cache provides bounded in-memory data structures used by the
// analysis pipeline: an LRU cache with TTL for computed pattern sets
// and sliding-window counters for velocity tracking.
package cache

import (
	"sync"
	"time"
)

// lruEntry is a node in the LRU cache's doubly-linked list.
type lruEntry struct {
	key       string
	value     interface{}
	prev      *lruEntry
	next      *lruEntry
	expiresAt time.Time
}

// LRUCache is a thread-safe least-recently-used cache with TTL.
// Get, Add, Remove and eviction are all O(1). Expiration is lazy:
// an expired entry is dropped on the next access or during
// CleanupExpired.
type LRUCache struct {
	mu sync.RWMutex

	capacity int
	ttl      time.Duration

	// items maps keys to list nodes for O(1) lookup
	items map[string]*lruEntry

	// head.next is the most recently used, tail.prev the least
	head *lruEntry
	tail *lruEntry

	hits   int64
	misses int64
}

// NewLRUCache creates an LRU cache with the given capacity and TTL.
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c := &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*lruEntry, capacity),
		head:     &lruEntry{},
		tail:     &lruEntry{},
	}

	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Get retrieves an entry. Found entries move to the front.
func (c *LRUCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[key]; exists {
		if time.Now().After(entry.expiresAt) {
			c.removeEntry(entry)
			c.misses++
			return nil, false
		}

		c.moveToFront(entry)
		c.hits++
		return entry.value, true
	}

	c.misses++
	return nil, false
}

// Contains checks for a live entry without touching access order.
func (c *LRUCache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if entry, exists := c.items[key]; exists {
		return !time.Now().After(entry.expiresAt)
	}
	return false
}

// Add inserts or updates an entry, evicting the least recently used
// entry when at capacity.
func (c *LRUCache) Add(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)

	if entry, exists := c.items[key]; exists {
		entry.value = value
		entry.expiresAt = expiresAt
		c.moveToFront(entry)
		return
	}

	entry := &lruEntry{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	}

	c.addToFront(entry)
	c.items[key] = entry

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Remove deletes an entry, reporting whether it existed.
func (c *LRUCache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[key]; exists {
		c.removeEntry(entry)
		return true
	}
	return false
}

// Len returns the current number of entries.
func (c *LRUCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all entries.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*lruEntry, c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
}

// CleanupExpired removes all expired entries, returning how many.
func (c *LRUCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	// Walk from tail (oldest) to head (newest)
	for entry := c.tail.prev; entry != c.head; {
		prev := entry.prev
		if now.After(entry.expiresAt) {
			c.removeEntry(entry)
			removed++
		}
		entry = prev
	}

	return removed
}

// Stats returns hit/miss counts and current size.
func (c *LRUCache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.items)
}

// Internal methods (must be called with lock held)

func (c *LRUCache) addToFront(entry *lruEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *LRUCache) moveToFront(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev

	c.addToFront(entry)
}

func (c *LRUCache) removeEntry(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev

	delete(c.items, entry.key)
}

func (c *LRUCache) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.removeEntry(oldest)
}
