// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

// Package lru provides a generic fixed-capacity least-recently-used cache
// with O(1) lookups, inserts and eviction.
//
// The recency order is kept in an arena of entry slots addressed by integer
// handles rather than pointer-linked nodes, so the structure carries no
// cyclic references. Freed slots are recycled through a free list, which
// keeps the arena at capacity+0 allocations once warm.
package lru

import (
	"errors"
	"sync"
)

// ErrInvalidCapacity is returned by New for capacities below 1.
var ErrInvalidCapacity = errors.New("lru: capacity must be at least 1")

// nilHandle marks the absence of a neighbour in the recency list.
const nilHandle = -1

// entry is one arena slot: a key/value pair plus its position in the
// doubly-linked recency order.
type entry[K comparable, V any] struct {
	key   K
	value V
	prev  int
	next  int
}

// Cache is a fixed-capacity LRU cache.
//
// The New function must be used to create a usable cache since the zero
// value of this struct is not valid.
//
// All methods are safe for concurrent access; each operation is a single
// critical section under the internal mutex.
type Cache[K comparable, V any] struct {
	mtx      sync.Mutex
	index    map[K]int // key -> arena handle
	arena    []entry[K, V]
	free     []int // recycled arena handles
	head     int   // most recently used
	tail     int   // least recently used
	capacity int
}

// New creates an LRU cache holding at most capacity entries.
func New[K comparable, V any](capacity int) (*Cache[K, V], error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Cache[K, V]{
		index:    make(map[K]int, capacity),
		arena:    make([]entry[K, V], 0, capacity),
		head:     nilHandle,
		tail:     nilHandle,
		capacity: capacity,
	}, nil
}

// Get returns the value stored under key and marks it most recently used.
// The second return value reports whether the key was present.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	h, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(h)
	return c.arena[h].value, true
}

// Put stores value under key, marking it most recently used. Updating an
// existing key promotes it in place. Inserting beyond capacity evicts the
// least-recently-used entry.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if h, ok := c.index[key]; ok {
		c.arena[h].value = value
		c.moveToFront(h)
		return
	}

	if len(c.index) >= c.capacity {
		// Evict the tail and reuse its slot for the new entry.
		h := c.tail
		c.unlink(h)
		delete(c.index, c.arena[h].key)
		c.arena[h] = entry[K, V]{key: key, value: value, prev: nilHandle, next: nilHandle}
		c.index[key] = h
		c.pushFront(h)
		return
	}

	h := c.alloc()
	c.arena[h] = entry[K, V]{key: key, value: value, prev: nilHandle, next: nilHandle}
	c.index[key] = h
	c.pushFront(h)
}

// Remove deletes key from the cache. Returns true if the key was present.
func (c *Cache[K, V]) Remove(key K) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	h, ok := c.index[key]
	if !ok {
		return false
	}
	c.unlink(h)
	delete(c.index, key)
	var zero entry[K, V]
	c.arena[h] = zero
	c.free = append(c.free, h)
	return true
}

// Len returns the number of entries currently cached.
func (c *Cache[K, V]) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.index)
}

// Purge removes every entry, retaining the allocated arena.
func (c *Cache[K, V]) Purge() {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	clear(c.index)
	c.arena = c.arena[:0]
	c.free = c.free[:0]
	c.head = nilHandle
	c.tail = nilHandle
}

// alloc returns a slot handle, recycling freed slots before growing the arena.
func (c *Cache[K, V]) alloc() int {
	if n := len(c.free); n > 0 {
		h := c.free[n-1]
		c.free = c.free[:n-1]
		return h
	}
	c.arena = append(c.arena, entry[K, V]{})
	return len(c.arena) - 1
}

// unlink detaches h from the recency list. Caller must hold the mutex.
func (c *Cache[K, V]) unlink(h int) {
	e := &c.arena[h]
	if e.prev != nilHandle {
		c.arena[e.prev].next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nilHandle {
		c.arena[e.next].prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nilHandle
	e.next = nilHandle
}

// pushFront makes h the most recently used entry. Caller must hold the mutex.
func (c *Cache[K, V]) pushFront(h int) {
	e := &c.arena[h]
	e.prev = nilHandle
	e.next = c.head
	if c.head != nilHandle {
		c.arena[c.head].prev = h
	}
	c.head = h
	if c.tail == nilHandle {
		c.tail = h
	}
}

// moveToFront promotes h to most recently used. Caller must hold the mutex.
func (c *Cache[K, V]) moveToFront(h int) {
	if c.head == h {
		return
	}
	c.unlink(h)
	c.pushFront(h)
}
