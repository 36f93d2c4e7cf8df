/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package cache

import (
	"container/list"
	"sync"
)

// memoryEntry is one LRU node.
type memoryEntry struct {
	id uint32
	refined *RefinedModule
	lruElem *list.Element
	inUse int // pin count; >0 prevents eviction
}

// MemoryStats holds hit/miss/eviction counters surfaced through the
// logger at Debug level after each bundle.
type MemoryStats struct {
	Hits uint64
	Misses uint64
	Evictions uint64
	CurBytes int64
	MaxBytes int64
}

// Memory is the in-memory tier of the refinement cache: a byte-budgeted LRU
// keyed by module number.
type Memory struct {
	mu sync.Mutex
	entries map[uint32]*memoryEntry
	lru *list.List
	maxBytes int64
	curBytes int64
	hits uint64
	misses uint64
	evicts uint64
}

// NewMemory returns an empty in-memory tier bounded by maxBytes.
func NewMemory(maxBytes int64) *Memory {
	return &Memory{
		entries: make(map[uint32]*memoryEntry),
		lru: list.New(),
		maxBytes: maxBytes,
	}
}

// Get returns the cached module for id, if present, and pins it against
// eviction until Release(id) is called: each lookup marks the entry as in
// use, preventing eviction while held.
func (m *Memory) Get(id uint32) (*RefinedModule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		m.misses++
		return nil, false
	}
	m.hits++
	e.inUse++
	m.lru.MoveToFront(e.lruElem)
	return e.refined, true
}

// Release returns a previously Get'd entry to the evictable pool.
func (m *Memory) Release(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return
	}
	if e.inUse > 0 {
		e.inUse--
	}
}

// Put inserts or replaces the cached module for id, evicting
// least-recently-used unpinned entries until the new total fits the budget.
func (m *Memory) Put(id uint32, refined *RefinedModule) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[id]; ok {
		m.curBytes -= existing.refined.Size
		m.lru.Remove(existing.lruElem)
		delete(m.entries, id)
	}

	e := &memoryEntry{id: id, refined: refined}
	e.lruElem = m.lru.PushFront(e)
	m.entries[id] = e
	m.curBytes += refined.Size

	m.evictIfNeeded()
}

// evictIfNeeded drops least-recently-used, unpinned entries until curBytes
// fits maxBytes or no more evictable entries remain.
func (m *Memory) evictIfNeeded() {
	if m.maxBytes <= 0 {
		return
	}
	elem := m.lru.Back()
	for m.curBytes > m.maxBytes && elem != nil {
		prev := elem.Prev()
		e := elem.Value.(*memoryEntry)
		if e.inUse > 0 {
			elem = prev
			continue
		}
		m.lru.Remove(elem)
		delete(m.entries, e.id)
		m.curBytes -= e.refined.Size
		m.evicts++
		elem = prev
	}
}

// Invalidate drops id from the memory tier unconditionally (used by
// Cache.GetRefined when a stored entry's mtimes no longer match).
func (m *Memory) Invalidate(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return
	}
	m.lru.Remove(e.lruElem)
	delete(m.entries, id)
	m.curBytes -= e.refined.Size
}

// Stats returns a snapshot of hit/miss/eviction counters.
func (m *Memory) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MemoryStats{
		Hits: m.hits,
		Misses: m.misses,
		Evictions: m.evicts,
		CurBytes: m.curBytes,
		MaxBytes: m.maxBytes,
	}
}
