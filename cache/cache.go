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
	"sync"
	"time"

	"bennypowers.dev/tsbundle/internal/logging"
	"bennypowers.dev/tsbundle/internal/platform"
)

// SourceStats is the source and declaration-sidecar mtime pair gathered for
// one module before a cache lookup; the config mtime that completes the
// triple is passed to GetRefined separately.
type SourceStats struct {
	SourceMtime time.Time
	DeclarationMtime time.Time
}

// Cache is the two-tier refinement cache: memory-first,
// falling back to disk, with a per-module skipable save queue.
type Cache struct {
	memory *Memory
	disk *Disk

	mu sync.Mutex
	queues map[uint32]*skipableQueue

	erroredMu sync.Mutex
	errored bool
}

// New returns a Cache with the given in-memory byte budget backed by a
// disk tier rooted at dir.
func New(fsys platform.FileSystem, dir string, maxMemoryBytes int64) *Cache {
	return &Cache{
		memory: NewMemory(maxMemoryBytes),
		disk: NewDisk(fsys, dir),
		queues: make(map[uint32]*skipableQueue),
	}
}

// StatSource gathers the source and optional declaration-sidecar mtimes in
// parallel.
func StatSource(fsys platform.FileSystem, sourcePath, declPath string) SourceStats {
	var stats SourceStats
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if info, err := fsys.Stat(sourcePath); err == nil {
			stats.SourceMtime = info.ModTime()
		}
	}()
	go func() {
		defer wg.Done()
		if declPath == "" {
			return
		}
		if info, err := fsys.Stat(declPath); err == nil {
			stats.DeclarationMtime = info.ModTime()
		}
	}()
	wg.Wait()
	return stats
}

// GetRefined implements getRefined: memory hit if all three
// mtimes match; otherwise the disk tier is consulted under the module's
// name-lock; otherwise nil, signalling the caller to reproduce the
// refinement.
func (c *Cache) GetRefined(id uint32, nameLock sync.Locker, stats SourceStats, configMtime time.Time) *RefinedModule {
	if refined, ok := c.memory.Get(id); ok {
		if refined.mtimesMatch(stats.SourceMtime, stats.DeclarationMtime, configMtime) {
			return refined
		}
		c.memory.Release(id)
		c.memory.Invalidate(id)
	}

	nameLock.Lock()
	refined, ok := c.disk.Read(id, stats.SourceMtime, stats.DeclarationMtime, configMtime)
	nameLock.Unlock()
	if !ok {
		return nil
	}
	c.memory.Put(id, refined)
	return refined
}

// Release returns a module previously handed out by GetRefined (or
// freshly Put by the caller after a refinement) to the evictable pool.
func (c *Cache) Release(id uint32) { c.memory.Release(id) }

// Store inserts a freshly produced refinement into the memory tier and
// schedules its disk write via the module's skipable queue.
func (c *Cache) Store(refined *RefinedModule, nameLock sync.Locker) {
	if refined.Errored {
		// Errored modules are not cacheable.
		return
	}
	c.memory.Put(refined.Id, refined)
	c.queueFor(refined.Id).Submit(refined, func(r *RefinedModule) error {
		nameLock.Lock()
		defer nameLock.Unlock()
		return c.disk.Write(r)
	}, func(err error) {
		c.markErrored()
		logging.Warning("cache: writing module %d to disk: %v", refined.Id, err)
	})
}

// Invalidate drops a module from the memory tier and deletes its disk file.
func (c *Cache) Invalidate(id uint32, nameLock sync.Locker) {
	c.memory.Invalidate(id)
	nameLock.Lock()
	defer nameLock.Unlock()
	_ = c.disk.Remove(id)
}

// Stats returns the memory tier's hit/miss/eviction counters.
func (c *Cache) Stats() MemoryStats { return c.memory.Stats() }

// Errored reports whether any disk write failed since this Cache was
// created, which marks the run as errored.
func (c *Cache) Errored() bool {
	c.erroredMu.Lock()
	defer c.erroredMu.Unlock()
	return c.errored
}

func (c *Cache) markErrored() {
	c.erroredMu.Lock()
	c.errored = true
	c.erroredMu.Unlock()
}

func (c *Cache) queueFor(id uint32) *skipableQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[id]
	if !ok {
		q = &skipableQueue{}
		c.queues[id] = q
	}
	return q
}
