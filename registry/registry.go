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

// Package registry implements the bundler's process-wide module-identifier
// allocator and persisted cache-map: integer id allocation
// with a free-list, per-output InnerMap access tracking, and a single
// coalesced async save guarded by a needs-resave flag.
package registry

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"

	"bennypowers.dev/tsbundle/internal/logging"
	"bennypowers.dev/tsbundle/internal/platform"
)

// ModuleIdEntry is the persisted {number, varName} pair for one source path
// inside one output's InnerMap.
type ModuleIdEntry struct {
	Number uint32
	VarName string
}

// InnerMap is AbsolutePath(source) → ModuleIdEntry for one output bundle,
// plus the cacheTo expiry sidecar.
type InnerMap struct {
	mu sync.Mutex
	entries map[string]ModuleIdEntry
	expiresAt time.Time
	accessed bool
}

func newInnerMap() *InnerMap {
	return &InnerMap{entries: make(map[string]ModuleIdEntry)}
}

// Get returns the entry for sourcePath, if any.
func (m *InnerMap) Get(sourcePath string) (ModuleIdEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sourcePath]
	return e, ok
}

// Set records the id/varName assigned to sourcePath.
func (m *InnerMap) Set(sourcePath string, entry ModuleIdEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sourcePath] = entry
}

// cacheExpiry is how long an output's InnerMap survives without being
// accessed in a process run.
const cacheExpiry = 24 * time.Hour

// Registry is the process-wide singleton described in
type Registry struct {
	mu sync.Mutex
	fs platform.FileSystem
	cacheDir string
	outputs map[string]*InnerMap
	freeList map[uint32]struct{}
	held map[uint32]struct{}
	lastCacheId uint32
	hasAny bool

	nameLocksMu sync.Mutex
	nameLocks map[uint32]*sync.Mutex

	saveMu sync.Mutex
	saving bool
	resaveNeeded bool
}

var (
	instanceOnce sync.Once
	instance *Registry
)

// GetInstance returns the process-wide Registry, loading the persisted cache
// map on first call (getInstance: "idempotent; awaits mkdir of
// the cache directory, reads the on-disk cache map, and validates the
// version string").
func GetInstance(fsys platform.FileSystem) *Registry {
	instanceOnce.Do(func() {
		instance = newRegistry(fsys, defaultCacheDir())
		instance.load()
	})
	return instance
}

// defaultCacheDir roots the cache under the XDG cache home, in this
// bundler's own cache namespace.
func defaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, "tsbundle")
}

func newRegistry(fsys platform.FileSystem, cacheDir string) *Registry {
	return &Registry{
		fs: fsys,
		cacheDir: cacheDir,
		outputs: make(map[string]*InnerMap),
		freeList: make(map[uint32]struct{}),
		held: make(map[uint32]struct{}),
		nameLocks: make(map[uint32]*sync.Mutex),
	}
}

func (r *Registry) cacheMapPath() string {
	return filepath.Join(r.cacheDir, "cache-map.json")
}

func (r *Registry) cacheFilePath(id uint32) string {
	return filepath.Join(r.cacheDir, fmt.Sprintf("%d", id))
}

func (r *Registry) load() {
	if err := r.fs.MkdirAll(r.cacheDir, 0o755); err != nil {
		logging.Warning("registry: mkdir cache dir %q: %v", r.cacheDir, err)
		return
	}
	data, err := r.fs.ReadFile(r.cacheMapPath())
	if err != nil {
		return // no cache map yet: start empty, no failure surfaced.
	}
	outputs, ok := decodeCacheMap(data)
	if !ok {
		logging.Debug("registry: cache map version mismatch or parse error, starting empty")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = outputs
	var maxId uint32
	seen := make(map[uint32]struct{})
	for _, inner := range outputs {
		for _, entry := range inner.entries {
			seen[entry.Number] = struct{}{}
			if entry.Number > maxId || !r.hasAny {
				maxId = entry.Number
				r.hasAny = true
			}
		}
	}
	r.lastCacheId = maxId
	r.held = seen
	for id := uint32(0); id < r.lastCacheId; id++ {
		if _, ok := seen[id]; !ok {
			r.freeList[id] = struct{}{}
		}
	}
}

// GetCacheMap returns the InnerMap for outputPath, creating it lazily and
// marking it accessed.
func (r *Registry) GetCacheMap(outputPath string) *InnerMap {
	r.mu.Lock()
	defer r.mu.Unlock()
	inner, ok := r.outputs[outputPath]
	if !ok {
		inner = newInnerMap()
		r.outputs[outputPath] = inner
	}
	inner.mu.Lock()
	inner.accessed = true
	inner.expiresAt = time.Now().Add(cacheExpiry)
	inner.mu.Unlock()
	return inner
}

// AllocateCacheId returns a free id, first from the free-list (any element,
// insertion order is irrelevant), else by incrementing lastCacheId. A
// freshly incremented id best-effort deletes any stale cache file that may
// be left over at that number.
func (r *Registry) AllocateCacheId() uint32 {
	r.mu.Lock()
	for id := range r.freeList {
		delete(r.freeList, id)
		r.held[id] = struct{}{}
		r.mu.Unlock()
		return id
	}
	if r.hasAny {
		r.lastCacheId++
	}
	r.hasAny = true
	id := r.lastCacheId
	r.held[id] = struct{}{}
	r.mu.Unlock()

	if err := r.fs.Remove(r.cacheFilePath(id)); err != nil {
		logging.Debug("registry: stale cache file cleanup for id %d: %v", id, err)
	}
	return id
}

// FreeCacheId releases id back to the registry.
// If id == lastCacheId it shrinks the counter and absorbs any contiguous
// free tail; otherwise it is inserted into the free-list. The backing cache
// file is deleted under the id's name-lock. A second free of an id not
// currently held is a detected, non-fatal double-free.
func (r *Registry) FreeCacheId(id uint32) {
	r.mu.Lock()
	if _, ok := r.held[id]; !ok {
		r.mu.Unlock()
		logging.Warning("registry: double free of cache id %d", id)
		return
	}
	delete(r.held, id)

	if id == r.lastCacheId {
		if r.lastCacheId == 0 {
			r.hasAny = false
		} else {
			r.lastCacheId--
		}
		for {
			if _, free := r.freeList[r.lastCacheId]; free && r.lastCacheId > 0 {
				delete(r.freeList, r.lastCacheId)
				r.lastCacheId--
				continue
			}
			break
		}
	} else {
		r.freeList[id] = struct{}{}
	}
	r.mu.Unlock()

	lock := r.nameLock(id)
	lock.Lock()
	defer lock.Unlock()
	if err := r.fs.Remove(r.cacheFilePath(id)); err != nil {
		logging.Debug("registry: removing cache file for freed id %d: %v", id, err)
	}
}

// nameLock returns the per-id mutex serializing access to a cache file
//, creating it lazily.
func (r *Registry) nameLock(id uint32) *sync.Mutex {
	r.nameLocksMu.Lock()
	defer r.nameLocksMu.Unlock()
	lock, ok := r.nameLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.nameLocks[id] = lock
	}
	return lock
}

// NameLock exposes the per-id lock so the Refinement Cache's disk tier can
// serialize reads/writes of one cache file.
func (r *Registry) NameLock(id uint32) *sync.Mutex { return r.nameLock(id) }

// CacheDir returns the on-disk directory backing this registry's cache
// files, for the Refinement Cache's disk tier to share.
func (r *Registry) CacheDir() string { return r.cacheDir }

// FileSystem returns the filesystem this registry was constructed with.
func (r *Registry) FileSystem() platform.FileSystem { return r.fs }

func logDuplicateCacheId(number uint32, firstPath, secondPath string) {
	logging.Warning("registry: cache id %d assigned to both %q and %q; dropping second", number, firstPath, secondPath)
}

// SaveCacheJson schedules a coalesced async save: at most one writer is
// active at a time; a save requested while one is in flight sets the
// needs-resave flag and the in-flight writer loops once more before
// finishing.
func (r *Registry) SaveCacheJson() {
	r.saveMu.Lock()
	if r.saving {
		r.resaveNeeded = true
		r.saveMu.Unlock()
		return
	}
	r.saving = true
	r.saveMu.Unlock()

	go r.saveLoop()
}

func (r *Registry) saveLoop() {
	for {
		r.writeCacheMapOnce()

		r.saveMu.Lock()
		if r.resaveNeeded {
			r.resaveNeeded = false
			r.saveMu.Unlock()
			continue
		}
		r.saving = false
		r.saveMu.Unlock()
		return
	}
}

// SaveCacheJsonSync is the termination-time equivalent of SaveCacheJson: it
// writes synchronously regardless of any in-flight async save.
func (r *Registry) SaveCacheJsonSync() {
	r.writeCacheMapOnce()
}

// writeCacheMapOnce prunes expired, unaccessed InnerMaps and persists the
// result atomically.
func (r *Registry) writeCacheMapOnce() {
	r.mu.Lock()
	now := time.Now()
	for outputPath, inner := range r.outputs {
		inner.mu.Lock()
		expired := inner.expiresAt.Before(now) && !inner.accessed
		inner.accessed = false
		inner.mu.Unlock()
		if expired {
			delete(r.outputs, outputPath)
		}
	}
	snapshot := make(map[string]*InnerMap, len(r.outputs))
	for k, v := range r.outputs {
		snapshot[k] = v
	}
	r.mu.Unlock()

	data, err := encodeCacheMap(snapshot)
	if err != nil {
		logging.Error("registry: encoding cache map: %v", err)
		return
	}
	if err := platform.WriteFileAtomic(r.fs, r.cacheMapPath(), data, 0o644); err != nil {
		logging.Error("registry: writing cache map: %v", err)
	}
}
