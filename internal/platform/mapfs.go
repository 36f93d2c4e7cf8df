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
package platform

import (
	"io/fs"
	"sort"
	"strings"
	"sync"
	"testing/fstest"
	"time"
)

// MapFS is an in-memory FileSystem backed by testing/fstest.MapFS, extended
// with explicit per-file ModTime control: the refinement cache's validity
// checks are driven entirely by mtime comparisons, so tests
// need to bump a file's mtime without touching its content.
type MapFS struct {
	mu sync.Mutex
	fs fstest.MapFS
	dir string
}

// NewMapFS creates an in-memory filesystem from a map of file contents.
func NewMapFS(files map[string]string) *MapFS {
	m := fstest.MapFS{}
	now := time.Now()
	for path, content := range files {
		m[trimLeadingSlash(path)] = &fstest.MapFile{
			Data: []byte(content),
			Mode: 0o644,
			ModTime: now,
		}
	}
	return &MapFS{fs: m, dir: "/tmp"}
}

func trimLeadingSlash(p string) string {
	return strings.TrimPrefix(p, "/")
}

// SetModTime overwrites the stored mtime for an existing (or new) entry
// without changing its content, simulating a touch(1) after a cache write.
func (m *MapFS) SetModTime(name string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = trimLeadingSlash(name)
	if f, ok := m.fs[name]; ok {
		f.ModTime = t
		return
	}
	m.fs[name] = &fstest.MapFile{ModTime: t, Mode: 0o644}
}

func (m *MapFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = trimLeadingSlash(name)
	prev, existed := m.fs[name]
	mt := time.Now()
	if existed && !mt.After(prev.ModTime) {
		// Guarantee a strictly later mtime even under fast successive
		// writes in tests, or after SetModTime moved the file's mtime past
		// the clock, since freshness checks use strict equality.
		mt = prev.ModTime.Add(time.Nanosecond)
	}
	m.fs[name] = &fstest.MapFile{Data: data, Mode: perm, ModTime: mt}
	return nil
}

func (m *MapFS) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fs.ReadFile(m.fs, trimLeadingSlash(name))
}

func (m *MapFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fs, trimLeadingSlash(name))
	return nil
}

func (m *MapFS) Rmdir(name string) error { return m.Remove(name) }

func (m *MapFS) MkdirAll(path string, perm fs.FileMode) error {
	// fstest.MapFS has no explicit directory entries.
	return nil
}

func (m *MapFS) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, err := fs.ReadDir(m.fs, trimLeadingSlash(name))
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func (m *MapFS) TempDir() string { return m.dir }

func (m *MapFS) Stat(name string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fs.Stat(m.fs, trimLeadingSlash(name))
}

func (m *MapFS) Exists(path string) bool {
	_, err := m.Stat(path)
	return err == nil
}

func (m *MapFS) Open(name string) (fs.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fs.Open(trimLeadingSlash(name))
}
