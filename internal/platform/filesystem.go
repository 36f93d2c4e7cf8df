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

// Package platform abstracts the filesystem and file-watching primitives
// the bundler's external collaborators provide: stat, readFile,
// writeFile, mkdir -p, unlink, readdir, rmdir. Everything in registry,
// cache, and bundle is written against the FileSystem interface so tests run
// against an in-memory filesystem instead of touching disk.
package platform

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileSystem is the filesystem contract every on-disk component depends on.
type FileSystem interface {
	WriteFile(name string, data []byte, perm fs.FileMode) error
	ReadFile(name string) ([]byte, error)
	Remove(name string) error
	MkdirAll(path string, perm fs.FileMode) error
	ReadDir(name string) ([]fs.DirEntry, error)
	Rmdir(name string) error
	TempDir() string
	Stat(name string) (fs.FileInfo, error)
	Exists(path string) bool

	// Open provides fs.FS compatibility so callers can use fs.WalkDir.
	Open(name string) (fs.File, error)
}

// OSFileSystem implements FileSystem using the standard os package. This is
// the production implementation.
type OSFileSystem struct{}

// NewOSFileSystem returns the production filesystem.
func NewOSFileSystem() *OSFileSystem { return &OSFileSystem{} }

func (OSFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (OSFileSystem) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (OSFileSystem) Remove(name string) error {
	err := os.Remove(name)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (OSFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }

func (OSFileSystem) Rmdir(name string) error {
	err := os.Remove(name)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (OSFileSystem) TempDir() string { return os.TempDir() }

func (OSFileSystem) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFileSystem) Open(name string) (fs.File, error) { return os.Open(name) }

// Rename implements the optional renamer used by WriteFileAtomic.
func (OSFileSystem) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

// WriteFileAtomic writes data to a uuid-suffixed temp file in the same
// directory as name, then renames it over name. This guarantees a reader
// never observes a partially written cache file or cache map: rename is
// atomic for same-filesystem destinations on every platform Go targets.
func WriteFileAtomic(fsys FileSystem, name string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(name)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+filepath.Base(name)+"."+uuid.NewString()+".tmp")
	if err := fsys.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if renamer, ok := fsys.(interface {
		Rename(oldpath, newpath string) error
	}); ok {
		if err := renamer.Rename(tmp, name); err != nil {
			_ = fsys.Remove(tmp)
			return err
		}
		return nil
	}
	if err := fsys.WriteFile(name, data, perm); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return fsys.Remove(tmp)
}
