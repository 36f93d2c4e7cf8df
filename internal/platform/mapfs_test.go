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

package platform_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"bennypowers.dev/tsbundle/internal/platform"
)

func TestMapFS_BasicOperations(t *testing.T) {
	mfs := platform.NewMapFS(nil)

	content := []byte("hello refinement cache")
	if err := mfs.WriteFile("/src/a.ts", content, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	read, err := mfs.ReadFile("/src/a.ts")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(read) != string(content) {
		t.Errorf("content mismatch: got %q want %q", read, content)
	}

	if !mfs.Exists("/src/a.ts") {
		t.Error("file should exist")
	}

	info, err := mfs.Stat("/src/a.ts")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != int64(len(content)) {
		t.Errorf("size mismatch: got %d want %d", info.Size(), len(content))
	}
}

func TestMapFS_SetModTime(t *testing.T) {
	mfs := platform.NewMapFS(map[string]string{"/src/a.ts": "x"})

	stamp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	mfs.SetModTime("/src/a.ts", stamp)

	info, err := mfs.Stat("/src/a.ts")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !info.ModTime().Equal(stamp) {
		t.Errorf("mtime mismatch: got %v want %v", info.ModTime(), stamp)
	}
}

func TestMapFS_WriteBumpsModTimeMonotonically(t *testing.T) {
	mfs := platform.NewMapFS(nil)

	stamp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	mfs.SetModTime("/a.ts", stamp)
	if err := mfs.WriteFile("/a.ts", []byte("1"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	info, err := mfs.Stat("/a.ts")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !info.ModTime().After(stamp) {
		t.Errorf("expected mtime to advance past %v, got %v", stamp, info.ModTime())
	}
}

func TestMapFS_Remove(t *testing.T) {
	mfs := platform.NewMapFS(map[string]string{"/a.ts": "x"})

	if err := mfs.Remove("/a.ts"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if mfs.Exists("/a.ts") {
		t.Error("file should not exist after removal")
	}
}

func TestMapFS_ReadDirSorted(t *testing.T) {
	mfs := platform.NewMapFS(map[string]string{
		"/src/c.ts": "c",
		"/src/a.ts": "a",
		"/src/b.ts": "b",
	})

	entries, err := mfs.ReadDir("/src")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	want := []string{"a.ts", "b.ts", "c.ts"}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("entries[%d] = %q, want %q", i, names[i], n)
		}
	}
}

func TestMapFS_ErrorHandling(t *testing.T) {
	mfs := platform.NewMapFS(nil)

	if _, err := mfs.ReadFile("/missing.ts"); err == nil {
		t.Error("ReadFile should fail for a missing file")
	}
	if _, err := mfs.Stat("/missing.ts"); err == nil {
		t.Error("Stat should fail for a missing file")
	}
}

func TestMapFS_InterfaceCompliance(t *testing.T) {
	var fsys platform.FileSystem = platform.NewMapFS(nil)

	if err := fsys.WriteFile("/interface.ts", []byte("ok"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !fsys.Exists("/interface.ts") {
		t.Error("file should exist")
	}
	if err := fsys.Rmdir("/interface.ts"); err != nil {
		t.Fatalf("Rmdir failed: %v", err)
	}
	if fsys.Exists("/interface.ts") {
		t.Error("file should not exist after Rmdir")
	}
}

func TestMapFS_ConcurrentOperations(t *testing.T) {
	mfs := platform.NewMapFS(nil)

	const numGoroutines = 10
	const numFiles = 20

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numFiles; j++ {
				name := fmt.Sprintf("/concurrent/file_%d_%d.ts", id, j)
				content := fmt.Sprintf("goroutine %d file %d", id, j)
				if err := mfs.WriteFile(name, []byte(content), 0o644); err != nil {
					t.Errorf("WriteFile failed: %v", err)
					return
				}
				read, err := mfs.ReadFile(name)
				if err != nil {
					t.Errorf("ReadFile failed: %v", err)
					return
				}
				if string(read) != content {
					t.Errorf("content mismatch for %s", name)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
