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

package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/tsbundle/cache"
	"bennypowers.dev/tsbundle/internal/platform"
)

func waitForQueueDrain() { time.Sleep(20 * time.Millisecond) }

// TestCache_RoundTrip verifies that after Store(refined) followed by
// GetRefined with identical mtimes, the returned module is equivalent to
// the original.
func TestCache_RoundTrip(t *testing.T) {
	fsys := platform.NewMapFS(nil)
	c := cache.New(fsys, "/cache", 1<<20)

	srcMtime := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	configMtime := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	refined := &cache.RefinedModule{
		Id: 7,
		FirstLineComment: "//./a.ts\n",
		SourceMapOutputLineOffset: 2,
		OutputLineCount: 3,
		Imports: []cache.ImportInfo{{Target: "/src/b.ts", ModuleSpecifier: "./b"}},
		Content: []byte("__tsb.a(){ return {}; }\n"),
		SourceMtime: srcMtime,
		ConfigMtime: configMtime,
		Size: 32,
	}

	var lock sync.Mutex
	c.Store(refined, &lock)
	waitForQueueDrain()

	got := c.GetRefined(7, &lock, cache.SourceStats{SourceMtime: srcMtime}, configMtime)
	require.NotNil(t, got)
	if diff := cmp.Diff(refined, got, cmpopts.IgnoreFields(cache.RefinedModule{}, "Size")); diff != "" {
		t.Errorf("round-tripped module differs (-want +got):\n%s", diff)
	}
}

// TestCache_InvalidationOnMtimeChange verifies that bumping mtime(source)
// past the stored sourceMtime invalidates the entry.
func TestCache_InvalidationOnMtimeChange(t *testing.T) {
	fsys := platform.NewMapFS(nil)
	c := cache.New(fsys, "/cache", 1<<20)

	srcMtime := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	refined := &cache.RefinedModule{Id: 1, Content: []byte("x"), SourceMtime: srcMtime, Size: 1}

	var lock sync.Mutex
	c.Store(refined, &lock)
	waitForQueueDrain()

	newer := srcMtime.Add(time.Hour)
	got := c.GetRefined(1, &lock, cache.SourceStats{SourceMtime: newer}, time.Time{})
	assert.Nil(t, got)
}

func TestCache_ErroredModuleNotStored(t *testing.T) {
	fsys := platform.NewMapFS(nil)
	c := cache.New(fsys, "/cache", 1<<20)

	var lock sync.Mutex
	c.Store(&cache.RefinedModule{Id: 3, Errored: true}, &lock)
	waitForQueueDrain()

	got := c.GetRefined(3, &lock, cache.SourceStats{}, time.Time{})
	assert.Nil(t, got)
}
