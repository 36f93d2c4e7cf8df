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

package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/tsbundle/internal/platform"
)

func newTestRegistry() *Registry {
	fsys := platform.NewMapFS(nil)
	return newRegistry(fsys, "/cache")
}

// TestAllocateCacheId_Uniqueness verifies that no two live entries share
// the same number, and that freed ids become allocatable again.
func TestAllocateCacheId_Uniqueness(t *testing.T) {
	r := newTestRegistry()

	a := r.AllocateCacheId()
	b := r.AllocateCacheId()
	c := r.AllocateCacheId()
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
	assert.NotEqual(t, a, c)

	r.FreeCacheId(b)
	reused := r.AllocateCacheId()
	assert.Equal(t, b, reused, "freed id should become allocatable again")
}

func TestFreeCacheId_AbsorbsContiguousTail(t *testing.T) {
	r := newTestRegistry()

	_ = r.AllocateCacheId() // 0
	_ = r.AllocateCacheId() // 1
	id2 := r.AllocateCacheId() // 2

	r.FreeCacheId(id2)
	require.Equal(t, uint32(1), r.lastCacheId)

	// Freeing id 1 (now the new top) should shrink lastCacheId again.
	r.FreeCacheId(1)
	assert.Equal(t, uint32(0), r.lastCacheId)
}

func TestFreeCacheId_DoubleFreeIsNonFatal(t *testing.T) {
	r := newTestRegistry()
	id := r.AllocateCacheId()
	r.FreeCacheId(id)
	// Should log a warning, not panic.
	r.FreeCacheId(id)
}

func TestGetCacheMap_MarksAccessed(t *testing.T) {
	r := newTestRegistry()
	inner := r.GetCacheMap("/out/bundle.js")
	assert.True(t, inner.accessed, "GetCacheMap should mark the map accessed")
	inner.Set("/src/a.ts", ModuleIdEntry{Number: 1, VarName: "a"})

	entry, ok := inner.Get("/src/a.ts")
	require.True(t, ok)
	assert.Equal(t, uint32(1), entry.Number)
	assert.Equal(t, "a", entry.VarName)
}

func TestSaveCacheJsonSync_RoundTrip(t *testing.T) {
	r := newTestRegistry()
	inner := r.GetCacheMap("/out/bundle.js")
	inner.Set("/src/a.ts", ModuleIdEntry{Number: 1, VarName: "a"})
	r.SaveCacheJsonSync()

	r2 := newRegistry(r.fs, "/cache")
	r2.load()

	inner2, ok := r2.outputs["/out/bundle.js"]
	require.True(t, ok)
	entry, ok := inner2.Get("/src/a.ts")
	require.True(t, ok)
	assert.Equal(t, uint32(1), entry.Number)
}

func TestLoad_VersionMismatchYieldsEmptyMap(t *testing.T) {
	fsys := platform.NewMapFS(map[string]string{
		"/cache/cache-map.json": `{"version":"stale","/out":{"$cacheTo":0}}`,
	})
	r := newRegistry(fsys, "/cache")
	r.load()
	assert.Empty(t, r.outputs)
}

func TestPeekVersion(t *testing.T) {
	v, ok := peekVersion([]byte(`{"version":"` + CacheMapVersion + `"}`))
	require.True(t, ok)
	assert.Equal(t, CacheMapVersion, v)
}

func TestCacheExpiryIsAppliedPerOutput(t *testing.T) {
	r := newTestRegistry()
	inner := r.GetCacheMap("/out/bundle.js")
	assert.WithinDuration(t, time.Now().Add(cacheExpiry), inner.expiresAt, time.Second)
}
