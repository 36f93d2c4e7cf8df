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
	"testing"

	"github.com/stretchr/testify/assert"

	"bennypowers.dev/tsbundle/cache"
)

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	m := cache.NewMemory(30)

	m.Put(1, &cache.RefinedModule{Id: 1, Size: 10})
	m.Put(2, &cache.RefinedModule{Id: 2, Size: 10})
	m.Put(3, &cache.RefinedModule{Id: 3, Size: 10})

	// Touch 1 so it is no longer the least-recently-used.
	if _, ok := m.Get(1); ok {
		m.Release(1)
	}

	m.Put(4, &cache.RefinedModule{Id: 4, Size: 10})

	_, ok2 := m.Get(2)
	assert.False(t, ok2, "module 2 should have been evicted")
	_, ok1 := m.Get(1)
	assert.True(t, ok1, "module 1 was recently touched and should survive")
	m.Release(1)
}

func TestMemory_PinnedEntryNotEvicted(t *testing.T) {
	m := cache.NewMemory(20)

	m.Put(1, &cache.RefinedModule{Id: 1, Size: 10})
	_, ok := m.Get(1) // pin
	assert.True(t, ok)

	m.Put(2, &cache.RefinedModule{Id: 2, Size: 10})
	m.Put(3, &cache.RefinedModule{Id: 3, Size: 10})

	_, stillThere := m.Get(1)
	assert.True(t, stillThere, "pinned entry must survive eviction pressure")
	m.Release(1)
	m.Release(1)
}

func TestMemory_Stats(t *testing.T) {
	m := cache.NewMemory(1 << 20)
	m.Put(1, &cache.RefinedModule{Id: 1, Size: 5})

	if _, ok := m.Get(1); ok {
		m.Release(1)
	}
	if _, ok := m.Get(2); !ok {
		// expected miss
	}

	stats := m.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}
