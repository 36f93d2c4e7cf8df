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

// Package bundle implements the Bundle Assembler: it owns the
// output path, global-placeholder name, in-memory apath→Module map,
// concurrency queue, and writer lock, and drives the bundle algorithm that
// turns an entry module and its transitive import graph into one emitted
// file plus a stitched source map.
package bundle

import (
	"sync"

	"bennypowers.dev/tsbundle/cache"
)

// checkState is a BundlerModule's cycle-detection paint color, a DFS
// progression from None through Entered to Checked.
type checkState int

const (
	checkNone checkState = iota
	checkEntered
	checkChecked
)

// entryVarName is the entry module's fixed, reserved varName: the entry is
// always emitted as the literal property `__entry(){...}`, never a
// disambiguator-derived file-stem name.
const entryVarName = "__entry"

// BundlerModule is the in-graph node: created once per
// (bundle, apath) pair within one bundle run, held in the Bundle.modules
// map keyed by apath. Children holds pointers into that same map rather
// than owning handles, so cyclic references between modules never leak.
type BundlerModule struct {
	Id uint32
	RPath string // path relative to the bundle base directory, used in diagnostics
	MPath string // absolute filesystem path
	VarName string

	IsEntry bool
	IsAppended bool

	mu sync.Mutex
	children []*BundlerModule
	importLines []cache.ImportInfo
	checkState checkState
	claimed bool // true once submitted to the concurrency queue
	refined *cache.RefinedModule
}

// addChild records child as a dependency of m. A child imported more than
// once from the same module is recorded once per reference; submission to
// the concurrency queue is deduplicated separately via child.tryClaim.
func (m *BundlerModule) addChild(child *BundlerModule, imp cache.ImportInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children = append(m.children, child)
	m.importLines = append(m.importLines, imp)
}

// Children returns a snapshot of m's recorded dependency edges, used by the
// cycle-detection DFS and by Build/enqueue to submit m's children to the
// queue.
func (m *BundlerModule) Children() []*BundlerModule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*BundlerModule, len(m.children))
	copy(out, m.children)
	return out
}

// tryClaim marks m as submitted to the concurrency queue, returning true
// only the first time it is called for m. Concurrent discovery of the same
// child from two parents (a diamond dependency) must enqueue exactly one
// refinement task.
func (m *BundlerModule) tryClaim() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed {
		return false
	}
	m.claimed = true
	return true
}

func (m *BundlerModule) setRefined(r *cache.RefinedModule) {
	m.mu.Lock()
	m.refined = r
	m.mu.Unlock()
}

func (m *BundlerModule) getRefined() *cache.RefinedModule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refined
}
