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

package bundle

import (
	"strings"

	"bennypowers.dev/tsbundle/internal/errs"
)

// detectCycles walks the dependency graph rooted at entry with the classic
// three-color DFS: a module painted
// checkEntered that is revisited before it is painted checkChecked is a back
// edge, reported as a full "A -> B -> A" path.
func detectCycles(entry *BundlerModule) []error {
	var found []error
	var path []*BundlerModule
	visit(entry, &path, &found)
	return found
}

func visit(m *BundlerModule, path *[]*BundlerModule, found *[]error) {
	m.mu.Lock()
	state := m.checkState
	m.mu.Unlock()

	switch state {
	case checkChecked:
		return
	case checkEntered:
		*found = append(*found, cycleError(*path, m))
		return
	}

	m.mu.Lock()
	m.checkState = checkEntered
	m.mu.Unlock()

	*path = append(*path, m)
	for _, child := range m.Children() {
		visit(child, path, found)
	}
	*path = (*path)[:len(*path)-1]

	m.mu.Lock()
	m.checkState = checkChecked
	m.mu.Unlock()
}

// cycleError renders the back-edge as the path from its first occurrence of
// closing back to itself, e.g. "a.ts -> b.ts -> a.ts".
func cycleError(path []*BundlerModule, closing *BundlerModule) error {
	start := 0
	for i, m := range path {
		if m == closing {
			start = i
			break
		}
	}
	names := make([]string, 0, len(path)-start+1)
	for _, m := range path[start:] {
		names = append(names, m.RPath)
	}
	names = append(names, closing.RPath)
	return errs.Internal("circular dependency: %s", strings.Join(names, " -> "))
}
