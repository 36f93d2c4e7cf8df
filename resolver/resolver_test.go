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

package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bennypowers.dev/tsbundle/cache"
	"bennypowers.dev/tsbundle/internal/platform"
)

func newTestFS() *platform.MapFS {
	return platform.NewMapFS(map[string]string{
		"/proj/a.ts": "export const a = 1;",
		"/proj/b.ts": "export const b = 2;",
		"/proj/widgets/index.ts": "export const w = 1;",
		"/proj/types.d.ts": "export declare const t: number;",
		"/proj/types.js": "exports.t = 1;",
	})
}

func TestResolve_LocalRelative(t *testing.T) {
	r := New(newTestFS(), nil, nil, false)
	res := r.Resolve("./b", "/proj")
	assert.Equal(t, "/proj/b.ts", res.AbsPath)
	assert.Equal(t, cache.ExternalTarget(0), res.External)
}

func TestResolve_DirectoryIndex(t *testing.T) {
	r := New(newTestFS(), nil, nil, false)
	res := r.Resolve("./widgets", "/proj")
	assert.Equal(t, "/proj/widgets/index.ts", res.AbsPath)
}

func TestResolve_Builtin(t *testing.T) {
	r := New(newTestFS(), nil, nil, false)
	res := r.Resolve("path", "/proj")
	assert.Equal(t, cache.TargetPreimport, res.External)
	assert.Empty(t, res.AbsPath)
}

func TestResolve_Preimport(t *testing.T) {
	r := New(newTestFS(), nil, []string{"left-pad"}, false)
	res := r.Resolve("left-pad", "/proj")
	assert.Equal(t, cache.TargetPreimport, res.External)
}

func TestResolve_ExternalsGlob(t *testing.T) {
	r := New(newTestFS(), []string{"lodash/*"}, nil, false)
	res := r.Resolve("lodash/debounce", "/proj")
	assert.Equal(t, cache.TargetManual, res.External)
}

func TestResolve_BarePackageWithoutBundleExternals(t *testing.T) {
	r := New(newTestFS(), nil, nil, false)
	res := r.Resolve("react", "/proj")
	assert.Equal(t, cache.TargetManual, res.External)
}

func TestResolve_NotFound(t *testing.T) {
	r := New(newTestFS(), nil, nil, false)
	res := r.Resolve("./missing", "/proj")
	assert.Empty(t, res.AbsPath)
	assert.Equal(t, cache.ExternalTarget(0), res.External)
}

func TestRewriteDeclarationSibling(t *testing.T) {
	fsys := newTestFS()
	got := RewriteDeclarationSibling(fsys, "/proj/types.d.ts")
	assert.Equal(t, "/proj/types.js", got)
}

func TestRewriteDeclarationSibling_NoSibling(t *testing.T) {
	fsys := platform.NewMapFS(map[string]string{"/proj/only.d.ts": "x"})
	got := RewriteDeclarationSibling(fsys, "/proj/only.d.ts")
	assert.Equal(t, "/proj/only.d.ts", got)
}

func TestDeclarationSidecar(t *testing.T) {
	assert.Equal(t, "/proj/a.d.ts", DeclarationSidecar("/proj/a.js"))
	assert.Empty(t, DeclarationSidecar("/proj/a.ts"))
}
