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

package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/tsbundle/cache"
)

func TestStripBoilerplate(t *testing.T) {
	src := "#!/usr/bin/env node\n\"use strict\";\nObject.defineProperty(exports, \"__esModule\", { value: true });\nvar x = 1;\n//# sourceMappingURL=a.js.map\n"
	got := string(stripBoilerplate([]byte(src)))
	assert.Equal(t, "var x = 1;", got)
}

func TestObserveGlobals(t *testing.T) {
	g := observeGlobals([]byte("console.log(__dirname, module.exports);"))
	assert.True(t, g.usesDirname)
	assert.True(t, g.usesModule)
	assert.True(t, g.usesModuleExports)
	assert.False(t, g.usesFilename)
}

// TestWrap_Entry verifies a CommonJS entry's body contains the property
// wrapper, the exports assignment, and the final return.
func TestWrap_Entry(t *testing.T) {
	parsed := &ParseResult{Code: []byte("export const x = 1;\nexports.x = 1;"), Loader: LoaderTS}
	resolve := func(ref RawReference) (ResolvedTarget, error) {
		return ResolvedTarget{Skip: true}, nil
	}
	result, err := Wrap(parsed, WrapOptions{
		RPath: "index.ts",
		VarName: "__entry",
		GlobalVar: "__tsb",
		IsEntry: true,
		ESMethodSyntax: true,
		Resolve: resolve,
	})
	require.NoError(t, err)
	content := string(result.Content)
	assert.Contains(t, content, "// index.ts\n")
	assert.Contains(t, content, "__entry(){")
	assert.Contains(t, content, "var exports = {};")
	assert.Contains(t, content, "return exports;")
	assert.Contains(t, content, "},\n")
	assert.Equal(t, result.OutputLineCount, countNewlines(content))
}

func countNewlines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}

// TestWrap_ImportRewrittenToGlobalPlaceholder verifies that a named import
// is rewritten into an actual binding against the resolved placeholder, not
// just stripped: `p` must still resolve at runtime, to __tsb.path's `p`
// property, or the later `export const x = p;` references nothing.
func TestWrap_ImportRewrittenToGlobalPlaceholder(t *testing.T) {
	source := []byte(`import { p } from 'path';
export const x = p;`)
	parsed := &ParseResult{Code: source, Loader: LoaderTS}
	resolve := func(ref RawReference) (ResolvedTarget, error) {
		if ref.Specifier == "path" {
			return ResolvedTarget{
				Replacement: "__tsb.path",
				RecordImport: true,
				Import: cache.ImportInfo{
					ModuleSpecifier: "path",
					External: cache.TargetPreimport,
				},
			}, nil
		}
		return ResolvedTarget{Skip: true}, nil
	}
	result, err := Wrap(parsed, WrapOptions{
		RPath: "a.ts",
		VarName: "a",
		GlobalVar: "__tsb",
		ESMethodSyntax: true,
		Resolve: resolve,
	})
	require.NoError(t, err)
	require.Len(t, result.Imports, 1)
	assert.Equal(t, cache.TargetPreimport, result.Imports[0].External)
	content := string(result.Content)
	assert.NotContains(t, content, "import { p } from 'path'")
	assert.Contains(t, content, "var { p } = (__tsb.path);")
	// p must still be a bound identifier by the time the rest of the
	// module's body runs, not just absent from the output.
	assert.Contains(t, content, "export const x = p;")
}

// TestWrap_ImportForms covers every import clause shape the rewrite pass
// must bind, not just the plain named-import case above.
func TestWrap_ImportForms(t *testing.T) {
	cases := []struct {
		name string
		source string
		want string
	}{
		{
			name: "default",
			source: `import Foo from './foo';`,
			want: "var Foo = (__tsb.foo()).default;",
		},
		{
			name: "namespace",
			source: `import * as NS from './foo';`,
			want: "var NS = (__tsb.foo());",
		},
		{
			name: "named-rename",
			source: `import { a, b as c } from './foo';`,
			want: "var { a, b: c } = (__tsb.foo());",
		},
		{
			name: "default-and-named",
			source: `import Foo, { a } from './foo';`,
			want: "var { a } = (__tsb.foo());",
		},
		{
			name: "default-and-namespace",
			source: `import Foo, * as NS from './foo';`,
			want: "var NS = (__tsb.foo());",
		},
		{
			name: "side-effect-only",
			source: `import './foo';`,
			want: "__tsb.foo();",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed := &ParseResult{Code: []byte(tc.source + "\n"), Loader: LoaderTS}
			resolve := func(ref RawReference) (ResolvedTarget, error) {
				return ResolvedTarget{Replacement: "__tsb.foo()", RecordImport: true}, nil
			}
			result, err := Wrap(parsed, WrapOptions{
				RPath: "a.ts",
				VarName: "a",
				GlobalVar: "__tsb",
				ESMethodSyntax: true,
				Resolve: resolve,
			})
			require.NoError(t, err)
			assert.Contains(t, string(result.Content), tc.want)
		})
	}
}

// TestWrap_ReExportForms covers every re-export clause shape the rewrite
// pass must bind onto exports.
func TestWrap_ReExportForms(t *testing.T) {
	cases := []struct {
		name string
		source string
		want string
	}{
		{
			name: "star",
			source: `export * from './foo';`,
			want: "Object.assign(exports, (__tsb.foo()));",
		},
		{
			name: "star-as",
			source: `export * as NS from './foo';`,
			want: "exports.NS = (__tsb.foo());",
		},
		{
			name: "named-rename",
			source: `export { a, b as c } from './foo';`,
			want: "exports.c = (__tsb.foo()).b;",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed := &ParseResult{Code: []byte(tc.source + "\n"), Loader: LoaderTS}
			resolve := func(ref RawReference) (ResolvedTarget, error) {
				return ResolvedTarget{Replacement: "__tsb.foo()", RecordImport: true}, nil
			}
			result, err := Wrap(parsed, WrapOptions{
				RPath: "a.ts",
				VarName: "a",
				GlobalVar: "__tsb",
				ESMethodSyntax: true,
				Resolve: resolve,
			})
			require.NoError(t, err)
			assert.Contains(t, string(result.Content), tc.want)
		})
	}
}

func TestWrap_JSON(t *testing.T) {
	parsed := &ParseResult{Code: []byte(`{"a":1}`), Loader: LoaderJSON}
	result, err := Wrap(parsed, WrapOptions{RPath: "data.json", VarName: "data", GlobalVar: "__tsb", ESMethodSyntax: true})
	require.NoError(t, err)
	assert.Contains(t, string(result.Content), `return {"a":1};`)
}

func TestDynamicImportUnsupported(t *testing.T) {
	assert.True(t, DynamicImportUnsupported(RawReference{IsDynamic: true, ArgCount: 2}))
	assert.True(t, DynamicImportUnsupported(RawReference{IsDynamic: true, ArgCount: 1, Specifier: ""}))
	assert.False(t, DynamicImportUnsupported(RawReference{IsDynamic: true, ArgCount: 1, Specifier: "./a"}))
	assert.False(t, DynamicImportUnsupported(RawReference{IsDynamic: false}))
}
