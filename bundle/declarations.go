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

	"bennypowers.dev/tsbundle/cache"
	"bennypowers.dev/tsbundle/internal/platform"
	"bennypowers.dev/tsbundle/transform"
)

// appendDeclaration folds one module's declaration output into the
// bundle's accumulated .d.ts text: a GlobalDeclaration (ambient `declare
// global`/`declare module "name"` text) is emitted verbatim, outside any
// namespace; an ordinary Declaration is namespaced under the bundle's
// global placeholder so a sibling module's qualified reference
// (`<G>.b.x`) resolves, except for the entry module, whose declaration is
// wrapped in `export namespace __entry { … }` per the top-level shape the
// entry's JS chunk also gets.
func (b *Bundle) appendDeclaration(m *BundlerModule, refined *cache.RefinedModule) {
	if len(refined.Declaration) == 0 && len(refined.GlobalDeclaration) == 0 {
		return
	}
	b.declMu.Lock()
	defer b.declMu.Unlock()

	if len(refined.GlobalDeclaration) > 0 {
		b.declBuf.Write(refined.GlobalDeclaration)
		b.declBuf.WriteString("\n")
	}
	if len(refined.Declaration) == 0 {
		return
	}
	if m.IsEntry {
		b.declBuf.Write(transform.GlobalNamespaceWrap(entryVarName, refined.Declaration))
	} else {
		b.declBuf.WriteString("declare namespace " + b.global + " {\nnamespace " + m.VarName + " {\n")
		b.declBuf.Write(refined.Declaration)
		b.declBuf.WriteString("\n}\n}\n")
	}
}

// declarationOutputPath derives the bundle's .d.ts sibling from its
// output path: a trailing .js extension is replaced, otherwise .d.ts is
// appended.
func (b *Bundle) declarationOutputPath() string {
	if strings.HasSuffix(b.output, ".js") {
		return strings.TrimSuffix(b.output, ".js") + ".d.ts"
	}
	return b.output + ".d.ts"
}

// writeDeclarationFile flushes the accumulated .d.ts text, if any, to the
// bundle's declaration output path. A bundle with no declaration-bearing
// module writes nothing: the type-declaration artifact is optional per
// spec.
func (b *Bundle) writeDeclarationFile() error {
	b.declMu.Lock()
	empty := b.declBuf.Len() == 0
	data := append([]byte(nil), b.declBuf.Bytes()...)
	b.declMu.Unlock()
	if empty {
		return nil
	}
	return platform.WriteFileAtomic(b.fs, b.declarationOutputPath(), data, 0o644)
}
