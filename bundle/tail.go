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
	"path/filepath"
	"strconv"
	"strings"

	"bennypowers.dev/tsbundle/cache"
	"bennypowers.dev/tsbundle/internal/config"
)

// writePrelude emits an optional "use strict", an IIFE open for Var/Direct
// export styles, and the bundle-object open. It writes no shebang or
// first-line comment; the entry's provenance comment appears only inside
// its own chunk. Callers must hold b.writerMu.
func (b *Bundle) writePrelude(entryRefined *cache.RefinedModule, alwaysStrict bool) {
	style := b.cfg.ExportStyle()

	if alwaysStrict {
		b.buf.WriteString("\"use strict\";\n")
	}
	if style == config.ExportVar || style == config.ExportDirect {
		b.buf.WriteString("(function(){\n")
	}

	switch style {
	case config.ExportES2015:
		b.buf.WriteString("export const " + b.global + " = {\n")
	case config.ExportVar, config.ExportDirect:
		b.buf.WriteString("var " + b.global + " = {\n")
	default:
		b.buf.WriteString("const " + b.global + " = {\n")
	}
}

// preimportVarName returns the stable identifier a preimport specifier is
// exposed under inside the bundle object,
// assigning one the first time specifier is seen.
func (b *Bundle) preimportVarName(specifier string) string {
	b.preMu.Lock()
	defer b.preMu.Unlock()
	if name, ok := b.preimportNames[specifier]; ok {
		return name
	}
	b.mu.Lock()
	name := b.disambiguator.AssignRaw(specifier)
	b.mu.Unlock()
	b.preimportNames[specifier] = name
	b.preimportOrder = append(b.preimportOrder, specifier)
	return name
}

// writePreimports appends one `<varName>: require(<specifier>),` property
// per discovered preimport, in discovery order, plus the
// `__dirname`/`__resolve` helper methods when any module's wrapper
// referenced them. Callers must hold b.writerMu.
func (b *Bundle) writePreimports() {
	b.preMu.Lock()
	order := append([]string(nil), b.preimportOrder...)
	names := make(map[string]string, len(b.preimportNames))
	for k, v := range b.preimportNames {
		names[k] = v
	}
	b.preMu.Unlock()

	for _, spec := range order {
		b.buf.WriteString(names[spec] + ": require(" + strconv.Quote(spec) + "),\n")
	}

	if !b.usesDirname && !b.usesResolve {
		return
	}
	outDir := strconv.Quote(filepath.ToSlash(filepath.Dir(b.output)))
	b.buf.WriteString("__dirname: function(rpath){\n")
	b.buf.WriteString(" var i = rpath.lastIndexOf('/');\n")
	b.buf.WriteString(" return i < 0 ? " + outDir + ": " + outDir + " + '/' + rpath.slice(0, i);\n")
	b.buf.WriteString("},\n")
	b.buf.WriteString("__resolve: function(rpath){\n")
	b.buf.WriteString(" return " + outDir + " + '/' + rpath;\n")
	b.buf.WriteString("},\n")
}

// varKeyword returns the declaration keyword a "var NAME"/"let NAME"/"const
// NAME" module target used, defaulting to "var".
func (b *Bundle) varKeyword() string {
	parts := strings.Fields(b.cfg.Module)
	if len(parts) == 2 {
		return parts[0]
	}
	return "var"
}

// writeTail emits the export-style-specific assignment invoking the entry
// chunk, an optional IIFE close, and the sourceMappingURL comment. Callers
// must hold b.writerMu.
func (b *Bundle) writeTail() {
	invoke := b.global + "." + entryVarName + "()"
	switch b.cfg.ExportStyle() {
	case config.ExportCommonJS:
		b.buf.WriteString("module.exports = " + invoke + ";\n")
	case config.ExportES2015:
		b.buf.WriteString("export default " + invoke + ";\n")
	case config.ExportVar:
		name := b.cfg.ExportVarName()
		if name == "" {
			name = b.global
		}
		b.buf.WriteString(b.varKeyword() + " " + name + " = " + invoke + ";\n")
		b.buf.WriteString("})();\n")
	case config.ExportDirect:
		host := b.cfg.Module
		if host == "" {
			host = "this"
		}
		b.buf.WriteString(host + "." + b.global + " = " + invoke + ";\n")
		b.buf.WriteString("})();\n")
	default:
		b.buf.WriteString(invoke + ";\n")
	}
	b.buf.WriteString("//# sourceMappingURL=" + filepath.Base(b.output) + ".map\n")
}
