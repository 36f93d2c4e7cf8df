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
	"regexp"
	"strings"
)

// DeclarationEngine is the external type-checker collaborator responsible
// for declaration emission. This bundler never re-implements type
// checking; it only rewrites the external references inside whatever
// .d.ts text the engine hands back. No engine is wired in this repository
// (esbuild has no checker): the bundle package instead reads a module's
// sibling .d.ts file, and RefinedModule.Declaration stays empty when there
// is none, which is a legal state: declaration emission is optional.
type DeclarationEngine interface {
	// EmitDeclaration returns the module's own, unrewritten .d.ts text.
	EmitDeclaration(sourcePath string, source []byte) ([]byte, error)
}

var (
	namedImportTypeRe = regexp.MustCompile(`(?m)^import\s+(?:type\s+)?\{([^}]*)\}\s+from\s+["']([^"']+)["'];?\s*$`)
	namespaceImportRe = regexp.MustCompile(`(?m)^import\s+(?:type\s+)?\*\s+as\s+(\w+)\s+from\s+["']([^"']+)["'];?\s*$`)
	defaultImportRe = regexp.MustCompile(`(?m)^import\s+(?:type\s+)?(\w+)\s+from\s+["']([^"']+)["'];?\s*$`)
	exportFromRe = regexp.MustCompile(`(?m)^export\s+(?:type\s+)?\{([^}]*)\}\s+from\s+["']([^"']+)["'];?\s*$`)
	exportEqualsRe = regexp.MustCompile(`(?m)^export\s*=\s*(\w+)\s*;?\s*$`)
	exportDefaultRe = regexp.MustCompile(`(?m)^export\s+default\s+(\w+)\s*;?\s*$`)
	ambientModuleRe = regexp.MustCompile(`(?ms)^declare\s+module\s+["']([^"']+)["']\s*\{(.*?)\n\}\s*$`)
	globalAugmentRe = regexp.MustCompile(`(?ms)^declare\s+global\s*\{(.*?)\n\}\s*$`)
)

// QualifiedNameResolver tells the declaration rewriter which child varName
// (or external mode) a specifier resolves to, mirroring resolver.Resolver
// but without a transform->resolver import cycle.
type QualifiedNameResolver func(specifier string) (childVarName string, ok bool)

// RewriteDeclaration rewrites one module's raw .d.ts text: external module
// references become qualified names that resolve through the bundle's
// global placeholder.
//
// - A namespace import becomes a type alias to the qualified namespace:
// `import * as ns from './x'` -> `import ns = <G>.x;`
// - Named imports become import-equals declarations keyed by qualified
// name: `import { a, b as c } from './x'` ->
// `import a = <G>.x.a; import c = <G>.x.b;`
// - A default import maps to the child's `_exported` sentinel:
// `import d from './x'` -> `import d = <G>.x._exported;`
// - `export =` / `export default` coalesce to a single re-export under a
// synthesized name with an alias back to `default`.
//
// Module declarations (`declare global { … }`, `declare module "<name>" { … }`)
// are not rewritten here; ExtractGlobalDeclaration handles them.
func RewriteDeclaration(raw []byte, globalVar string, resolve QualifiedNameResolver) []byte {
	text := string(raw)

	text = namespaceImportRe.ReplaceAllStringFunc(text, func(m string) string {
		groups := namespaceImportRe.FindStringSubmatch(m)
		ns, specifier := groups[1], groups[2]
		qualified, ok := resolve(specifier)
		if !ok {
			return m
		}
		return "import " + ns + " = " + globalVar + "." + qualified + ";"
	})

	text = namedImportTypeRe.ReplaceAllStringFunc(text, func(m string) string {
		groups := namedImportTypeRe.FindStringSubmatch(m)
		clause, specifier := groups[1], groups[2]
		qualified, ok := resolve(specifier)
		if !ok {
			return m
		}
		return rewriteNamedClause(clause, globalVar, qualified)
	})

	text = exportFromRe.ReplaceAllStringFunc(text, func(m string) string {
		groups := exportFromRe.FindStringSubmatch(m)
		clause, specifier := groups[1], groups[2]
		qualified, ok := resolve(specifier)
		if !ok {
			return m
		}
		return rewriteNamedClause(clause, globalVar, qualified)
	})

	text = defaultImportRe.ReplaceAllStringFunc(text, func(m string) string {
		groups := defaultImportRe.FindStringSubmatch(m)
		name, specifier := groups[1], groups[2]
		qualified, ok := resolve(specifier)
		if !ok {
			return m
		}
		return "import " + name + " = " + globalVar + "." + qualified + "._exported;"
	})

	text = coalesceExportEqualsDefault(text)

	return []byte(text)
}

// rewriteNamedClause turns `{ a, b as c }` into one import-equals
// declaration per binding, each keyed by the qualified name
// `<globalVar>.<qualified>.<original>`.
func rewriteNamedClause(clause, globalVar, qualified string) string {
	names := strings.Split(clause, ",")
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		local := n
		orig := n
		if idx := strings.Index(n, " as "); idx >= 0 {
			orig = strings.TrimSpace(n[:idx])
			local = strings.TrimSpace(n[idx+4:])
		}
		out = append(out, "import "+local+" = "+globalVar+"."+qualified+"."+orig+";")
	}
	return strings.Join(out, " ")
}

// coalesceExportEqualsDefault coalesces `export =` and `export default`
// into a single re-export under a synthesized name with an alias back to
// `default`.
func coalesceExportEqualsDefault(text string) string {
	if m := exportEqualsRe.FindStringSubmatch(text); m != nil {
		name := m[1]
		synth := "_default_export"
		replacement := "const " + synth + " = " + name + "; export { " + synth + " as default };"
		return exportEqualsRe.ReplaceAllLiteralString(text, replacement)
	}
	if m := exportDefaultRe.FindStringSubmatch(text); m != nil {
		name := m[1]
		synth := "_default_export"
		replacement := "const " + synth + " = " + name + "; export { " + synth + " as default };"
		return exportDefaultRe.ReplaceAllLiteralString(text, replacement)
	}
	return text
}

// WrapGlobalAugmentation returns raw unchanged: a `declare global { … }`
// block passes through verbatim, and any other ambient declaration is left
// untouched.
func WrapGlobalAugmentation(raw []byte) []byte {
	if globalAugmentRe.Match(raw) {
		return raw
	}
	return raw
}

// ExtractGlobalDeclaration reports whether raw, taken as a whole, is an
// ambient declaration that must be emitted outside any per-module
// namespace wrapper: a `declare global { … }` augmentation passes through
// verbatim; a `declare module "name" { … }` ambient module is re-emitted
// the same way. Returns nil when raw is an ordinary module's own
// declaration text, which the caller namespaces under the module's
// varName instead.
func ExtractGlobalDeclaration(raw []byte) []byte {
	if globalAugmentRe.Match(raw) {
		return raw
	}
	if m := ambientModuleRe.FindSubmatch(raw); m != nil {
		return WrapExternalModuleDeclaration(string(m[1]), m[2])
	}
	return nil
}

// WrapExternalModuleDeclaration emits `declare module "<name>" { … }` for a
// string-literal external ambient module.
func WrapExternalModuleDeclaration(name string, body []byte) []byte {
	var buf strings.Builder
	buf.WriteString("declare module \"")
	buf.WriteString(name)
	buf.WriteString("\" {\n")
	buf.Write(body)
	buf.WriteString("\n}\n")
	return []byte(buf.String())
}

// GlobalNamespaceWrap emits `export namespace <entryVar> { … }` for an
// entry module's emitted .d.ts.
func GlobalNamespaceWrap(entryVar string, body []byte) []byte {
	var buf strings.Builder
	buf.WriteString("export namespace ")
	buf.WriteString(entryVar)
	buf.WriteString(" {\n")
	buf.Write(body)
	buf.WriteString("\n}\n")
	return []byte(buf.String())
}
