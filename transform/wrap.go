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
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"bennypowers.dev/tsbundle/cache"
	"bennypowers.dev/tsbundle/internal/errs"
)

// ResolvedTarget is what a caller's ResolveFunc returns for one RawReference
// found by scanReferences.
type ResolvedTarget struct {
	// Replacement is the exact expression spliced in place of the
	// reference's byte range. Ignored when Skip is true.
	Replacement string
	// Skip leaves the reference's original text untouched, the case for a
	// specifier matched by an externals glob.
	Skip bool
	// Import records the resolved reference for RefinedModule.Imports. It
	// is appended only when RecordImport is set.
	Import cache.ImportInfo
	// RecordImport controls whether Import is appended.
	RecordImport bool
}

// ResolveFunc classifies and resolves one raw reference, supplying the
// bundle-global-placeholder expression that should replace it in the
// emitted code.
type ResolveFunc func(ref RawReference) (ResolvedTarget, error)

var (
	shebangRe = regexp.MustCompile(`^#![^\n]*\n`)
	useStrictRe = regexp.MustCompile(`^\s*["']use strict["'];?\s*\n`)
	esModuleRe = regexp.MustCompile(`Object\.defineProperty\(exports,\s*["']__esModule["'],\s*\{\s*value:\s*true\s*\}\)\s*;?\s*\n?`)
	esModuleAltRe = regexp.MustCompile(`exports\.__esModule\s*=\s*true\s*;?\s*\n?`)
	sourceMapURLRe = regexp.MustCompile(`(?m)^//# sourceMappingURL=.*\n?$`)

	dirnameRe = regexp.MustCompile(`\b__dirname\b`)
	filenameRe = regexp.MustCompile(`\b__filename\b`)
	moduleRe = regexp.MustCompile(`\bmodule\b`)
	moduleExportsRe = regexp.MustCompile(`\bmodule\.exports\b`)
	exportsRe = regexp.MustCompile(`\bexports\b`)

	importDefaultNsRe = regexp.MustCompile(`(?s)^import\s+([A-Za-z_$][\w$]*)\s*,\s*\*\s*as\s+([A-Za-z_$][\w$]*)\s+from\s+['"]`)
	importDefaultNamedRe = regexp.MustCompile(`(?s)^import\s+([A-Za-z_$][\w$]*)\s*,\s*\{([^}]*)\}\s*from\s+['"]`)
	importNamespaceRe = regexp.MustCompile(`(?s)^import\s+\*\s*as\s+([A-Za-z_$][\w$]*)\s+from\s+['"]`)
	importNamedRe = regexp.MustCompile(`(?s)^import\s+\{([^}]*)\}\s*from\s+['"]`)
	importDefaultRe = regexp.MustCompile(`(?s)^import\s+([A-Za-z_$][\w$]*)\s+from\s+['"]`)
	importSideEffectRe = regexp.MustCompile(`(?s)^import\s+['"]`)

	exportStarAsRe = regexp.MustCompile(`(?s)^export\s*\*\s+as\s+([A-Za-z_$][\w$]*)\s+from\s+['"]`)
	exportStarRe = regexp.MustCompile(`(?s)^export\s*\*\s*from\s+['"]`)
	exportNamedFromRe = regexp.MustCompile(`(?s)^export\s*\{([^}]*)\}\s*from\s+['"]`)

	namedClauseAsRe = regexp.MustCompile(`(?s)^(.+?)\s+as\s+(.+)$`)
)

// stripBoilerplate removes transform-generated scaffolding from the
// parser's output before it is embedded in the wrapper: a leading shebang, a
// leading "use strict" directive, the two `__esModule` marker forms, and a
// trailing sourceMappingURL comment.
func stripBoilerplate(code []byte) []byte {
	code = shebangRe.ReplaceAll(code, nil)
	code = useStrictRe.ReplaceAll(code, nil)
	code = esModuleRe.ReplaceAll(code, nil)
	code = esModuleAltRe.ReplaceAll(code, nil)
	code = sourceMapURLRe.ReplaceAll(code, nil)
	return bytes.TrimRight(code, "\n")
}

// globalUsage tracks which CommonJS-ish free identifiers a module's body
// references, driving the wrapper's boilerplate emission.
type globalUsage struct {
	usesDirname bool
	usesFilename bool
	usesModule bool
	usesModuleExports bool
	usesExports bool
}

func observeGlobals(code []byte) globalUsage {
	return globalUsage{
		usesDirname: dirnameRe.Match(code),
		usesFilename: filenameRe.Match(code),
		usesModule: moduleRe.Match(code),
		usesModuleExports: moduleExportsRe.Match(code),
		usesExports: exportsRe.Match(code),
	}
}

// rewriteReferences splices every classified reference's replacement text
// into code, left to right, and returns the accumulated ImportInfo list.
// References are processed in ascending StartByte order; a reference that
// starts inside an already-spliced range (a nested construct) is skipped,
// so the earlier, enclosing one wins.
//
// A RefCall reference's byte range spans only the call expression, so the
// replacement expression can always be spliced bare. A RefStaticImport or
// RefReExport reference's range spans the entire statement, binding clause
// included; splicing the replacement bare there would compile but silently
// drop every name the clause bound, leaving later code referencing an
// unbound identifier. Those two kinds are rewritten into an explicit
// binding statement instead, via bindStaticImport/bindReExport.
func rewriteReferences(code []byte, refs []RawReference, resolve ResolveFunc) ([]byte, []cache.ImportInfo, error) {
	sorted := make([]RawReference, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartByte < sorted[j].StartByte })

	var out bytes.Buffer
	var imports []cache.ImportInfo
	cursor := uint(0)
	for _, ref := range sorted {
		if ref.StartByte < cursor {
			continue // overlapping reference from a nested construct; skip.
		}
		target, err := resolve(ref)
		if err != nil {
			return nil, nil, err
		}
		out.Write(code[cursor:ref.StartByte])
		switch {
		case target.Skip:
			out.Write(code[ref.StartByte:ref.EndByte])
		case ref.IsDeclaration:
			// Type-only import/export/ambient declaration: erased, no
			// runtime binding to preserve.
		case ref.Kind == RefStaticImport:
			out.WriteString(bindStaticImport(code[ref.StartByte:ref.EndByte], target.Replacement))
		case ref.Kind == RefReExport:
			out.WriteString(bindReExport(code[ref.StartByte:ref.EndByte], target.Replacement))
		default:
			out.WriteString(target.Replacement)
		}
		if target.RecordImport {
			imports = append(imports, target.Import)
		}
		cursor = ref.EndByte
	}
	out.Write(code[cursor:])
	return out.Bytes(), imports, nil
}

// namedBinding is one entry of an import/re-export named clause: imported
// is the name as exported by the referenced module, local is the name it
// is bound to (or re-exported as) here. `a as b` sets both; a bare `a`
// leaves them equal.
type namedBinding struct {
	imported string
	local string
}

func splitClauseItems(clause string) []namedBinding {
	var out []namedBinding
	for _, part := range strings.Split(clause, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if m := namedClauseAsRe.FindStringSubmatch(part); m != nil {
			out = append(out, namedBinding{imported: strings.TrimSpace(m[1]), local: strings.TrimSpace(m[2])})
		} else {
			out = append(out, namedBinding{imported: part, local: part})
		}
	}
	return out
}

// defaultExpr is the CommonJS-interop convention for a module's default
// export: the property named "default" on its exports object.
func defaultExpr(replacement string) string {
	return "(" + replacement + ").default"
}

// bindNamedClause renders `{ a, b as c }` as a single destructuring
// declaration against replacement, renaming via the object-pattern shorthand
// so every local name the clause introduced is actually bound.
func bindNamedClause(clause, replacement string) string {
	items := splitClauseItems(clause)
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if it.local == it.imported {
			parts = append(parts, it.imported)
		} else {
			parts = append(parts, it.imported+": "+it.local)
		}
	}
	return "var { " + strings.Join(parts, ", ") + " } = (" + replacement + ");\n"
}

// bindStaticImport rewrites a static `import ... from "spec";` statement's
// full text into one or more binding declarations against replacement,
// preserving every name the original clause introduced: default,
// namespace, named, and the default-plus-{namespace,named} combinations.
// A side-effect-only import (no clause at all) has nothing to bind, so
// replacement is spliced as a bare statement. An unrecognized clause shape
// falls back to the same bare splice rather than risk invalid JS, at the
// cost of the binding that clause would have introduced.
func bindStaticImport(stmt []byte, replacement string) string {
	s := string(stmt)
	if m := importDefaultNsRe.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("var %s = %s;\nvar %s = (%s);\n", m[1], defaultExpr(replacement), m[2], replacement)
	}
	if m := importDefaultNamedRe.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("var %s = %s;\n%s", m[1], defaultExpr(replacement), bindNamedClause(m[2], replacement))
	}
	if m := importNamespaceRe.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("var %s = (%s);\n", m[1], replacement)
	}
	if m := importNamedRe.FindStringSubmatch(s); m != nil {
		return bindNamedClause(m[1], replacement)
	}
	if m := importDefaultRe.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("var %s = %s;\n", m[1], defaultExpr(replacement))
	}
	if importSideEffectRe.MatchString(s) {
		return replacement + ";\n"
	}
	return replacement + ";\n"
}

// bindReExport rewrites an `export ... from "spec";` statement's full text
// into assignments onto exports, mirroring bindStaticImport's concern but
// targeting the module's own exports object instead of a local scope:
// `export * from` copies every property, `export * as NS from` nests them
// under NS, and `export { a, b as c } from` re-exports individually.
func bindReExport(stmt []byte, replacement string) string {
	s := string(stmt)
	if m := exportStarAsRe.FindStringSubmatch(s); m != nil {
		return "exports." + m[1] + " = (" + replacement + ");\n"
	}
	if exportStarRe.MatchString(s) {
		return "Object.assign(exports, (" + replacement + "));\n"
	}
	if m := exportNamedFromRe.FindStringSubmatch(s); m != nil {
		items := splitClauseItems(m[1])
		var buf strings.Builder
		for _, it := range items {
			buf.WriteString("exports." + it.local + " = (" + replacement + ")." + it.imported + ";\n")
		}
		return buf.String()
	}
	return replacement + ";\n"
}

// WrapOptions configures the emission of one module's wrapped chunk.
type WrapOptions struct {
	RPath string
	VarName string
	GlobalVar string
	// IsEntry is bookkeeping only: every module is wrapped as a bundle-
	// object property of identical shape; whether
	// this module is additionally invoked/exported as the bundle's entry
	// point is the Bundle Assembler's concern.
	IsEntry bool
	ESMethodSyntax bool // true selects `name(){... }`, false `name:function(){... }`
	AlwaysStrict bool
	Resolve ResolveFunc
}

// WrapResult is the code-generation half of a RefinedModule: content plus
// the metrics the Stitcher needs.
type WrapResult struct {
	Content []byte
	Imports []cache.ImportInfo
	FirstLineComment string
	OutputLineCount int
	SourceMapOutputLineOffset int
}

// Wrap classifies and rewrites a parsed module's references, observes its
// free-identifier globals, and emits the wrapped chunk.
func Wrap(parsed *ParseResult, opts WrapOptions) (*WrapResult, error) {
	if parsed.Loader == LoaderJSON {
		return wrapJSON(parsed, opts)
	}

	refs := scanReferences(parsed.Code)

	rewritten, imports, err := rewriteReferences(parsed.Code, refs, opts.Resolve)
	if err != nil {
		return nil, err
	}

	body := stripBoilerplate(rewritten)
	globals := observeGlobals(body)

	var buf bytes.Buffer
	provenance := "// " + opts.RPath + "\n"
	buf.WriteString(provenance)

	// Entry modules are wrapped identically to any other module, emitted
	// as an ordinary __entry(){...} property; whether the entry is also
	// invoked from the assembler's tail, bound to an `entry:` property, or
	// both is the Bundle Assembler's concern, not the shape of this
	// per-module chunk.
	headerLines := 1 // the provenance comment line
	headerLines += writeOpening(&buf, opts)
	if opts.AlwaysStrict {
		buf.WriteString("\"use strict\";\n")
		headerLines++
	}
	buf.WriteString("if (" + opts.GlobalVar + "." + opts.VarName + ".exports != null) return " + opts.GlobalVar + "." + opts.VarName + ".exports;\n")
	headerLines++
	buf.WriteString("var exports = {};\n")
	headerLines++
	needsModuleObj := globals.usesModule || globals.usesModuleExports
	if needsModuleObj {
		buf.WriteString("var module = { exports: exports };\n")
		headerLines++
	}
	if globals.usesDirname || globals.usesFilename {
		dir := dirOf(opts.RPath)
		if globals.usesDirname {
			buf.WriteString("var __dirname = " + opts.GlobalVar + ".__dirname(" + quote(dir) + ");\n")
			headerLines++
		}
		if globals.usesFilename {
			buf.WriteString("var __filename = " + opts.GlobalVar + ".__resolve(" + quote(opts.RPath) + ");\n")
			headerLines++
		}
	}

	buf.Write(body)
	buf.WriteString("\n")

	if needsModuleObj {
		buf.WriteString("return module.exports;\n")
	} else {
		buf.WriteString("return exports;\n")
	}
	buf.WriteString("},\n")

	content := buf.Bytes()
	return &WrapResult{
		Content: content,
		Imports: imports,
		FirstLineComment: provenance,
		OutputLineCount: bytes.Count(content, []byte("\n")),
		SourceMapOutputLineOffset: headerLines,
	}, nil
}

// writeOpening emits the property-like or top-level opening line: either
// <varName>(){ for ES2015+ targets or <varName>:function(){ otherwise. It
// returns the number of lines written so the caller can track the
// header-line count feeding SourceMapOutputLineOffset.
func writeOpening(buf *bytes.Buffer, opts WrapOptions) int {
	if opts.ESMethodSyntax {
		buf.WriteString(opts.VarName + "(){\n")
	} else {
		buf.WriteString(opts.VarName + ":function(){\n")
	}
	return 1
}

func wrapJSON(parsed *ParseResult, opts WrapOptions) (*WrapResult, error) {
	var buf bytes.Buffer
	provenance := "// " + opts.RPath + "\n"
	buf.WriteString(provenance)
	opening := writeOpening(&buf, opts)
	buf.WriteString("return " + string(bytes.TrimSpace(parsed.Code)) + ";\n")
	buf.WriteString("},\n")
	content := buf.Bytes()
	return &WrapResult{
		Content: content,
		FirstLineComment: provenance,
		OutputLineCount: bytes.Count(content, []byte("\n")),
		SourceMapOutputLineOffset: 1 + opening,
	}, nil
}

// DynamicImportUnsupported reports whether ref is a dynamic import() this
// transformer must refuse: either more than one argument,
// or a single non-literal argument.
func DynamicImportUnsupported(ref RawReference) bool {
	if !ref.IsDynamic {
		return false
	}
	if ref.ArgCount > 1 {
		return true
	}
	return ref.ArgCount == 1 && ref.Specifier == ""
}

func dirOf(rpath string) string {
	i := bytes.LastIndexByte([]byte(rpath), '/')
	if i < 0 {
		return "."
	}
	return rpath[:i]
}

func quote(s string) string {
	return strconv.Quote(s)
}

// UnsupportedErr is a convenience wrapper matching Unsupported
// kind, for bundle-package ResolveFunc implementations.
func UnsupportedErr(what, rpath string) error {
	return errs.Unsupported(what, rpath)
}
