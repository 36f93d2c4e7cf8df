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
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tsts "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// parserPool pools tree-sitter TypeScript parsers across refinements to
// avoid re-allocating one per module.
var parserPool = sync.Pool{
	New: func() any {
		p := sitter.NewParser()
		lang := sitter.NewLanguage(tsts.LanguageTypescript())
		_ = p.SetLanguage(lang)
		return p
	},
}

func retrieveParser() *sitter.Parser { return parserPool.Get().(*sitter.Parser) }
func putParser(p *sitter.Parser) { parserPool.Put(p) }

// RefKind distinguishes what shape of source text a RawReference's byte
// range spans, which determines how the rewrite pass may splice it:
// a call expression's range holds only the call itself, so a bare
// replacement is always safe, while a static import or re-export
// statement's range holds the whole statement, binding clause included.
type RefKind int

const (
	// RefCall is require(...) or import(...): StartByte/EndByte span only
	// the call expression, never a surrounding binding statement.
	RefCall RefKind = iota
	// RefStaticImport is `import ... from "spec";`: StartByte/EndByte span
	// the entire statement, so rewriting it must preserve the clause's
	// bound names rather than discard them.
	RefStaticImport
	// RefReExport is `export ... from "spec";`: same statement-spanning
	// concern as RefStaticImport, but the bound names land on `exports`
	// instead of a local scope.
	RefReExport
	// RefAmbientDeclaration is a `declare module "spec" {...}` or similar
	// type-only construct: never resolves to a bundled child.
	RefAmbientDeclaration
)

// RawReference is one syntactic reference to another module found during
// classification, with the byte offsets of the construct that carries the
// specifier (the call expression or the whole statement; see RefKind) so
// the rewrite pass can splice it precisely.
type RawReference struct {
	Specifier string
	StartByte uint
	EndByte uint
	Kind RefKind
	IsDynamic bool // import(...)
	IsRequire bool // require(...)
	IsDeclaration bool // import type / export type / ambient module decl
	IsReExport bool
	ArgCount int // for dynamic import: >1 argument is always Unsupported
}

// scanReferences walks the parse tree for every syntactic construct that
// references another module: static import,
// re-export, require-call, dynamic-import, import-equals, import-type, and
// external module declaration.
func scanReferences(source []byte) []RawReference {
	parser := retrieveParser()
	defer putParser(parser)

	tree := parser.Parse(source, nil)
	defer tree.Close()

	var refs []RawReference
	walk(tree.RootNode(), source, &refs)
	return refs
}

func walk(node *sitter.Node, source []byte, refs *[]RawReference) {
	if node == nil {
		return
	}
	switch node.Kind() {
	case "import_statement":
		isTypeOnly := hasTypeKeyword(node, source)
		if src := node.ChildByFieldName("source"); src != nil {
			if spec, ok := stringLiteralContents(src, source); ok {
				*refs = append(*refs, RawReference{
					Specifier: spec,
					StartByte: uint(node.StartByte()),
					EndByte: uint(node.EndByte()),
					Kind: RefStaticImport,
					IsDeclaration: isTypeOnly,
				})
			}
		}
	case "export_statement":
		if src := node.ChildByFieldName("source"); src != nil {
			if spec, ok := stringLiteralContents(src, source); ok {
				*refs = append(*refs, RawReference{
					Specifier: spec,
					StartByte: uint(node.StartByte()),
					EndByte: uint(node.EndByte()),
					Kind: RefReExport,
					IsReExport: true,
					IsDeclaration: hasTypeKeyword(node, source),
				})
			}
		}
	case "import_require_clause":
		// `import x = require('specifier')` (import-equals).
		if src := node.NamedChild(node.NamedChildCount() - 1); src != nil {
			if spec, ok := stringLiteralContents(src, source); ok {
				*refs = append(*refs, RawReference{
					Specifier: spec,
					StartByte: uint(node.StartByte()),
					EndByte: uint(node.EndByte()),
					Kind: RefCall,
					IsRequire: true,
				})
			}
		}
	case "call_expression":
		fn := node.ChildByFieldName("function")
		args := node.ChildByFieldName("arguments")
		if fn != nil && args != nil {
			kind := fn.Kind()
			text := fn.Utf8Text(source)
			argCount := int(args.NamedChildCount())
			if kind == "import" || text == "import" {
				ref := RawReference{
					StartByte: uint(node.StartByte()),
					EndByte: uint(node.EndByte()),
					Kind: RefCall,
					IsDynamic: true,
					ArgCount: argCount,
				}
				if argCount > 0 {
					if spec, ok := stringLiteralContents(args.NamedChild(0), source); ok {
						ref.Specifier = spec
					}
					// A non-literal first argument leaves ref.Specifier empty;
					// the rewrite pass treats that as Unsupported unless
					// suppressDynamicImportErrors is set.
				}
				*refs = append(*refs, ref)
			} else if text == "require" && argCount > 0 {
				if spec, ok := stringLiteralContents(args.NamedChild(0), source); ok {
					*refs = append(*refs, RawReference{
						Specifier: spec,
						StartByte: uint(node.StartByte()),
						EndByte: uint(node.EndByte()),
						Kind: RefCall,
						IsRequire: true,
					})
				}
			}
		}
	case "ambient_declaration", "module_declaration":
		// External module declarations are collected for the declarations
		// pass only; they never resolve to a bundled child.
		if name := node.ChildByFieldName("name"); name != nil {
			if spec, ok := stringLiteralContents(name, source); ok {
				*refs = append(*refs, RawReference{
					Specifier: spec,
					StartByte: uint(node.StartByte()),
					EndByte: uint(node.EndByte()),
					Kind: RefAmbientDeclaration,
					IsDeclaration: true,
				})
			}
		}
	}

	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		walk(node.Child(uint(i)), source, refs)
	}
}

func hasTypeKeyword(node *sitter.Node, source []byte) bool {
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		child := node.Child(uint(i))
		if child != nil && child.Kind() == "type" {
			return true
		}
	}
	_ = source
	return false
}

func stringLiteralContents(node *sitter.Node, source []byte) (string, bool) {
	if node == nil {
		return "", false
	}
	n := node
	if n.Kind() == "string" {
		if frag := n.NamedChild(0); frag != nil {
			return frag.Utf8Text(source), true
		}
		return "", false
	}
	if n.Kind() == "string_fragment" {
		return n.Utf8Text(source), true
	}
	return "", false
}
