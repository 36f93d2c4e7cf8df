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

// Package transform implements the Module Transformer: parse
// via the external engine, classify and rewrite imports, track free
// identifier globals, emit a wrapped chunk, and (for declaration-bearing
// modules) emit a .d.ts fragment.
package transform

import (
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"bennypowers.dev/tsbundle/internal/errs"
)

// Loader selects how the external parser interprets a source file.
type Loader int

const (
	LoaderTS Loader = iota
	LoaderTSX
	LoaderJS
	LoaderJSX
	LoaderJSON
)

func (l Loader) toAPI() api.Loader {
	switch l {
	case LoaderTSX:
		return api.LoaderTSX
	case LoaderJS:
		return api.LoaderJS
	case LoaderJSX:
		return api.LoaderJSX
	case LoaderJSON:
		return api.LoaderJSON
	default:
		return api.LoaderTS
	}
}

// LoaderForExt guesses the loader from a file extension.
func LoaderForExt(ext string) Loader {
	switch strings.ToLower(ext) {
	case ".tsx":
		return LoaderTSX
	case ".js", ".mjs", ".cjs":
		return LoaderJS
	case ".jsx":
		return LoaderJSX
	case ".json":
		return LoaderJSON
	default:
		return LoaderTS
	}
}

// ParseResult is Parse's output: the stripped-down JS the rest of the
// pipeline classifies, rewrites, and wraps, plus the engine's own raw source
// map for this one file.
type ParseResult struct {
	Code []byte
	SourceMap []byte
	Loader Loader
}

// Parse runs the external parser/transform engine (esbuild) over one
// module's source. JSON modules are returned untouched.
func Parse(source []byte, loader Loader) (*ParseResult, error) {
	if loader == LoaderJSON {
		return &ParseResult{Code: source, Loader: loader}, nil
	}

	// FormatDefault only strips TypeScript-only syntax; import/export
	// statements are preserved so the classify/rewrite pass below (tree-
	// sitter, not esbuild) performs the bundler's own import resolution,
	// steps 2-3.
	result := api.Transform(string(source), api.TransformOptions{
		Loader: loader.toAPI(),
		Target: api.ES2020,
		Format: api.FormatDefault,
		Sourcemap: api.SourceMapExternal,
		LegalComments: api.LegalCommentsNone,
	})

	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, m := range result.Errors {
			msgs[i] = m.Text
		}
		return nil, errs.Parse(strings.Join(msgs, "; "))
	}

	return &ParseResult{
		Code: result.Code,
		SourceMap: result.Map,
		Loader: loader,
	}, nil
}
