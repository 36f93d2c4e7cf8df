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

// Package resolver classifies a syntactic reference's specifier as external
// (left untouched against an externals glob), preimport (resolved via the
// host's require at runtime), or a local import resolved to an absolute
// path on disk, with the .js-sibling rewrite for binary/declaration-only
// modules.
package resolver

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"bennypowers.dev/tsbundle/cache"
	"bennypowers.dev/tsbundle/internal/idents"
	"bennypowers.dev/tsbundle/internal/platform"
)

// builtinModules is the set of Node built-in module specifiers that are
// always treated as Preimport references, checked before falling through
// to on-disk resolution.
var builtinModules = map[string]struct{}{
	"assert": {}, "buffer": {}, "child_process": {}, "cluster": {},
	"crypto": {}, "dgram": {}, "dns": {}, "domain": {}, "events": {},
	"fs": {}, "http": {}, "http2": {}, "https": {}, "net": {}, "os": {},
	"path": {}, "perf_hooks": {}, "process": {}, "punycode": {},
	"querystring": {}, "readline": {}, "repl": {}, "stream": {},
	"string_decoder": {}, "timers": {}, "tls": {}, "tty": {}, "url": {},
	"util": {}, "v8": {}, "vm": {}, "worker_threads": {}, "zlib": {},
}

// IsBuiltin reports whether specifier names a Node built-in module.
func IsBuiltin(specifier string) bool {
	_, ok := builtinModules[specifier]
	return ok
}

// candidateExts are tried, in order, when a bare specifier (no extension,
// or a declaration-only extension) is resolved against the filesystem.
var candidateExts = []string{"", ".ts", ".tsx", ".d.ts", ".js", ".jsx", ".json"}

// Resolution is the outcome of resolving one specifier from one referencing
// module.
type Resolution struct {
	// AbsPath is set when the specifier resolved to a local file.
	AbsPath string
	// External is non-zero for a Manual or Preimport reference.
	External cache.ExternalTarget
}

// Resolver resolves import/require/export specifiers against a bundle's
// configuration.
type Resolver struct {
	fs platform.FileSystem
	externals []string
	preimport map[string]struct{}
	bundleExternals bool
}

// New returns a Resolver for one bundle run.
func New(fsys platform.FileSystem, externals, preimport []string, bundleExternals bool) *Resolver {
	pre := make(map[string]struct{}, len(preimport))
	for _, p := range preimport {
		pre[p] = struct{}{}
	}
	return &Resolver{
		fs: fsys,
		externals: externals,
		preimport: pre,
		bundleExternals: bundleExternals,
	}
}

// matchesExternal reports whether specifier matches one of the configured
// externals globs, checked with doublestar.PathMatch.
func (r *Resolver) matchesExternal(specifier string) bool {
	for _, pattern := range r.externals {
		if ok, err := doublestar.PathMatch(pattern, specifier); err == nil && ok {
			return true
		}
	}
	return false
}

// isBarePackageSpecifier reports whether specifier names an npm package
// rather than a relative/absolute path.
func isBarePackageSpecifier(specifier string) bool {
	return !strings.HasPrefix(specifier, ".") && !strings.HasPrefix(specifier, "/")
}

// Resolve classifies and, where applicable, resolves specifier as imported
// from the module at fromDir (the importing module's directory).
func (r *Resolver) Resolve(specifier, fromDir string) Resolution {
	if r.matchesExternal(specifier) {
		return Resolution{External: cache.TargetManual}
	}
	if _, ok := r.preimport[specifier]; ok {
		return Resolution{External: cache.TargetPreimport}
	}
	if IsBuiltin(specifier) {
		return Resolution{External: cache.TargetPreimport}
	}
	if isBarePackageSpecifier(specifier) {
		if !r.bundleExternals {
			return Resolution{External: cache.TargetManual}
		}
		// bundleExternals inlines node_modules imports; resolution of the
		// package's own entry point is handled the same as any local path
		// once the caller supplies a node_modules-rooted fromDir.
	}

	joined := specifier
	if !filepath.IsAbs(specifier) {
		joined = filepath.Join(fromDir, specifier)
	}
	abs, ok := r.resolveOnDisk(joined)
	if !ok {
		return Resolution{}
	}
	return Resolution{AbsPath: abs}
}

// resolveOnDisk tries the bare path and then each candidate extension,
// mirroring PathResolver.ResolveSourcePath co-located
// strategy adapted to a generic extension-probe instead of ts/js
// replacement.
func (r *Resolver) resolveOnDisk(base string) (string, bool) {
	for _, ext := range candidateExts {
		candidate := base + ext
		if info, err := r.fs.Stat(candidate); err == nil && !info.IsDir() {
			return RewriteDeclarationSibling(r.fs, candidate), true
		}
	}
	// Directory import: try <base>/index.<ext>.
	for _, ext := range candidateExts[1:] {
		candidate := filepath.Join(base, "index"+ext)
		if info, err := r.fs.Stat(candidate); err == nil && !info.IsDir() {
			return RewriteDeclarationSibling(r.fs, candidate), true
		}
	}
	return "", false
}

// RewriteDeclarationSibling rewrites a script classified as a
// binary/declaration-only module to its .js sibling, if that sibling
// exists.
func RewriteDeclarationSibling(fsys platform.FileSystem, path string) string {
	if !strings.HasSuffix(path, ".d.ts") {
		return path
	}
	sibling := strings.TrimSuffix(path, ".d.ts") + ".js"
	if info, err := fsys.Stat(sibling); err == nil && !info.IsDir() {
		return sibling
	}
	return path
}

// DeclarationSidecar returns the .d.ts path that would accompany a .js
// source, for the cache's declaration-mtime tracking.
func DeclarationSidecar(sourcePath string) string {
	ext := filepath.Ext(sourcePath)
	if ext != ".js" && ext != ".jsx" {
		return ""
	}
	return strings.TrimSuffix(sourcePath, ext) + ".d.ts"
}

// VarNameFor is a thin re-export of idents.BaseName/Sanitize for callers
// that only have a Resolution in hand (bundle package Module construction).
func VarNameFor(disambiguator *idents.Disambiguator, apath string) string {
	return disambiguator.Assign(apath)
}
