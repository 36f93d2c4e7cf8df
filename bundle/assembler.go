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
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"bennypowers.dev/tsbundle/cache"
	"bennypowers.dev/tsbundle/internal/config"
	"bennypowers.dev/tsbundle/internal/errs"
	"bennypowers.dev/tsbundle/internal/idents"
	"bennypowers.dev/tsbundle/internal/logging"
	"bennypowers.dev/tsbundle/internal/platform"
	"bennypowers.dev/tsbundle/registry"
	"bennypowers.dev/tsbundle/resolver"
	"bennypowers.dev/tsbundle/stitcher"
	"bennypowers.dev/tsbundle/transform"
)

// Result is what Build returns: the bytes written, whether any module
// errored, and the dependency list watch
// mode needs.
type Result struct {
	Output []byte
	Errored bool
	Dependencies []string // apaths of every module touched by this run
	CycleErrors []error
}

// Bundle is the Bundle Assembler: one output path, one
// global-placeholder name, a compiled-options snapshot, an in-memory
// apath→Module map, a deplist, a concurrency queue, a writer lock, and an
// accumulating line offset.
type Bundle struct {
	fs platform.FileSystem
	cfg *config.Config
	reg *registry.Registry
	cacheTop *cache.Cache
	resolve *resolver.Resolver
	baseDir string
	output string
	global string

	mu sync.Mutex
	modules map[string]*BundlerModule
	disambiguator *idents.Disambiguator
	innerMap *registry.InnerMap

	preMu sync.Mutex
	preimportNames map[string]string
	preimportOrder []string
	usesDirname bool
	usesResolve bool

	queue *ConcurrencyQueue

	writerMu sync.Mutex
	buf bytes.Buffer
	lineOffset int
	stitch *stitcher.Stitcher

	declMu sync.Mutex
	declBuf bytes.Buffer

	entry *BundlerModule

	runMu sync.Mutex
	running bool
}

// New constructs a Bundle for one entry file. cfg must
// already have ConfigMtime populated; internal/config.Load leaves it zero,
// and cmd's loadConfig sets it from the config file's own mtime.
func New(fsys platform.FileSystem, cfg *config.Config, reg *registry.Registry, entryPath, outputPath string) *Bundle {
	global := cfg.GlobalModuleVarName
	if global == "" {
		global = "__tsb"
	}
	disambiguator := idents.NewDisambiguator()
	disambiguator.Reserve(entryVarName)

	b := &Bundle{
		fs: fsys,
		cfg: cfg,
		reg: reg,
		cacheTop: cache.New(fsys, reg.CacheDir(), cfg.CacheMemory),
		resolve: resolver.New(fsys, cfg.Externals, cfg.Preimport, cfg.BundleExternals),
		baseDir: filepath.Dir(entryPath),
		output: outputPath,
		global: global,
		modules: make(map[string]*BundlerModule),
		disambiguator: disambiguator,
		innerMap: reg.GetCacheMap(outputPath),
		preimportNames: make(map[string]string),
		queue: NewConcurrencyQueue(concurrencyOf(cfg)),
		stitch: stitcher.New(outputPath),
	}
	return b
}

func concurrencyOf(cfg *config.Config) int {
	if cfg.Concurrency > 0 {
		return cfg.Concurrency
	}
	return 8
}

// Build runs the bundle algorithm.
func (b *Bundle) Build(entryPath string) (*Result, error) {
	b.runMu.Lock()
	if b.running {
		b.runMu.Unlock()
		return nil, errs.Internal("bundler is busy")
	}
	b.running = true
	b.runMu.Unlock()
	defer func() {
		b.runMu.Lock()
		b.running = false
		b.runMu.Unlock()
	}()

	// Step 2: resolve the entry, construct its Module.
	entryRPath := b.rpathOf(entryPath)
	entry, err := b.getOrCreateModule(entryPath, entryRPath)
	if err != nil {
		return nil, err
	}
	entry.IsEntry = true
	entry.IsAppended = true
	entry.VarName = entryVarName
	b.entry = entry

	// Step 3: refine the entry on the calling goroutine; this both seeds the
	// prelude (alwaysStrict) and discovers the entry's
	// direct children via the same classify/resolve pass every module uses.
	entryRefined, err := b.refineModule(entry)
	if err != nil {
		return nil, errs.WrapModule(entryRPath, err)
	}
	b.appendDeclaration(entry, entryRefined)

	// Step 4: open the writer under the writer lock; write the prelude.
	alwaysStrict := bytes.Contains(entryRefined.Content, []byte(`"use strict";`))
	b.writerMu.Lock()
	b.writePrelude(entryRefined, alwaysStrict)
	b.writerMu.Unlock()

	// Step 5: submit entry's already-discovered direct children. Each task
	// recursively seeds its own children the same way.
	for _, child := range entry.Children() {
		if child.IsEntry || !child.tryClaim() {
			continue
		}
		b.enqueue(child)
	}

	queueErr := b.queue.OnceEnd()

	// Step 6: preimport properties + optional resolver methods.
	b.writerMu.Lock()
	b.writePreimports()
	b.writerMu.Unlock()

	// The entry chunk is the bundle object's final property, with the same
	// wrapper shape as every other module rather than a distinct top-level
	// shape.
	b.writerMu.Lock()
	b.buf.Write(entryRefined.Content)
	b.advanceOffsetLocked(entryPath, entryRefined)
	b.buf.WriteString("};\n")
	b.writeTail()
	b.writerMu.Unlock()

	b.cacheTop.Store(entryRefined, b.reg.NameLock(entry.Id))
	b.cacheTop.Release(entry.Id)

	var cycleErrors []error
	if b.cfg.CheckCircularDependency {
		cycleErrors = detectCycles(entry)
	}

	b.reg.SaveCacheJson()

	memStats := b.cacheTop.Stats()
	logging.Debug("bundle: cache hits=%d misses=%d evictions=%d", memStats.Hits, memStats.Misses, memStats.Evictions)

	if err := b.stitch.Save(b.fs, b.output+".map"); err != nil {
		logging.Warning("bundle: saving source map: %v", err)
	}
	if err := b.writeDeclarationFile(); err != nil {
		logging.Warning("bundle: writing declaration file: %v", err)
	}

	deps := b.dependencyList()
	errored := b.cacheTop.Errored() || entryRefined.Errored || b.anyModuleErrored()
	if queueErr != nil {
		return &Result{Output: b.buf.Bytes(), Errored: true, Dependencies: deps, CycleErrors: cycleErrors}, queueErr
	}
	return &Result{Output: b.buf.Bytes(), Errored: errored, Dependencies: deps, CycleErrors: cycleErrors}, nil
}

// enqueue submits child for bounded-concurrency refinement-then-append.
func (b *Bundle) enqueue(child *BundlerModule) {
	b.queue.Run(func(ctx context.Context) error {
		refined, err := b.refineModule(child)
		if err != nil {
			return errs.WrapModule(child.RPath, err)
		}
		b.appendDeclaration(child, refined)
		b.writerMu.Lock()
		b.buf.Write(refined.Content)
		b.advanceOffsetLocked(child.MPath, refined)
		b.writerMu.Unlock()

		child.IsAppended = true
		b.cacheTop.Store(refined, b.reg.NameLock(child.Id))
		b.cacheTop.Release(child.Id)
		for _, grandchild := range child.Children() {
			if grandchild.IsEntry || !grandchild.tryClaim() {
				continue
			}
			b.enqueue(grandchild)
		}
		return nil
	})
}

// advanceOffsetLocked implements the writer-lock contract: while holding
// the writer lock, advance lineOffset by the chunk's outputLineCount and
// submit its source-map text, offset, to the Stitcher. Callers must hold
// b.writerMu.
func (b *Bundle) advanceOffsetLocked(apath string, refined *cache.RefinedModule) {
	offset := b.lineOffset + refined.SourceMapOutputLineOffset
	if len(refined.SourceMapText) > 0 {
		if err := b.stitch.Append(apath, refined.SourceMapText, offset); err != nil {
			logging.Warning("bundle: stitching source map: %v", err)
		}
	}
	b.lineOffset += refined.OutputLineCount
}

// refineModule runs the cache lookup, falling back to a full transform
//, discovering and claiming this
// module's local children along the way via its Resolve closure.
//
// A failure refining the entry module is a per-bundle error (the spec's
// "missing config, duplicated outputs, parser crash on the entry" class)
// and is returned to the caller, which aborts the run. A failure refining
// any other module is a per-module error: it must not abort the bundle, so
// it is instead turned into an errorStub and returned successfully; see
// moduleFailed.
func (b *Bundle) refineModule(m *BundlerModule) (*cache.RefinedModule, error) {
	declPath := resolver.DeclarationSidecar(m.MPath)
	stats := cache.StatSource(b.fs, m.MPath, declPath)
	nameLock := b.reg.NameLock(m.Id)

	if refined := b.cacheTop.GetRefined(m.Id, nameLock, stats, b.cfg.ConfigMtime); refined != nil {
		m.setRefined(refined)
		b.seedChildrenFromImports(m, refined.Imports)
		return refined, nil
	}

	source, err := b.fs.ReadFile(m.MPath)
	if err != nil {
		return b.moduleFailed(m, errs.ModuleNotFound(m.MPath, m.RPath))
	}
	loader := transform.LoaderForExt(filepath.Ext(m.MPath))
	parsed, err := transform.Parse(source, loader)
	if err != nil {
		return b.moduleFailed(m, err)
	}

	var hadUnresolvedRef bool
	wrapped, err := transform.Wrap(parsed, transform.WrapOptions{
		RPath: m.RPath,
		VarName: m.VarName,
		GlobalVar: b.global,
		IsEntry: m.IsEntry,
		ESMethodSyntax: true,
		Resolve: b.resolveFor(m, &hadUnresolvedRef),
	})
	if err != nil {
		return b.moduleFailed(m, err)
	}

	if bytes.Contains(wrapped.Content, []byte(b.global+".__dirname(")) {
		b.usesDirname = true
	}
	if bytes.Contains(wrapped.Content, []byte(b.global+".__resolve(")) {
		b.usesResolve = true
	}

	var declaration, globalDeclaration []byte
	if declPath != "" {
		if raw, err := b.fs.ReadFile(declPath); err == nil {
			if global := transform.ExtractGlobalDeclaration(raw); global != nil {
				globalDeclaration = global
			} else {
				declaration = transform.RewriteDeclaration(raw, b.global, b.qualifiedNameResolver())
			}
		}
	}

	refined := &cache.RefinedModule{
		Id: m.Id,
		FirstLineComment: wrapped.FirstLineComment,
		SourceMapOutputLineOffset: wrapped.SourceMapOutputLineOffset,
		OutputLineCount: wrapped.OutputLineCount,
		Imports: wrapped.Imports,
		Content: wrapped.Content,
		Declaration: declaration,
		GlobalDeclaration: globalDeclaration,
		SourceMapText: parsed.SourceMap,
		SourceMtime: stats.SourceMtime,
		DeclarationMtime: stats.DeclarationMtime,
		ConfigMtime: b.cfg.ConfigMtime,
		Size: int64(len(wrapped.Content) + len(parsed.SourceMap) + len(declaration) + len(globalDeclaration)),
		// A reference inside m that could not be resolved (see
		// resolveFor's default/Unsupported cases) was already rewritten
		// to a throwing placeholder expression, so m's own Content is
		// still valid JS; it is excluded from the cache so that a later
		// run, once the missing target exists, re-refines instead of
		// replaying the stale throw.
		Errored: hadUnresolvedRef,
	}
	m.setRefined(refined)
	return refined, nil
}

// moduleFailed implements §7 partial failure: the entry aborts the run on
// its own refinement failure, but any other module is marked errored and
// given an errorStub in place of a real refinement, so the rest of the
// bundle's modules still refine and the final script is still written.
func (b *Bundle) moduleFailed(m *BundlerModule, cause error) (*cache.RefinedModule, error) {
	if m.IsEntry {
		return &cache.RefinedModule{Id: m.Id, Errored: true}, cause
	}
	logging.Warning("bundle: %s: %v", m.RPath, cause)
	refined := errorStub(m, b.global, cause)
	m.setRefined(refined)
	return refined, nil
}

// errorStub builds the wrapped chunk for a module that failed to refine: a
// bundle-object property of the ordinary shape, whose body throws cause the
// first time anything invokes it, per the placeholder-function-that-throws
// requirement for a missing or broken local module.
func errorStub(m *BundlerModule, global string, cause error) *cache.RefinedModule {
	var buf bytes.Buffer
	provenance := "// " + m.RPath + "\n"
	buf.WriteString(provenance)
	buf.WriteString(m.VarName + "(){\n")
	buf.WriteString("if (" + global + "." + m.VarName + ".exports != null) return " + global + "." + m.VarName + ".exports;\n")
	buf.WriteString("throw new Error(" + strconv.Quote(cause.Error()) + ");\n")
	buf.WriteString("},\n")
	content := buf.Bytes()
	return &cache.RefinedModule{
		Id: m.Id,
		FirstLineComment: provenance,
		Content: content,
		OutputLineCount: bytes.Count(content, []byte("\n")),
		Errored: true,
	}
}

// throwingExpr is the inline placeholder spliced for a single reference
// this bundler could not resolve: valid in either statement or expression
// position, it throws cause the first time it runs, leaving the rest of
// the containing module's code intact and runnable.
func throwingExpr(cause error) string {
	return "(function(){ throw new Error(" + strconv.Quote(cause.Error()) + "); })()"
}

// seedChildrenFromImports rebuilds m's Children() list from a cache-hit
// RefinedModule's persisted Imports, so a cached module's subtree is still
// traversed and submitted to the queue even though no transform ran.
func (b *Bundle) seedChildrenFromImports(m *BundlerModule, imports []cache.ImportInfo) {
	for _, imp := range imports {
		if imp.External != 0 || imp.Target == "" {
			continue
		}
		child, err := b.getOrCreateModule(imp.Target, b.rpathOf(imp.Target))
		if err != nil {
			continue
		}
		m.addChild(child, imp)
	}
}

// resolveFor returns the transform.ResolveFunc closure classifying and
// resolving one reference found inside m. A reference this bundler cannot
// resolve does not fail m's own refinement: it is rewritten to a
// throwingExpr placeholder and *errored is set so the caller excludes m
// from the cache (see refineModule's hadUnresolvedRef).
func (b *Bundle) resolveFor(m *BundlerModule, errored *bool) transform.ResolveFunc {
	return func(ref transform.RawReference) (transform.ResolvedTarget, error) {
		if ref.IsDynamic && transform.DynamicImportUnsupported(ref) {
			if b.cfg.SuppressDynamicImportErrors {
				return transform.ResolvedTarget{Skip: true}, nil
			}
			cause := transform.UnsupportedErr("dynamic import with a non-literal argument", m.RPath)
			logging.Warning("bundle: %s: %v", m.RPath, cause)
			*errored = true
			return transform.ResolvedTarget{Replacement: throwingExpr(cause)}, nil
		}
		if ref.Specifier == "" {
			return transform.ResolvedTarget{Skip: true}, nil
		}

		res := b.resolve.Resolve(ref.Specifier, filepath.Dir(m.MPath))
		switch {
		case res.External == cache.TargetManual:
			return transform.ResolvedTarget{Skip: true}, nil

		case res.External == cache.TargetPreimport:
			varName := b.preimportVarName(ref.Specifier)
			return transform.ResolvedTarget{
				Replacement: b.global + "." + varName,
				RecordImport: true,
				Import: cache.ImportInfo{
					ModuleSpecifier: ref.Specifier,
					External: cache.TargetPreimport,
					CodePos: int(ref.StartByte),
					HasCodePos: true,
					IsDeclaration: ref.IsDeclaration,
				},
			}, nil

		case res.AbsPath != "":
			child, err := b.getOrCreateModule(res.AbsPath, b.rpathOf(res.AbsPath))
			if err != nil {
				return transform.ResolvedTarget{}, err
			}
			imp := cache.ImportInfo{
				Target: res.AbsPath,
				ModuleSpecifier: ref.Specifier,
				CodePos: int(ref.StartByte),
				HasCodePos: true,
				IsDeclaration: ref.IsDeclaration,
			}
			m.addChild(child, imp)
			return transform.ResolvedTarget{
				Replacement: b.global + "." + child.VarName + "()",
				RecordImport: true,
				Import: imp,
			}, nil

		default:
			suggestion, ok := idents.Suggest(ref.Specifier, b.knownSpecifiers())
			msg := ref.Specifier
			if ok {
				msg = fmt.Sprintf("%s (did you mean %q?)", ref.Specifier, suggestion)
			}
			cause := errs.ModuleNotFound(msg, m.RPath)
			logging.Warning("bundle: %s: %v", m.RPath, cause)
			*errored = true
			return transform.ResolvedTarget{Replacement: throwingExpr(cause)}, nil
		}
	}
}

func (b *Bundle) knownSpecifiers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.modules))
	for _, m := range b.modules {
		out = append(out, m.RPath)
	}
	return out
}

// qualifiedNameResolver adapts resolveFor's module graph for declaration
// emission: a specifier resolves to its child's varName iff it
// names an already-discovered local module.
func (b *Bundle) qualifiedNameResolver() transform.QualifiedNameResolver {
	return func(specifier string) (string, bool) {
		res := b.resolve.Resolve(specifier, b.baseDir)
		if res.AbsPath == "" {
			return "", false
		}
		b.mu.Lock()
		child, ok := b.modules[res.AbsPath]
		b.mu.Unlock()
		if !ok {
			return "", false
		}
		return child.VarName, true
	}
}

// getOrCreateModule returns the existing BundlerModule for apath or
// allocates one: a persisted {number, varName} from the registry's InnerMap
// if one exists for this output, else a fresh id and disambiguated varName.
func (b *Bundle) getOrCreateModule(apath, rpath string) (*BundlerModule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.modules[apath]; ok {
		return m, nil
	}

	var id uint32
	var varName string
	if entry, ok := b.innerMap.Get(apath); ok {
		id = entry.Number
		varName = entry.VarName
		b.disambiguator.Reserve(varName)
	} else {
		id = b.reg.AllocateCacheId()
		varName = b.disambiguator.Assign(apath)
		b.innerMap.Set(apath, registry.ModuleIdEntry{Number: id, VarName: varName})
	}

	m := &BundlerModule{Id: id, RPath: rpath, MPath: apath, VarName: varName}
	b.modules[apath] = m
	return m, nil
}

func (b *Bundle) rpathOf(apath string) string {
	rel, err := filepath.Rel(b.baseDir, apath)
	if err != nil {
		return apath
	}
	return filepath.ToSlash(rel)
}

// anyModuleErrored reports whether any discovered module's refinement (the
// entry's included) ended up a placeholder or carried an unresolved
// reference, for Result.Errored: a partial failure still aborts nothing,
// but it must still be visible to the caller.
func (b *Bundle) anyModuleErrored() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.modules {
		if r := m.getRefined(); r != nil && r.Errored {
			return true
		}
	}
	return false
}

// dependencyList exposes every module touched by this run, for watch mode's
// change → affected-modules lookup.
func (b *Bundle) dependencyList() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.modules))
	for apath := range b.modules {
		out = append(out, apath)
	}
	return out
}

