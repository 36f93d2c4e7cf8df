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

// Package stitcher implements the Source-Map Stitcher: it
// offsets and merges each module's own raw source map into one generator,
// shifting every mapping's generated line by the module's emission offset
// and rewriting "source" entries to paths relative to the output
// directory. This package runs in-process (names an
// auxiliary-worker-process variant as an equally valid implementer choice;
// the Bundle Assembler treats either as an opaque appender, so only the
// simpler in-process form is implemented here).
package stitcher

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"bennypowers.dev/tsbundle/internal/platform"
)

// rawSourceMap is the source-map v3 document shape emitted by the external
// parser/transform engine for one module.
type rawSourceMap struct {
	Version int `json:"version"`
	Sources []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names []string `json:"names"`
	Mappings string `json:"mappings"`
}

// mergedSourceMap is the stitched document written by Save.
type mergedSourceMap struct {
	Version int `json:"version"`
	File string `json:"file"`
	Sources []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names []string `json:"names"`
	Mappings string `json:"mappings"`
}

// Stitcher accumulates offset per-module mappings into one generator
//. It is safe for concurrent Append calls only when the
// caller serialises them under the same lock it uses to order writes to
// the output file: append order must
// match byte-emission order for generated.line offsets to stay correct.
type Stitcher struct {
	mu sync.Mutex
	outFile string
	outDir string
	lines [][]segment
	sources []string
	sourcesC []string
	names []string
	anyContent bool
}

// New returns a Stitcher for a bundle whose output file is outputPath.
func New(outputPath string) *Stitcher {
	return &Stitcher{
		outFile: filepath.Base(outputPath),
		outDir: filepath.Dir(outputPath),
	}
}

// Append merges one module's raw source map into the generator at the
// given generated-line offset.
func (s *Stitcher) Append(apath string, rawMap []byte, lineOffset int) error {
	if len(rawMap) == 0 {
		return nil
	}
	var raw rawSourceMap
	if err := json.Unmarshal(rawMap, &raw); err != nil {
		return fmt.Errorf("stitcher: parsing source map for %q: %w", apath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sourceIndexOffset := len(s.sources)
	nameIndexOffset := len(s.names)

	for i, src := range raw.Sources {
		s.sources = append(s.sources, relativeToOutputDir(s.outDir, src, apath))
		if i < len(raw.SourcesContent) {
			s.sourcesC = append(s.sourcesC, raw.SourcesContent[i])
			s.anyContent = true
		} else {
			s.sourcesC = append(s.sourcesC, "")
		}
	}
	s.names = append(s.names, raw.Names...)

	decoded := decodeMappings(raw.Mappings)
	for len(s.lines) < lineOffset {
		s.lines = append(s.lines, nil)
	}
	for i, line := range decoded {
		idx := lineOffset + i
		for len(s.lines) <= idx {
			s.lines = append(s.lines, nil)
		}
		adjusted := make([]segment, len(line))
		for j, seg := range line {
			adjusted[j] = seg
			if seg.hasSource {
				adjusted[j].srcIndex += sourceIndexOffset
				if seg.hasName {
					adjusted[j].nameIndex += nameIndexOffset
				}
			}
		}
		s.lines[idx] = append(s.lines[idx], adjusted...)
	}
	return nil
}

// relativeToOutputDir rewrites a module's own "source" entry (usually just
// its own file name, relative to itself) into a path relative to the
// bundle's output directory, normalised to forward slashes.
func relativeToOutputDir(outDir, source, apath string) string {
	abs := source
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(filepath.Dir(apath), source)
	}
	rel, err := filepath.Rel(outDir, abs)
	if err != nil {
		rel = abs
	}
	return filepath.ToSlash(rel)
}

// Save renders the merged map and writes it to outputPath via fsys.
func (s *Stitcher) Save(fsys platform.FileSystem, outputPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := mergedSourceMap{
		Version: 3,
		File: s.outFile,
		Sources: s.sources,
		Names: s.names,
		Mappings: encodeMappings(s.lines),
	}
	if s.anyContent {
		merged.SourcesContent = s.sourcesC
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("stitcher: encoding merged source map: %w", err)
	}
	return platform.WriteFileAtomic(fsys, outputPath, data, 0o644)
}

// DataURL renders the merged map as a base64 `data:` URL, the alternate
// output worker-process variant exposes as a `toDataURL`
// command.
func (s *Stitcher) DataURL() (string, error) {
	s.mu.Lock()
	merged := mergedSourceMap{
		Version: 3,
		File: s.outFile,
		Sources: s.sources,
		Names: s.names,
		Mappings: encodeMappings(s.lines),
	}
	if s.anyContent {
		merged.SourcesContent = s.sourcesC
	}
	s.mu.Unlock()

	data, err := json.Marshal(merged)
	if err != nil {
		return "", err
	}
	return "data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(data), nil
}
