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

// Package cache implements the two-tier incremental refinement cache
//: an in-memory byte-budgeted LRU keyed by module number, and
// an on-disk NUL-delimited file per number, both validated by a triple of
// mtimes (source, declaration side-file, configuration).
package cache

import "time"

// ExternalTarget tags an ImportInfo whose target is not a resolved local
// path: a small negative integer encoding an external mode.
type ExternalTarget int32

const (
	// TargetManual marks a reference left untouched because it matched an
	// externals glob.
	TargetManual ExternalTarget = -1
	// TargetPreimport marks a reference resolved via the host's require at
	// runtime.
	TargetPreimport ExternalTarget = -2
)

// ImportInfo records one resolved reference out of a module.
type ImportInfo struct {
	// Target is an absolute path for a resolved local dependency, or empty
	// when External is set to a negative mode.
	Target string `json:"target,omitempty"`
	// External is 0 for a resolved local import, else one of the
	// ExternalTarget constants.
	External ExternalTarget `json:"external,omitempty"`
	ModuleSpecifier string `json:"moduleSpecifier"`
	CodePos int `json:"codePos"`
	HasCodePos bool `json:"hasCodePos"`
	IsDeclaration bool `json:"isDeclaration"`
}

// RefinedModule is the transform result for one module. The
// invariant OutputLineCount == count('\n', Content) and Size ≈
// len(Content)+padding are maintained by the Module Transformer, not by the
// cache itself.
type RefinedModule struct {
	Id uint32
	FirstLineComment string
	SourceMapOutputLineOffset int
	OutputLineCount int
	Imports []ImportInfo
	Content []byte
	Declaration []byte
	GlobalDeclaration []byte
	SourceMapText []byte
	SourceMtime time.Time
	DeclarationMtime time.Time
	ConfigMtime time.Time
	Errored bool
	Size int64
}

// mtimesMatch reports whether this module's stored mtimes match the
// observed triple exactly.
func (r *RefinedModule) mtimesMatch(srcMtime, dtsMtime, configMtime time.Time) bool {
	return r.SourceMtime.Equal(srcMtime) &&
		r.DeclarationMtime.Equal(dtsMtime) &&
		r.ConfigMtime.Equal(configMtime)
}
