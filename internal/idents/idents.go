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

// Package idents derives the short, collision-free identifiers the bundler
// assigns to modules inside the bundle's global placeholder object, and
// suggests a likely-intended specifier when one fails to resolve.
package idents

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/gosimple/slug"
)

var notIdentChar = regexp.MustCompile(`[^A-Za-z0-9_$]`)
var leadingDigit = regexp.MustCompile(`^[0-9]`)

// BaseName derives the unsanitised identifier candidate for a module path:
// the filename stem, or the parent directory name when the stem is "index"
// (so that "./widgets/index.ts" reads as "widgets", not "index").
func BaseName(apath string) string {
	stem := strings.TrimSuffix(filepath.Base(apath), filepath.Ext(apath))
	if stem == "index" {
		stem = filepath.Base(filepath.Dir(apath))
	}
	return stem
}

// Sanitize folds a candidate name to ASCII via slug and then restricts it to
// valid identifier characters, prefixing an underscore if it would otherwise
// start with a digit or be empty.
func Sanitize(candidate string) string {
	folded := slug.Make(candidate)
	folded = strings.ReplaceAll(folded, "-", "_")
	ident := notIdentChar.ReplaceAllString(folded, "_")
	if ident == "" {
		ident = "_"
	}
	if leadingDigit.MatchString(ident) {
		ident = "_" + ident
	}
	return ident
}

// Disambiguator assigns collision-free varNames within the scope of one
// bundle: a fresh candidate that is already in use is suffixed with a
// monotonically increasing integer, starting at 2.
type Disambiguator struct {
	used map[string]int
}

// NewDisambiguator returns an empty name scope.
func NewDisambiguator() *Disambiguator {
	return &Disambiguator{used: make(map[string]int)}
}

// Assign returns a varName for apath that has not yet been handed out by
// this Disambiguator.
func (d *Disambiguator) Assign(apath string) string {
	return d.AssignRaw(BaseName(apath))
}

// AssignRaw is Assign for a candidate that is already a bare name seed
// rather than a file path.
func (d *Disambiguator) AssignRaw(candidate string) string {
	base := Sanitize(candidate)
	next, taken := d.used[base]
	if !taken {
		d.used[base] = 2
		return base
	}
	for {
		name := fmt.Sprintf("%s%d", base, next)
		next++
		d.used[base] = next
		if _, collides := d.used[name]; !collides {
			d.used[name] = 2
			return name
		}
	}
}

// Reserve marks name as already taken without generating a fresh candidate,
// used when a persisted varName or a
// fixed reserved identifier (e.g. the entry module's varName) must not be
// handed out again to an unrelated module.
func (d *Disambiguator) Reserve(name string) {
	if _, taken := d.used[name]; !taken {
		d.used[name] = 2
	}
}

// Suggest returns the closest candidate to specifier among known, by edit
// distance, for a ModuleNotFound diagnostic's "did you mean" hint. Returns
// ("", false) when candidates is empty or nothing is close enough.
func Suggest(specifier string, candidates []string) (string, bool) {
	best := ""
	bestDist := -1
	for _, c := range candidates {
		dist := levenshtein.Distance(specifier, c, nil)
		if bestDist == -1 || dist < bestDist {
			bestDist = dist
			best = c
		}
	}
	if bestDist < 0 || bestDist > len(specifier)/2+2 {
		return "", false
	}
	return best, true
}
