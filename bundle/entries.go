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
	"strings"

	"github.com/bmatcuk/doublestar"
	ignore "github.com/sabhiram/go-gitignore"

	"bennypowers.dev/tsbundle/internal/config"
	"bennypowers.dev/tsbundle/internal/platform"
)

// ExpandEntries resolves cfg.Entry into concrete, absolute entry file paths
// relative to baseDir.
//
// When cfg.ExportLib is set, each configured entry is treated as a
// doublestar glob against baseDir instead of a literal path: the pattern is
// joined to an absolute, OS-rooted path and walked with doublestar.Glob,
// and each match is reported as an absolute path unless its
// baseDir-relative path is ignored by baseDir/.gitignore.
func ExpandEntries(fsys platform.FileSystem, cfg *config.Config, baseDir string) ([]string, error) {
	matcher := loadGitignore(fsys, baseDir)

	if !cfg.ExportLib {
		out := make([]string, 0, len(cfg.Entry))
		for _, e := range cfg.Entry {
			out = append(out, absEntry(baseDir, e))
		}
		return out, nil
	}

	var out []string
	seen := make(map[string]struct{})
	for _, pattern := range cfg.Entry {
		matches, err := doublestar.Glob(joinGlob(baseDir, pattern))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			rel, relErr := filepath.Rel(baseDir, m)
			if relErr == nil && matcher != nil && matcher.MatchesPath(filepath.ToSlash(rel)) {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}

// loadGitignore reads baseDir/.gitignore, if present, into a matcher; a
// missing file yields a nil matcher.
func loadGitignore(fsys platform.FileSystem, baseDir string) *ignore.GitIgnore {
	data, err := fsys.ReadFile(filepath.Join(baseDir, ".gitignore"))
	if err != nil {
		return nil
	}
	return ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
}

func absEntry(baseDir, entry string) string {
	if filepath.IsAbs(entry) {
		return entry
	}
	return filepath.Join(baseDir, entry)
}

// joinGlob joins baseDir onto pattern for doublestar.Glob, which runs
// directly against the OS filesystem rather than an fs.FS, so the pattern
// is free to be an absolute path.
func joinGlob(baseDir, pattern string) string {
	if filepath.IsAbs(pattern) {
		return pattern
	}
	return filepath.Join(baseDir, pattern)
}
