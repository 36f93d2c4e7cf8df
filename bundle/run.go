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
	"bennypowers.dev/tsbundle/internal/config"
	"bennypowers.dev/tsbundle/internal/errs"
	"bennypowers.dev/tsbundle/internal/logging"
	"bennypowers.dev/tsbundle/internal/platform"
	"bennypowers.dev/tsbundle/registry"
)

// Entry is one resolved (source, output) pair this run builds.
type Entry struct {
	Path string
	Output string
}

// RunResult aggregates every entry's outcome from one invocation of Run.
type RunResult struct {
	Bundles map[string]*Bundle // output path → the Bundle that produced it, for watch mode
	Results map[string]*Result // output path → build result
	Errors map[string]error // entry path → build error, if any
}

// Run expands cfg's configured entries,
// resolves one output path per entry, and
// builds each in turn, skipping any entry whose resolved output was already
// claimed by an earlier entry in this run.
func Run(fsys platform.FileSystem, cfg *config.Config, reg *registry.Registry, baseDir string) (*RunResult, error) {
	paths, err := ExpandEntries(fsys, cfg, baseDir)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		Bundles: make(map[string]*Bundle),
		Results: make(map[string]*Result),
		Errors: make(map[string]error),
	}
	claimedBy := make(map[string]string)

	for _, entryPath := range paths {
		output := cfg.OutputForEntry(entryPath)
		if firstEntry, dup := claimedBy[output]; dup {
			logging.Warning("bundle: %s", errs.Duplicated(output))
			result.Errors[entryPath] = errs.Duplicated(output)
			_ = firstEntry
			continue
		}
		claimedBy[output] = entryPath

		b := New(fsys, effectiveConfig(cfg), reg, entryPath, output)
		built, buildErr := b.Build(entryPath)
		result.Bundles[output] = b
		if built != nil {
			result.Results[output] = built
			if writeErr := platform.WriteFileAtomic(fsys, output, built.Output, 0o644); writeErr != nil {
				buildErr = writeErr
			}
		}
		if buildErr != nil {
			result.Errors[entryPath] = buildErr
		}
	}
	return result, nil
}

// effectiveConfig applies the exportLib/"var NAME" override-and-warn: when
// exportLib is set and the module target is "var NAME"/"let NAME"/"const
// NAME", the bundle's global placeholder becomes NAME itself, overriding
// any explicitly configured globalModuleVarName, with a warning logged
// when that override actually changes something.
func effectiveConfig(cfg *config.Config) *config.Config {
	if !cfg.ExportLib || cfg.ExportStyle() != config.ExportVar {
		return cfg
	}
	name := cfg.ExportVarName()
	if name == "" || name == cfg.GlobalModuleVarName {
		return cfg
	}
	clone := *cfg
	if cfg.GlobalModuleVarName != "" && cfg.GlobalModuleVarName != "__tsb" {
		logging.Warning("bundle: exportLib overrides globalModuleVarName %q with export name %q", cfg.GlobalModuleVarName, name)
	}
	clone.GlobalModuleVarName = name
	return &clone
}
