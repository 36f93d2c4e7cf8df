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
	"strings"
	"testing"

	"bennypowers.dev/tsbundle/internal/config"
	"bennypowers.dev/tsbundle/internal/platform"
	"bennypowers.dev/tsbundle/registry"
)

// TestRun_MultiEntryWritesEachOutput covers entry list form: two
// entries resolve to two distinct outputs, and Run writes both to disk
// (the gap Build itself leaves, since Build only returns bytes).
func TestRun_MultiEntryWritesEachOutput(t *testing.T) {
	fsys := platform.NewMapFS(map[string]string{
		"/src/one.ts": "export const a = 1;\n",
		"/src/two.ts": "export const b = 2;\n",
	})
	reg := registry.GetInstance(fsys)

	cfg := config.Default()
	cfg.Module = "commonjs"
	cfg.Entry = []string{"/src/one.ts", "/src/two.ts"}
	cfg.Output = "/out/[name].js"

	result, err := Run(fsys, cfg, reg, "/")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected entry errors: %v", result.Errors)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 build results, got %d", len(result.Results))
	}

	for _, out := range []string{"/out/one.js", "/out/two.js"} {
		data, readErr := fsys.ReadFile(out)
		if readErr != nil {
			t.Fatalf("expected %s to be written to disk: %v", out, readErr)
		}
		if !strings.Contains(string(data), "module.exports") {
			t.Errorf("expected CommonJS tail in %s, got:\n%s", out, data)
		}
	}
}

// TestRun_DuplicatedOutputSkipsSecondEntry verifies that when two entries
// resolve to the same output path, the first wins and the second is recorded
// as a Duplicated error rather than silently overwriting the first.
func TestRun_DuplicatedOutputSkipsSecondEntry(t *testing.T) {
	fsys := platform.NewMapFS(map[string]string{
		"/src/one.ts": "export const a = 1;\n",
		"/src/two.ts": "export const b = 2;\n",
	})
	reg := registry.GetInstance(fsys)

	cfg := config.Default()
	cfg.Module = "commonjs"
	cfg.Entry = []string{"/src/one.ts", "/src/two.ts"}
	cfg.Output = "/out/same.js"

	result, err := Run(fsys, cfg, reg, "/")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Results) != 1 {
		t.Fatalf("expected exactly one successful build, got %d", len(result.Results))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected exactly one duplicated-output error, got %d: %v", len(result.Errors), result.Errors)
	}
	if buildErr, ok := result.Errors["/src/two.ts"]; !ok {
		t.Errorf("expected the second entry (/src/two.ts) to be the one skipped, errors: %v", result.Errors)
	} else if !strings.Contains(buildErr.Error(), "same.js") {
		t.Errorf("expected duplicated error to name the output path, got: %v", buildErr)
	}
}

// TestEffectiveConfig_ExportLibOverridesVarName verifies exportLib with
// module "var NAME" forces globalModuleVarName to NAME.
func TestEffectiveConfig_ExportLibOverridesVarName(t *testing.T) {
	cfg := config.Default()
	cfg.ExportLib = true
	cfg.Module = "var MyLib"
	cfg.GlobalModuleVarName = "__tsb"

	out := effectiveConfig(cfg)
	if out.GlobalModuleVarName != "MyLib" {
		t.Errorf("expected globalModuleVarName overridden to %q, got %q", "MyLib", out.GlobalModuleVarName)
	}
	if cfg.GlobalModuleVarName != "__tsb" {
		t.Errorf("effectiveConfig must not mutate the original Config, got %q", cfg.GlobalModuleVarName)
	}
}

// TestEffectiveConfig_NonVarModuleUnaffected covers the common case: when the
// module target isn't "var/let/const NAME", effectiveConfig is a no-op.
func TestEffectiveConfig_NonVarModuleUnaffected(t *testing.T) {
	cfg := config.Default()
	cfg.ExportLib = true
	cfg.Module = "commonjs"
	cfg.GlobalModuleVarName = "__tsb"

	out := effectiveConfig(cfg)
	if out != cfg {
		t.Errorf("expected the same Config pointer returned unchanged")
	}
}
