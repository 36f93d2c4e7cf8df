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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseEntry_BarePath(t *testing.T) {
	entries, outputs, err := parseEntry("src/index.ts")
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	if len(entries) != 1 || entries[0] != "src/index.ts" {
		t.Errorf("got %v", entries)
	}
	if len(outputs) != 0 {
		t.Errorf("expected no per-entry overrides, got %v", outputs)
	}
}

func TestParseEntry_List(t *testing.T) {
	entries, _, err := parseEntry([]any{"src/a.ts", "src/b.ts"})
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	if len(entries) != 2 || entries[0] != "src/a.ts" || entries[1] != "src/b.ts" {
		t.Errorf("got %v", entries)
	}
}

func TestParseEntry_ListRejectsNonStringItem(t *testing.T) {
	if _, _, err := parseEntry([]any{"src/a.ts", 42}); err == nil {
		t.Fatalf("expected an error for a non-string entry list item")
	}
}

func TestParseEntry_MapWithStringOutput(t *testing.T) {
	entries, outputs, err := parseEntry(map[string]any{
		"src/a.ts": "dist/a.js",
	})
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	if len(entries) != 1 || entries[0] != "src/a.ts" {
		t.Errorf("got %v", entries)
	}
	if outputs["src/a.ts"] != "dist/a.js" {
		t.Errorf("got outputs %v", outputs)
	}
}

func TestParseEntry_MapWithNestedOutputKey(t *testing.T) {
	entries, outputs, err := parseEntry(map[string]any{
		"src/a.ts": map[string]any{"output": "dist/a.js"},
	})
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %v", entries)
	}
	if outputs["src/a.ts"] != "dist/a.js" {
		t.Errorf("got outputs %v", outputs)
	}
}

func TestParseEntry_UnsupportedType(t *testing.T) {
	if _, _, err := parseEntry(42); err == nil {
		t.Fatalf("expected an error for an unsupported entry value type")
	}
}

func TestOutputForEntry_DefaultTemplate(t *testing.T) {
	cfg := Default()
	got := cfg.OutputForEntry(filepath.Join("src", "foo.ts"))
	want := filepath.ToSlash(filepath.Join("src", "foo.js"))
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOutputForEntry_CustomTemplate(t *testing.T) {
	cfg := Default()
	cfg.Output = "build/[name].bundle.js"
	got := cfg.OutputForEntry("src/foo.ts")
	if got != "build/foo.bundle.js" {
		t.Errorf("got %q", got)
	}
}

func TestOutputForEntry_PerEntryOverrideWins(t *testing.T) {
	cfg := Default()
	cfg.Output = "build/[name].js"
	cfg.EntryOutputs = map[string]string{"src/foo.ts": "dist/custom.js"}
	if got := cfg.OutputForEntry("src/foo.ts"); got != "dist/custom.js" {
		t.Errorf("got %q", got)
	}
}

func TestLoad_EntryMapForm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tsbundle.yaml")
	fixture, err := yaml.Marshal(map[string]any{
		"entry": map[string]string{"src/a.ts": "dist/a.js"},
		"module": "commonjs",
	})
	if err != nil {
		t.Fatalf("marshaling fixture: %v", err)
	}
	if err := os.WriteFile(path, fixture, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Entry) != 1 || cfg.Entry[0] != "src/a.ts" {
		t.Errorf("got entry %v", cfg.Entry)
	}
	if cfg.EntryOutputs["src/a.ts"] != "dist/a.js" {
		t.Errorf("got entryOutputs %v", cfg.EntryOutputs)
	}
	if cfg.ExportStyle() != ExportCommonJS {
		t.Errorf("expected commonjs export style")
	}
}

func TestLoad_CacheMemorySuffix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tsbundle.yaml")
	fixture, err := yaml.Marshal(map[string]any{
		"entry": "src/a.ts",
		"cacheMemory": "512M",
	})
	if err != nil {
		t.Fatalf("marshaling fixture: %v", err)
	}
	if err := os.WriteFile(path, fixture, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheMemory != 512<<20 {
		t.Errorf("got cacheMemory %d", cfg.CacheMemory)
	}
}
