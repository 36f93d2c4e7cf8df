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

// Package config loads the bundler's Config struct from a YAML
// or JSON file via viper. Parsing tsconfig and the compiler-options
// passthrough is an external collaborator's job; this package
// only fills in the closed set of options the Assembler itself consumes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var envPlaceholder = regexp.MustCompile(`\[([A-Za-z_][A-Za-z0-9_]*)\]`)

// ExportStyle selects how an entry module exposes its result.
type ExportStyle int

const (
	ExportNone ExportStyle = iota
	ExportCommonJS
	ExportES2015
	ExportVar
	ExportDirect
)

// Config is the closed set of options the bundler accepts. All fields are
// optional except Entry.
type Config struct {
	// Entry holds the expanded entry path list. The raw config value may be
	// a single path, a path[] array, or a {path → output} map; Load resolves
	// all three shapes into this slice plus EntryOutputs, since mapstructure
	// can't unmarshal a union type directly.
	Entry []string `mapstructure:"-"`
	EntryOutputs map[string]string `mapstructure:"-"`
	Output string `mapstructure:"output"`
	Module string `mapstructure:"module"`
	GlobalModuleVarName string `mapstructure:"globalModuleVarName"`
	ClearConsole bool `mapstructure:"clearConsole"`
	WatchWaiting time.Duration `mapstructure:"-"`
	Verbose bool `mapstructure:"verbose"`
	CheckCircularDependency bool `mapstructure:"checkCircularDependency"`
	SuppressDynamicImportErrors bool `mapstructure:"suppressDynamicImportErrors"`
	Faster bool `mapstructure:"faster"`
	BundleExternals bool `mapstructure:"bundleExternals"`
	Externals []string `mapstructure:"externals"`
	Preimport []string `mapstructure:"preimport"`
	CacheMemory int64 `mapstructure:"-"`
	ExportLib bool `mapstructure:"exportLib"`
	Concurrency int `mapstructure:"concurrency"`
	CompilerOptions map[string]any `mapstructure:"compilerOptions"`

	// ConfigMtime seeds RefinedModule.configMtime; set by the
	// caller after reading the file's own mtime, since config loading itself
	// is this package's only filesystem touch.
	ConfigMtime time.Time `mapstructure:"-"`
}

// ExportStyle classifies the Module string into the closed enum the
// transformer and assembler switch on.
func (c *Config) ExportStyle() ExportStyle {
	switch {
	case c.Module == "" || c.Module == "none":
		return ExportNone
	case c.Module == "commonjs":
		return ExportCommonJS
	case strings.HasPrefix(c.Module, "es"):
		return ExportES2015
	case c.Module == "this" || c.Module == "window" || c.Module == "self":
		return ExportDirect
	case strings.HasPrefix(c.Module, "var "), strings.HasPrefix(c.Module, "let "), strings.HasPrefix(c.Module, "const "):
		return ExportVar
	default:
		return ExportNone
	}
}

// ExportVarName returns the bare variable name for a "var NAME"/"let
// NAME"/"const NAME" module target.
func (c *Config) ExportVarName() string {
	parts := strings.Fields(c.Module)
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

// Default returns a Config with sensible defaults filled in:
// globalModuleVarName "__tsb", watchWaiting 30ms, cacheMemory 1GiB, and
// concurrency max(cpu, 8).
func Default() *Config {
	cpu := runtime.NumCPU()
	concurrency := cpu
	if concurrency < 8 {
		concurrency = 8
	}
	return &Config{
		GlobalModuleVarName: "__tsb",
		WatchWaiting: 30 * time.Millisecond,
		CacheMemory: 1 << 30,
		Concurrency: concurrency,
	}
}

// Load reads path (YAML or JSON, inferred from extension) into a Config
// seeded with Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	entries, entryOutputs, err := parseEntry(v.Get("entry"))
	if err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	cfg.Entry = entries
	cfg.EntryOutputs = entryOutputs
	if raw := v.GetString("cacheMemory"); raw != "" {
		n, err := parseByteSize(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing cacheMemory %q: %w", raw, err)
		}
		cfg.CacheMemory = n
	}
	if ms := v.GetInt("watchWaiting"); ms > 0 {
		cfg.WatchWaiting = time.Duration(ms) * time.Millisecond
	}
	cfg.Output = resolveOutputTemplate(cfg.Output)
	return cfg, nil
}

// parseByteSize parses a suffix-annotated byte size like "1G" or "512M".
func parseByteSize(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	suffix := raw[len(raw)-1]
	numPart := raw
	switch suffix {
	case 'G', 'g':
		mult = 1 << 30
		numPart = raw[:len(raw)-1]
	case 'M', 'm':
		mult = 1 << 20
		numPart = raw[:len(raw)-1]
	case 'K', 'k':
		mult = 1 << 10
		numPart = raw[:len(raw)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(numPart), 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}

// parseEntry normalises the closed union "entry" accepts: a bare path, a
// path[] array, or a {path → (output-path | per-entry-overrides)} map. The
// map form's value is either the literal output string, or a nested map
// carrying an "output" key; any other nested keys are per-entry overrides
// not yet supported here and are ignored.
func parseEntry(raw any) ([]string, map[string]string, error) {
	outputs := make(map[string]string)
	switch v := raw.(type) {
	case nil:
		return nil, outputs, nil
	case string:
		return []string{v}, outputs, nil
	case []any:
		entries := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, nil, fmt.Errorf("entry list item %v is not a path string", item)
			}
			entries = append(entries, s)
		}
		return entries, outputs, nil
	case map[string]any:
		entries := make([]string, 0, len(v))
		for entryPath, value := range v {
			entries = append(entries, entryPath)
			switch val := value.(type) {
			case string:
				outputs[entryPath] = val
			case map[string]any:
				if out, ok := val["output"].(string); ok {
					outputs[entryPath] = out
				}
			}
		}
		return entries, outputs, nil
	default:
		return nil, nil, fmt.Errorf("unsupported entry value %v (%T)", raw, raw)
	}
}

// OutputForEntry resolves this Config's Output template for one entry path:
// an explicit per-entry override from EntryOutputs wins; otherwise [name]
// becomes the entry's basename without extension and [dirname] becomes the
// entry's directory, both substituted into the process-wide template.
func (c *Config) OutputForEntry(entryPath string) string {
	if out, ok := c.EntryOutputs[entryPath]; ok && out != "" {
		return out
	}
	tpl := c.Output
	if tpl == "" {
		tpl = "[dirname]/[name].js"
	}
	name := strings.TrimSuffix(filepath.Base(entryPath), filepath.Ext(entryPath))
	dirname := filepath.ToSlash(filepath.Dir(entryPath))
	tpl = strings.ReplaceAll(tpl, "[name]", name)
	tpl = strings.ReplaceAll(tpl, "[dirname]", dirname)
	return tpl
}

// resolveOutputTemplate substitutes [ENVVAR] placeholders in the output
// template from the process environment; [name]/[dirname] are left for the
// Assembler to fill in per-entry.
func resolveOutputTemplate(tpl string) string {
	if tpl == "" {
		return tpl
	}
	replaced := envPlaceholder.ReplaceAllStringFunc(tpl, func(match string) string {
		name := match[1: len(match)-1]
		if name == "name" || name == "dirname" {
			return match
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
	return filepath.ToSlash(replaced)
}
