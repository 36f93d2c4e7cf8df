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

// Package cmd is the thin CLI entry point wiring Config → Assembler →
// Registry. Argument-parsing breadth is
// explicitly out of the bundler core's scope; this package only
// translates flags into the Config the core packages accept.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/tsbundle/internal/config"
	"bennypowers.dev/tsbundle/internal/logging"
	"bennypowers.dev/tsbundle/internal/platform"
)

var rootCmd = &cobra.Command{
	Use: "tsbundle",
	Short: "Bundle TypeScript modules into a single wrapped script",
	Long: `tsbundle discovers the transitive import graph from one or more entry
modules, transforms each module, and serialises the result into a single
output script with a companion source map, caching refined modules between
runs.`,
}

// Execute runs rootCmd, whose child commands are attached in init. Called
// once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "tsbundle.yaml", "path to the bundler config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging output")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress info/debug logging")
	viper.BindPFlag("configFile", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(watchCmd)
}

// loadConfig resolves --config into an absolute path, loads it via
// internal/config.Load, and applies the --verbose/--quiet flags to the
// process-wide logger before returning the Config alongside its base
// directory and the config file's own absolute path (for watch mode's
// config-change detection).
func loadConfig(cmd *cobra.Command) (*config.Config, string, string, error) {
	logging.Get().SetVerbose(viper.GetBool("verbose"))
	logging.Get().SetQuiet(viper.GetBool("quiet"))

	cfgFile := viper.GetString("configFile")
	abs, err := filepath.Abs(cfgFile)
	if err != nil {
		return nil, "", "", err
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return nil, "", "", err
	}
	fsys := platform.NewOSFileSystem()
	if info, statErr := fsys.Stat(abs); statErr == nil {
		cfg.ConfigMtime = info.ModTime()
	}
	cfg.Verbose = cfg.Verbose || viper.GetBool("verbose")
	if cfg.Verbose {
		logging.Get().SetVerbose(true)
	}
	return cfg, filepath.Dir(abs), abs, nil
}
