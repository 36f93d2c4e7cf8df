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

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bennypowers.dev/tsbundle/bundle"
	"bennypowers.dev/tsbundle/internal/logging"
	"bennypowers.dev/tsbundle/internal/platform"
	"bennypowers.dev/tsbundle/registry"
)

var buildCmd = &cobra.Command{
	Use: "build",
	Short: "Bundle every configured entry once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, baseDir, _, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		fsys := platform.NewOSFileSystem()
		reg := registry.GetInstance(fsys)
		defer reg.SaveCacheJsonSync()

		start := time.Now()
		result, err := bundle.Run(fsys, cfg, reg, baseDir)
		if err != nil {
			return fmt.Errorf("bundling: %w", err)
		}

		errored := 0
		for output, r := range result.Results {
			if r.Errored {
				errored++
			}
			logging.Debug("build: wrote %s (%d bytes)", output, len(r.Output))
		}
		for entryPath, buildErr := range result.Errors {
			errored++
			logging.Warning("build: %s: %v", entryPath, buildErr)
		}

		elapsed := time.Since(start)
		if errored > 0 {
			logging.Error("build: finished in %s with %d error(s)", elapsed, errored)
			return fmt.Errorf("%d entr(y/ies) failed to bundle cleanly", errored)
		}
		logging.Info("build: finished %d bundle(s) in %s", len(result.Results), elapsed)
		return nil
	},
}
