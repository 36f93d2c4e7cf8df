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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bennypowers.dev/tsbundle/bundle"
	"bennypowers.dev/tsbundle/internal/logging"
	"bennypowers.dev/tsbundle/internal/platform"
	"bennypowers.dev/tsbundle/registry"
)

var watchCmd = &cobra.Command{
	Use: "watch",
	Short: "Bundle every configured entry, then rebuild on change",
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Get().SetMode(logging.ModeWatch)
		fsys := platform.NewOSFileSystem()
		reg := registry.GetInstance(fsys)
		defer reg.SaveCacheJsonSync()

		for {
			cfg, baseDir, cfgPath, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			configChanged := false
			session := bundle.NewWatchSession(fsys, cfg, reg, baseDir, cfgPath)
			runErr := session.Run(func(result *bundle.RunResult, err error) {
				switch {
				case errors.Is(err, bundle.ConfigChanged):
					configChanged = true
					logging.Info("watch: config file changed, reloading")
				case err != nil:
					logging.Warning("watch: rebuild failed: %v", err)
				default:
					logging.Info("watch: rebuilt %d bundle(s)", len(result.Results))
					for entryPath, buildErr := range result.Errors {
						logging.Warning("watch: %s: %v", entryPath, buildErr)
					}
				}
			})
			session.Close()
			if runErr != nil {
				return runErr
			}

			if configChanged {
				// Loop back around to reload the config and start a fresh
				// session ("the assembler is discarded and
				// recreated from scratch").
				continue
			}
			// The watcher channel closed (e.g. the process is shutting
			// down) without a config change: nothing left to restart.
			return nil
		}
	},
}
