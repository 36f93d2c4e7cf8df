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
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"bennypowers.dev/tsbundle/internal/config"
	"bennypowers.dev/tsbundle/internal/logging"
	"bennypowers.dev/tsbundle/internal/platform"
	"bennypowers.dev/tsbundle/registry"
)

// WatchSession drives rebuild-on-change: after a bundle run, it
// exposes the dependency list, rebuilding every configured output when a
// watched file changes; if the config file itself changed, the whole session (and every
// Bundle inside it) is discarded and recreated from scratch. A debounce
// timer coalesces a burst of fsnotify events into one rebuild.
type WatchSession struct {
	fs platform.FileSystem
	cfg *config.Config
	reg *registry.Registry
	baseDir string
	configPath string

	watcher platform.FileWatcher

	mu sync.Mutex
	pending map[string]bool
	watched map[string]struct{}
	timer *time.Timer
	depsByOut map[string][]string
}

// NewWatchSession constructs a session for baseDir's configured entries.
// configPath may be empty when the caller has no on-disk config file (e.g.
// tests constructing Config programmatically); a non-empty configPath is
// itself watched, and any change to it ends the session so the caller can
// reload and start a fresh one ("the assembler is discarded and
// recreated from scratch").
func NewWatchSession(fsys platform.FileSystem, cfg *config.Config, reg *registry.Registry, baseDir, configPath string) *WatchSession {
	return &WatchSession{
		fs: fsys,
		cfg: cfg,
		reg: reg,
		baseDir: baseDir,
		configPath: configPath,
		pending: make(map[string]bool),
		watched: make(map[string]struct{}),
		depsByOut: make(map[string][]string),
	}
}

// ConfigChanged is passed to Run's onRebuild callback when the config file
// itself changed, after which Run returns; the caller (cmd/tsbundle watch) should
// call Close and start a brand new WatchSession against the reloaded config.
var ConfigChanged = fmt.Errorf("config file changed, restart required")

// Run performs the initial build, then watches every touched directory,
// debouncing bursts of change events by cfg.WatchWaiting before invoking
// onRebuild with the fresh RunResult. Run blocks until the config file
// changes (onRebuild receives ConfigChanged) or the watcher's channels are
// closed by calling Close from another goroutine; watcher errors are
// logged and watching continues.
func (ws *WatchSession) Run(onRebuild func(*RunResult, error)) error {
	watcher, err := platform.NewFSNotifyFileWatcher()
	if err != nil {
		return fmt.Errorf("watch: creating file watcher: %w", err)
	}
	ws.watcher = watcher
	defer watcher.Close()

	result, buildErr := ws.rebuild()
	onRebuild(result, buildErr)
	ws.syncWatchedDirs(result)
	if ws.configPath != "" {
		ws.addWatch(filepath.Dir(ws.configPath))
	}

	logging.Info("watch: watching for changes (Ctrl+C to stop)")
	for {
		select {
		case event, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			if ws.handleEvent(event, onRebuild) {
				return nil
			}
		case err, ok := <-watcher.Errors():
			if !ok {
				return nil
			}
			logging.Warning("watch: file watcher error: %v", err)
		}
	}
}

// Close stops the underlying file watcher, ending any in-progress Run.
func (ws *WatchSession) Close() error {
	if ws.watcher == nil {
		return nil
	}
	return ws.watcher.Close()
}

// handleEvent applies one fsnotify event to the pending-change set and
// (re)arms the debounce timer; it returns true when the event is the config
// file changing, signalling Run to stop watching so the caller can reload.
func (ws *WatchSession) handleEvent(event platform.FileWatchEvent, onRebuild func(*RunResult, error)) bool {
	if event.Op&(platform.Write|platform.Create|platform.Remove|platform.Rename) == 0 {
		return false
	}

	if ws.configPath != "" && event.Name == ws.configPath {
		onRebuild(nil, ConfigChanged)
		return true
	}

	ws.mu.Lock()
	ws.pending[event.Name] = true
	if ws.timer != nil {
		ws.timer.Stop()
	}
	waiting := ws.cfg.WatchWaiting
	if waiting <= 0 {
		waiting = 30 * time.Millisecond
	}
	ws.timer = time.AfterFunc(waiting, func() {
		result, err := ws.rebuild()
		onRebuild(result, err)
		ws.syncWatchedDirs(result)
	})
	ws.mu.Unlock()
	return false
}

// rebuild clears pending changes and re-runs the full entry list. A fresh
// Bundle is constructed per output so writer-lock/line-offset state never
// leaks across rebuilds; the
// on-disk refinement cache and the registry's id/varName assignments are
// shared across rebuilds via ws.reg, so unaffected modules still short-
// circuit through a cache hit.
func (ws *WatchSession) rebuild() (*RunResult, error) {
	if ws.cfg.ClearConsole {
		fmt.Print("\x1b[2J\x1b[H")
	}
	ws.mu.Lock()
	ws.pending = make(map[string]bool)
	ws.mu.Unlock()

	result, err := Run(ws.fs, ws.cfg, ws.reg, ws.baseDir)
	if err != nil {
		return nil, err
	}
	deps := make(map[string][]string, len(result.Results))
	for out, r := range result.Results {
		deps[out] = r.Dependencies
	}
	ws.mu.Lock()
	ws.depsByOut = deps
	ws.mu.Unlock()
	return result, nil
}

// syncWatchedDirs adds every directory containing a touched module to the
// underlying watcher, so a new import target is picked up on the next
// rebuild without requiring a session restart.
func (ws *WatchSession) syncWatchedDirs(result *RunResult) {
	if result == nil {
		return
	}
	for _, r := range result.Results {
		for _, apath := range r.Dependencies {
			ws.addWatch(filepath.Dir(apath))
		}
	}
}

func (ws *WatchSession) addWatch(dir string) {
	ws.mu.Lock()
	_, already := ws.watched[dir]
	if !already {
		ws.watched[dir] = struct{}{}
	}
	ws.mu.Unlock()
	if already {
		return
	}
	if err := ws.watcher.Add(dir); err != nil {
		logging.Debug("watch: failed to watch %q: %v", dir, err)
	}
}
