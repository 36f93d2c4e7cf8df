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

// Package logging provides the process-wide logger used by the bundler
// pipeline. It never renders diagnostics (that is the invoking tool's job);
// it only reports operational events: cache hits/misses, queue pressure,
// rebuild summaries.
package logging

import (
	"sync"

	"github.com/pterm/pterm"
)

func init() {
	pterm.Info = *pterm.Info.WithPrefix(pterm.Prefix{
		Text: "INFO",
		Style: pterm.NewStyle(pterm.FgBlue),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Warning = *pterm.Warning.WithPrefix(pterm.Prefix{
		Text: "WARN",
		Style: pterm.NewStyle(pterm.FgYellow),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Error = *pterm.Error.WithPrefix(pterm.Prefix{
		Text: "ERROR",
		Style: pterm.NewStyle(pterm.FgRed),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Debug = *pterm.Debug.WithPrefix(pterm.Prefix{
		Text: "DEBUG",
		Style: pterm.NewStyle(pterm.FgCyan),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)
}

// Mode selects how repeated output behaves.
type Mode int

const (
	// ModeBatch is a single build-and-exit run.
	ModeBatch Mode = iota
	// ModeWatch is a long-lived rebuild loop; lines are expected to repeat.
	ModeWatch
)

// Logger is the process-wide logger for the bundler pipeline.
type Logger struct {
	mu sync.RWMutex
	mode Mode
	verbose bool
	quiet bool
}

var global = &Logger{mode: ModeBatch}

// Get returns the process-wide logger instance.
func Get() *Logger { return global }

// SetMode records whether the process is a one-shot run or a watch loop;
// log lines are formatted the same way in both modes.
func (l *Logger) SetMode(mode Mode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = mode
}

// SetVerbose toggles Debug-level output.
func (l *Logger) SetVerbose(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = v
	if v {
		pterm.EnableDebugMessages()
	} else {
		pterm.DisableDebugMessages()
	}
}

// SetQuiet suppresses Info and Debug output, leaving Warning/Error.
func (l *Logger) SetQuiet(q bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quiet = q
}

func (l *Logger) isQuiet() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.quiet
}

func (l *Logger) Debug(format string, args...any) {
	if l.isQuiet() {
		return
	}
	pterm.Debug.Printf(format+"\n", args...)
}

func (l *Logger) Info(format string, args...any) {
	if l.isQuiet() {
		return
	}
	pterm.Info.Printf(format+"\n", args...)
}

func (l *Logger) Warning(format string, args...any) {
	pterm.Warning.Printf(format+"\n", args...)
}

func (l *Logger) Error(format string, args...any) {
	pterm.Error.Printf(format+"\n", args...)
}

// Package-level convenience wrappers mirroring the global instance, in the
// style of internal/logging package.

func Debug(format string, args...any) { global.Debug(format, args...) }
func Info(format string, args...any) { global.Info(format, args...) }
func Warning(format string, args...any) { global.Warning(format, args...) }
func Error(format string, args...any) { global.Error(format, args...) }
