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

// Package errs defines the error taxonomy shared by every component of the
// bundler: five kinds (ModuleNotFound, Unsupported, InternalError,
// Duplicated, and wrapped parser diagnostics), each backed by a sentinel so
// callers can branch with errors.Is, plus well-known diagnostic codes.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. A concrete error returned by this package always
// wraps exactly one of these via fmt.Errorf("...: %w",...).
var (
	// ErrModuleNotFound means a specifier could not be resolved to a file.
	ErrModuleNotFound = errors.New("module not found")
	// ErrUnsupported means the transformer refuses a syntactic pattern.
	ErrUnsupported = errors.New("unsupported")
	// ErrInternal means a contract violation was detected in the core.
	ErrInternal = errors.New("internal error")
	// ErrDuplicated means two bundles target the same resolved output.
	ErrDuplicated = errors.New("duplicated output")
	// ErrParse wraps a diagnostic surfaced by the external parser/transform
	// engine.
	ErrParse = errors.New("parse error")
)

// Code is a diagnostic code, modeled on a TypeScript-compiler-style
// diagnostic shape.
type Code int

const (
	CodeModuleNotFound Code = 2307
	CodeInternalError Code = 20000
	CodeUnsupported Code = 20001
	CodeJsError Code = 20002
	CodeDuplicated Code = 20003
)

// Diagnostic mirrors the shape consumed by diagnostic rendering, which is an
// external collaborator: this package only produces the data,
// never formats it for a terminal.
type Diagnostic struct {
	Source string
	Line int
	Column int
	Code Code
	Message string
	LineText string
	Width int
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", d.Source, d.Line, d.Column, d.Message)
}

// ModuleNotFound wraps ErrModuleNotFound with the specifier and the module
// that referenced it.
func ModuleNotFound(specifier, fromModule string) error {
	return fmt.Errorf("cannot resolve %q from %q: %w", specifier, fromModule, ErrModuleNotFound)
}

// Unsupported wraps ErrUnsupported with a description of the refused
// construct.
func Unsupported(what, where string) error {
	return fmt.Errorf("%s is unsupported in %q: %w", what, where, ErrUnsupported)
}

// Parse wraps ErrParse with the engine's own diagnostic text.
func Parse(message string) error {
	return fmt.Errorf("%s: %w", message, ErrParse)
}

// Internal wraps ErrInternal; callers should treat its presence as a bug.
func Internal(format string, args...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInternal)...)
}

// Duplicated wraps ErrDuplicated with the conflicting output path.
func Duplicated(outputPath string) error {
	return fmt.Errorf("output %q is targeted by more than one entry: %w", outputPath, ErrDuplicated)
}

// WrapModule attaches a module path to an arbitrary error without changing
// its errors.Is/As chain.
func WrapModule(modulePath string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("module %q: %w", modulePath, err)
}

// WrapCache attaches a cache operation name to an arbitrary error.
func WrapCache(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("cache %s: %w", op, err)
}
