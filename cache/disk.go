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

package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"bennypowers.dev/tsbundle/internal/platform"
)

// Signature is the fixed tail marker validating that a disk cache file is
// complete and in the current format.
const Signature = "TSBC-0.10"

const nul = byte(0)

// encodeDisk serialises a RefinedModule into the NUL-delimited binary
// format, field order fixed:
//
//	sourceMtime \0 declMtime \0 configMtime \0
//	imports-JSON \0 firstLineComment \0
//	sourceMapOutputLineOffset \0 outputLineCount \0
//	sourceMapText \0 content \0 declaration \0 globalDeclaration \0
//	<cache-signature>
func encodeDisk(r *RefinedModule) ([]byte, error) {
	importsJSON, err := json.Marshal(r.Imports)
	if err != nil {
		return nil, fmt.Errorf("encoding imports: %w", err)
	}

	var buf bytes.Buffer
	writeField(&buf, formatTime(r.SourceMtime))
	writeField(&buf, formatTime(r.DeclarationMtime))
	writeField(&buf, formatTime(r.ConfigMtime))
	writeField(&buf, string(importsJSON))
	writeField(&buf, r.FirstLineComment)
	writeField(&buf, strconv.Itoa(r.SourceMapOutputLineOffset))
	writeField(&buf, strconv.Itoa(r.OutputLineCount))
	// Newlines are stripped from the source-map blob before storage;
	// NUL-delimiting otherwise tolerates arbitrary text fields.
	writeField(&buf, stripNewlines(string(r.SourceMapText)))
	writeField(&buf, string(r.Content))
	writeField(&buf, string(r.Declaration))
	writeField(&buf, string(r.GlobalDeclaration))
	buf.WriteString(Signature)
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(nul)
}

func stripNewlines(s string) string {
	return string(bytes.ReplaceAll([]byte(s), []byte("\n"), nil))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// decodeDisk parses a disk cache file, returning ok=false for any structural
// problem: missing signature, wrong field count, or a field-parse failure.
func decodeDisk(id uint32, data []byte) (*RefinedModule, bool) {
	if !bytes.HasSuffix(data, []byte(Signature)) {
		return nil, false
	}
	body := data[:len(data)-len(Signature)]
	fields := bytes.Split(body, []byte{nul})
	// 11 fields each terminated by NUL leaves one trailing empty element.
	if len(fields) < 12 {
		return nil, false
	}

	var imports []ImportInfo
	if err := json.Unmarshal(fields[3], &imports); err != nil {
		return nil, false
	}
	lineOffset, err1 := strconv.Atoi(string(fields[5]))
	lineCount, err2 := strconv.Atoi(string(fields[6]))
	if err1 != nil || err2 != nil {
		return nil, false
	}

	return &RefinedModule{
		Id: id,
		SourceMtime: parseTime(string(fields[0])),
		DeclarationMtime: parseTime(string(fields[1])),
		ConfigMtime: parseTime(string(fields[2])),
		Imports: imports,
		FirstLineComment: string(fields[4]),
		SourceMapOutputLineOffset: lineOffset,
		OutputLineCount: lineCount,
		SourceMapText: fields[7],
		Content: fields[8],
		Declaration: fields[9],
		GlobalDeclaration: fields[10],
		Size: int64(len(data)),
	}, true
}

// Disk is the on-disk tier: one file per module number in a cache directory.
type Disk struct {
	fs platform.FileSystem
	dir string
}

// NewDisk returns the on-disk tier rooted at dir.
func NewDisk(fsys platform.FileSystem, dir string) *Disk {
	return &Disk{fs: fsys, dir: dir}
}

func (d *Disk) path(id uint32) string {
	return d.dir + "/" + strconv.FormatUint(uint64(id), 10)
}

// Mtime returns the cache file's own mtime, used by GetRefined to validate
// cacheFileMtime ≥ max(srcMtime, dtsMtime, configMtime).
func (d *Disk) Mtime(id uint32) (time.Time, bool) {
	info, err := d.fs.Stat(d.path(id))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Read loads and validates the disk file for id against the observed mtime
// triple: valid iff the signature is present, every stored mtime equals
// the observed one, and the file's own mtime is at least as new as the
// newest of the three.
func (d *Disk) Read(id uint32, srcMtime, dtsMtime, configMtime time.Time) (*RefinedModule, bool) {
	fileMtime, ok := d.Mtime(id)
	if !ok {
		return nil, false
	}
	newest := srcMtime
	if dtsMtime.After(newest) {
		newest = dtsMtime
	}
	if configMtime.After(newest) {
		newest = configMtime
	}
	if fileMtime.Before(newest) {
		return nil, false
	}

	data, err := d.fs.ReadFile(d.path(id))
	if err != nil {
		return nil, false
	}
	refined, ok := decodeDisk(id, data)
	if !ok {
		return nil, false
	}
	if !refined.mtimesMatch(srcMtime, dtsMtime, configMtime) {
		return nil, false
	}
	return refined, true
}

// Write persists refined to its cache file atomically.
func (d *Disk) Write(refined *RefinedModule) error {
	data, err := encodeDisk(refined)
	if err != nil {
		return err
	}
	return platform.WriteFileAtomic(d.fs, d.path(refined.Id), data, 0o644)
}

// Remove deletes the on-disk file for id, ignoring a missing file.
func (d *Disk) Remove(id uint32) error {
	return d.fs.Remove(d.path(id))
}
