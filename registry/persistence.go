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

package registry

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// CacheMapVersion gates on-disk cache-map compatibility. A
// mismatched version discards the entire map rather than attempting a
// partial read.
const CacheMapVersion = "TSBC-0.10"

type onDiskEntry struct {
	Number uint32 `json:"number"`
	VarName string `json:"varName"`
}

// peekVersion cheaply extracts the top-level "version" field with gjson so a
// schema mismatch is detected before paying for (and risking failure on) a
// full encoding/json unmarshal of a potentially incompatible or huge cache
// map.
func peekVersion(data []byte) (string, bool) {
	result := gjson.GetBytes(data, "version")
	if !result.Exists() {
		return "", false
	}
	return result.String(), true
}

// decodeCacheMap parses the on-disk JSON document into the
// registry's in-memory Outputs map. Any parse error or version mismatch is
// reported via ok=false, which the caller treats as starting from an empty
// map rather than a failure.
func decodeCacheMap(data []byte) (outputs map[string]*InnerMap, ok bool) {
	version, found := peekVersion(data)
	if !found || version != CacheMapVersion {
		return nil, false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}
	delete(raw, "version")

	outputs = make(map[string]*InnerMap, len(raw))
	for outputPath, rawInner := range raw {
		var innerRaw map[string]json.RawMessage
		if err := json.Unmarshal(rawInner, &innerRaw); err != nil {
			continue
		}
		inner := newInnerMap()
		if cacheToRaw, found := innerRaw["$cacheTo"]; found {
			var ms int64
			if err := json.Unmarshal(cacheToRaw, &ms); err == nil {
				inner.expiresAt = time.UnixMilli(ms)
			}
			delete(innerRaw, "$cacheTo")
		}
		seen := make(map[uint32]string, len(innerRaw))
		for sourcePath, entryRaw := range innerRaw {
			var entry onDiskEntry
			if err := json.Unmarshal(entryRaw, &entry); err != nil {
				continue
			}
			// Corrupted map: the same number assigned to two paths. Drop
			// the second occurrence with a logged warning; it becomes
			// unreferenced on next prune.
			if prevPath, dup := seen[entry.Number]; dup {
				logDuplicateCacheId(entry.Number, prevPath, sourcePath)
				continue
			}
			seen[entry.Number] = sourcePath
			inner.entries[sourcePath] = ModuleIdEntry{Number: entry.Number, VarName: entry.VarName}
		}
		outputs[outputPath] = inner
	}
	return outputs, true
}

// encodeCacheMap serializes the registry's Outputs map back to the literal
// on-disk shape described in
func encodeCacheMap(outputs map[string]*InnerMap) ([]byte, error) {
	doc := make(map[string]any, len(outputs)+1)
	doc["version"] = CacheMapVersion
	for outputPath, inner := range outputs {
		inner.mu.Lock()
		entryDoc := make(map[string]any, len(inner.entries)+1)
		entryDoc["$cacheTo"] = inner.expiresAt.UnixMilli()
		for sourcePath, entry := range inner.entries {
			entryDoc[sourcePath] = onDiskEntry{Number: entry.Number, VarName: entry.VarName}
		}
		inner.mu.Unlock()
		doc[outputPath] = entryDoc
	}
	return json.MarshalIndent(doc, "", " ")
}
