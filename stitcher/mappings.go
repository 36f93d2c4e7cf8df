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

package stitcher

import "strings"

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Decode [128]int8

func init() {
	for i := range base64Decode {
		base64Decode[i] = -1
	}
	for i, c := range base64Alphabet {
		base64Decode[c] = int8(i)
	}
}

// segment is one decoded VLQ group of a source-map "mappings" entry: the
// generated column always present, the rest present only when the segment
// names a source position.
type segment struct {
	genCol int
	hasSource bool
	srcIndex int
	srcLine int
	srcCol int
	hasName bool
	nameIndex int
}

// encodeVLQ writes one base64-VLQ-encoded signed integer, source-map v3
// style: the sign occupies the low bit, magnitude shifted left by one,
// then emitted in 5-bit groups with a continuation bit.
func encodeVLQ(sb *strings.Builder, value int) {
	v := value << 1
	if value < 0 {
		v = (-value << 1) | 1
	}
	for {
		digit := v & 0x1f
		v >>= 5
		if v > 0 {
			digit |= 0x20
		}
		sb.WriteByte(base64Alphabet[digit])
		if v == 0 {
			break
		}
	}
}

// decodeVLQ reads one base64-VLQ-encoded signed integer starting at pos,
// returning the value and the position just past it.
func decodeVLQ(s string, pos int) (int, int, bool) {
	result := 0
	shift := uint(0)
	for pos < len(s) {
		c := s[pos]
		if c >= 128 {
			return 0, pos, false
		}
		digit := base64Decode[c]
		if digit < 0 {
			return 0, pos, false
		}
		pos++
		result |= int(digit&0x1f) << shift
		if digit&0x20 == 0 {
			negative := result&1 == 1
			result >>= 1
			if negative {
				result = -result
			}
			return result, pos, true
		}
		shift += 5
	}
	return 0, pos, false
}

// decodeMappings parses a source-map v3 "mappings" string into one segment
// slice per generated line. Running totals for srcIndex/srcLine/srcCol/
// nameIndex carry across the whole string; genCol resets to 0 at the start
// of every generated line, per the source-map v3 spec.
func decodeMappings(mappings string) [][]segment {
	if mappings == "" {
		return nil
	}
	var lines [][]segment
	var cur []segment
	genCol, srcIndex, srcLine, srcCol, nameIndex := 0, 0, 0, 0, 0
	pos := 0
	for pos < len(mappings) {
		c := mappings[pos]
		switch c {
		case ';':
			lines = append(lines, cur)
			cur = nil
			genCol = 0
			pos++
			continue
		case ',':
			pos++
			continue
		}

		var d int
		var ok bool
		seg := segment{}

		d, pos, ok = decodeVLQ(mappings, pos)
		if !ok {
			break
		}
		genCol += d
		seg.genCol = genCol

		if pos < len(mappings) && mappings[pos] != ';' && mappings[pos] != ',' {
			d, pos, ok = decodeVLQ(mappings, pos)
			if ok {
				srcIndex += d
				d, pos, ok = decodeVLQ(mappings, pos)
				if ok {
					srcLine += d
					d, pos, ok = decodeVLQ(mappings, pos)
					if ok {
						srcCol += d
						seg.hasSource = true
						seg.srcIndex = srcIndex
						seg.srcLine = srcLine
						seg.srcCol = srcCol

						if pos < len(mappings) && mappings[pos] != ';' && mappings[pos] != ',' {
							d, pos, ok = decodeVLQ(mappings, pos)
							if ok {
								nameIndex += d
								seg.hasName = true
								seg.nameIndex = nameIndex
							}
						}
					}
				}
			}
		}
		cur = append(cur, seg)
	}
	lines = append(lines, cur)
	return lines
}

// encodeMappings is the inverse of decodeMappings: it re-derives deltas
// (genCol resetting per line, the source/name fields carrying across the
// whole output) and base64-VLQ-encodes each field.
func encodeMappings(lines [][]segment) string {
	var sb strings.Builder
	prevSrc, prevSrcLine, prevSrcCol, prevName := 0, 0, 0, 0
	for li, line := range lines {
		if li > 0 {
			sb.WriteByte(';')
		}
		prevGenCol := 0
		for si, seg := range line {
			if si > 0 {
				sb.WriteByte(',')
			}
			encodeVLQ(&sb, seg.genCol-prevGenCol)
			prevGenCol = seg.genCol
			if seg.hasSource {
				encodeVLQ(&sb, seg.srcIndex-prevSrc)
				prevSrc = seg.srcIndex
				encodeVLQ(&sb, seg.srcLine-prevSrcLine)
				prevSrcLine = seg.srcLine
				encodeVLQ(&sb, seg.srcCol-prevSrcCol)
				prevSrcCol = seg.srcCol
				if seg.hasName {
					encodeVLQ(&sb, seg.nameIndex-prevName)
					prevName = seg.nameIndex
				}
			}
		}
	}
	return sb.String()
}
