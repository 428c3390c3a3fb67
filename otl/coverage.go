// github.com/skef/afdko - compilation of OpenType layout tables
// Copyright (C) 2024  The afdko authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package otl

import (
	"slices"

	"seehuhn.de/go/sfnt/glyph"
)

// A coverage table in the shared coverage area.  Glyphs are sorted and
// deduplicated; identical glyph sets share one table.
type coverageTable struct {
	glyphs []glyph.ID
	offset uint32
}

func (ct *coverageTable) rangeCount() int {
	n := 0
	for i, gid := range ct.glyphs {
		if i == 0 || gid != ct.glyphs[i-1]+1 {
			n++
		}
	}
	return n
}

// size returns the encoded size, using the smaller of format 1 and 2.
func (ct *coverageTable) size() uint32 {
	size1 := 4 + 2*len(ct.glyphs)
	size2 := 4 + 6*ct.rangeCount()
	return uint32(min(size1, size2))
}

func (ct *coverageTable) append(buf []byte) []byte {
	size1 := 4 + 2*len(ct.glyphs)
	size2 := 4 + 6*ct.rangeCount()
	if size1 <= size2 {
		buf = put16(buf, 1) // coverageFormat
		buf = put16(buf, uint16(len(ct.glyphs)))
		for _, gid := range ct.glyphs {
			buf = put16(buf, uint16(gid))
		}
		return buf
	}

	buf = put16(buf, 2) // coverageFormat
	buf = put16(buf, uint16(ct.rangeCount()))
	coverageIndex := 0
	for i := 0; i < len(ct.glyphs); {
		j := i + 1
		for j < len(ct.glyphs) && ct.glyphs[j] == ct.glyphs[j-1]+1 {
			j++
		}
		buf = put16(buf, uint16(ct.glyphs[i]))
		buf = put16(buf, uint16(ct.glyphs[j-1]))
		buf = put16(buf, uint16(coverageIndex))
		coverageIndex += j - i
		i = j
	}
	return buf
}

type coverageArea struct {
	tables []*coverageTable
	size   uint32

	current []glyph.ID
	open    bool
}

// CoverageBegin starts accumulation of a new coverage table.
func (t *Table) CoverageBegin() {
	if t.cov.open {
		panic("coverage table already open")
	}
	t.cov.open = true
	t.cov.current = t.cov.current[:0]
}

// CoverageAddGlyph adds one glyph to the coverage table under construction.
func (t *Table) CoverageAddGlyph(gid glyph.ID) {
	if !t.cov.open {
		panic("no open coverage table")
	}
	t.cov.current = append(t.cov.current, gid)
}

// CoverageEnd finishes the coverage table under construction and returns
// its offset from the start of the coverage area.  Tables with identical
// glyph sets share a single offset.
func (t *Table) CoverageEnd() uint32 {
	if !t.cov.open {
		panic("no open coverage table")
	}
	t.cov.open = false

	glyphs := slices.Clone(t.cov.current)
	slices.Sort(glyphs)
	glyphs = slices.Compact(glyphs)

	for _, ct := range t.cov.tables {
		if slices.Equal(ct.glyphs, glyphs) {
			return ct.offset
		}
	}

	ct := &coverageTable{glyphs: glyphs, offset: t.cov.size}
	t.cov.tables = append(t.cov.tables, ct)
	t.cov.size += ct.size()
	return ct.offset
}

// CoverageSize returns the current total size of the coverage area.
func (t *Table) CoverageSize() uint32 {
	return t.cov.size
}

// AppendCoverage appends the encoded coverage area to buf.
func (t *Table) AppendCoverage(buf []byte) []byte {
	for _, ct := range t.cov.tables {
		buf = ct.append(buf)
	}
	return buf
}
