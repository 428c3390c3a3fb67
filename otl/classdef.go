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

type classMapping struct {
	gid   glyph.ID
	class uint16
}

// A class definition table in the shared class area.  Mappings are sorted
// by glyph ID; identical mappings share one table.
type classTable struct {
	mappings []classMapping // sorted by gid, no class-0 entries
	offset   uint32
}

func (ct *classTable) rangeCount() int {
	n := 0
	for i, m := range ct.mappings {
		if i == 0 || m.gid != ct.mappings[i-1].gid+1 || m.class != ct.mappings[i-1].class {
			n++
		}
	}
	return n
}

func (ct *classTable) glyphSpan() int {
	if len(ct.mappings) == 0 {
		return 0
	}
	first := ct.mappings[0].gid
	last := ct.mappings[len(ct.mappings)-1].gid
	return int(last-first) + 1
}

// size returns the encoded size, using the smaller of format 1 and 2.
func (ct *classTable) size() uint32 {
	size1 := 6 + 2*ct.glyphSpan()
	size2 := 4 + 6*ct.rangeCount()
	return uint32(min(size1, size2))
}

func (ct *classTable) append(buf []byte) []byte {
	size1 := 6 + 2*ct.glyphSpan()
	size2 := 4 + 6*ct.rangeCount()
	if size1 <= size2 {
		buf = put16(buf, 1) // classFormat
		var first glyph.ID
		if len(ct.mappings) > 0 {
			first = ct.mappings[0].gid
		}
		buf = put16(buf, uint16(first))
		buf = put16(buf, uint16(ct.glyphSpan()))
		k := 0
		for i := 0; i < ct.glyphSpan(); i++ {
			gid := first + glyph.ID(i)
			if k < len(ct.mappings) && ct.mappings[k].gid == gid {
				buf = put16(buf, ct.mappings[k].class)
				k++
			} else {
				buf = put16(buf, 0)
			}
		}
		return buf
	}

	buf = put16(buf, 2) // classFormat
	buf = put16(buf, uint16(ct.rangeCount()))
	for i := 0; i < len(ct.mappings); {
		j := i + 1
		for j < len(ct.mappings) &&
			ct.mappings[j].gid == ct.mappings[j-1].gid+1 &&
			ct.mappings[j].class == ct.mappings[i].class {
			j++
		}
		buf = put16(buf, uint16(ct.mappings[i].gid))
		buf = put16(buf, uint16(ct.mappings[j-1].gid))
		buf = put16(buf, ct.mappings[i].class)
		i = j
	}
	return buf
}

type classArea struct {
	tables []*classTable
	size   uint32

	current []classMapping
	open    bool
}

// ClassBegin starts accumulation of a new class definition table.
func (t *Table) ClassBegin() {
	if t.cls.open {
		panic("class table already open")
	}
	t.cls.open = true
	t.cls.current = t.cls.current[:0]
}

// ClassAddMapping assigns a glyph to a class in the class definition table
// under construction.  Class 0 assignments are dropped, since unlisted
// glyphs default to class 0.
func (t *Table) ClassAddMapping(gid glyph.ID, class uint16) {
	if !t.cls.open {
		panic("no open class table")
	}
	if class == 0 {
		return
	}
	t.cls.current = append(t.cls.current, classMapping{gid: gid, class: class})
}

// ClassEnd finishes the class definition table under construction and
// returns its offset from the start of the class area.
func (t *Table) ClassEnd() uint32 {
	if !t.cls.open {
		panic("no open class table")
	}
	t.cls.open = false

	mappings := slices.Clone(t.cls.current)
	slices.SortFunc(mappings, func(a, b classMapping) int {
		return int(a.gid) - int(b.gid)
	})

	for _, ct := range t.cls.tables {
		if slices.Equal(ct.mappings, mappings) {
			return ct.offset
		}
	}

	ct := &classTable{mappings: mappings, offset: t.cls.size}
	t.cls.tables = append(t.cls.tables, ct)
	t.cls.size += ct.size()
	return ct.offset
}

// ClassSize returns the current total size of the class area.
func (t *Table) ClassSize() uint32 {
	return t.cls.size
}

// AppendClasses appends the encoded class area to buf.
func (t *Table) AppendClasses(buf []byte) []byte {
	for _, ct := range t.cls.tables {
		buf = ct.append(buf)
	}
	return buf
}
