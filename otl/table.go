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
	"fmt"
	"slices"
)

// A SubtableRecord registers one packed lookup subtable with the shared
// layout layer.  Offsets are relative to the area the subtable lives in:
// the ordinary subtable area, or the feature parameter area for records
// with HasFeatureParams set.
type SubtableRecord struct {
	Script   Tag
	Language Tag
	Feature  Tag // TagUndef for anonymous lookups

	LookupType       uint16
	Flags            LookupFlag
	MarkFilteringSet uint16

	// ExtensionType is the wrapped lookup type if the subtable is an
	// extension indirection record, and zero otherwise.
	ExtensionType uint16

	Offset uint32
	Label  Label
	Format uint16

	HasFeatureParams bool
}

// A lookupTable collects the subtables registered under one label.
type lookupTable struct {
	lookupType       uint16
	flags            LookupFlag
	markFilteringSet uint16
	subOffsets       []uint32 // relative to the subtable area
}

func (l *lookupTable) headerSize() uint32 {
	size := uint32(6 + 2*len(l.subOffsets))
	if l.flags&UseMarkFilteringSet != 0 {
		size += 2
	}
	return size
}

type featureEntry struct {
	script, language, feature Tag

	lookups   []uint16
	hasParams bool
	params    uint32 // offset into the feature parameter area

	pos uint32 // position of the feature table, from start of file
}

type langEntry struct {
	tag      Tag
	features []uint16 // indices into the sorted feature list
}

type scriptEntry struct {
	tag   Tag
	langs []*langEntry // TagDefaultLang, if present, is stored here too
}

// A Table accumulates the shared sections of one "GSUB" or "GPOS" table.
type Table struct {
	cov coverageArea
	cls classArea

	records []SubtableRecord
	filled  bool

	lookups    []*lookupTable
	labelIndex map[Label]uint16
	features   []*featureEntry
	scripts    []*scriptEntry

	scriptListSize  uint32
	featureListSize uint32
	featParamsBase  uint32
	lookupListBase  uint32
	lookupListSize  uint32
	subtableBase    uint32
}

// NewTable returns an empty layout table accumulator.
func NewTable() *Table {
	return &Table{
		labelIndex: make(map[Label]uint16),
	}
}

// SubtableAdd registers one packed subtable.  Registration order determines
// the order of subtables within a lookup and the order in which lookup list
// indices are assigned.
func (t *Table) SubtableAdd(r SubtableRecord) {
	if t.filled {
		panic("otl: SubtableAdd after Fill")
	}
	t.records = append(t.records, r)
}

const headerSize = 10 // majorVersion .. lookupListOffset

// Fill assigns lookup list indices, builds the script and feature lists and
// computes the final position of every section.  featParamsSize is the total
// size of the feature parameter area, which the client writes between the
// feature list and the lookup list.
//
// After Fill returns, no further subtables may be registered and the
// coverage and class areas are frozen.
func (t *Table) Fill(featParamsSize uint32) error {
	if t.filled {
		panic("otl: Fill called twice")
	}
	t.filled = true

	// First pass: group subtables into lookups and assign indices in
	// order of first label occurrence.
	for _, r := range t.records {
		if r.HasFeatureParams || r.Label.IsReference() {
			continue
		}
		key := r.Label.key()
		idx, ok := t.labelIndex[key]
		if !ok {
			idx = uint16(len(t.lookups))
			t.labelIndex[key] = idx
			t.lookups = append(t.lookups, &lookupTable{
				lookupType:       r.LookupType,
				flags:            r.Flags,
				markFilteringSet: r.MarkFilteringSet,
			})
		}
		l := t.lookups[idx]
		if l.lookupType != r.LookupType || l.flags != r.Flags ||
			l.markFilteringSet != r.MarkFilteringSet {
			return &Error{
				Reason: fmt.Sprintf("inconsistent subtables for %s", r.Label),
			}
		}
		l.subOffsets = append(l.subOffsets, r.Offset)
	}

	// Second pass: collect feature registrations.
	for i := range t.records {
		r := &t.records[i]
		if r.Feature == TagUndef {
			continue
		}
		fe := t.findFeature(r.Script, r.Language, r.Feature)
		if r.HasFeatureParams {
			fe.hasParams = true
			fe.params = r.Offset
			continue
		}
		idx, ok := t.labelIndex[r.Label.key()]
		if !ok {
			return &Error{
				Reason: fmt.Sprintf("reference to undefined %s", r.Label),
			}
		}
		if !slices.Contains(fe.lookups, idx) {
			fe.lookups = append(fe.lookups, idx)
		}
	}

	slices.SortStableFunc(t.features, func(a, b *featureEntry) int {
		if a.feature != b.feature {
			return cmpTag(a.feature, b.feature)
		}
		if a.script != b.script {
			return cmpTag(a.script, b.script)
		}
		return cmpTag(a.language, b.language)
	})

	// Third pass: group (script, language) pairs around the sorted
	// feature list.
	for i, fe := range t.features {
		le := t.findLang(fe.script, fe.language)
		le.features = append(le.features, uint16(i))
	}
	slices.SortStableFunc(t.scripts, func(a, b *scriptEntry) int {
		return cmpTag(a.tag, b.tag)
	})
	for _, se := range t.scripts {
		slices.SortStableFunc(se.langs, func(a, b *langEntry) int {
			return cmpTag(a.tag, b.tag)
		})
	}

	t.layout(featParamsSize)
	return t.checkOffsets()
}

func (t *Table) findFeature(script, lang, feature Tag) *featureEntry {
	for _, fe := range t.features {
		if fe.script == script && fe.language == lang && fe.feature == feature {
			return fe
		}
	}
	fe := &featureEntry{script: script, language: lang, feature: feature}
	t.features = append(t.features, fe)
	return fe
}

func (t *Table) findLang(script, lang Tag) *langEntry {
	var se *scriptEntry
	for _, s := range t.scripts {
		if s.tag == script {
			se = s
			break
		}
	}
	if se == nil {
		se = &scriptEntry{tag: script}
		t.scripts = append(t.scripts, se)
	}
	for _, le := range se.langs {
		if le.tag == lang {
			return le
		}
	}
	le := &langEntry{tag: lang}
	se.langs = append(se.langs, le)
	return le
}

func cmpTag(a, b Tag) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// layout computes the size of every section and the position of every
// feature and lookup table.
func (t *Table) layout(featParamsSize uint32) {
	// ScriptList: count, script records, then for each script its script
	// table immediately followed by its language system tables.
	size := uint32(2 + 6*len(t.scripts))
	for _, se := range t.scripts {
		n := len(se.langs)
		if se.defaultLang() != nil {
			n--
		}
		size += uint32(4 + 6*n)
		for _, le := range se.langs {
			size += uint32(6 + 2*len(le.features))
		}
	}
	t.scriptListSize = size

	size = uint32(2 + 6*len(t.features))
	for _, fe := range t.features {
		fe.pos = headerSize + t.scriptListSize + size
		size += uint32(4 + 2*len(fe.lookups))
	}
	t.featureListSize = size

	t.featParamsBase = headerSize + t.scriptListSize + t.featureListSize
	t.lookupListBase = t.featParamsBase + featParamsSize

	size = uint32(2 + 2*len(t.lookups))
	for _, l := range t.lookups {
		size += l.headerSize()
	}
	t.lookupListSize = size
	t.subtableBase = t.lookupListBase + t.lookupListSize
}

func (se *scriptEntry) defaultLang() *langEntry {
	for _, le := range se.langs {
		if le.tag == TagDefaultLang {
			return le
		}
	}
	return nil
}

// checkOffsets validates every 16-bit offset emitted by the Append methods.
func (t *Table) checkOffsets() error {
	pos := t.lookupListBase + uint32(2+2*len(t.lookups))
	for i, l := range t.lookups {
		for _, off := range l.subOffsets {
			v := t.subtableBase + off - pos
			if v > 0xFFFF {
				return &Error{
					Reason: fmt.Sprintf("lookup %d subtable offset overflow (0x%x)", i, v),
				}
			}
		}
		pos += l.headerSize()
	}
	for _, fe := range t.features {
		if !fe.hasParams {
			continue
		}
		v := t.featParamsBase + fe.params - fe.pos
		if v > 0xFFFF {
			return &Error{
				Reason: fmt.Sprintf("feature '%s' parameter offset overflow (0x%x)", fe.feature, v),
			}
		}
	}
	if t.lookupListBase > 0xFFFF {
		return &Error{
			Reason: fmt.Sprintf("lookup list offset overflow (0x%x)", t.lookupListBase),
		}
	}
	return nil
}

// LookupIndex resolves a label to its assigned lookup list index.
// References resolve to the named lookup they refer to.
func (t *Table) LookupIndex(label Label) (uint16, error) {
	if !t.filled {
		panic("otl: LookupIndex before Fill")
	}
	idx, ok := t.labelIndex[label.key()]
	if !ok {
		return 0, &Error{
			Reason: fmt.Sprintf("reference to undefined %s", label),
		}
	}
	return idx, nil
}

// NumLookups returns the number of lookups in the lookup list.
func (t *Table) NumLookups() int {
	return len(t.lookups)
}

// AppendTop appends the table header, the script list and the feature list.
// The feature parameter area follows immediately; the client writes it
// before calling AppendLookupList.
func (t *Table) AppendTop(buf []byte) []byte {
	if !t.filled {
		panic("otl: AppendTop before Fill")
	}

	buf = put16(buf, 1) // majorVersion
	buf = put16(buf, 0) // minorVersion
	buf = put16(buf, headerSize)
	buf = put16(buf, uint16(headerSize+t.scriptListSize))
	buf = put16(buf, uint16(t.lookupListBase))

	buf = t.appendScriptList(buf)
	buf = t.appendFeatureList(buf)
	return buf
}

func (t *Table) appendScriptList(buf []byte) []byte {
	buf = put16(buf, uint16(len(t.scripts)))

	// Script tables follow the script records in order, each with its
	// language system tables.
	off := uint32(2 + 6*len(t.scripts))
	for _, se := range t.scripts {
		buf = putTag(buf, se.tag)
		buf = put16(buf, uint16(off))
		n := len(se.langs)
		if se.defaultLang() != nil {
			n--
		}
		off += uint32(4 + 6*n)
		for _, le := range se.langs {
			off += uint32(6 + 2*len(le.features))
		}
	}

	for _, se := range t.scripts {
		dflt := se.defaultLang()
		n := len(se.langs)
		if dflt != nil {
			n--
		}
		// language system tables follow the script table, in slice order
		lsOff := uint32(4 + 6*n)
		var dfltOff uint32
		langOffs := make([]uint32, 0, n)
		for _, le := range se.langs {
			if le == dflt {
				dfltOff = lsOff
			} else {
				langOffs = append(langOffs, lsOff)
			}
			lsOff += uint32(6 + 2*len(le.features))
		}

		buf = put16(buf, uint16(dfltOff))
		buf = put16(buf, uint16(n))
		i := 0
		for _, le := range se.langs {
			if le == dflt {
				continue
			}
			buf = putTag(buf, le.tag)
			buf = put16(buf, uint16(langOffs[i]))
			i++
		}
		for _, le := range se.langs {
			buf = put16(buf, 0)      // lookupOrderOffset
			buf = put16(buf, 0xFFFF) // requiredFeatureIndex
			buf = put16(buf, uint16(len(le.features)))
			for _, fi := range le.features {
				buf = put16(buf, fi)
			}
		}
	}
	return buf
}

func (t *Table) appendFeatureList(buf []byte) []byte {
	buf = put16(buf, uint16(len(t.features)))
	off := uint32(2 + 6*len(t.features))
	for _, fe := range t.features {
		buf = putTag(buf, fe.feature)
		buf = put16(buf, uint16(off))
		off += uint32(4 + 2*len(fe.lookups))
	}
	for _, fe := range t.features {
		if fe.hasParams {
			buf = put16(buf, uint16(t.featParamsBase+fe.params-fe.pos))
		} else {
			buf = put16(buf, 0)
		}
		buf = put16(buf, uint16(len(fe.lookups)))
		for _, idx := range fe.lookups {
			buf = put16(buf, idx)
		}
	}
	return buf
}

// AppendLookupList appends the lookup list and the lookup tables.  The
// ordinary subtable area follows immediately.
func (t *Table) AppendLookupList(buf []byte) []byte {
	if !t.filled {
		panic("otl: AppendLookupList before Fill")
	}

	buf = put16(buf, uint16(len(t.lookups)))
	off := uint32(2 + 2*len(t.lookups))
	for _, l := range t.lookups {
		buf = put16(buf, uint16(off))
		off += l.headerSize()
	}

	pos := t.lookupListBase + uint32(2+2*len(t.lookups))
	for _, l := range t.lookups {
		buf = put16(buf, l.lookupType)
		buf = put16(buf, uint16(l.flags))
		buf = put16(buf, uint16(len(l.subOffsets)))
		for _, subOff := range l.subOffsets {
			buf = put16(buf, uint16(t.subtableBase+subOff-pos))
		}
		if l.flags&UseMarkFilteringSet != 0 {
			buf = put16(buf, l.markFilteringSet)
		}
		pos += l.headerSize()
	}
	return buf
}
